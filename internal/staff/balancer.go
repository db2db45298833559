package staff

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

type Capability string

const (
	CapabilityOrders  Capability = "order-handling"
	CapabilitySupport Capability = "customer-support"
)

// Member is one entry of the staff roster.
type Member struct {
	ID             string
	Name           string
	Capabilities   []Capability
	Online         bool
	LastActivityAt time.Time
	HeartbeatAt    time.Time
}

func (m Member) Has(c Capability) bool {
	for _, x := range m.Capabilities {
		if x == c {
			return true
		}
	}
	return false
}

// WithStaleOffline marks members whose heartbeat is older than timeout as
// offline. A zero timeout leaves the pool untouched.
func WithStaleOffline(pool []Member, now time.Time, timeout time.Duration) []Member {
	if timeout <= 0 {
		return pool
	}
	out := make([]Member, len(pool))
	for i, m := range pool {
		if m.Online && now.Sub(m.HeartbeatAt) > timeout {
			m.Online = false
		}
		out[i] = m
	}
	return out
}

// Candidate is built fresh for every assignment decision and never stored.
type Candidate struct {
	Member
	ActiveLoad int
}

var ErrNoneAvailable = errors.New("no staff member available")

// LoadCounter reports open, non-terminal assignments per staff id.
type LoadCounter interface {
	ActiveLoads(ctx context.Context, capability Capability, staffIDs []string) (map[string]int, error)
}

// Picker is the only source of randomness in an assignment.
type Picker interface {
	Intn(n int) int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

type Balancer struct {
	picker Picker
}

// NewBalancer uses p for the final tie-break; nil means a time-seeded source.
func NewBalancer(p Picker) *Balancer {
	if p == nil {
		p = &lockedRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
	}
	return &Balancer{picker: p}
}

// Assign picks the best member of pool holding capability.
func (b *Balancer) Assign(ctx context.Context, capability Capability, pool []Member, loads LoadCounter) (Member, error) {
	eligible := make([]Member, 0, len(pool))
	for _, m := range pool {
		if m.Has(capability) {
			eligible = append(eligible, m)
		}
	}
	if len(eligible) == 0 {
		return Member{}, ErrNoneAvailable
	}

	ids := make([]string, len(eligible))
	for i, m := range eligible {
		ids[i] = m.ID
	}
	counts, err := loads.ActiveLoads(ctx, capability, ids)
	if err != nil {
		return Member{}, fmt.Errorf("active loads: %w", err)
	}
	cands := make([]Candidate, len(eligible))
	for i, m := range eligible {
		cands[i] = Candidate{Member: m, ActiveLoad: counts[m.ID]}
	}

	short := Shortlist(cands)
	if len(short) == 1 {
		return short[0].Member, nil
	}
	return short[b.picker.Intn(len(short))].Member, nil
}

// Shortlist applies the deterministic steps: online members first (when any),
// then minimum load, then the oldest last activity.
func Shortlist(cands []Candidate) []Candidate {
	if len(cands) == 0 {
		return nil
	}
	set := cands
	online := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Online {
			online = append(online, c)
		}
	}
	if len(online) > 0 {
		set = online
	}

	minLoad := set[0].ActiveLoad
	for _, c := range set[1:] {
		minLoad = min(minLoad, c.ActiveLoad)
	}
	least := make([]Candidate, 0, len(set))
	for _, c := range set {
		if c.ActiveLoad == minLoad {
			least = append(least, c)
		}
	}
	if len(least) == 1 {
		return least
	}

	oldest := least[0].LastActivityAt
	for _, c := range least[1:] {
		if c.LastActivityAt.Before(oldest) {
			oldest = c.LastActivityAt
		}
	}
	idle := make([]Candidate, 0, len(least))
	for _, c := range least {
		if c.LastActivityAt.Equal(oldest) {
			idle = append(idle, c)
		}
	}
	return idle
}
