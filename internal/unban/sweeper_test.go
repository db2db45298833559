package unban

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-order-fulfillment/internal/memstore"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type sweepRecorder struct {
	mu      sync.Mutex
	cleared []int
}

func (r *sweepRecorder) Sweep(cleared int, _ int64) {
	r.mu.Lock()
	r.cleared = append(r.cleared, cleared)
	r.mu.Unlock()
}

func seeded(now time.Time) *memstore.Store {
	s := memstore.New()
	past, future := now.Add(-time.Hour), now.Add(time.Hour)
	exact := now
	s.PutCustomer(orders.Customer{ID: "expired", CancelledOrderCount: 4, SuspendedUntil: &past})
	s.PutCustomer(orders.Customer{ID: "boundary", CancelledOrderCount: 5, SuspendedUntil: &exact})
	s.PutCustomer(orders.Customer{ID: "still", CancelledOrderCount: 4, SuspendedUntil: &future})
	s.PutCustomer(orders.Customer{ID: "clean"})
	return s
}

func TestSweepOnce_LiftsEndedSuspensionsOnly(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	s := seeded(now)
	rec := &sweepRecorder{}
	sw := &Sweeper{Store: s, Log: zaptest.NewLogger(t), Now: func() time.Time { return now }, Metrics: rec}

	n, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for id, suspended := range map[string]bool{"expired": false, "boundary": false, "still": true, "clean": false} {
		c, ok := s.Customer(id)
		require.True(t, ok)
		assert.Equal(t, suspended, c.SuspendedUntil != nil, id)
	}
	c, _ := s.Customer("expired")
	assert.Equal(t, 4, c.CancelledOrderCount, "count is history, not reset by the sweep")

	n, err = sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []int{2, 0}, rec.cleared)
}

func TestSweepOnce_ConcurrentRunsClearOnce(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	s := seeded(now)
	sw := &Sweeper{Store: s, Now: func() time.Time { return now }}

	var wg sync.WaitGroup
	total := make(chan int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := sw.SweepOnce(context.Background())
			assert.NoError(t, err)
			total <- n
		}()
	}
	wg.Wait()
	close(total)
	sum := 0
	for n := range total {
		sum += n
	}
	assert.Equal(t, 2, sum)
}

func TestRun_SweepsOnStartAndStopsWithContext(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	rec := &sweepRecorder{}
	sw := &Sweeper{Store: seeded(now), Interval: time.Hour, Now: func() time.Time { return now }, Metrics: rec}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.cleared) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
