package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingSink struct {
	mu    sync.Mutex
	got   []orders.Notification
	failN int32 // fail this many calls first
	calls atomic.Int32
	block chan struct{}
}

func (s *recordingSink) Send(ctx context.Context, n orders.Notification) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c := s.calls.Add(1); c <= s.failN {
		return errors.New("broker unavailable")
	}
	s.mu.Lock()
	s.got = append(s.got, n)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) delivered() []orders.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]orders.Notification(nil), s.got...)
}

type counters struct {
	sent, dropped, failed atomic.Int32
}

func (c *counters) NotificationSent()    { c.sent.Add(1) }
func (c *counters) NotificationDropped() { c.dropped.Add(1) }
func (c *counters) NotificationFailed()  { c.failed.Add(1) }
func (c *counters) QueueDepth(int)       {}

func fastConfig() Config {
	return Config{QueueSize: 8, Workers: 1, MaxRetries: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestDispatcher_DeliversAndDrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	m := &counters{}
	d := NewDispatcher(sink, fastConfig(), zaptest.NewLogger(t), m)
	d.Start(context.Background())

	for i := 0; i < 5; i++ {
		d.Notify(context.Background(), orders.Notification{ID: string(rune('a' + i)), UserID: "u"})
	}
	d.Close()

	assert.Len(t, sink.delivered(), 5)
	assert.EqualValues(t, 5, m.sent.Load())
	assert.Zero(t, m.dropped.Load())
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	sink := &recordingSink{failN: 2}
	m := &counters{}
	d := NewDispatcher(sink, fastConfig(), zaptest.NewLogger(t), m)
	d.Start(context.Background())

	d.Notify(context.Background(), orders.Notification{ID: "n1", UserID: "u"})
	d.Close()

	require.Len(t, sink.delivered(), 1)
	assert.EqualValues(t, 3, sink.calls.Load())
	assert.EqualValues(t, 1, m.sent.Load())
}

func TestDispatcher_GivesUpAfterMaxRetries(t *testing.T) {
	sink := &recordingSink{failN: 100}
	m := &counters{}
	d := NewDispatcher(sink, fastConfig(), zaptest.NewLogger(t), m)
	d.Start(context.Background())

	d.Notify(context.Background(), orders.Notification{ID: "n1", UserID: "u"})
	d.Close()

	assert.Empty(t, sink.delivered())
	assert.EqualValues(t, 4, sink.calls.Load()) // first try + 3 retries
	assert.EqualValues(t, 1, m.failed.Load())
}

func TestDispatcher_DropsWhenFullWithoutBlocking(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	m := &counters{}
	cfg := fastConfig()
	cfg.QueueSize = 2
	d := NewDispatcher(sink, cfg, zaptest.NewLogger(t), m)
	// workers not started: nothing leaves the queue

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Notify(context.Background(), orders.Notification{ID: "x", UserID: "u"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
	assert.EqualValues(t, 8, m.dropped.Load())

	close(sink.block)
	d.Start(context.Background())
	d.Close()
	assert.Len(t, sink.delivered(), 2)
}

func TestDispatcher_NotifyAfterCloseIsDropped(t *testing.T) {
	m := &counters{}
	d := NewDispatcher(&recordingSink{}, fastConfig(), zaptest.NewLogger(t), m)
	d.Start(context.Background())
	d.Close()

	assert.NotPanics(t, func() {
		d.Notify(context.Background(), orders.Notification{ID: "late", UserID: "u"})
	})
	assert.EqualValues(t, 1, m.dropped.Load())
}
