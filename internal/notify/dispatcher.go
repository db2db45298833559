// Package notify delivers committed notifications to a transport without
// holding up the request that produced them.
package notify

import (
	"context"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"sync"
	"time"
)

// Sink is a transport: kafka producer, rabbitmq publisher or the log.
type Sink interface {
	Send(ctx context.Context, n orders.Notification) error
}

type Metrics interface {
	NotificationSent()
	NotificationDropped()
	NotificationFailed()
	QueueDepth(n int)
}

type nopMetrics struct{}

func (nopMetrics) NotificationSent()    {}
func (nopMetrics) NotificationDropped() {}
func (nopMetrics) NotificationFailed()  {}
func (nopMetrics) QueueDepth(int)       {}

type Config struct {
	QueueSize   int
	Workers     int
	MaxRetries  uint64
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 5 * time.Second
	}
	return c
}

// Dispatcher implements orders.Notifier with a bounded queue. When the queue
// is full the notification is dropped and counted; the caller never waits.
type Dispatcher struct {
	sink    Sink
	cfg     Config
	log     *zap.Logger
	metrics Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan orders.Notification
	wg     sync.WaitGroup
	stop   context.CancelFunc
}

func NewDispatcher(sink Sink, cfg Config, log *zap.Logger, m Metrics) *Dispatcher {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = nopMetrics{}
	}
	return &Dispatcher{
		sink:    sink,
		cfg:     cfg,
		log:     log,
		metrics: m,
		queue:   make(chan orders.Notification, cfg.QueueSize),
	}
}

func (d *Dispatcher) Notify(_ context.Context, n orders.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(n, "dispatcher closed")
		return
	}
	select {
	case d.queue <- n:
		d.metrics.QueueDepth(len(d.queue))
	default:
		d.drop(n, "queue full")
	}
}

func (d *Dispatcher) drop(n orders.Notification, why string) {
	d.metrics.NotificationDropped()
	d.log.Warn("notification dropped",
		zap.String("reason", why),
		zap.String("id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.String("user_id", n.UserID))
}

// Start launches the workers. Cancelling ctx aborts in-flight retries;
// Close drains what is already queued.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.stop = context.WithCancel(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for n := range d.queue {
				d.metrics.QueueDepth(len(d.queue))
				d.deliver(ctx, n)
			}
		}()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n orders.Notification) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.cfg.BaseBackoff
	exp.MaxInterval = d.cfg.MaxBackoff
	exp.MaxElapsedTime = 0
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if d.cfg.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(exp, d.cfg.MaxRetries)
	}
	b := backoff.WithContext(policy, ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
		return d.sink.Send(sctx, n)
	}, b)
	if err != nil {
		d.metrics.NotificationFailed()
		d.log.Error("notification delivery failed",
			zap.String("id", n.ID),
			zap.String("kind", string(n.Kind)),
			zap.Int("attempts", attempt),
			zap.Error(err))
		return
	}
	d.metrics.NotificationSent()
	d.log.Debug("notification delivered", zap.String("id", n.ID), zap.Int("attempts", attempt))
}

// Close stops intake and waits until the queue is drained.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
	if d.stop != nil {
		d.stop()
	}
}
