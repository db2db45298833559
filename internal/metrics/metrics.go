package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Registry owns every fulfillment collector. Its methods satisfy the small
// metrics interfaces the services declare; a nil *Registry records nothing.
type Registry struct {
	reg *prometheus.Registry

	Checkouts          *prometheus.CounterVec
	StockUnits         *prometheus.CounterVec
	Suspensions        prometheus.Counter
	NotifySent         prometheus.Counter
	NotifyDropped      prometheus.Counter
	NotifyFailed       prometheus.Counter
	NotifyQueueDepth   prometheus.Gauge
	UnbanSweeps        prometheus.Counter
	UnbanCleared       prometheus.Counter
	UnbanLastSweepUnix prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	m := &Registry{
		reg: r,
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fulfillment_checkouts_total",
			Help: "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		StockUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fulfillment_stock_units_total",
			Help: "Units consumed from (out) or restocked into (in) lots.",
		}, []string{"direction"}),
		Suspensions:        prometheus.NewCounter(prometheus.CounterOpts{Name: "fulfillment_account_suspensions_total"}),
		NotifySent:         prometheus.NewCounter(prometheus.CounterOpts{Name: "fulfillment_notifications_sent_total"}),
		NotifyDropped:      prometheus.NewCounter(prometheus.CounterOpts{Name: "fulfillment_notifications_dropped_total"}),
		NotifyFailed:       prometheus.NewCounter(prometheus.CounterOpts{Name: "fulfillment_notifications_failed_total"}),
		NotifyQueueDepth:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "fulfillment_notification_queue_depth"}),
		UnbanSweeps:        prometheus.NewCounter(prometheus.CounterOpts{Name: "fulfillment_unban_sweeps_total"}),
		UnbanCleared:       prometheus.NewCounter(prometheus.CounterOpts{Name: "fulfillment_unban_cleared_total"}),
		UnbanLastSweepUnix: prometheus.NewGauge(prometheus.GaugeOpts{Name: "fulfillment_unban_last_sweep_timestamp_seconds"}),
	}
	r.MustRegister(m.Checkouts, m.StockUnits, m.Suspensions, m.NotifySent, m.NotifyDropped,
		m.NotifyFailed, m.NotifyQueueDepth, m.UnbanSweeps, m.UnbanCleared, m.UnbanLastSweepUnix)
	return m
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

func (r *Registry) CheckoutOutcome(outcome string) {
	if r == nil {
		return
	}
	r.Checkouts.WithLabelValues(outcome).Inc()
}

func (r *Registry) StockMoved(direction string, units int) {
	if r == nil || units <= 0 {
		return
	}
	r.StockUnits.WithLabelValues(direction).Add(float64(units))
}

func (r *Registry) Suspension() {
	if r == nil {
		return
	}
	r.Suspensions.Inc()
}

func (r *Registry) NotificationSent() {
	if r == nil {
		return
	}
	r.NotifySent.Inc()
}

func (r *Registry) NotificationDropped() {
	if r == nil {
		return
	}
	r.NotifyDropped.Inc()
}

func (r *Registry) NotificationFailed() {
	if r == nil {
		return
	}
	r.NotifyFailed.Inc()
}

func (r *Registry) QueueDepth(n int) {
	if r == nil {
		return
	}
	r.NotifyQueueDepth.Set(float64(n))
}

func (r *Registry) Sweep(cleared int, unix int64) {
	if r == nil {
		return
	}
	r.UnbanSweeps.Inc()
	r.UnbanCleared.Add(float64(cleared))
	r.UnbanLastSweepUnix.Set(float64(unix))
}
