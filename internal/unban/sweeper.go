// Package unban lifts account suspensions whose period has ended.
package unban

import (
	"context"
	"go.uber.org/zap"
	"time"
)

// Store clears every suspension that ended at or before now and returns how
// many customers it touched. Calling it twice for the same now is a no-op.
type Store interface {
	ClearExpiredSuspensions(ctx context.Context, now time.Time) (int, error)
}

type Metrics interface {
	Sweep(cleared int, unix int64)
}

type Sweeper struct {
	Store    Store
	Log      *zap.Logger
	Interval time.Duration
	Now      func() time.Time
	Metrics  Metrics
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	n, err := s.Store.ClearExpiredSuspensions(ctx, now)
	if err != nil {
		return 0, err
	}
	if s.Metrics != nil {
		s.Metrics.Sweep(n, now.Unix())
	}
	if s.Log != nil {
		s.Log.Info("unban sweep", zap.Int("cleared", n), zap.Time("at", now))
	}
	return n, nil
}

// Run sweeps immediately, then every Interval until ctx ends. A failed sweep
// is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil && s.Log != nil {
			s.Log.Error("unban sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
