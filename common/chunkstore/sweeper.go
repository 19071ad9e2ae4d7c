package chunkstore

import (
	"context"
	"time"
)

const (
	// DefaultRetention is how long an upload may stay in the registry
	DefaultRetention = time.Hour

	// DefaultSweepInterval is how often stale uploads are evicted
	DefaultSweepInterval = 10 * time.Minute
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Sweeper periodically evicts uploads older than the retention window
type Sweeper struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    Logger
}

// NewSweeper creates a sweeper; zero durations fall back to the defaults
func NewSweeper(store Store, retention, interval time.Duration, logger Logger) *Sweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:     store,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		logger:    logger,
	}
}

// RunOnce performs a single sweep pass
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.retention)
	evicted, err := s.store.Sweep(ctx, cutoff)
	if err != nil {
		s.logger.Error("chunk registry sweep failed", "error", err, "evicted", evicted)
		return evicted, err
	}
	if evicted > 0 {
		s.logger.Info("evicted stale uploads", "count", evicted, "retention", s.retention)
	}
	return evicted, nil
}

// Start sweeps on every interval until ctx is cancelled
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("chunk registry sweeper started", "interval", s.interval, "retention", s.retention)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("chunk registry sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
