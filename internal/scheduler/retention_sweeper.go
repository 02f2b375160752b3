package scheduler

import (
	"context"
	"time"

	"cascade_backend/platform/logger"
	"cascade_backend/platform/metrics"
)

const (
	defaultRetentionInterval = time.Hour
	defaultRetentionWindow   = 30 * 24 * time.Hour
)

// FinalizedPurger deletes terminal assignments finalized before cutoff.
type FinalizedPurger interface {
	DeleteFinalizedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionSweeper periodically removes finalized assignments older than
// the retention window. Pending rows are never touched.
type RetentionSweeper struct {
	store    FinalizedPurger
	log      *logger.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	window   time.Duration
	now      func() time.Time
}

func NewRetentionSweeper(store FinalizedPurger, log *logger.Logger, m *metrics.Metrics, interval, window time.Duration) *RetentionSweeper {
	if interval <= 0 {
		interval = defaultRetentionInterval
	}
	if window <= 0 {
		window = defaultRetentionWindow
	}
	if log == nil {
		log = logger.Discard()
	}

	return &RetentionSweeper{
		store:    store,
		log:      log,
		metrics:  m,
		interval: interval,
		window:   window,
		now:      time.Now,
	}
}

func (s *RetentionSweeper) Run(ctx context.Context) {
	if s == nil || s.store == nil {
		return
	}

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one retention pass and returns the number of deleted rows.
func (s *RetentionSweeper) Sweep(ctx context.Context) int64 {
	cutoff := s.now().Add(-s.window)

	deleted, err := s.store.DeleteFinalizedBefore(ctx, cutoff)
	if err != nil {
		s.log.Warn("cascade retention sweep failed", "error", err)
		return 0
	}

	s.metrics.RecordRetentionDeleted(deleted)
	if deleted > 0 {
		s.log.Info("cascade retention sweep deleted finalized assignments", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted
}
