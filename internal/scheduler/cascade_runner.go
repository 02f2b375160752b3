package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cascade_backend/internal/cascade/engine"
	"cascade_backend/platform/logger"
	"cascade_backend/platform/metrics"

	"github.com/google/uuid"
)

const defaultTickInterval = time.Minute

// Ticker is one cascade pass over the ledger.
type Ticker interface {
	Tick(ctx context.Context) (engine.TickResult, error)
}

// Locker is a lease shared across scheduler instances.
type Locker interface {
	TryAcquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

// CascadeRunner drives the engine on a fixed interval. A tick never
// overlaps another one in this process, nor, with a Locker, in any other.
type CascadeRunner struct {
	engine   Ticker
	lock     Locker
	interval time.Duration
	log      *logger.Logger
	metrics  *metrics.Metrics
	running  atomic.Bool
}

type RunnerOption func(*CascadeRunner)

// WithLock enables cross-instance single flight.
func WithLock(l Locker) RunnerOption {
	return func(r *CascadeRunner) { r.lock = l }
}

func WithRunnerMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *CascadeRunner) { r.metrics = m }
}

func NewCascadeRunner(e Ticker, interval time.Duration, log *logger.Logger, opts ...RunnerOption) *CascadeRunner {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	if log == nil {
		log = logger.Discard()
	}
	r := &CascadeRunner{engine: e, interval: interval, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run ticks every interval until ctx is done.
func (r *CascadeRunner) Run(ctx context.Context) {
	if r == nil || r.engine == nil {
		return
	}

	r.log.Info("cascade runner started", "interval", r.interval.String())
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var inflight sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			// Run returns only once the last tick has let go of the ledger.
			inflight.Wait()
			r.log.Info("cascade runner stopped")
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			// A slow tick must not block the ticker; overlapping ones are skipped.
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				r.RunOnce(ctx)
			}()
		}
	}
}

// RunOnce runs a single tick unless one is already in flight here or, with a
// lock, elsewhere. It reports whether the tick ran.
func (r *CascadeRunner) RunOnce(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		r.metrics.RecordTickSkipped("in_flight")
		r.log.Debug("cascade tick skipped, previous still running")
		return false
	}
	defer r.running.Store(false)

	if r.lock != nil {
		release, ok, err := r.lock.TryAcquire(ctx)
		if err != nil {
			r.metrics.RecordTickSkipped("lock_error")
			r.log.Warn("cascade tick lock failed", "error", err)
			return false
		}
		if !ok {
			r.metrics.RecordTickSkipped("locked")
			r.log.Debug("cascade tick skipped, held by another instance")
			return false
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				r.log.Warn("cascade tick lock release failed", "error", err)
			}
		}()
	}

	tickCtx := context.WithValue(ctx, logger.TickIDKey, uuid.NewString())
	// Failures are logged by the engine and retried next tick.
	_, _ = r.engine.Tick(tickCtx)
	return true
}
