// Package engine drives cascade assignments through their SLA stages.
//
// Every mutation is a conditional update on the status the engine read. When
// another writer got there first the update reports a conflict and the
// engine treats the record as handled.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cascade_backend/internal/cascade/calendar"
	"cascade_backend/internal/cascade/domain"
	"cascade_backend/internal/cascade/repository"
	"cascade_backend/internal/cascade/selector"
	"cascade_backend/internal/events"
	"cascade_backend/platform/logger"
	"cascade_backend/platform/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize = 200
	defaultWorkers   = 8
	defaultGrace     = 24 * time.Hour
)

// LedgerStore is the part of the ledger the engine reads and mutates.
type LedgerStore interface {
	repository.AssignmentReader
	repository.AssignmentWriter
}

// AgentSelector picks the next consultant for a redistribution.
type AgentSelector interface {
	Select(ctx context.Context, req selector.Request) (domain.Agent, error)
}

// Notifier delivers at most one alert per (assignment, level).
type Notifier interface {
	Notify(ctx context.Context, a domain.Assignment, level domain.NotificationLevel) (bool, error)
}

// ConfigSource returns the current valid automation config.
type ConfigSource interface {
	Active(ctx context.Context) (domain.AutomationConfig, error)
}

// Publisher is the event bus as seen by the engine.
type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

type Engine struct {
	ledger    LedgerStore
	selector  AgentSelector
	notifier  Notifier
	configs   ConfigSource
	bus       Publisher
	metrics   *metrics.Metrics
	log       *logger.Logger
	now       func() time.Time
	loc       *time.Location
	batchSize int
	workers   int
	grace     time.Duration
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(log *logger.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.bus = p }
}

// WithLocation is the zone used for snapshots that carry none.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithEscalationGrace sets how long an escalated record waits for a manager
// before it expires.
func WithEscalationGrace(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.grace = d
		}
	}
}

func New(ledger LedgerStore, sel AgentSelector, notifier Notifier, configs ConfigSource, opts ...Option) *Engine {
	e := &Engine{
		ledger:    ledger,
		selector:  sel,
		notifier:  notifier,
		configs:   configs,
		log:       logger.Discard(),
		now:       time.Now,
		loc:       time.UTC,
		batchSize: defaultBatchSize,
		workers:   defaultWorkers,
		grace:     defaultGrace,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TickResult summarises one pass over the pending ledger rows.
type TickResult struct {
	Scanned       int
	Transitioned  int
	Notified      int
	Redistributed int
	Escalated     int
	Expired       int
	Failed        int
}

// Changed reports whether the tick moved or notified anything.
func (r TickResult) Changed() bool {
	return r.Transitioned > 0 || r.Notified > 0 || r.Failed > 0
}

type tickCounters struct {
	scanned, transitioned, notified, redistributed, escalated, expired, failed atomic.Int64
}

func (c *tickCounters) result() TickResult {
	return TickResult{
		Scanned:       int(c.scanned.Load()),
		Transitioned:  int(c.transitioned.Load()),
		Notified:      int(c.notified.Load()),
		Redistributed: int(c.redistributed.Load()),
		Escalated:     int(c.escalated.Load()),
		Expired:       int(c.expired.Load()),
		Failed:        int(c.failed.Load()),
	}
}

// tick carries the state shared by all records of one pass.
type tick struct {
	now      time.Time
	counters tickCounters

	configOnce sync.Once
	snapshot   *domain.ConfigSnapshot
}

// Tick scans every pending assignment once. A ledger failure aborts the
// pass; the next tick starts over.
func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	started := time.Now()
	t := &tick{now: e.now()}

	err := e.scan(ctx, t)
	res := t.counters.result()
	e.metrics.ObserveTick(time.Since(started), err != nil)

	log := e.log.WithContext(ctx)
	if err != nil {
		log.Error("cascade tick aborted", "error", err, "scanned", res.Scanned)
		return res, err
	}
	if res.Changed() {
		log.TickCompleted(res.Scanned, res.Transitioned, res.Notified, res.Failed, float64(time.Since(started).Milliseconds()))
	}
	return res, nil
}

func (e *Engine) scan(ctx context.Context, t *tick) error {
	after := uuid.Nil
	for {
		batch, err := e.ledger.ListPending(ctx, after, e.batchSize)
		if err != nil {
			return fmt.Errorf("list pending assignments: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.workers)
		for _, a := range batch {
			g.Go(func() error {
				t.counters.scanned.Add(1)
				return e.process(gctx, t, a)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if len(batch) < e.batchSize {
			return nil
		}
		after = batch[len(batch)-1].ID
	}
}

func (e *Engine) process(ctx context.Context, t *tick, a domain.Assignment) error {
	if a.Status == domain.StatusEscalated {
		return e.processEscalated(ctx, t, a)
	}
	if !a.Status.IsOpen() {
		return nil
	}

	cal, err := calendar.FromSnapshot(a.Snapshot, e.loc)
	if err != nil {
		t.counters.failed.Add(1)
		e.log.Warn("assignment snapshot unusable", "assignmentId", a.ID, "error", err)
		return nil
	}

	target := a.Snapshot.StageAt(cal.Elapsed(a.AssignedAt, t.now))
	if target == domain.StatusExpired {
		return e.expire(ctx, t, a)
	}

	if domain.Rank(target) > domain.Rank(a.Status) {
		applied, err := e.transition(ctx, t, &a, target)
		if err != nil || !applied {
			return err
		}
	}

	e.notify(ctx, t, a, domain.LevelFor(a.Status))
	return nil
}

// expire handles a record whose SLA is used up.
func (e *Engine) expire(ctx context.Context, t *tick, a domain.Assignment) error {
	if !a.Snapshot.AutoRedistribute {
		return e.close(ctx, t, a)
	}

	done, err := e.redistribute(ctx, t, a)
	if err != nil || done {
		return err
	}

	applied, err := e.transition(ctx, t, &a, domain.StatusEscalated)
	if err != nil || !applied {
		return err
	}
	t.counters.escalated.Add(1)
	e.log.Warn("no eligible agent, assignment escalated", "assignmentId", a.ID, "leadId", a.LeadID)
	e.publish(ctx, events.AssignmentEscalated{
		BaseEvent:    events.NewBaseEvent(),
		AssignmentID: a.ID,
		LeadID:       a.LeadID,
		ConsultantID: a.ConsultantID,
	})
	e.notify(ctx, t, a, domain.LevelEscalated)
	return nil
}

// processEscalated retries redistribution and the manager alert, and closes
// the record once the grace period runs out.
func (e *Engine) processEscalated(ctx context.Context, t *tick, a domain.Assignment) error {
	if a.Snapshot.AutoRedistribute {
		done, err := e.redistribute(ctx, t, a)
		if err != nil || done {
			return err
		}
	}

	if a.EscalatedAt != nil && t.now.Sub(*a.EscalatedAt) >= e.grace {
		return e.close(ctx, t, a)
	}

	e.notify(ctx, t, a, domain.LevelEscalated)
	return nil
}

// close moves a to Expired and reports the breach.
func (e *Engine) close(ctx context.Context, t *tick, a domain.Assignment) error {
	applied, err := e.transition(ctx, t, &a, domain.StatusExpired)
	if err != nil || !applied {
		return err
	}
	t.counters.expired.Add(1)
	e.publish(ctx, events.AssignmentExpired{
		BaseEvent:    events.NewBaseEvent(),
		AssignmentID: a.ID,
		LeadID:       a.LeadID,
		ConsultantID: a.ConsultantID,
	})
	e.notify(ctx, t, a, domain.LevelBreach)
	return nil
}

// redistribute hands the lead to an agent outside the chain. It reports
// false with no error when nobody is eligible or the lead already holds a
// newer open row.
func (e *Engine) redistribute(ctx context.Context, t *tick, a domain.Assignment) (bool, error) {
	exclude, err := e.ledger.ChainConsultants(ctx, a.ChainID)
	if err != nil {
		return false, fmt.Errorf("chain consultants for %s: %w", a.ID, err)
	}

	snap := e.currentSnapshot(ctx, t, a.Snapshot)
	agent, err := e.selector.Select(ctx, selector.Request{
		Region:    a.Region,
		Specialty: a.Specialty,
		Exclude:   exclude,
		Policy:    snap,
	})
	if errors.Is(err, domain.ErrNoEligibleAgent) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select agent for %s: %w", a.ID, err)
	}

	next, err := e.successor(a, agent, snap, t.now)
	if err != nil {
		t.counters.failed.Add(1)
		e.log.Warn("cannot schedule redistributed assignment", "assignmentId", a.ID, "error", err)
		return false, nil
	}

	err = e.ledger.Redistribute(ctx, a.ID, a.Status, next, t.now)
	if errors.Is(err, repository.ErrConflict) {
		return true, nil
	}
	if errors.Is(err, repository.ErrLeadHasOpen) {
		// The lead came back through intake and already sits with someone.
		e.log.Info("lead already has an open assignment, not redistributing",
			"assignmentId", a.ID, "leadId", a.LeadID, "status", a.Status)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redistribute %s: %w", a.ID, err)
	}

	t.counters.transitioned.Add(1)
	t.counters.redistributed.Add(1)
	e.metrics.RecordTransition(string(a.Status), string(domain.StatusRedistributed))
	e.metrics.RecordAssignmentOpened("redistribution")
	e.log.Info("assignment redistributed",
		"assignmentId", a.ID, "leadId", a.LeadID, "nextAssignmentId", next.ID,
		"consultantId", next.ConsultantID, "attempt", next.AttemptCount)
	e.publish(ctx, events.AssignmentRedistributed{
		BaseEvent:            events.NewBaseEvent(),
		PreviousAssignmentID: a.ID,
		AssignmentID:         next.ID,
		LeadID:               a.LeadID,
		PreviousConsultantID: a.ConsultantID,
		ConsultantID:         next.ConsultantID,
		ExpiresAt:            next.ExpiresAt,
		AttemptCount:         next.AttemptCount,
	})
	return true, nil
}

// successor builds the Active row that continues a's chain.
func (e *Engine) successor(a domain.Assignment, agent domain.Agent, snap domain.ConfigSnapshot, now time.Time) (domain.Assignment, error) {
	cal, err := calendar.FromSnapshot(snap, e.loc)
	if err != nil {
		return domain.Assignment{}, err
	}
	return domain.Assignment{
		ID:           uuid.New(),
		ChainID:      a.ChainID,
		LeadID:       a.LeadID,
		ConsultantID: agent.ID,
		Status:       domain.StatusActive,
		Region:       a.Region,
		Specialty:    a.Specialty,
		AssignedAt:   now,
		ExpiresAt:    cal.Add(now, snap.SLA()),
		AttemptCount: a.AttemptCount + 1,
		Snapshot:     snap,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// currentSnapshot returns the active config's snapshot, loaded once per
// tick, or fallback when the config is missing or invalid.
func (e *Engine) currentSnapshot(ctx context.Context, t *tick, fallback domain.ConfigSnapshot) domain.ConfigSnapshot {
	t.configOnce.Do(func() {
		if e.configs == nil {
			return
		}
		cfg, err := e.configs.Active(ctx)
		if err != nil {
			e.log.Warn("active config unavailable, redistributing with frozen snapshots", "error", err)
			return
		}
		snap := cfg.Snapshot()
		t.snapshot = &snap
	})
	if t.snapshot == nil {
		return fallback
	}
	return *t.snapshot
}

// transition applies a conditional status change and updates a on success.
// A conflict is not an error: someone else already moved the record.
func (e *Engine) transition(ctx context.Context, t *tick, a *domain.Assignment, next domain.Status) (bool, error) {
	if !domain.CanTransition(a.Status, next) {
		return false, nil
	}

	err := e.ledger.CompareAndSetStatus(ctx, a.ID, a.Status, next, t.now)
	if errors.Is(err, repository.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("set %s to %s: %w", a.ID, next, err)
	}

	t.counters.transitioned.Add(1)
	e.metrics.RecordTransition(string(a.Status), string(next))

	a.Status = next
	a.UpdatedAt = t.now
	switch {
	case next == domain.StatusEscalated:
		at := t.now
		a.EscalatedAt = &at
	case next.IsTerminal():
		at := t.now
		a.FinalizedAt = &at
	}
	return true, nil
}

// notify never fails the tick; an undelivered level is retried next pass.
func (e *Engine) notify(ctx context.Context, t *tick, a domain.Assignment, level domain.NotificationLevel) {
	if e.notifier == nil || level == domain.LevelNone || a.LastNotifiedLevel >= level {
		return
	}
	sent, err := e.notifier.Notify(ctx, a, level)
	if err != nil {
		t.counters.failed.Add(1)
		e.log.Warn("sla notification not delivered, retrying next tick",
			"assignmentId", a.ID, "leadId", a.LeadID, "level", level.String(), "error", err)
		return
	}
	if sent {
		t.counters.notified.Add(1)
	}
}

func (e *Engine) publish(ctx context.Context, event events.Event) {
	if e.bus != nil {
		e.bus.Publish(ctx, event)
	}
}
