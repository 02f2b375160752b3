// Package service exposes the inbound cascade operations used by the CRM:
// lead intake, first-contact recording, manual reassignment and the admin
// config surface.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cascade_backend/internal/cascade/calendar"
	"cascade_backend/internal/cascade/domain"
	"cascade_backend/internal/cascade/identity"
	"cascade_backend/internal/cascade/repository"
	"cascade_backend/internal/cascade/selector"
	"cascade_backend/internal/events"
	"cascade_backend/platform/apperr"
	"cascade_backend/platform/logger"
	"cascade_backend/platform/metrics"
	"cascade_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	opCreateAssignment = "cascade.service.create_assignment"
	opMarkContacted    = "cascade.service.mark_contacted"
	opReassign         = "cascade.service.reassign"
	opGetAssignment    = "cascade.service.get_assignment"
	opListLead         = "cascade.service.list_lead_assignments"
	opGetConfig        = "cascade.service.get_active_config"
	opSaveConfig       = "cascade.service.save_config"

	msgAssignmentNotFound = "assignment not found"
	msgConfigInvalid      = "automation config missing or invalid"
)

// Ledger is the part of the cascade ledger the service touches.
type Ledger interface {
	repository.AssignmentReader
	repository.AssignmentWriter
}

// ConfigManager reads and versions the automation config.
type ConfigManager interface {
	Active(ctx context.Context) (domain.AutomationConfig, error)
	Save(ctx context.Context, cfg domain.AutomationConfig) (domain.AutomationConfig, error)
}

// IdentityResolver recognises returning clients.
type IdentityResolver interface {
	Resolve(ctx context.Context, c identity.Candidate, cfg *domain.AutomationConfig) (identity.Resolution, error)
}

// AgentSelector picks the consultant for a lead.
type AgentSelector interface {
	Select(ctx context.Context, req selector.Request) (domain.Agent, error)
}

// Publisher is the event bus as seen by the service.
type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

type Service struct {
	ledger   Ledger
	configs  ConfigManager
	resolver IdentityResolver
	selector AgentSelector
	agents   repository.AgentPool
	bus      Publisher
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time
	loc      *time.Location
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.bus = p }
}

// WithLocation is the zone used when a config carries none.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func New(ledger Ledger, configs ConfigManager, resolver IdentityResolver, sel AgentSelector, agents repository.AgentPool, opts ...Option) *Service {
	s := &Service{
		ledger:   ledger,
		configs:  configs,
		resolver: resolver,
		selector: sel,
		agents:   agents,
		log:      logger.Discard(),
		now:      time.Now,
		loc:      time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Intake is an inbound lead handed over by the CRM.
type Intake struct {
	LeadID    uuid.UUID
	Email     string
	Phone     string
	Document  string
	Region    string
	Specialty string
}

// IntakeResult is the assignment holding the lead after intake.
type IntakeResult struct {
	Assignment domain.Assignment `json:"assignment"`
	// Created is false when the lead already held an open assignment.
	Created   bool   `json:"created"`
	Recurring bool   `json:"recurring"`
	MatchedBy string `json:"matchedBy,omitempty"`
}

// CreateAssignment places a lead with a consultant and starts its SLA clock.
// A lead that already holds an open assignment gets that assignment back.
func (s *Service) CreateAssignment(ctx context.Context, in Intake) (IntakeResult, error) {
	if in.LeadID == uuid.Nil {
		return IntakeResult{}, apperr.Validation("leadId is required").WithOp(opCreateAssignment)
	}
	in.Region = sanitize.Label(in.Region)
	in.Specialty = sanitize.Label(in.Specialty)

	cfg, err := s.configs.Active(ctx)
	if err != nil {
		return IntakeResult{}, configError(opCreateAssignment, err)
	}

	if existing, err := s.ledger.GetOpenForLead(ctx, in.LeadID); err == nil {
		return IntakeResult{Assignment: existing}, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return IntakeResult{}, internal(opCreateAssignment, "load open assignment", err)
	}

	res, err := s.resolver.Resolve(ctx, identity.Candidate{
		LeadID:   in.LeadID,
		Email:    in.Email,
		Phone:    in.Phone,
		Document: in.Document,
	}, &cfg)
	if err != nil {
		return IntakeResult{}, internal(opCreateAssignment, "resolve identity", err)
	}

	snap := cfg.Snapshot()
	source := "intake"
	var consultantID uuid.UUID
	if res.ConsultantID != nil {
		consultantID = *res.ConsultantID
		source = "continuity"
	} else {
		agent, err := s.selector.Select(ctx, selector.Request{
			Region:    in.Region,
			Specialty: in.Specialty,
			Exclude:   res.Exclude,
			Policy:    snap,
		})
		if errors.Is(err, domain.ErrNoEligibleAgent) {
			s.log.WithContext(ctx).Warn("no eligible agent for lead", "leadId", in.LeadID, "region", in.Region, "specialty", in.Specialty)
			s.publish(ctx, events.AssignmentUnassignable{
				BaseEvent: events.NewBaseEvent(),
				LeadID:    in.LeadID,
				Region:    in.Region,
				Specialty: in.Specialty,
			})
			return IntakeResult{}, apperr.Wrap(apperr.KindUnavailable, "no eligible agent", err).WithOp(opCreateAssignment)
		}
		if err != nil {
			return IntakeResult{}, internal(opCreateAssignment, "select agent", err)
		}
		consultantID = agent.ID
	}

	a, err := s.newAssignment(in, consultantID, snap)
	if err != nil {
		return IntakeResult{}, configError(opCreateAssignment, err)
	}

	if err := s.ledger.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrLeadHasOpen) {
			// A concurrent intake for the same lead won.
			existing, getErr := s.ledger.GetOpenForLead(ctx, in.LeadID)
			if getErr == nil {
				return IntakeResult{Assignment: existing}, nil
			}
			return IntakeResult{}, apperr.Conflict("lead already has an open assignment").WithOp(opCreateAssignment)
		}
		return IntakeResult{}, internal(opCreateAssignment, "create assignment", err)
	}

	s.metrics.RecordAssignmentOpened(source)
	s.log.WithContext(ctx).Info("lead assigned",
		"assignmentId", a.ID, "leadId", a.LeadID, "consultantId", a.ConsultantID,
		"expiresAt", a.ExpiresAt, "source", source)
	s.publish(ctx, events.AssignmentCreated{
		BaseEvent:    events.NewBaseEvent(),
		AssignmentID: a.ID,
		LeadID:       a.LeadID,
		ConsultantID: a.ConsultantID,
		ExpiresAt:    a.ExpiresAt,
		Recurring:    res.Recurring,
		MatchedBy:    string(res.MatchedBy),
	})

	return IntakeResult{
		Assignment: a,
		Created:    true,
		Recurring:  res.Recurring,
		MatchedBy:  string(res.MatchedBy),
	}, nil
}

// MarkContacted records the consultant's first contact. A zero at means now.
// A record that already reached a terminal status yields a conflict that
// carries the status it ended in.
func (s *Service) MarkContacted(ctx context.Context, id uuid.UUID, at time.Time) (domain.Assignment, error) {
	now := s.now()
	if at.IsZero() {
		at = now
	}
	if at.After(now) {
		return domain.Assignment{}, apperr.Validation("contactedAt cannot be in the future").WithOp(opMarkContacted)
	}

	a, err := s.ledger.MarkContacted(ctx, id, at)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return domain.Assignment{}, apperr.NotFound(msgAssignmentNotFound).WithOp(opMarkContacted)
	case errors.Is(err, repository.ErrConflict):
		return a, apperr.Conflict("assignment already finalized").
			WithOp(opMarkContacted).
			WithDetails(map[string]string{"status": string(a.Status)})
	case err != nil:
		return domain.Assignment{}, internal(opMarkContacted, "mark contacted", err)
	}

	s.log.WithContext(ctx).Info("first contact recorded", "assignmentId", a.ID, "leadId", a.LeadID)
	s.publish(ctx, events.AssignmentCompleted{
		BaseEvent:    events.NewBaseEvent(),
		AssignmentID: a.ID,
		LeadID:       a.LeadID,
		ConsultantID: a.ConsultantID,
		ContactedAt:  at,
	})
	return a, nil
}

// Reassign lets a manager move a pending lead to a chosen agent. The current
// record closes as Redistributed and a new Active one continues the chain.
func (s *Service) Reassign(ctx context.Context, id, consultantID uuid.UUID) (domain.Assignment, error) {
	current, err := s.ledger.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Assignment{}, apperr.NotFound(msgAssignmentNotFound).WithOp(opReassign)
	}
	if err != nil {
		return domain.Assignment{}, internal(opReassign, "load assignment", err)
	}
	if !current.Status.IsPending() {
		return domain.Assignment{}, apperr.Conflict("assignment already finalized").
			WithOp(opReassign).
			WithDetails(map[string]string{"status": string(current.Status)})
	}
	if consultantID == current.ConsultantID {
		return domain.Assignment{}, apperr.Validation("lead is already assigned to this consultant").WithOp(opReassign)
	}

	agent, err := s.agents.GetAgent(ctx, consultantID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Assignment{}, apperr.Validation("consultant not found").WithOp(opReassign)
	}
	if err != nil {
		return domain.Assignment{}, internal(opReassign, "load consultant", err)
	}
	if !agent.Active || agent.Manager {
		return domain.Assignment{}, apperr.Validation("consultant cannot receive leads").WithOp(opReassign)
	}

	snap := current.Snapshot
	if cfg, err := s.configs.Active(ctx); err == nil {
		snap = cfg.Snapshot()
	}

	now := s.now()
	cal, err := calendar.FromSnapshot(snap, s.loc)
	if err != nil {
		return domain.Assignment{}, configError(opReassign, err)
	}
	next := domain.Assignment{
		ID:           uuid.New(),
		ChainID:      current.ChainID,
		LeadID:       current.LeadID,
		ConsultantID: agent.ID,
		Status:       domain.StatusActive,
		Region:       current.Region,
		Specialty:    current.Specialty,
		AssignedAt:   now,
		ExpiresAt:    cal.Add(now, snap.SLA()),
		AttemptCount: current.AttemptCount + 1,
		Snapshot:     snap,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.ledger.Redistribute(ctx, current.ID, current.Status, next, now)
	if errors.Is(err, repository.ErrConflict) {
		return domain.Assignment{}, apperr.Conflict("assignment changed, reload and retry").WithOp(opReassign)
	}
	if errors.Is(err, repository.ErrLeadHasOpen) {
		return domain.Assignment{}, apperr.Conflict("lead already has another open assignment").WithOp(opReassign)
	}
	if err != nil {
		return domain.Assignment{}, internal(opReassign, "redistribute", err)
	}

	s.metrics.RecordAssignmentOpened("manual")
	s.log.WithContext(ctx).Info("assignment reassigned by manager",
		"assignmentId", current.ID, "nextAssignmentId", next.ID, "consultantId", agent.ID)
	s.publish(ctx, events.AssignmentRedistributed{
		BaseEvent:            events.NewBaseEvent(),
		PreviousAssignmentID: current.ID,
		AssignmentID:         next.ID,
		LeadID:               next.LeadID,
		PreviousConsultantID: current.ConsultantID,
		ConsultantID:         next.ConsultantID,
		ExpiresAt:            next.ExpiresAt,
		AttemptCount:         next.AttemptCount,
		Manual:               true,
	})
	return next, nil
}

func (s *Service) GetAssignment(ctx context.Context, id uuid.UUID) (domain.Assignment, error) {
	a, err := s.ledger.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Assignment{}, apperr.NotFound(msgAssignmentNotFound).WithOp(opGetAssignment)
	}
	if err != nil {
		return domain.Assignment{}, internal(opGetAssignment, "load assignment", err)
	}
	return a, nil
}

// ListLeadAssignments returns the lead's cascade history, oldest first.
func (s *Service) ListLeadAssignments(ctx context.Context, leadID uuid.UUID) ([]domain.Assignment, error) {
	items, err := s.ledger.ListByLead(ctx, leadID)
	if err != nil {
		return nil, internal(opListLead, "list assignments", err)
	}
	return items, nil
}

func (s *Service) GetActiveConfig(ctx context.Context) (domain.AutomationConfig, error) {
	cfg, err := s.configs.Active(ctx)
	if err != nil {
		return domain.AutomationConfig{}, configError(opGetConfig, err)
	}
	return cfg, nil
}

// SaveConfig validates cfg and stores it as the new active version.
// In-flight assignments keep the snapshot they were created with.
func (s *Service) SaveConfig(ctx context.Context, cfg domain.AutomationConfig, actor uuid.UUID) (domain.AutomationConfig, error) {
	cfg.ID = uuid.Nil
	if actor != uuid.Nil {
		cfg.CreatedBy = &actor
	}
	saved, err := s.configs.Save(ctx, cfg)
	if err != nil {
		return domain.AutomationConfig{}, configError(opSaveConfig, err)
	}
	s.log.WithContext(ctx).Info("automation config saved", "configId", saved.ID, "createdBy", actor)
	return saved, nil
}

func (s *Service) newAssignment(in Intake, consultantID uuid.UUID, snap domain.ConfigSnapshot) (domain.Assignment, error) {
	cal, err := calendar.FromSnapshot(snap, s.loc)
	if err != nil {
		return domain.Assignment{}, err
	}
	now := s.now()
	id := uuid.New()
	return domain.Assignment{
		ID:           id,
		ChainID:      id,
		LeadID:       in.LeadID,
		ConsultantID: consultantID,
		Status:       domain.StatusActive,
		Region:       in.Region,
		Specialty:    in.Specialty,
		AssignedAt:   now,
		ExpiresAt:    cal.Add(now, snap.SLA()),
		AttemptCount: 1,
		Snapshot:     snap,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, event)
	}
}

// configError maps config failures to 422 with the validation detail, and
// anything else to an internal error.
func configError(op string, err error) error {
	if errors.Is(err, domain.ErrConfiguration) {
		return apperr.Wrap(apperr.KindConfiguration, msgConfigInvalid, err).
			WithOp(op).
			WithDetails(err.Error())
	}
	return internal(op, "load automation config", err)
}

func internal(op, what string, err error) error {
	return apperr.Wrap(apperr.KindInternal, fmt.Sprintf("%s failed", what), err).WithOp(op)
}
