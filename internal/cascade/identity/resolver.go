// Package identity recognises returning clients and decides whether their
// previous consultant should keep the new lead.
package identity

import (
	"context"
	"errors"
	"time"

	"cascade_backend/internal/cascade/domain"
	"cascade_backend/internal/cascade/repository"
	"cascade_backend/platform/logger"

	"github.com/google/uuid"
)

const defaultMatchWindow = 90 * 24 * time.Hour

// Candidate is the inbound lead being identified.
type Candidate struct {
	LeadID   uuid.UUID
	Email    string
	Phone    string
	Document string
}

// Resolution is the outcome of identity matching.
type Resolution struct {
	Recurring bool
	MatchedBy domain.Identifier
	ClientID  uuid.UUID
	// Prior is the latest assignment of the matched client, if any.
	Prior *domain.Assignment
	// ConsultantID is set when continuity keeps the prior consultant.
	ConsultantID *uuid.UUID
	// Exclude lists agents the selector must skip.
	Exclude []uuid.UUID
}

type Resolver struct {
	clients     repository.ClientDirectory
	ledger      repository.AssignmentReader
	agents      repository.AgentPool
	region      string
	matchWindow time.Duration
	now         func() time.Time
	log         *logger.Logger
}

// Option customises a Resolver.
type Option func(*Resolver)

func WithPhoneRegion(region string) Option {
	return func(r *Resolver) { r.region = region }
}

func WithMatchWindow(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.matchWindow = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func WithLogger(log *logger.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

func NewResolver(clients repository.ClientDirectory, ledger repository.AssignmentReader, agents repository.AgentPool, opts ...Option) *Resolver {
	r := &Resolver{
		clients:     clients,
		ledger:      ledger,
		agents:      agents,
		matchWindow: defaultMatchWindow,
		now:         time.Now,
		log:         logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve matches c against known clients using the identifiers enabled in
// cfg, in order, stopping at the first hit. Lookup failures never block an
// intake: they degrade to "new client". Only context cancellation is returned.
func (r *Resolver) Resolve(ctx context.Context, c Candidate, cfg *domain.AutomationConfig) (Resolution, error) {
	if cfg == nil {
		return Resolution{}, nil
	}

	since := r.now().Add(-r.matchWindow)
	for _, kind := range cfg.Identifiers() {
		value := r.normalize(kind, c)
		if value == "" {
			continue
		}
		match, err := r.clients.FindByIdentifier(ctx, kind, value, c.LeadID, since)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Resolution{}, ctx.Err()
			}
			r.log.Warn("identity lookup failed", "identifier", string(kind), "leadId", c.LeadID, "error", err)
			continue
		}

		res := Resolution{Recurring: true, MatchedBy: kind, ClientID: match.ClientID}
		r.applyContinuity(ctx, &res, match, cfg)
		return res, nil
	}
	return Resolution{}, nil
}

func (r *Resolver) normalize(kind domain.Identifier, c Candidate) string {
	switch kind {
	case domain.IdentifierEmail:
		return NormalizeEmail(c.Email)
	case domain.IdentifierPhone:
		return NormalizePhone(c.Phone, r.region)
	case domain.IdentifierDocument:
		return NormalizeDocument(c.Document)
	}
	return ""
}

func (r *Resolver) applyContinuity(ctx context.Context, res *Resolution, match repository.ClientMatch, cfg *domain.AutomationConfig) {
	if cfg.KeepSameConsultant && cfg.AssignNewConsultant {
		return
	}
	if !cfg.KeepSameConsultant && !cfg.AssignNewConsultant {
		return
	}

	prior, err := r.ledger.LatestForLeads(ctx, match.LeadIDs)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			r.log.Warn("prior assignment lookup failed", "clientId", match.ClientID, "error", err)
		}
		return
	}
	res.Prior = &prior

	if cfg.AssignNewConsultant {
		res.Exclude = append(res.Exclude, prior.ConsultantID)
		return
	}

	if cfg.BasedOnTime && !prior.Status.IsPending() {
		if prior.FinalizedAt == nil || r.now().Sub(*prior.FinalizedAt) > cfg.RecencyWindow() {
			return
		}
	}
	if cfg.BasedOnOutcome && prior.Status.IsNegativeOutcome() {
		return
	}

	agent, err := r.agents.GetAgent(ctx, prior.ConsultantID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			r.log.Warn("prior consultant lookup failed", "consultantId", prior.ConsultantID, "error", err)
		}
		return
	}
	if !agent.Active || agent.Manager {
		return
	}
	id := agent.ID
	res.ConsultantID = &id
}
