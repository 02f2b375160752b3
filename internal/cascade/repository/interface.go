package repository

import (
	"context"
	"time"

	"cascade_backend/internal/cascade/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// AssignmentReader provides read-only access to the cascade ledger.
type AssignmentReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Assignment, error)
	// GetOpenForLead returns ErrNotFound when the lead holds no open row.
	GetOpenForLead(ctx context.Context, leadID uuid.UUID) (domain.Assignment, error)
	// LatestForLeads returns the most recently assigned row across leadIDs.
	LatestForLeads(ctx context.Context, leadIDs []uuid.UUID) (domain.Assignment, error)
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]domain.Assignment, error)
	// ListPending pages through rows the scheduler still has work for,
	// ordered by id and starting strictly after the given id.
	ListPending(ctx context.Context, after uuid.UUID, limit int) ([]domain.Assignment, error)
	ChainConsultants(ctx context.Context, chainID uuid.UUID) ([]uuid.UUID, error)
	ConsultantLoads(ctx context.Context) (map[uuid.UUID]ConsultantLoad, error)
}

// AssignmentWriter mutates the ledger. Every status change is conditional
// on the status the caller last observed; a mismatch returns ErrConflict.
type AssignmentWriter interface {
	// Create inserts a fresh row; ErrLeadHasOpen when the lead already holds an open row.
	Create(ctx context.Context, a domain.Assignment) error
	// CompareAndSetStatus moves id from expected to next, stamping
	// escalated_at or finalized_at as the target status requires.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next domain.Status, at time.Time) error
	// Redistribute closes id as Redistributed to next.ConsultantID and
	// inserts next in the same transaction. ErrConflict when id moved on,
	// ErrLeadHasOpen when the lead already holds another open row.
	Redistribute(ctx context.Context, id uuid.UUID, expected domain.Status, next domain.Assignment, at time.Time) error
	// MarkContacted completes a pending row. On ErrConflict the current row is returned.
	MarkContacted(ctx context.Context, id uuid.UUID, at time.Time) (domain.Assignment, error)
	// DeleteFinalizedBefore purges terminal rows finalized before cutoff.
	DeleteFinalizedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationLedger guards at-most-once delivery per (assignment, level).
type NotificationLedger interface {
	// ClaimNotification takes a lease when level is above the last delivered
	// level and no other lease is live. False means someone else owns it or
	// it was already delivered.
	ClaimNotification(ctx context.Context, id uuid.UUID, level domain.NotificationLevel, now, leaseUntil time.Time) (bool, error)
	CompleteNotification(ctx context.Context, id uuid.UUID, level domain.NotificationLevel) error
	ReleaseNotification(ctx context.Context, id uuid.UUID) error
}

// ReportReader feeds the daily report.
type ReportReader interface {
	ListFinalizedBetween(ctx context.Context, from, to time.Time) ([]domain.Assignment, error)
	CountEscalatedBetween(ctx context.Context, from, to time.Time) (int, error)
}

// Ledger is the full cascade ledger.
type Ledger interface {
	AssignmentReader
	AssignmentWriter
	NotificationLedger
	ReportReader
}

// ConfigStore persists versioned automation configs.
type ConfigStore interface {
	// GetActiveConfig returns ErrNotFound when no config is active.
	GetActiveConfig(ctx context.Context) (domain.AutomationConfig, error)
	// SaveConfig stores cfg as the new active version.
	SaveConfig(ctx context.Context, cfg domain.AutomationConfig) (domain.AutomationConfig, error)
}

// AgentPool reads CRM users eligible for leads or alerts.
type AgentPool interface {
	// ListAgents returns active non-manager agents.
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	ListManagers(ctx context.Context) ([]domain.Agent, error)
	GetAgent(ctx context.Context, id uuid.UUID) (domain.Agent, error)
}

// ClientDirectory looks up returning clients by a normalised identifier.
type ClientDirectory interface {
	// FindByIdentifier returns ErrNotFound when no client matches. Clients
	// closed before since are ignored, as are matches only through excludeLead.
	FindByIdentifier(ctx context.Context, kind domain.Identifier, value string, excludeLead uuid.UUID, since time.Time) (ClientMatch, error)
}

// ConsultantLoad is an agent's current ledger footprint.
type ConsultantLoad struct {
	OpenAssignments int
	LastAssignedAt  *time.Time
}

// ClientMatch is a previously known client and the leads it produced.
type ClientMatch struct {
	ClientID uuid.UUID
	LeadIDs  []uuid.UUID
	Open     bool
	ClosedAt *time.Time
}
