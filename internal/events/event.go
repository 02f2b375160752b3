// Package events defines the cascade domain events. The bus itself lives in
// platform/events and is aliased here so modules import one package.
package events

import (
	"time"

	platformevents "cascade_backend/platform/events"
	"cascade_backend/platform/logger"

	"github.com/google/uuid"
)

type (
	Event       = platformevents.Event
	Bus         = platformevents.Bus
	Handler     = platformevents.Handler
	HandlerFunc = platformevents.HandlerFunc
	BaseEvent   = platformevents.BaseEvent
	InMemoryBus = platformevents.InMemoryBus
)

var NewBaseEvent = platformevents.NewBaseEvent

// NewInMemoryBus returns the single-process bus both binaries run on.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}

// =============================================================================
// Cascade Domain Events
// =============================================================================

// AssignmentCreated is published when a lead is handed to a consultant at intake.
type AssignmentCreated struct {
	BaseEvent
	AssignmentID uuid.UUID `json:"assignmentId"`
	LeadID       uuid.UUID `json:"leadId"`
	ConsultantID uuid.UUID `json:"consultantId"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Recurring    bool      `json:"recurring"`
	MatchedBy    string    `json:"matchedBy,omitempty"`
}

func (e AssignmentCreated) EventName() string { return "cascade.assignment.created" }

// AssignmentCompleted is published when the consultant contacted the lead in time.
type AssignmentCompleted struct {
	BaseEvent
	AssignmentID uuid.UUID `json:"assignmentId"`
	LeadID       uuid.UUID `json:"leadId"`
	ConsultantID uuid.UUID `json:"consultantId"`
	ContactedAt  time.Time `json:"contactedAt"`
}

func (e AssignmentCompleted) EventName() string { return "cascade.assignment.completed" }

// AssignmentRedistributed is published when an expired or escalated assignment
// moves to another consultant.
type AssignmentRedistributed struct {
	BaseEvent
	PreviousAssignmentID uuid.UUID `json:"previousAssignmentId"`
	AssignmentID         uuid.UUID `json:"assignmentId"`
	LeadID               uuid.UUID `json:"leadId"`
	PreviousConsultantID uuid.UUID `json:"previousConsultantId"`
	ConsultantID         uuid.UUID `json:"consultantId"`
	ExpiresAt            time.Time `json:"expiresAt"`
	AttemptCount         int       `json:"attemptCount"`
	Manual               bool      `json:"manual"`
}

func (e AssignmentRedistributed) EventName() string { return "cascade.assignment.redistributed" }

// AssignmentEscalated is published when an expired assignment found no next agent.
type AssignmentEscalated struct {
	BaseEvent
	AssignmentID uuid.UUID `json:"assignmentId"`
	LeadID       uuid.UUID `json:"leadId"`
	ConsultantID uuid.UUID `json:"consultantId"`
}

func (e AssignmentEscalated) EventName() string { return "cascade.assignment.escalated" }

// AssignmentExpired is published when an assignment closes without contact.
type AssignmentExpired struct {
	BaseEvent
	AssignmentID uuid.UUID `json:"assignmentId"`
	LeadID       uuid.UUID `json:"leadId"`
	ConsultantID uuid.UUID `json:"consultantId"`
}

func (e AssignmentExpired) EventName() string { return "cascade.assignment.expired" }

// AssignmentUnassignable is published when intake found no eligible agent.
// The lead stays unassigned in the CRM.
type AssignmentUnassignable struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	Region    string    `json:"region,omitempty"`
	Specialty string    `json:"specialty,omitempty"`
}

func (e AssignmentUnassignable) EventName() string { return "cascade.assignment.unassignable" }
