package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Assignment is one lead-to-consultant SLA countdown.
// A redistribution closes the row and starts a new one in the same chain.
type Assignment struct {
	ID                uuid.UUID         `json:"id"`
	ChainID           uuid.UUID         `json:"chainId"`
	LeadID            uuid.UUID         `json:"leadId"`
	ConsultantID      uuid.UUID         `json:"consultantId"`
	BrokerID          *uuid.UUID        `json:"brokerId,omitempty"`
	Status            Status            `json:"status"`
	Region            string            `json:"region,omitempty"`
	Specialty         string            `json:"specialty,omitempty"`
	AssignedAt        time.Time         `json:"assignedAt"`
	ExpiresAt         time.Time         `json:"expiresAt"`
	ContactedAt       *time.Time        `json:"contactedAt,omitempty"`
	EscalatedAt       *time.Time        `json:"escalatedAt,omitempty"`
	FinalizedAt       *time.Time        `json:"finalizedAt,omitempty"`
	LastNotifiedLevel NotificationLevel `json:"lastNotifiedLevel"`
	NotifyLeaseUntil  *time.Time        `json:"-"`
	AttemptCount      int               `json:"attemptCount"`
	Snapshot          ConfigSnapshot    `json:"configSnapshot"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// Agent is a CRM user who can receive leads or, as a manager, alerts.
type Agent struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Manager     bool      `json:"manager"`
	Active      bool      `json:"active"`
	Available   bool      `json:"available"`
	Specialties []string  `json:"specialties"`
	Regions     []string  `json:"regions"`
}

// HasSpecialty reports whether the agent covers specialty (case-insensitive).
func (a Agent) HasSpecialty(specialty string) bool {
	return containsFold(a.Specialties, specialty)
}

// CoversRegion reports whether the agent covers region (case-insensitive).
func (a Agent) CoversRegion(region string) bool {
	return containsFold(a.Regions, region)
}

// AgentLoad is an agent together with its current ledger footprint.
type AgentLoad struct {
	Agent
	OpenAssignments int
	LastAssignedAt  *time.Time
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return true
		}
	}
	return false
}
