package domain

import (
	"time"

	"github.com/google/uuid"
)

// DistributionMethod selects the primary rule used to pick an agent.
type DistributionMethod string

const (
	MethodVolume       DistributionMethod = "volume"
	MethodSpecialty    DistributionMethod = "specialty"
	MethodAvailability DistributionMethod = "availability"
	MethodRegion       DistributionMethod = "region"
	MethodRoundRobin   DistributionMethod = "round_robin"
)

// Identifier is a lead attribute used to recognise a returning client.
type Identifier string

const (
	IdentifierEmail    Identifier = "email"
	IdentifierPhone    Identifier = "phone"
	IdentifierDocument Identifier = "document"
)

// DefaultIdentifierOrder is used when a config leaves the order empty.
var DefaultIdentifierOrder = []Identifier{IdentifierEmail, IdentifierPhone, IdentifierDocument}

// DefaultRecencyWindowHours bounds time-based continuity when unset.
const DefaultRecencyWindowHours = 720

// AutomationConfig is the tenant-wide policy governing the cascade.
// Only one config is active at a time; saving a new one versions the old.
type AutomationConfig struct {
	ID     uuid.UUID `json:"id"`
	Active bool      `json:"active"`

	DistributionMethod DistributionMethod `json:"distributionMethod" validate:"required,oneof=volume specialty availability region round_robin"`
	UseSpecialty       bool               `json:"useSpecialty"`
	UseAvailability    bool               `json:"useAvailability"`
	UseRegion          bool               `json:"useRegion"`

	WorkingHoursStart   string `json:"workingHoursStart" validate:"required,clock"`
	WorkingHoursEnd     string `json:"workingHoursEnd" validate:"required,clock"`
	WorkingHoursWeekend bool   `json:"workingHoursWeekend"`
	Timezone            string `json:"timezone" validate:"omitempty,timezone"`

	FirstContactSLA    int `json:"firstContactSla" validate:"min=1"`
	WarningPercentage  int `json:"warningPercentage" validate:"min=1,max=98"`
	CriticalPercentage int `json:"criticalPercentage" validate:"min=2,max=99"`

	NotifyVisual      bool `json:"notifyVisual"`
	NotifySystem      bool `json:"notifySystem"`
	NotifyManager     bool `json:"notifyManager"`
	AutoRedistribute  bool `json:"autoRedistribute"`
	EscalateToManager bool `json:"escalateToManager"`

	IdentifyByEmail    bool         `json:"identifyByEmail"`
	IdentifyByPhone    bool         `json:"identifyByPhone"`
	IdentifyByDocument bool         `json:"identifyByDocument"`
	IdentifierOrder    []Identifier `json:"identifierOrder" validate:"omitempty,unique,dive,oneof=email phone document"`

	KeepSameConsultant  bool `json:"keepSameConsultant"`
	AssignNewConsultant bool `json:"assignNewConsultant"`
	BasedOnTime         bool `json:"basedOnTime"`
	BasedOnOutcome      bool `json:"basedOnOutcome"`
	RecencyWindowHours  int  `json:"recencyWindowHours" validate:"min=0"`

	// Stored for the CRM; escalation does not read them.
	InactivityPeriod int `json:"inactivityPeriod" validate:"min=0"`
	ContactAttempts  int `json:"contactAttempts" validate:"min=0"`

	CreatedBy *uuid.UUID `json:"createdBy,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Identifiers returns the enabled identifiers in evaluation order.
func (c AutomationConfig) Identifiers() []Identifier {
	order := c.IdentifierOrder
	if len(order) == 0 {
		order = DefaultIdentifierOrder
	}
	out := make([]Identifier, 0, len(order))
	for _, id := range order {
		switch {
		case id == IdentifierEmail && c.IdentifyByEmail,
			id == IdentifierPhone && c.IdentifyByPhone,
			id == IdentifierDocument && c.IdentifyByDocument:
			out = append(out, id)
		}
	}
	return out
}

// RecencyWindow is the basedOnTime continuity horizon.
func (c AutomationConfig) RecencyWindow() time.Duration {
	hours := c.RecencyWindowHours
	if hours <= 0 {
		hours = DefaultRecencyWindowHours
	}
	return time.Duration(hours) * time.Hour
}

// Snapshot freezes the parameters an assignment is evaluated against.
func (c AutomationConfig) Snapshot() ConfigSnapshot {
	return ConfigSnapshot{
		ConfigID:           c.ID,
		SLAMinutes:         c.FirstContactSLA,
		WarningPercentage:  c.WarningPercentage,
		CriticalPercentage: c.CriticalPercentage,
		WorkingHoursStart:  c.WorkingHoursStart,
		WorkingHoursEnd:    c.WorkingHoursEnd,
		Weekend:            c.WorkingHoursWeekend,
		Timezone:           c.Timezone,
		NotifyVisual:       c.NotifyVisual,
		NotifySystem:       c.NotifySystem,
		NotifyManager:      c.NotifyManager,
		AutoRedistribute:   c.AutoRedistribute,
		EscalateToManager:  c.EscalateToManager,
		DistributionMethod: c.DistributionMethod,
		UseSpecialty:       c.UseSpecialty,
		UseAvailability:    c.UseAvailability,
		UseRegion:          c.UseRegion,
	}
}

// ConfigSnapshot is the copy of the config stored on each assignment so
// later config edits never change a running countdown.
type ConfigSnapshot struct {
	ConfigID           uuid.UUID          `json:"configId"`
	SLAMinutes         int                `json:"slaMinutes"`
	WarningPercentage  int                `json:"warningPercentage"`
	CriticalPercentage int                `json:"criticalPercentage"`
	WorkingHoursStart  string             `json:"workingHoursStart"`
	WorkingHoursEnd    string             `json:"workingHoursEnd"`
	Weekend            bool               `json:"weekend"`
	Timezone           string             `json:"timezone"`
	NotifyVisual       bool               `json:"notifyVisual"`
	NotifySystem       bool               `json:"notifySystem"`
	NotifyManager      bool               `json:"notifyManager"`
	AutoRedistribute   bool               `json:"autoRedistribute"`
	EscalateToManager  bool               `json:"escalateToManager"`
	DistributionMethod DistributionMethod `json:"distributionMethod"`
	UseSpecialty       bool               `json:"useSpecialty"`
	UseAvailability    bool               `json:"useAvailability"`
	UseRegion          bool               `json:"useRegion"`
}

// SLA is the working-time budget for first contact.
func (s ConfigSnapshot) SLA() time.Duration {
	return time.Duration(s.SLAMinutes) * time.Minute
}

// StageAt returns the status a record should hold after elapsed working time.
// StatusExpired stands for "SLA used up"; the engine decides between
// redistribution, escalation and expiry.
func (s ConfigSnapshot) StageAt(elapsed time.Duration) Status {
	sla := s.SLA()
	switch {
	case elapsed >= sla:
		return StatusExpired
	case elapsed >= sla*time.Duration(s.CriticalPercentage)/100:
		return StatusCritical
	case elapsed >= sla*time.Duration(s.WarningPercentage)/100:
		return StatusWarning
	default:
		return StatusActive
	}
}

// Rank orders the open stages so the engine only ever moves forward.
func Rank(s Status) int {
	switch s {
	case StatusActive:
		return 0
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	case StatusEscalated:
		return 3
	default:
		return 4
	}
}
