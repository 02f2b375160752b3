// Package domain holds the cascade assignment model and its state machine.
package domain

// Status is the lifecycle state of a cascade assignment.
type Status string

const (
	StatusActive        Status = "active"
	StatusWarning       Status = "warning"
	StatusCritical      Status = "critical"
	StatusEscalated     Status = "escalated"
	StatusRedistributed Status = "redistributed"
	StatusCompleted     Status = "completed"
	StatusExpired       Status = "expired"
)

var (
	// OpenStatuses hold the lead; at most one row per lead may be in one of them.
	OpenStatuses = []Status{StatusActive, StatusWarning, StatusCritical}
	// PendingStatuses are the rows the scheduler still has work for.
	PendingStatuses = []Status{StatusActive, StatusWarning, StatusCritical, StatusEscalated}
	// TerminalStatuses never change again and are eligible for retention.
	TerminalStatuses = []Status{StatusCompleted, StatusExpired, StatusRedistributed}
)

var transitions = map[Status][]Status{
	StatusActive:    {StatusWarning, StatusCritical, StatusCompleted, StatusExpired, StatusEscalated, StatusRedistributed},
	StatusWarning:   {StatusCritical, StatusCompleted, StatusExpired, StatusEscalated, StatusRedistributed},
	StatusCritical:  {StatusCompleted, StatusExpired, StatusEscalated, StatusRedistributed},
	StatusEscalated: {StatusCompleted, StatusExpired, StatusRedistributed},
}

// CanTransition reports whether from -> to is a legal forward move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusWarning, StatusCritical, StatusEscalated,
		StatusRedistributed, StatusCompleted, StatusExpired:
		return true
	}
	return false
}

func (s Status) IsOpen() bool {
	return s == StatusActive || s == StatusWarning || s == StatusCritical
}

func (s Status) IsPending() bool {
	return s.IsOpen() || s == StatusEscalated
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusRedistributed
}

// IsNegativeOutcome reports outcomes that break consultant continuity.
func (s Status) IsNegativeOutcome() bool {
	return s == StatusExpired || s == StatusEscalated || s == StatusRedistributed
}

// NotificationLevel is the escalation tier a notification was sent for.
// Levels are ordered and a record's last notified level only increases.
type NotificationLevel int16

const (
	LevelNone NotificationLevel = iota
	LevelWarning
	LevelCritical
	// LevelEscalated alerts on a deadline miss with nobody left to take the lead.
	LevelEscalated
	// LevelBreach reports an assignment that closed as expired.
	LevelBreach
)

func (l NotificationLevel) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	case LevelEscalated:
		return "escalated"
	case LevelBreach:
		return "breach"
	default:
		return "none"
	}
}

// LevelFor maps a status to the notification it triggers.
func LevelFor(s Status) NotificationLevel {
	switch s {
	case StatusWarning:
		return LevelWarning
	case StatusCritical:
		return LevelCritical
	case StatusEscalated:
		return LevelEscalated
	case StatusExpired:
		return LevelBreach
	default:
		return LevelNone
	}
}
