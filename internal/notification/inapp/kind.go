package inapp

import (
	"cascade_backend/platform/apperr"

	"github.com/google/uuid"
)

// Kind says which cascade event raised an inbox entry.
type Kind string

const (
	KindAssigned     Kind = "assigned"
	KindSLAWarning   Kind = "sla_warning"
	KindSLACritical  Kind = "sla_critical"
	KindEscalated    Kind = "escalated"
	KindBreach       Kind = "breach"
	KindUnassignable Kind = "unassignable"
	KindDailyReport  Kind = "daily_report"
)

func (k Kind) Valid() bool {
	switch k {
	case KindAssigned, KindSLAWarning, KindSLACritical, KindEscalated, KindBreach, KindUnassignable, KindDailyReport:
		return true
	}
	return false
}

// Category drives how the CRM renders the entry.
type Category string

const (
	CategoryInfo    Category = "info"
	CategorySuccess Category = "success"
	CategoryWarning Category = "warning"
	CategoryError   Category = "error"
)

func (k Kind) defaultCategory() Category {
	switch k {
	case KindSLAWarning, KindUnassignable:
		return CategoryWarning
	case KindSLACritical, KindEscalated, KindBreach:
		return CategoryError
	default:
		return CategoryInfo
	}
}

func (p CreateParams) validate() *apperr.Error {
	switch {
	case p.UserID == uuid.Nil:
		return apperr.Validation(errUserIDRequired)
	case !p.Kind.Valid():
		return apperr.Validation("unknown notification kind")
	case p.Title == "" || p.Content == "":
		return apperr.Validation("title and content are required")
	case p.AssignmentID != nil && p.LeadID == nil:
		return apperr.Validation("assignment alerts must name their lead")
	}
	return nil
}
