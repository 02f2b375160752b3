package transport

import (
	"time"

	"cascade_backend/internal/cascade/domain"

	"github.com/google/uuid"
)

// CreateAssignmentRequest is the CRM's lead hand-over.
type CreateAssignmentRequest struct {
	LeadID    uuid.UUID `json:"leadId" validate:"required"`
	Email     string    `json:"email,omitempty" validate:"omitempty,email,max=320"`
	Phone     string    `json:"phone,omitempty" validate:"max=40"`
	Document  string    `json:"document,omitempty" validate:"max=40"`
	Region    string    `json:"region,omitempty" validate:"max=120"`
	Specialty string    `json:"specialty,omitempty" validate:"max=120"`
}

// MarkContactedRequest records first contact. An empty body means now.
type MarkContactedRequest struct {
	ContactedAt *time.Time `json:"contactedAt,omitempty"`
}

type ReassignRequest struct {
	ConsultantID uuid.UUID `json:"consultantId" validate:"required"`
}

// AssignmentResponse is an assignment plus the SLA view derived from it.
type AssignmentResponse struct {
	domain.Assignment
	Level string `json:"level"`
}

type AssignmentListResponse struct {
	Items []AssignmentResponse `json:"items"`
}

type CreateAssignmentResponse struct {
	Assignment AssignmentResponse `json:"assignment"`
	Created    bool               `json:"created"`
	Recurring  bool               `json:"recurring"`
	MatchedBy  string             `json:"matchedBy,omitempty"`
}

// DailyReportQuery selects the report day; empty means yesterday.
type DailyReportQuery struct {
	Day string `form:"day"`
}

// ToAssignmentResponse decorates a with its notification level.
func ToAssignmentResponse(a domain.Assignment) AssignmentResponse {
	return AssignmentResponse{Assignment: a, Level: domain.LevelFor(a.Status).String()}
}

func ToAssignmentList(items []domain.Assignment) AssignmentListResponse {
	out := make([]AssignmentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, ToAssignmentResponse(a))
	}
	return AssignmentListResponse{Items: out}
}
