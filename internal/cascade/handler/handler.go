package handler

import (
	"context"
	"net/http"
	"time"

	"cascade_backend/internal/cascade/domain"
	"cascade_backend/internal/cascade/reporting"
	"cascade_backend/internal/cascade/service"
	"cascade_backend/internal/cascade/transport"
	"cascade_backend/platform/httpkit"
	"cascade_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid id"

	roleAdmin   = "admin"
	roleManager = "manager"
)

// Cascade is the service surface the handler serves.
type Cascade interface {
	CreateAssignment(ctx context.Context, in service.Intake) (service.IntakeResult, error)
	MarkContacted(ctx context.Context, id uuid.UUID, at time.Time) (domain.Assignment, error)
	Reassign(ctx context.Context, id, consultantID uuid.UUID) (domain.Assignment, error)
	GetAssignment(ctx context.Context, id uuid.UUID) (domain.Assignment, error)
	ListLeadAssignments(ctx context.Context, leadID uuid.UUID) ([]domain.Assignment, error)
	GetActiveConfig(ctx context.Context) (domain.AutomationConfig, error)
	SaveConfig(ctx context.Context, cfg domain.AutomationConfig, actor uuid.UUID) (domain.AutomationConfig, error)
}

// Reports builds the daily summary on demand.
type Reports interface {
	BuildDailyReport(ctx context.Context, day time.Time) (reporting.DailyReport, error)
	ParseDay(day string) (time.Time, error)
	Yesterday() time.Time
}

// Handler handles HTTP requests for the cascade engine.
type Handler struct {
	svc     Cascade
	reports Reports
	val     *validator.Validator
}

func New(svc Cascade, reports Reports, val *validator.Validator) *Handler {
	return &Handler{svc: svc, reports: reports, val: val}
}

// RegisterRoutes mounts the cascade routes. Config and report routes need
// an admin or manager; reassignment needs a manager.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/assignments", h.CreateAssignment)
	rg.GET("/assignments/:id", h.GetAssignment)
	rg.POST("/assignments/:id/contact", h.MarkContacted)
	rg.POST("/assignments/:id/reassign", httpkit.RequireAnyRole(roleManager, roleAdmin), h.Reassign)
	rg.GET("/leads/:leadId/assignments", h.ListLeadAssignments)

	staff := rg.Group("", httpkit.RequireAnyRole(roleAdmin, roleManager))
	staff.GET("/config", h.GetConfig)
	staff.PUT("/config", h.SaveConfig)
	if h.reports != nil {
		staff.GET("/reports/daily", h.DailyReport)
	}
}

// CreateAssignment handles POST /api/v1/cascade/assignments
func (h *Handler) CreateAssignment(c *gin.Context) {
	if httpkit.MustGetIdentity(c) == nil {
		return
	}

	var req transport.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	res, err := h.svc.CreateAssignment(c.Request.Context(), service.Intake{
		LeadID:    req.LeadID,
		Email:     req.Email,
		Phone:     req.Phone,
		Document:  req.Document,
		Region:    req.Region,
		Specialty: req.Specialty,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	status := http.StatusCreated
	if !res.Created {
		status = http.StatusOK
	}
	httpkit.JSON(c, status, transport.CreateAssignmentResponse{
		Assignment: transport.ToAssignmentResponse(res.Assignment),
		Created:    res.Created,
		Recurring:  res.Recurring,
		MatchedBy:  res.MatchedBy,
	})
}

func (h *Handler) GetAssignment(c *gin.Context) {
	if httpkit.MustGetIdentity(c) == nil {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	a, err := h.svc.GetAssignment(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToAssignmentResponse(a))
}

// MarkContacted handles POST /api/v1/cascade/assignments/:id/contact
func (h *Handler) MarkContacted(c *gin.Context) {
	if httpkit.MustGetIdentity(c) == nil {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req transport.MarkContactedRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
	}
	var at time.Time
	if req.ContactedAt != nil {
		at = *req.ContactedAt
	}

	a, err := h.svc.MarkContacted(c.Request.Context(), id, at)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToAssignmentResponse(a))
}

// Reassign handles POST /api/v1/cascade/assignments/:id/reassign
func (h *Handler) Reassign(c *gin.Context) {
	if httpkit.MustGetIdentity(c) == nil {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req transport.ReassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	next, err := h.svc.Reassign(c.Request.Context(), id, req.ConsultantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToAssignmentResponse(next))
}

func (h *Handler) ListLeadAssignments(c *gin.Context) {
	if httpkit.MustGetIdentity(c) == nil {
		return
	}
	leadID, ok := parseID(c, "leadId")
	if !ok {
		return
	}

	items, err := h.svc.ListLeadAssignments(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToAssignmentList(items))
}

func (h *Handler) GetConfig(c *gin.Context) {
	cfg, err := h.svc.GetActiveConfig(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, cfg)
}

// SaveConfig handles PUT /api/v1/cascade/config
func (h *Handler) SaveConfig(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var cfg domain.AutomationConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	saved, err := h.svc.SaveConfig(c.Request.Context(), cfg, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, saved)
}

// DailyReport handles GET /api/v1/cascade/reports/daily?day=YYYY-MM-DD
func (h *Handler) DailyReport(c *gin.Context) {
	var q transport.DailyReportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	day := h.reports.Yesterday()
	if q.Day != "" {
		parsed, err := h.reports.ParseDay(q.Day)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
			return
		}
		day = parsed
	}

	rep, err := h.reports.BuildDailyReport(c.Request.Context(), day)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, rep)
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}
