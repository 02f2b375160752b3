// Package notification provides event handlers that tell agents and managers
// about cascade activity, plus the in-app inbox routes.
// Domain modules publish events; this module decides who hears about them.
package notification

import (
	"context"
	"fmt"

	"cascade_backend/internal/cascade/domain"
	"cascade_backend/internal/events"
	apphttp "cascade_backend/internal/http"
	notifhandler "cascade_backend/internal/notification/handler"
	"cascade_backend/internal/notification/inapp"
	"cascade_backend/platform/logger"

	"github.com/google/uuid"
)

// AssignmentReader loads the assignment an event refers to.
type AssignmentReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Assignment, error)
}

// Notifier is the cascade dispatcher as seen by the event handlers.
type Notifier interface {
	NotifyAssigned(ctx context.Context, a domain.Assignment) error
	NotifyManagers(ctx context.Context, p inapp.SendParams) error
}

// Subscriber is the bus surface the module needs.
type Subscriber interface {
	Subscribe(eventName string, handler events.Handler)
}

// Module handles notification events and serves the inbox.
type Module struct {
	assignments  AssignmentReader
	notifier     Notifier
	inAppHandler *notifhandler.HTTPHandler
	log          *logger.Logger
}

// New creates the notification module. inbox may be nil in processes that
// serve no HTTP.
func New(assignments AssignmentReader, notifier Notifier, inbox notifhandler.Inbox, log *logger.Logger) *Module {
	if log == nil {
		log = logger.Discard()
	}
	m := &Module{
		assignments: assignments,
		notifier:    notifier,
		log:         log,
	}
	if inbox != nil {
		m.inAppHandler = notifhandler.NewHTTPHandler(inbox)
	}
	return m
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "notification"
}

// RegisterRoutes mounts the inbox under /api/v1/notifications.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	if m.inAppHandler == nil {
		return
	}
	m.inAppHandler.RegisterRoutes(ctx.Protected.Group("/notifications"))
}

// RegisterHandlers subscribes the module to the cascade events it reacts to.
func (m *Module) RegisterHandlers(bus Subscriber) {
	bus.Subscribe(events.AssignmentCreated{}.EventName(), m)
	bus.Subscribe(events.AssignmentRedistributed{}.EventName(), m)
	bus.Subscribe(events.AssignmentUnassignable{}.EventName(), m)
}

// Handle implements events.Handler.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.AssignmentCreated:
		return m.handleAssigned(ctx, e.AssignmentID)
	case events.AssignmentRedistributed:
		return m.handleAssigned(ctx, e.AssignmentID)
	case events.AssignmentUnassignable:
		return m.handleUnassignable(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleAssigned(ctx context.Context, assignmentID uuid.UUID) error {
	a, err := m.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return fmt.Errorf("load assignment %s: %w", assignmentID, err)
	}
	if !a.Status.IsOpen() {
		// Contacted or moved on before the notice went out.
		return nil
	}
	if err := m.notifier.NotifyAssigned(ctx, a); err != nil {
		m.log.WithAssignment(a.ID.String(), a.LeadID.String()).Error("failed to notify assigned consultant",
			"consultantId", a.ConsultantID,
			"error", err,
		)
		return err
	}
	return nil
}

func (m *Module) handleUnassignable(ctx context.Context, e events.AssignmentUnassignable) error {
	leadID := e.LeadID
	content := "No consultant matched this lead. Assign it manually."
	if e.Region != "" || e.Specialty != "" {
		content = fmt.Sprintf("No consultant matched this lead (region %q, specialty %q). Assign it manually.", e.Region, e.Specialty)
	}
	err := m.notifier.NotifyManagers(ctx, inapp.SendParams{
		Kind:    inapp.KindUnassignable,
		Title:   "Lead without consultant",
		Content: content,
		LeadID:  &leadID,
	})
	if err != nil {
		m.log.Error("failed to alert managers about unassignable lead", "leadId", e.LeadID, "error", err)
		return err
	}
	m.log.Info("managers alerted about unassignable lead", "leadId", e.LeadID)
	return nil
}

// Compile-time checks
var (
	_ apphttp.Module = (*Module)(nil)
	_ events.Handler = (*Module)(nil)
)
