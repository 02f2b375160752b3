package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"cascade_backend/internal/cascade/domain"
	"cascade_backend/internal/cascade/repository"
	"cascade_backend/internal/events"
	"cascade_backend/internal/notification/inapp"
	"cascade_backend/platform/logger"

	"github.com/google/uuid"
)

type recordingNotifier struct {
	assigned []domain.Assignment
	managers []inapp.SendParams
	err      error
}

func (n *recordingNotifier) NotifyAssigned(_ context.Context, a domain.Assignment) error {
	n.assigned = append(n.assigned, a)
	return n.err
}

func (n *recordingNotifier) NotifyManagers(_ context.Context, p inapp.SendParams) error {
	n.managers = append(n.managers, p)
	return n.err
}

func putAssignment(mem *repository.Memory, status domain.Status) domain.Assignment {
	a := domain.Assignment{
		ID:           uuid.New(),
		LeadID:       uuid.New(),
		ConsultantID: uuid.New(),
		Status:       status,
		AssignedAt:   time.Now(),
		ExpiresAt:    time.Now().Add(30 * time.Minute),
	}
	a.ChainID = a.ID
	mem.Put(a)
	return a
}

func TestAssignmentEventsNotifyConsultant(t *testing.T) {
	mem := repository.NewMemory()
	notifier := &recordingNotifier{}
	bus := events.NewInMemoryBus(logger.Discard())
	New(mem, notifier, nil, logger.Discard()).RegisterHandlers(bus)

	created := putAssignment(mem, domain.StatusActive)
	moved := putAssignment(mem, domain.StatusActive)

	if err := bus.PublishSync(context.Background(), events.AssignmentCreated{BaseEvent: events.NewBaseEvent(), AssignmentID: created.ID}); err != nil {
		t.Fatalf("created: %v", err)
	}
	if err := bus.PublishSync(context.Background(), events.AssignmentRedistributed{BaseEvent: events.NewBaseEvent(), AssignmentID: moved.ID}); err != nil {
		t.Fatalf("redistributed: %v", err)
	}

	if len(notifier.assigned) != 2 || notifier.assigned[0].ID != created.ID || notifier.assigned[1].ID != moved.ID {
		t.Fatalf("unexpected notices %+v", notifier.assigned)
	}
}

func TestAssignedNoticeSkipsClosedAssignment(t *testing.T) {
	mem := repository.NewMemory()
	notifier := &recordingNotifier{}
	m := New(mem, notifier, nil, logger.Discard())

	done := putAssignment(mem, domain.StatusCompleted)
	if err := m.Handle(context.Background(), events.AssignmentCreated{AssignmentID: done.ID}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(notifier.assigned) != 0 {
		t.Fatal("closed assignment should not be announced")
	}

	if err := m.Handle(context.Background(), events.AssignmentCreated{AssignmentID: uuid.New()}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found for unknown assignment, got %v", err)
	}
}

func TestUnassignableAlertsManagers(t *testing.T) {
	notifier := &recordingNotifier{}
	m := New(repository.NewMemory(), notifier, nil, logger.Discard())
	lead := uuid.New()

	err := m.Handle(context.Background(), events.AssignmentUnassignable{LeadID: lead, Region: "sul"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(notifier.managers) != 1 {
		t.Fatalf("expected one manager alert, got %d", len(notifier.managers))
	}
	p := notifier.managers[0]
	if p.LeadID == nil || *p.LeadID != lead || p.Kind != inapp.KindUnassignable || p.AssignmentID != nil {
		t.Fatalf("unexpected alert %+v", p)
	}

	notifier.err = errors.New("inbox down")
	if err := m.Handle(context.Background(), events.AssignmentUnassignable{LeadID: lead}); err == nil {
		t.Fatal("expected delivery error to surface to the bus")
	}
}

func TestOtherEventsAreIgnored(t *testing.T) {
	notifier := &recordingNotifier{}
	m := New(repository.NewMemory(), notifier, nil, logger.Discard())

	if err := m.Handle(context.Background(), events.AssignmentCompleted{}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(notifier.assigned)+len(notifier.managers) != 0 {
		t.Fatal("completion should not notify anyone")
	}
}
