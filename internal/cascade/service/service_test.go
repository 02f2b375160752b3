package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cascade_backend/internal/cascade/configstore"
	"cascade_backend/internal/cascade/domain"
	"cascade_backend/internal/cascade/identity"
	"cascade_backend/internal/cascade/repository"
	"cascade_backend/internal/cascade/selector"
	"cascade_backend/internal/events"
	"cascade_backend/platform/apperr"
	"cascade_backend/platform/validator"

	"github.com/google/uuid"
)

// Tuesday, inside working hours.
var now = time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *capturePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

type countingSelector struct {
	inner AgentSelector
	calls int
}

func (c *countingSelector) Select(ctx context.Context, req selector.Request) (domain.Agent, error) {
	c.calls++
	return c.inner.Select(ctx, req)
}

type harness struct {
	mem     *repository.Memory
	configs *configstore.Store
	sel     *countingSelector
	bus     *capturePublisher
	svc     *Service
}

func newHarness(t *testing.T, withConfig bool) *harness {
	t.Helper()
	mem := repository.NewMemory()
	h := &harness{
		mem:     mem,
		configs: configstore.New(mem, validator.New()),
		sel:     &countingSelector{inner: selector.New(mem, mem)},
		bus:     &capturePublisher{},
	}
	if withConfig {
		if _, err := h.configs.Save(context.Background(), baseConfig()); err != nil {
			t.Fatalf("seed config: %v", err)
		}
	}
	clock := func() time.Time { return now }
	resolver := identity.NewResolver(mem, mem, mem, identity.WithClock(clock), identity.WithPhoneRegion("BR"))
	h.svc = New(mem, h.configs, resolver, h.sel, mem, WithClock(clock), WithPublisher(h.bus))
	return h
}

func baseConfig() domain.AutomationConfig {
	return domain.AutomationConfig{
		DistributionMethod: domain.MethodVolume,
		WorkingHoursStart:  "08:00",
		WorkingHoursEnd:    "18:00",
		Timezone:           "UTC",
		FirstContactSLA:    30,
		WarningPercentage:  50,
		CriticalPercentage: 75,
		NotifyVisual:       true,
		AutoRedistribute:   true,
		IdentifyByEmail:    true,
		KeepSameConsultant: true,
	}
}

func (h *harness) agent(name string) domain.Agent {
	a := domain.Agent{ID: uuid.New(), Name: name, Active: true, Available: true}
	h.mem.PutAgent(a)
	return a
}

func TestCreateAssignmentWithoutConfigIsConfigurationError(t *testing.T) {
	h := newHarness(t, false)
	h.agent("Ana")

	_, err := h.svc.CreateAssignment(context.Background(), Intake{LeadID: uuid.New()})
	if !apperr.Is(err, apperr.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if len(h.mem.All()) != 0 {
		t.Fatal("no assignment should be created without a config")
	}
}

func TestCreateAssignmentStartsClock(t *testing.T) {
	h := newHarness(t, true)
	ana := h.agent("Ana")

	res, err := h.svc.CreateAssignment(context.Background(), Intake{LeadID: uuid.New(), Email: "new@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	a := res.Assignment
	if !res.Created || res.Recurring {
		t.Fatalf("expected a fresh assignment, got %+v", res)
	}
	if a.ConsultantID != ana.ID || a.Status != domain.StatusActive || a.AttemptCount != 1 {
		t.Fatalf("unexpected assignment %+v", a)
	}
	if a.ChainID != a.ID {
		t.Fatalf("first assignment should start its own chain")
	}
	if want := now.Add(30 * time.Minute); !a.ExpiresAt.Equal(want) {
		t.Fatalf("expiresAt = %s, want %s", a.ExpiresAt, want)
	}
	if a.Snapshot.SLAMinutes != 30 {
		t.Fatalf("snapshot not captured: %+v", a.Snapshot)
	}
	if names := h.bus.names(); len(names) != 1 || names[0] != "cascade.assignment.created" {
		t.Fatalf("unexpected events %v", names)
	}
}

func TestCreateAssignmentOutsideHoursDefersDeadline(t *testing.T) {
	h := newHarness(t, true)
	h.agent("Ana")
	late := time.Date(2026, time.March, 13, 17, 50, 0, 0, time.UTC) // Friday
	h.svc.now = func() time.Time { return late }

	res, err := h.svc.CreateAssignment(context.Background(), Intake{LeadID: uuid.New()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := time.Date(2026, time.March, 16, 8, 20, 0, 0, time.UTC)
	if !res.Assignment.ExpiresAt.Equal(want) {
		t.Fatalf("expiresAt = %s, want %s", res.Assignment.ExpiresAt, want)
	}
}

func TestCreateAssignmentIsIdempotentPerLead(t *testing.T) {
	h := newHarness(t, true)
	h.agent("Ana")
	h.agent("Bruno")
	lead := uuid.New()

	first, err := h.svc.CreateAssignment(context.Background(), Intake{LeadID: lead})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := h.svc.CreateAssignment(context.Background(), Intake{LeadID: lead})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Created || second.Assignment.ID != first.Assignment.ID {
		t.Fatalf("expected the open assignment back, got %+v", second)
	}
	if n := len(h.mem.All()); n != 1 {
		t.Fatalf("expected one assignment, got %d", n)
	}
}

// A returning client goes straight to the consultant who handled them before.
func TestCreateAssignmentKeepsPriorConsultant(t *testing.T) {
	h := newHarness(t, true)
	h.agent("Ana")
	carla := h.agent("Carla")

	client, priorLead := uuid.New(), uuid.New()
	h.mem.AddClientIdentity(repository.ClientIdentity{
		ClientID:      client,
		LeadID:        priorLead,
		Email:         "maria.souza@example.com",
		LeadCreatedAt: now.Add(-20 * 24 * time.Hour),
	})
	closed := now.Add(-10 * 24 * time.Hour)
	prior := domain.Assignment{
		ID:           uuid.New(),
		LeadID:       priorLead,
		ConsultantID: carla.ID,
		Status:       domain.StatusCompleted,
		AssignedAt:   now.Add(-20 * 24 * time.Hour),
		FinalizedAt:  &closed,
	}
	prior.ChainID = prior.ID
	h.mem.Put(prior)

	res, err := h.svc.CreateAssignment(context.Background(), Intake{LeadID: uuid.New(), Email: "Maria.Souza@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !res.Recurring || res.MatchedBy != string(domain.IdentifierEmail) {
		t.Fatalf("expected recurring email match, got %+v", res)
	}
	if res.Assignment.ConsultantID != carla.ID {
		t.Fatalf("expected prior consultant %s, got %s", carla.ID, res.Assignment.ConsultantID)
	}
	if h.sel.calls != 0 {
		t.Fatalf("selector should not run for continuity, ran %d times", h.sel.calls)
	}
}

func TestCreateAssignmentWithoutAgentsIsUnavailable(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.svc.CreateAssignment(context.Background(), Intake{LeadID: uuid.New(), Region: "sul"})
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if !errors.Is(err, domain.ErrNoEligibleAgent) {
		t.Fatalf("expected wrapped ErrNoEligibleAgent, got %v", err)
	}
	names := h.bus.names()
	if len(names) != 1 || names[0] != "cascade.assignment.unassignable" {
		t.Fatalf("expected unassignable event, got %v", names)
	}
}

func TestCreateAssignmentRequiresLead(t *testing.T) {
	h := newHarness(t, true)
	if _, err := h.svc.CreateAssignment(context.Background(), Intake{}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMarkContactedCompletesOnce(t *testing.T) {
	h := newHarness(t, true)
	h.agent("Ana")
	res, _ := h.svc.CreateAssignment(context.Background(), Intake{LeadID: uuid.New()})
	id := res.Assignment.ID

	at := now.Add(-time.Minute)
	a, err := h.svc.MarkContacted(context.Background(), id, at)
	if err != nil {
		t.Fatalf("mark contacted: %v", err)
	}
	if a.Status != domain.StatusCompleted || a.ContactedAt == nil || !a.ContactedAt.Equal(at) {
		t.Fatalf("unexpected assignment %+v", a)
	}

	_, err = h.svc.MarkContacted(context.Background(), id, time.Time{})
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	details, ok := appErr.Details.(map[string]string)
	if !ok || details["status"] != string(domain.StatusCompleted) {
		t.Fatalf("expected status detail, got %#v", appErr.Details)
	}
}

func TestMarkContactedRejectsFutureAndUnknown(t *testing.T) {
	h := newHarness(t, true)
	h.agent("Ana")
	res, _ := h.svc.CreateAssignment(context.Background(), Intake{LeadID: uuid.New()})

	if _, err := h.svc.MarkContacted(context.Background(), res.Assignment.ID, now.Add(time.Hour)); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := h.svc.MarkContacted(context.Background(), uuid.New(), time.Time{}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReassignContinuesChain(t *testing.T) {
	h := newHarness(t, true)
	ana := h.agent("Ana")
	res, _ := h.svc.CreateAssignment(context.Background(), Intake{LeadID: uuid.New()})
	if res.Assignment.ConsultantID != ana.ID {
		t.Fatalf("expected Ana to receive the first lead")
	}
	bruno := h.agent("Bruno")

	next, err := h.svc.Reassign(context.Background(), res.Assignment.ID, bruno.ID)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if next.ConsultantID != bruno.ID || next.ChainID != res.Assignment.ChainID || next.AttemptCount != 2 {
		t.Fatalf("unexpected next assignment %+v", next)
	}

	prev, _ := h.svc.GetAssignment(context.Background(), res.Assignment.ID)
	if prev.Status != domain.StatusRedistributed || prev.BrokerID == nil || *prev.BrokerID != bruno.ID {
		t.Fatalf("previous assignment not closed: %+v", prev)
	}

	history, err := h.svc.ListLeadAssignments(context.Background(), res.Assignment.LeadID)
	if err != nil || len(history) != 2 {
		t.Fatalf("expected two history rows, got %d (%v)", len(history), err)
	}

	names := h.bus.names()
	if names[len(names)-1] != "cascade.assignment.redistributed" {
		t.Fatalf("expected redistributed event, got %v", names)
	}
}

func TestReassignRejectsIneligibleTargets(t *testing.T) {
	h := newHarness(t, true)
	ana := h.agent("Ana")
	manager := domain.Agent{ID: uuid.New(), Name: "Gerente", Manager: true, Active: true}
	h.mem.PutAgent(manager)
	res, _ := h.svc.CreateAssignment(context.Background(), Intake{LeadID: uuid.New()})
	id := res.Assignment.ID

	tests := []struct {
		name   string
		target uuid.UUID
		kind   apperr.Kind
	}{
		{"same consultant", ana.ID, apperr.KindValidation},
		{"manager", manager.ID, apperr.KindValidation},
		{"unknown agent", uuid.New(), apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.Reassign(context.Background(), id, tt.target); !apperr.Is(err, tt.kind) {
				t.Fatalf("expected kind %d, got %v", tt.kind, err)
			}
		})
	}

	if _, err := h.svc.MarkContacted(context.Background(), id, time.Time{}); err != nil {
		t.Fatalf("mark contacted: %v", err)
	}
	if _, err := h.svc.Reassign(context.Background(), id, h.agent("Bruno").ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on a finalized assignment, got %v", err)
	}
}

func TestReassignEscalatedLeadThatAlreadyReturned(t *testing.T) {
	h := newHarness(t, true)
	ana := h.agent("Ana")
	res, _ := h.svc.CreateAssignment(context.Background(), Intake{LeadID: uuid.New()})
	old := res.Assignment
	if err := h.mem.CompareAndSetStatus(context.Background(), old.ID, domain.StatusActive, domain.StatusEscalated, now); err != nil {
		t.Fatalf("escalate: %v", err)
	}

	freshID := uuid.New()
	fresh := old
	fresh.ID, fresh.ChainID, fresh.ConsultantID = freshID, freshID, ana.ID
	if err := h.mem.Create(context.Background(), fresh); err != nil {
		t.Fatalf("create fresh row: %v", err)
	}

	_, err := h.svc.Reassign(context.Background(), old.ID, h.agent("Bruno").ID)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if got, _ := h.svc.GetAssignment(context.Background(), old.ID); got.Status != domain.StatusEscalated {
		t.Fatalf("escalated row must be left as it was, got %s", got.Status)
	}
}

func TestSaveConfigValidatesAndVersions(t *testing.T) {
	h := newHarness(t, true)
	actor := uuid.New()

	bad := baseConfig()
	bad.WarningPercentage = 90
	if _, err := h.svc.SaveConfig(context.Background(), bad, actor); !apperr.Is(err, apperr.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	next := baseConfig()
	next.FirstContactSLA = 60
	saved, err := h.svc.SaveConfig(context.Background(), next, actor)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.CreatedBy == nil || *saved.CreatedBy != actor {
		t.Fatalf("expected createdBy to be recorded, got %+v", saved.CreatedBy)
	}

	active, err := h.svc.GetActiveConfig(context.Background())
	if err != nil || active.FirstContactSLA != 60 {
		t.Fatalf("expected new active config, got %+v (%v)", active, err)
	}
}

// Configs saved after intake do not alter the deadline already issued.
func TestSavedConfigDoesNotRewriteInFlightAssignments(t *testing.T) {
	h := newHarness(t, true)
	h.agent("Ana")
	res, _ := h.svc.CreateAssignment(context.Background(), Intake{LeadID: uuid.New()})

	next := baseConfig()
	next.FirstContactSLA = 120
	if _, err := h.svc.SaveConfig(context.Background(), next, uuid.Nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	a, _ := h.svc.GetAssignment(context.Background(), res.Assignment.ID)
	if a.Snapshot.SLAMinutes != 30 || !a.ExpiresAt.Equal(res.Assignment.ExpiresAt) {
		t.Fatalf("in-flight assignment changed: %+v", a)
	}
}
