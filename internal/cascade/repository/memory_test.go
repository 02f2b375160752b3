package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cascade_backend/internal/cascade/domain"

	"github.com/google/uuid"
)

var t0 = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

func newRow(lead uuid.UUID, status domain.Status) domain.Assignment {
	id := uuid.New()
	return domain.Assignment{
		ID:           id,
		ChainID:      id,
		LeadID:       lead,
		ConsultantID: uuid.New(),
		Status:       status,
		AssignedAt:   t0,
		ExpiresAt:    t0.Add(30 * time.Minute),
		AttemptCount: 1,
	}
}

func TestCreateRejectsSecondOpenRowForLead(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	lead := uuid.New()

	if err := m.Create(ctx, newRow(lead, domain.StatusActive)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := m.Create(ctx, newRow(lead, domain.StatusActive)); !errors.Is(err, ErrLeadHasOpen) {
		t.Fatalf("expected lead-has-open, got %v", err)
	}
}

func TestCompareAndSetStatusRequiresExpectedStatus(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	row := newRow(uuid.New(), domain.StatusActive)
	m.Put(row)

	if err := m.CompareAndSetStatus(ctx, row.ID, domain.StatusWarning, domain.StatusCritical, t0); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on stale status, got %v", err)
	}
	if err := m.CompareAndSetStatus(ctx, row.ID, domain.StatusActive, domain.StatusEscalated, t0); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	got, _ := m.GetByID(ctx, row.ID)
	if got.Status != domain.StatusEscalated || got.EscalatedAt == nil || got.FinalizedAt != nil {
		t.Fatalf("unexpected row after escalation: %+v", got)
	}
	if err := m.CompareAndSetStatus(ctx, row.ID, domain.StatusEscalated, domain.StatusActive, t0); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected backward move to be refused, got %v", err)
	}
}

func TestRedistributeIsAtomic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	lead := uuid.New()
	old := newRow(lead, domain.StatusCritical)
	m.Put(old)

	next := newRow(lead, domain.StatusActive)
	next.ChainID = old.ChainID
	next.AttemptCount = 2
	if err := m.Redistribute(ctx, old.ID, domain.StatusCritical, next, t0); err != nil {
		t.Fatalf("redistribute: %v", err)
	}

	closed, _ := m.GetByID(ctx, old.ID)
	if closed.Status != domain.StatusRedistributed || closed.BrokerID == nil || *closed.BrokerID != next.ConsultantID {
		t.Fatalf("old row not closed correctly: %+v", closed)
	}
	open, err := m.GetOpenForLead(ctx, lead)
	if err != nil || open.ID != next.ID {
		t.Fatalf("expected new open row, got %+v err=%v", open, err)
	}

	// A second redistribution against the stale status must not touch anything.
	again := newRow(lead, domain.StatusActive)
	if err := m.Redistribute(ctx, old.ID, domain.StatusCritical, again, t0); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := m.GetByID(ctx, again.ID); !errors.Is(err, ErrNotFound) {
		t.Fatal("stale redistribution must not insert")
	}
}

func TestRedistributeRollsBackWhenInsertConflicts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	lead := uuid.New()
	escalated := newRow(lead, domain.StatusEscalated)
	m.Put(escalated)
	m.Put(newRow(lead, domain.StatusActive))

	err := m.Redistribute(ctx, escalated.ID, domain.StatusEscalated, newRow(lead, domain.StatusActive), t0)
	if !errors.Is(err, ErrLeadHasOpen) {
		t.Fatalf("expected lead-has-open, got %v", err)
	}
	got, _ := m.GetByID(ctx, escalated.ID)
	if got.Status != domain.StatusEscalated {
		t.Fatalf("expected rollback to escalated, got %s", got.Status)
	}
}

func TestMarkContactedConflictReturnsCurrentRow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	row := newRow(uuid.New(), domain.StatusExpired)
	m.Put(row)

	got, err := m.MarkContacted(ctx, row.ID, t0)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if got.Status != domain.StatusExpired {
		t.Fatalf("expected current status, got %s", got.Status)
	}
	if _, err := m.MarkContacted(ctx, uuid.New(), t0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentContactAndExpiryHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		m := NewMemory()
		row := newRow(uuid.New(), domain.StatusCritical)
		m.Put(row)

		var wg sync.WaitGroup
		var contactErr, expireErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, contactErr = m.MarkContacted(ctx, row.ID, t0)
		}()
		go func() {
			defer wg.Done()
			expireErr = m.CompareAndSetStatus(ctx, row.ID, domain.StatusCritical, domain.StatusExpired, t0)
		}()
		wg.Wait()

		if (contactErr == nil) == (expireErr == nil) {
			t.Fatalf("expected exactly one winner, contact=%v expire=%v", contactErr, expireErr)
		}
		got, _ := m.GetByID(ctx, row.ID)
		if got.Status != domain.StatusCompleted && got.Status != domain.StatusExpired {
			t.Fatalf("unexpected final status %s", got.Status)
		}
	}
}

func TestNotificationLeaseIsExclusiveAndMonotonic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	row := newRow(uuid.New(), domain.StatusWarning)
	m.Put(row)
	lease := t0.Add(time.Minute)

	ok, _ := m.ClaimNotification(ctx, row.ID, domain.LevelWarning, t0, lease)
	if !ok {
		t.Fatal("expected first claim to succeed")
	}
	if ok, _ := m.ClaimNotification(ctx, row.ID, domain.LevelWarning, t0, lease); ok {
		t.Fatal("expected live lease to block second claim")
	}

	_ = m.ReleaseNotification(ctx, row.ID)
	if ok, _ := m.ClaimNotification(ctx, row.ID, domain.LevelWarning, t0, lease); !ok {
		t.Fatal("expected claim after release")
	}
	_ = m.CompleteNotification(ctx, row.ID, domain.LevelWarning)

	if ok, _ := m.ClaimNotification(ctx, row.ID, domain.LevelWarning, t0, lease); ok {
		t.Fatal("delivered level must not be claimed again")
	}
	if ok, _ := m.ClaimNotification(ctx, row.ID, domain.LevelCritical, t0, lease); !ok {
		t.Fatal("higher level must be claimable")
	}
	_ = m.CompleteNotification(ctx, row.ID, domain.LevelWarning)
	got, _ := m.GetByID(ctx, row.ID)
	if got.LastNotifiedLevel != domain.LevelWarning {
		t.Fatalf("unexpected level %s", got.LastNotifiedLevel)
	}
}

func TestExpiredLeaseCanBeReclaimed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	row := newRow(uuid.New(), domain.StatusWarning)
	m.Put(row)

	_, _ = m.ClaimNotification(ctx, row.ID, domain.LevelWarning, t0, t0.Add(time.Minute))
	ok, _ := m.ClaimNotification(ctx, row.ID, domain.LevelWarning, t0.Add(2*time.Minute), t0.Add(3*time.Minute))
	if !ok {
		t.Fatal("expected stale lease to be reclaimed")
	}
}

func TestDeleteFinalizedBeforeKeepsNonTerminalRows(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	old := t0.Add(-40 * 24 * time.Hour)

	completed := newRow(uuid.New(), domain.StatusCompleted)
	completed.FinalizedAt = &old
	recent := newRow(uuid.New(), domain.StatusExpired)
	recentAt := t0.Add(-24 * time.Hour)
	recent.FinalizedAt = &recentAt
	escalated := newRow(uuid.New(), domain.StatusEscalated)
	escalated.FinalizedAt = &old
	for _, a := range []domain.Assignment{completed, recent, escalated} {
		m.Put(a)
	}

	n, err := m.DeleteFinalizedBefore(ctx, t0.Add(-30*24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected one deletion, got %d err=%v", n, err)
	}
	if _, err := m.GetByID(ctx, escalated.ID); err != nil {
		t.Fatal("non-terminal row must survive")
	}
}

func TestListPendingPagesByID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < 5; i++ {
		m.Put(newRow(uuid.New(), domain.StatusActive))
	}
	m.Put(newRow(uuid.New(), domain.StatusCompleted))

	var seen int
	after := uuid.Nil
	for {
		page, err := m.ListPending(ctx, after, 2)
		if err != nil {
			t.Fatalf("list pending: %v", err)
		}
		if len(page) == 0 {
			break
		}
		seen += len(page)
		after = page[len(page)-1].ID
	}
	if seen != 5 {
		t.Fatalf("expected 5 pending rows, got %d", seen)
	}
}

func TestFindByIdentifierHonoursWindowAndExclusion(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	client := uuid.New()
	priorLead := uuid.New()
	candidate := uuid.New()
	closed := t0.Add(-10 * 24 * time.Hour)
	m.AddClientIdentity(ClientIdentity{ClientID: client, LeadID: priorLead, Email: "ana@example.com", ClosedAt: &closed, LeadCreatedAt: t0.Add(-20 * 24 * time.Hour)})
	m.AddClientIdentity(ClientIdentity{ClientID: client, LeadID: candidate, Email: "ana@example.com", LeadCreatedAt: t0})

	match, err := m.FindByIdentifier(ctx, domain.IdentifierEmail, "ana@example.com", candidate, t0.Add(-90*24*time.Hour))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if match.ClientID != client || len(match.LeadIDs) != 1 || match.LeadIDs[0] != priorLead {
		t.Fatalf("unexpected match %+v", match)
	}

	if _, err := m.FindByIdentifier(ctx, domain.IdentifierEmail, "ana@example.com", candidate, t0.Add(-5*24*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected client outside the window to be ignored, got %v", err)
	}
}
