package reporting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cascade_backend/internal/cascade/domain"
	"cascade_backend/internal/cascade/repository"
	"cascade_backend/internal/email"
	"cascade_backend/internal/notification/inapp"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMail struct {
	email.NoopSender
	mu      sync.Mutex
	fail    map[string]bool
	reports map[string]email.DailyReport
}

func (m *recordingMail) SendDailyReport(_ context.Context, to string, rep email.DailyReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[to] {
		return errors.New("smtp down")
	}
	if m.reports == nil {
		m.reports = make(map[string]email.DailyReport)
	}
	m.reports[to] = rep
	return nil
}

type recordingQueue struct {
	managers []uuid.UUID
	days     []string
}

func (q *recordingQueue) EnqueueDailyReport(_ context.Context, managerID uuid.UUID, day string) error {
	q.managers = append(q.managers, managerID)
	q.days = append(q.days, day)
	return nil
}

type recordingInbox struct {
	mu   sync.Mutex
	fail bool
	sent []inapp.SendParams
}

func (i *recordingInbox) Send(_ context.Context, p inapp.SendParams) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.fail {
		return errors.New("inbox down")
	}
	i.sent = append(i.sent, p)
	return nil
}

var day = time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

func snapshot() domain.ConfigSnapshot {
	return domain.AutomationConfig{
		DistributionMethod: domain.MethodVolume,
		WorkingHoursStart:  "08:00",
		WorkingHoursEnd:    "18:00",
		Timezone:           "UTC",
		FirstContactSLA:    30,
		WarningPercentage:  50,
		CriticalPercentage: 75,
	}.Snapshot()
}

func finalized(status domain.Status, assigned, final time.Time) domain.Assignment {
	a := domain.Assignment{
		ID:           uuid.New(),
		LeadID:       uuid.New(),
		ConsultantID: uuid.New(),
		Status:       status,
		AssignedAt:   assigned,
		FinalizedAt:  &final,
		Snapshot:     snapshot(),
	}
	a.ChainID = a.ID
	if status == domain.StatusCompleted {
		a.ContactedAt = &final
	}
	return a
}

func seedDay(mem *repository.Memory) {
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	// 10 and 20 working minutes to contact.
	mem.Put(finalized(domain.StatusCompleted, at(9, 0), at(9, 10)))
	mem.Put(finalized(domain.StatusCompleted, at(11, 0), at(11, 20)))
	mem.Put(finalized(domain.StatusExpired, at(12, 0), at(12, 30)))
	mem.Put(finalized(domain.StatusRedistributed, at(13, 0), at(13, 30)))

	escalatedAt := at(15, 0)
	esc := domain.Assignment{ID: uuid.New(), LeadID: uuid.New(), Status: domain.StatusEscalated, AssignedAt: at(14, 30), EscalatedAt: &escalatedAt}
	esc.ChainID = esc.ID
	mem.Put(esc)

	// The previous day stays out of the report.
	mem.Put(finalized(domain.StatusCompleted, day.Add(-2*time.Hour), day.Add(-time.Hour)))
}

func TestBuildDailyReport(t *testing.T) {
	mem := repository.NewMemory()
	seedDay(mem)

	rep, err := New(mem, mem, nil).BuildDailyReport(context.Background(), day.Add(15*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "2026-03-10", rep.Day)
	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, 2, rep.Completed)
	assert.Equal(t, 1, rep.Expired)
	assert.Equal(t, 1, rep.Redistributed)
	assert.Equal(t, 1, rep.Escalations)
	assert.InDelta(t, 0.5, rep.ConversionRate, 1e-9)
	assert.Equal(t, 15*time.Minute, rep.AvgTimeToContact)
}

func TestBuildDailyReportEmptyDay(t *testing.T) {
	mem := repository.NewMemory()

	rep, err := New(mem, mem, nil).BuildDailyReport(context.Background(), day)
	require.NoError(t, err)
	assert.Zero(t, rep.Total)
	assert.Zero(t, rep.ConversionRate)
	assert.Zero(t, rep.AvgTimeToContact)
}

// The day boundary follows the reporter's zone, not UTC.
func TestBuildDailyReportUsesZone(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	mem := repository.NewMemory()
	// 01:00 UTC on the 11th is still the 10th in São Paulo.
	late := time.Date(2026, time.March, 11, 1, 0, 0, 0, time.UTC)
	mem.Put(finalized(domain.StatusExpired, late.Add(-time.Hour), late))

	rep, err := New(mem, mem, nil, WithLocation(loc)).BuildDailyReport(context.Background(), time.Date(2026, time.March, 10, 12, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Expired)
}

func TestDeliverToManagersContinuesPastFailures(t *testing.T) {
	mem := repository.NewMemory()
	seedDay(mem)
	mem.PutAgent(domain.Agent{ID: uuid.New(), Name: "Ana", Email: "ana@example.com", Manager: true, Active: true})
	mem.PutAgent(domain.Agent{ID: uuid.New(), Name: "Bia", Email: "bia@example.com", Manager: true, Active: true})
	mem.PutAgent(domain.Agent{ID: uuid.New(), Name: "Caio", Email: "caio@example.com", Active: true})

	mail := &recordingMail{fail: map[string]bool{"ana@example.com": true}}
	err := New(mem, mem, mail).Run(context.Background(), day)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
	require.Contains(t, mail.reports, "bia@example.com")
	assert.NotContains(t, mail.reports, "caio@example.com")

	sent := mail.reports["bia@example.com"]
	assert.Equal(t, 4, sent.Total)
	assert.Equal(t, "50.0%", sent.ConversionRate)
	assert.Equal(t, "15m0s", sent.AvgTimeToContact)
}

func TestDeliverToManagersEnqueuesWhenQueued(t *testing.T) {
	mem := repository.NewMemory()
	a, b := uuid.New(), uuid.New()
	mem.PutAgent(domain.Agent{ID: a, Email: "a@example.com", Manager: true, Active: true})
	mem.PutAgent(domain.Agent{ID: b, Email: "b@example.com", Manager: true, Active: true})

	mail := &recordingMail{}
	q := &recordingQueue{}
	require.NoError(t, New(mem, mem, mail, WithQueue(q)).Run(context.Background(), day))

	assert.ElementsMatch(t, []uuid.UUID{a, b}, q.managers)
	assert.Equal(t, []string{"2026-03-10", "2026-03-10"}, q.days)
	assert.Empty(t, mail.reports)
}

func TestDeliverByID(t *testing.T) {
	mem := repository.NewMemory()
	seedDay(mem)
	id := uuid.New()
	mem.PutAgent(domain.Agent{ID: id, Email: "ana@example.com", Manager: true, Active: true})
	mail := &recordingMail{}

	r := New(mem, mem, mail)
	require.NoError(t, r.DeliverByID(context.Background(), id, "2026-03-10"))
	assert.Equal(t, 2, mail.reports["ana@example.com"].Completed)

	assert.Error(t, r.DeliverByID(context.Background(), id, "10/03/2026"))
	assert.Error(t, r.DeliverByID(context.Background(), uuid.New(), "2026-03-10"))
}

func TestDeliverReachesManagerWithoutEmailThroughInbox(t *testing.T) {
	mem := repository.NewMemory()
	seedDay(mem)
	withMail, noMail := uuid.New(), uuid.New()
	mem.PutAgent(domain.Agent{ID: withMail, Email: "ana@example.com", Manager: true, Active: true})
	mem.PutAgent(domain.Agent{ID: noMail, Name: "Bia", Manager: true, Active: true})

	mail := &recordingMail{}
	inbox := &recordingInbox{}
	require.NoError(t, New(mem, mem, mail, WithInApp(inbox), WithBaseURL("https://crm.example/")).Run(context.Background(), day))

	assert.Len(t, mail.reports, 1)
	require.Len(t, inbox.sent, 2)
	recipients := []uuid.UUID{inbox.sent[0].UserID, inbox.sent[1].UserID}
	assert.ElementsMatch(t, []uuid.UUID{withMail, noMail}, recipients)
	for _, p := range inbox.sent {
		assert.Equal(t, inapp.KindDailyReport, p.Kind)
		assert.Contains(t, p.Content, "50.0%")
		assert.Contains(t, p.Content, "https://crm.example/cascade/reports/2026-03-10")
	}
}

func TestDeliverWithoutAnyChannelIsSkipped(t *testing.T) {
	mem := repository.NewMemory()
	mail := &recordingMail{}
	r := New(mem, mem, mail)

	err := r.Deliver(context.Background(), domain.Agent{ID: uuid.New(), Manager: true}, DailyReport{Day: "2026-03-10"})
	require.NoError(t, err)
	assert.Empty(t, mail.reports)
}

func TestDeliverFailsOnlyWhenNoChannelDelivered(t *testing.T) {
	mem := repository.NewMemory()
	manager := domain.Agent{ID: uuid.New(), Email: "ana@example.com", Manager: true}
	rep := DailyReport{Day: "2026-03-10"}

	mail := &recordingMail{fail: map[string]bool{"ana@example.com": true}}
	inbox := &recordingInbox{}
	require.NoError(t, New(mem, mem, mail, WithInApp(inbox)).Deliver(context.Background(), manager, rep))
	assert.Len(t, inbox.sent, 1)

	inbox.fail = true
	err := New(mem, mem, mail, WithInApp(inbox)).Deliver(context.Background(), manager, rep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
	assert.Contains(t, err.Error(), "inbox down")
}

func TestScheduleRejectsBadCronExpression(t *testing.T) {
	mem := repository.NewMemory()
	_, err := New(mem, mem, nil).Schedule(context.Background(), "every morning")
	assert.Error(t, err)

	c, err := New(mem, mem, nil).Schedule(context.Background(), "0 8 * * *")
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
}
