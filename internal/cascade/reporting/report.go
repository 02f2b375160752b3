// Package reporting builds the daily cascade summary and delivers it to
// managers.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cascade_backend/internal/cascade/calendar"
	"cascade_backend/internal/cascade/domain"
	"cascade_backend/internal/cascade/repository"
	"cascade_backend/internal/email"
	"cascade_backend/internal/notification/inapp"
	"cascade_backend/platform/logger"
	"cascade_backend/platform/metrics"

	"github.com/google/uuid"
)

// DayLayout is the wire format of a report day.
const DayLayout = "2006-01-02"

// DailyReport summarises one calendar day of cascade outcomes.
type DailyReport struct {
	Day           string    `json:"day"`
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	Total         int       `json:"total"`
	Completed     int       `json:"completed"`
	Expired       int       `json:"expired"`
	Redistributed int       `json:"redistributed"`
	Escalations   int       `json:"escalations"`
	// ConversionRate is completed/total, 0 when nothing finalized.
	ConversionRate float64 `json:"conversionRate"`
	// AvgTimeToContact is working time from assignment to first contact.
	AvgTimeToContact        time.Duration `json:"-"`
	AvgTimeToContactSeconds float64       `json:"avgTimeToContactSeconds"`
}

// Enqueuer hands one manager's delivery to the background queue.
type Enqueuer interface {
	EnqueueDailyReport(ctx context.Context, managerID uuid.UUID, day string) error
}

// InAppSender posts the summary to a manager's CRM inbox.
type InAppSender interface {
	Send(ctx context.Context, p inapp.SendParams) error
}

type Reporter struct {
	ledger  repository.ReportReader
	agents  repository.AgentPool
	mail    email.Sender
	inApp   InAppSender
	queue   Enqueuer
	loc     *time.Location
	baseURL string
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Reporter)

func WithLocation(loc *time.Location) Option {
	return func(r *Reporter) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithQueue makes DeliverToManagers enqueue one task per manager instead of
// sending inline.
func WithQueue(q Enqueuer) Option {
	return func(r *Reporter) { r.queue = q }
}

// WithInApp also posts each manager's report to their inbox, which is the
// only channel for managers without an email address.
func WithInApp(s InAppSender) Option {
	return func(r *Reporter) { r.inApp = s }
}

func WithBaseURL(url string) Option {
	return func(r *Reporter) { r.baseURL = strings.TrimRight(url, "/") }
}

func WithLogger(log *logger.Logger) Option {
	return func(r *Reporter) { r.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reporter) { r.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

func New(ledger repository.ReportReader, agents repository.AgentPool, mail email.Sender, opts ...Option) *Reporter {
	r := &Reporter{
		ledger: ledger,
		agents: agents,
		mail:   mail,
		loc:    time.UTC,
		log:    logger.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.mail == nil {
		r.mail = email.NoopSender{}
	}
	return r
}

// Yesterday returns the previous calendar day in the reporter's zone.
func (r *Reporter) Yesterday() time.Time {
	return r.now().In(r.loc).AddDate(0, 0, -1)
}

// ParseDay reads a DayLayout string in the reporter's zone.
func (r *Reporter) ParseDay(day string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, day, r.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid report day %q: %w", day, err)
	}
	return t, nil
}

// BuildDailyReport aggregates the rows finalized and escalated during day,
// taken as midnight to midnight in the reporter's zone.
func (r *Reporter) BuildDailyReport(ctx context.Context, day time.Time) (DailyReport, error) {
	local := day.In(r.loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.loc)
	to := from.AddDate(0, 0, 1)

	rows, err := r.ledger.ListFinalizedBetween(ctx, from, to)
	if err != nil {
		return DailyReport{}, fmt.Errorf("list finalized: %w", err)
	}
	escalations, err := r.ledger.CountEscalatedBetween(ctx, from, to)
	if err != nil {
		return DailyReport{}, fmt.Errorf("count escalations: %w", err)
	}

	rep := DailyReport{
		Day:         from.Format(DayLayout),
		From:        from,
		To:          to,
		Total:       len(rows),
		Escalations: escalations,
	}

	var contactTotal time.Duration
	contacted := 0
	for _, a := range rows {
		switch a.Status {
		case domain.StatusCompleted:
			rep.Completed++
			if a.ContactedAt == nil {
				continue
			}
			cal, err := calendar.FromSnapshot(a.Snapshot, r.loc)
			if err != nil {
				r.log.WithAssignment(a.ID.String(), a.LeadID.String()).Warn("skipping contact time with broken snapshot", "error", err)
				continue
			}
			contactTotal += cal.Elapsed(a.AssignedAt, *a.ContactedAt)
			contacted++
		case domain.StatusExpired:
			rep.Expired++
		case domain.StatusRedistributed:
			rep.Redistributed++
		}
	}

	if rep.Total > 0 {
		rep.ConversionRate = float64(rep.Completed) / float64(rep.Total)
	}
	if contacted > 0 {
		rep.AvgTimeToContact = (contactTotal / time.Duration(contacted)).Round(time.Second)
		rep.AvgTimeToContactSeconds = rep.AvgTimeToContact.Seconds()
	}
	return rep, nil
}

// Run builds the report for day and delivers it to every manager.
func (r *Reporter) Run(ctx context.Context, day time.Time) error {
	rep, err := r.BuildDailyReport(ctx, day)
	if err != nil {
		return err
	}
	r.log.WithContext(ctx).Info("daily report built",
		"day", rep.Day, "total", rep.Total, "completed", rep.Completed,
		"expired", rep.Expired, "redistributed", rep.Redistributed, "escalations", rep.Escalations)
	return r.DeliverToManagers(ctx, rep)
}

// DeliverToManagers sends rep to every manager. A failed delivery is logged
// and does not stop the others; all failures are returned joined.
func (r *Reporter) DeliverToManagers(ctx context.Context, rep DailyReport) error {
	managers, err := r.agents.ListManagers(ctx)
	if err != nil {
		return fmt.Errorf("list managers: %w", err)
	}

	var errs []error
	for _, m := range managers {
		if r.queue != nil {
			err = r.queue.EnqueueDailyReport(ctx, m.ID, rep.Day)
		} else {
			err = r.Deliver(ctx, m, rep)
		}
		if err != nil {
			r.log.WithContext(ctx).Warn("daily report delivery failed", "managerId", m.ID, "day", rep.Day, "error", err)
			errs = append(errs, fmt.Errorf("manager %s: %w", m.ID, err))
		}
	}
	return errors.Join(errs...)
}

// DeliverByID rebuilds the report for day and sends it to one manager.
// It backs the per-manager background task.
func (r *Reporter) DeliverByID(ctx context.Context, managerID uuid.UUID, day string) error {
	t, err := r.ParseDay(day)
	if err != nil {
		return err
	}
	manager, err := r.agents.GetAgent(ctx, managerID)
	if err != nil {
		return fmt.Errorf("load manager %s: %w", managerID, err)
	}
	rep, err := r.BuildDailyReport(ctx, t)
	if err != nil {
		return err
	}
	return r.Deliver(ctx, manager, rep)
}

// Deliver sends rep to one manager over every channel that can reach them.
// It fails only when no channel did.
func (r *Reporter) Deliver(ctx context.Context, manager domain.Agent, rep DailyReport) error {
	log := r.log.WithContext(ctx)
	hasEmail := strings.TrimSpace(manager.Email) != ""
	if !hasEmail && r.inApp == nil {
		log.Warn("daily report skipped, manager has no email and no inbox is configured",
			"managerId", manager.ID, "day", rep.Day)
		return nil
	}

	var errs []error
	delivered := false
	if r.inApp != nil {
		if err := r.inApp.Send(ctx, r.reportInApp(manager, rep)); err != nil {
			log.Warn("daily report inbox delivery failed", "managerId", manager.ID, "day", rep.Day, "error", err)
			errs = append(errs, fmt.Errorf("inbox: %w", err))
		} else {
			delivered = true
		}
	}
	if hasEmail {
		if err := r.mail.SendDailyReport(ctx, manager.Email, r.reportEmail(rep)); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		} else {
			delivered = true
		}
	} else {
		log.Info("daily report sent to inbox only, manager has no email", "managerId", manager.ID, "day", rep.Day)
	}

	r.metrics.RecordReportDelivery(delivered)
	if !delivered {
		return errors.Join(errs...)
	}
	return nil
}

func (r *Reporter) reportEmail(rep DailyReport) email.DailyReport {
	return email.DailyReport{
		Day:              rep.Day,
		Total:            rep.Total,
		Completed:        rep.Completed,
		Expired:          rep.Expired,
		Redistributed:    rep.Redistributed,
		Escalations:      rep.Escalations,
		ConversionRate:   formatRate(rep.ConversionRate),
		AvgTimeToContact: formatDuration(rep.AvgTimeToContact),
		DashboardURL:     r.dashboardURL(rep.Day),
	}
}

func (r *Reporter) reportInApp(manager domain.Agent, rep DailyReport) inapp.SendParams {
	content := fmt.Sprintf("%d leads closed: %d contacted, %d expired, %d redistributed, %d escalated. Conversion %s, average time to contact %s. %s",
		rep.Total, rep.Completed, rep.Expired, rep.Redistributed, rep.Escalations,
		formatRate(rep.ConversionRate), formatDuration(rep.AvgTimeToContact), r.dashboardURL(rep.Day))
	return inapp.SendParams{
		UserID:  manager.ID,
		Kind:    inapp.KindDailyReport,
		Title:   "Cascade daily report for " + rep.Day,
		Content: content,
	}
}

func (r *Reporter) dashboardURL(day string) string {
	return r.baseURL + "/cascade/reports/" + day
}

func formatRate(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "n/a"
	}
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	return d.Round(time.Minute).String()
}
