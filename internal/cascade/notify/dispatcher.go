// Package notify delivers SLA alerts for cascade assignments.
//
// Each (assignment, level) pair is delivered at most once: the dispatcher
// claims a short lease on the ledger row, sends, and then either records the
// level or releases the lease so the next tick retries.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cascade_backend/internal/cascade/domain"
	"cascade_backend/internal/cascade/repository"
	"cascade_backend/internal/email"
	"cascade_backend/internal/notification/inapp"
	"cascade_backend/platform/logger"
	"cascade_backend/platform/metrics"

	"github.com/google/uuid"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultLeaseTTL = 2 * time.Minute
)

// InAppSender persists CRM inbox notifications.
type InAppSender interface {
	Send(ctx context.Context, p inapp.SendParams) error
}

// WhatsAppSender sends a text message to a phone number.
type WhatsAppSender interface {
	SendMessage(ctx context.Context, phoneNumber string, message string) error
}

type Dispatcher struct {
	ledger   repository.NotificationLedger
	agents   repository.AgentPool
	inApp    InAppSender
	mail     email.Sender
	whatsapp WhatsAppSender
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time
	timeout  time.Duration
	leaseTTL time.Duration
	baseURL  string
}

type Option func(*Dispatcher)

// WithTimeout bounds each individual send.
func WithTimeout(d time.Duration) Option {
	return func(n *Dispatcher) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithLeaseTTL sets how long a claim blocks other deliverers.
func WithLeaseTTL(d time.Duration) Option {
	return func(n *Dispatcher) {
		if d > 0 {
			n.leaseTTL = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(n *Dispatcher) { n.now = now }
}

func WithLogger(log *logger.Logger) Option {
	return func(n *Dispatcher) { n.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Dispatcher) { n.metrics = m }
}

// WithWhatsApp enables the WhatsApp channel for system notifications.
func WithWhatsApp(s WhatsAppSender) Option {
	return func(n *Dispatcher) { n.whatsapp = s }
}

// WithBaseURL sets the CRM base URL used for lead links.
func WithBaseURL(u string) Option {
	return func(n *Dispatcher) { n.baseURL = strings.TrimRight(u, "/") }
}

func New(ledger repository.NotificationLedger, agents repository.AgentPool, inApp InAppSender, mail email.Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ledger:   ledger,
		agents:   agents,
		inApp:    inApp,
		mail:     mail,
		log:      logger.Discard(),
		now:      time.Now,
		timeout:  defaultTimeout,
		leaseTTL: defaultLeaseTTL,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.leaseTTL < d.timeout*2 {
		d.leaseTTL = d.timeout * 2
	}
	return d
}

// Notify delivers the alert for level on a. It reports whether anything was
// sent. A level whose channels are all disabled is recorded without sending
// so later ticks stay quiet. ErrDelivery means nobody received it and the
// next call may retry.
func (d *Dispatcher) Notify(ctx context.Context, a domain.Assignment, level domain.NotificationLevel) (bool, error) {
	if level == domain.LevelNone || a.LastNotifiedLevel >= level {
		return false, nil
	}

	now := d.now()
	claimed, err := d.ledger.ClaimNotification(ctx, a.ID, level, now, now.Add(d.leaseTTL))
	if err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}
	if !claimed {
		return false, nil
	}

	log := d.log.WithContext(ctx).WithAssignment(a.ID.String(), a.LeadID.String())

	recipients, err := d.recipients(ctx, a, level)
	if err != nil {
		d.release(ctx, a.ID, log)
		d.metrics.RecordNotification(level.String(), "failed")
		return false, fmt.Errorf("resolve recipients: %w", err)
	}

	if len(recipients) == 0 {
		if err := d.ledger.CompleteNotification(ctx, a.ID, level); err != nil {
			return false, fmt.Errorf("complete notification: %w", err)
		}
		d.metrics.RecordNotification(level.String(), "skipped")
		return false, nil
	}

	consultant := d.consultantName(ctx, a, recipients)
	delivered := 0
	for _, r := range recipients {
		if d.deliver(ctx, a, level, r, consultant, log) {
			delivered++
		}
	}

	if delivered == 0 {
		d.release(ctx, a.ID, log)
		d.metrics.RecordNotification(level.String(), "failed")
		return false, fmt.Errorf("%w: level %s for assignment %s", domain.ErrDelivery, level, a.ID)
	}

	if err := d.ledger.CompleteNotification(ctx, a.ID, level); err != nil {
		return true, fmt.Errorf("complete notification: %w", err)
	}
	d.metrics.RecordNotification(level.String(), "delivered")
	log.Info("sla notification delivered", "level", level.String(), "recipients", delivered)
	return true, nil
}

// NotifyAssigned tells the consultant a lead is now theirs. Best effort; no
// ledger bookkeeping.
func (d *Dispatcher) NotifyAssigned(ctx context.Context, a domain.Assignment) error {
	agent, err := d.agents.GetAgent(ctx, a.ConsultantID)
	if err != nil {
		return fmt.Errorf("load consultant: %w", err)
	}

	r := recipient{agent: agent, inApp: a.Snapshot.NotifyVisual, system: a.Snapshot.NotifySystem}
	if !r.inApp && !r.system {
		return nil
	}

	var errs []error
	if r.inApp && d.inApp != nil {
		err := d.withTimeout(ctx, func(ctx context.Context) error {
			return d.inApp.Send(ctx, assignedInApp(a, agent))
		})
		errs = append(errs, err)
	}
	if r.system && d.mail != nil && agent.Email != "" {
		err := d.withTimeout(ctx, func(ctx context.Context) error {
			return d.mail.SendAssignmentNotice(ctx, agent.Email, d.assignmentNotice(a, agent))
		})
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// NotifyManagers sends an ad-hoc alert to every manager. Best effort.
func (d *Dispatcher) NotifyManagers(ctx context.Context, p inapp.SendParams) error {
	managers, err := d.agents.ListManagers(ctx)
	if err != nil {
		return fmt.Errorf("list managers: %w", err)
	}
	if d.inApp == nil {
		return nil
	}

	var errs []error
	for _, m := range managers {
		params := p
		params.UserID = m.ID
		errs = append(errs, d.withTimeout(ctx, func(ctx context.Context) error {
			return d.inApp.Send(ctx, params)
		}))
	}
	return errors.Join(errs...)
}

type recipient struct {
	agent   domain.Agent
	manager bool
	inApp   bool
	system  bool
}

// recipients decides who hears about level on a.
// Warning and critical go to the consultant on the enabled channels, with
// managers copied on critical when notifyManager is set. Breach goes to the
// managers: for an escalation when escalateToManager is set, for an expiry
// when notifyManager is set.
func (d *Dispatcher) recipients(ctx context.Context, a domain.Assignment, level domain.NotificationLevel) ([]recipient, error) {
	snap := a.Snapshot
	var out []recipient

	switch level {
	case domain.LevelWarning, domain.LevelCritical:
		if snap.NotifyVisual || snap.NotifySystem {
			agent, err := d.agents.GetAgent(ctx, a.ConsultantID)
			switch {
			case err == nil:
				out = append(out, recipient{agent: agent, inApp: snap.NotifyVisual, system: snap.NotifySystem})
			case errors.Is(err, repository.ErrNotFound):
				d.log.Warn("consultant not found for sla alert", "assignmentId", a.ID, "consultantId", a.ConsultantID)
			default:
				return nil, err
			}
		}
		if level == domain.LevelCritical && snap.NotifyManager {
			managers, err := d.managerRecipients(ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, managers...)
		}
	case domain.LevelEscalated, domain.LevelBreach:
		wantManagers := snap.NotifyManager
		if level == domain.LevelEscalated {
			wantManagers = snap.EscalateToManager
		}
		if !wantManagers {
			return nil, nil
		}
		managers, err := d.managerRecipients(ctx)
		if err != nil {
			return nil, err
		}
		if len(managers) == 0 {
			return nil, fmt.Errorf("%w: no manager to alert", domain.ErrDelivery)
		}
		out = append(out, managers...)
	}

	return out, nil
}

func (d *Dispatcher) managerRecipients(ctx context.Context) ([]recipient, error) {
	managers, err := d.agents.ListManagers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]recipient, 0, len(managers))
	for _, m := range managers {
		out = append(out, recipient{agent: m, manager: true, inApp: true, system: true})
	}
	return out, nil
}

// deliver reports whether at least one channel reached r.
func (d *Dispatcher) deliver(ctx context.Context, a domain.Assignment, level domain.NotificationLevel, r recipient, consultant string, log *logger.Logger) bool {
	ok := false

	if r.inApp && d.inApp != nil {
		err := d.withTimeout(ctx, func(ctx context.Context) error {
			return d.inApp.Send(ctx, alertInApp(a, level, r.agent.ID))
		})
		if err != nil {
			log.Warn("in-app sla alert failed", "recipient", r.agent.ID, "level", level.String(), "error", err)
		} else {
			ok = true
		}
	}

	if !r.system {
		return ok
	}

	if d.mail != nil && r.agent.Email != "" {
		err := d.withTimeout(ctx, func(ctx context.Context) error {
			return d.mail.SendSLAAlert(ctx, r.agent.Email, d.slaAlert(a, level, r.agent, consultant))
		})
		if err != nil {
			log.Warn("email sla alert failed", "recipient", r.agent.ID, "level", level.String(), "error", err)
		} else {
			ok = true
		}
	}

	if d.whatsapp != nil && r.agent.Phone != "" {
		err := d.withTimeout(ctx, func(ctx context.Context) error {
			return d.whatsapp.SendMessage(ctx, r.agent.Phone, alertText(a, level, d.leadURL(a.LeadID)))
		})
		if err != nil {
			log.Warn("whatsapp sla alert failed", "recipient", r.agent.ID, "level", level.String(), "error", err)
		} else {
			ok = true
		}
	}

	return ok
}

// consultantName names the consultant in manager alerts.
func (d *Dispatcher) consultantName(ctx context.Context, a domain.Assignment, recipients []recipient) string {
	for _, r := range recipients {
		if !r.manager {
			return r.agent.Name
		}
	}
	agent, err := d.agents.GetAgent(ctx, a.ConsultantID)
	if err != nil {
		return ""
	}
	return agent.Name
}

func (d *Dispatcher) withTimeout(ctx context.Context, send func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return send(ctx)
}

func (d *Dispatcher) release(ctx context.Context, id uuid.UUID, log *logger.Logger) {
	if err := d.ledger.ReleaseNotification(context.WithoutCancel(ctx), id); err != nil {
		log.Warn("failed to release notification lease", "error", err)
	}
}

func (d *Dispatcher) leadURL(leadID uuid.UUID) string {
	if d.baseURL == "" {
		return ""
	}
	return d.baseURL + "/leads/" + leadID.String()
}
