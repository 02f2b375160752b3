package email

import (
	"context"

	"cascade_backend/platform/config"
)

// Sender delivers cascade emails to agents and managers.
type Sender interface {
	SendSLAAlert(ctx context.Context, toEmail string, alert SLAAlert) error
	SendAssignmentNotice(ctx context.Context, toEmail string, notice AssignmentNotice) error
	SendDailyReport(ctx context.Context, toEmail string, report DailyReport) error
}

type NoopSender struct{}

func (NoopSender) SendSLAAlert(ctx context.Context, toEmail string, alert SLAAlert) error {
	return nil
}

func (NoopSender) SendAssignmentNotice(ctx context.Context, toEmail string, notice AssignmentNotice) error {
	return nil
}

func (NoopSender) SendDailyReport(ctx context.Context, toEmail string, report DailyReport) error {
	return nil
}

// NewSender returns an SMTP sender, or a NoopSender when email is disabled.
func NewSender(cfg config.EmailConfig) Sender {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}
