package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
	CTALabel   string
	CTAURL     string
}

// SLAAlert is the content of an SLA alert email.
type SLAAlert struct {
	Level          string
	LeadID         string
	AssignmentID   string
	RecipientName  string
	ConsultantName string
	Status         string
	ExpiresAt      string
	LeadURL        string
}

// AssignmentNotice tells an agent a lead is now theirs.
type AssignmentNotice struct {
	LeadID        string
	RecipientName string
	ExpiresAt     string
	Attempt       int
	LeadURL       string
}

// DailyReport is the manager digest.
type DailyReport struct {
	Day              string
	Total            int
	Completed        int
	Expired          int
	Redistributed    int
	Escalations      int
	ConversionRate   string
	AvgTimeToContact string
	DashboardURL     string
}

type slaAlertEmailData struct {
	baseEmailData
	SLAAlert
}

type assignmentEmailData struct {
	baseEmailData
	AssignmentNotice
}

type dailyReportEmailData struct {
	baseEmailData
	DailyReport
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func renderSLAAlert(alert SLAAlert) (string, string, error) {
	var subjectFmt, heading string
	switch alert.Level {
	case "warning":
		subjectFmt, heading = subjectWarningFmt, "First contact is due soon"
	case "critical":
		subjectFmt, heading = subjectCriticalFmt, "First contact is almost overdue"
	case "escalated":
		subjectFmt, heading = subjectEscalatedFmt, "No agent is available for this lead"
	default:
		subjectFmt, heading = subjectBreachFmt, "First contact SLA breached"
	}
	content, err := renderEmailTemplate("sla_alert.html", slaAlertEmailData{
		baseEmailData: baseEmailData{
			Title:    heading,
			Heading:  heading,
			CTALabel: "Open lead",
			CTAURL:   alert.LeadURL,
		},
		SLAAlert: alert,
	})
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf(subjectFmt, alert.LeadID), content, nil
}

func renderAssignmentNotice(notice AssignmentNotice) (string, string, error) {
	content, err := renderEmailTemplate("assignment.html", assignmentEmailData{
		baseEmailData: baseEmailData{
			Title:    "A lead was assigned to you",
			Heading:  "A lead was assigned to you",
			CTALabel: "Open lead",
			CTAURL:   notice.LeadURL,
		},
		AssignmentNotice: notice,
	})
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf(subjectAssignmentFmt, notice.LeadID), content, nil
}

func renderDailyReport(report DailyReport) (string, string, error) {
	content, err := renderEmailTemplate("daily_report.html", dailyReportEmailData{
		baseEmailData: baseEmailData{
			Title:      "Cascade daily report",
			Heading:    "Cascade daily report",
			Subheading: report.Day,
			CTALabel:   "Open dashboard",
			CTAURL:     report.DashboardURL,
		},
		DailyReport: report,
	})
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf(subjectDailyReport, report.Day), content, nil
}
