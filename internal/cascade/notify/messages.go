package notify

import (
	"fmt"
	"time"

	"cascade_backend/internal/cascade/domain"
	"cascade_backend/internal/email"
	"cascade_backend/internal/notification/inapp"

	"github.com/google/uuid"
)

const timeLayout = "02 Jan 2006 15:04 MST"

func alertTitle(level domain.NotificationLevel) string {
	switch level {
	case domain.LevelWarning:
		return "First contact due soon"
	case domain.LevelCritical:
		return "First contact almost overdue"
	case domain.LevelEscalated:
		return "Lead escalated: no agent available"
	}
	return "First contact SLA breached"
}

func alertKind(level domain.NotificationLevel) inapp.Kind {
	switch level {
	case domain.LevelWarning:
		return inapp.KindSLAWarning
	case domain.LevelCritical:
		return inapp.KindSLACritical
	case domain.LevelEscalated:
		return inapp.KindEscalated
	default:
		return inapp.KindBreach
	}
}

func alertInApp(a domain.Assignment, level domain.NotificationLevel, userID uuid.UUID) inapp.SendParams {
	leadID, assignmentID := a.LeadID, a.ID
	return inapp.SendParams{
		UserID:       userID,
		Kind:         alertKind(level),
		Title:        alertTitle(level),
		Content:      alertText(a, level, ""),
		LeadID:       &leadID,
		AssignmentID: &assignmentID,
	}
}

func assignedInApp(a domain.Assignment, agent domain.Agent) inapp.SendParams {
	leadID, assignmentID := a.LeadID, a.ID
	content := fmt.Sprintf("Lead %s is assigned to you. Make first contact before %s.",
		a.LeadID, formatTime(a.ExpiresAt, a.Snapshot.Timezone))
	if a.AttemptCount > 1 {
		content = fmt.Sprintf("Lead %s was redistributed to you (attempt %d). Make first contact before %s.",
			a.LeadID, a.AttemptCount, formatTime(a.ExpiresAt, a.Snapshot.Timezone))
	}
	return inapp.SendParams{
		UserID:       agent.ID,
		Kind:         inapp.KindAssigned,
		Title:        "New lead assigned",
		Content:      content,
		LeadID:       &leadID,
		AssignmentID: &assignmentID,
	}
}

func alertText(a domain.Assignment, level domain.NotificationLevel, link string) string {
	var msg string
	switch {
	case level == domain.LevelWarning || level == domain.LevelCritical:
		msg = fmt.Sprintf("%s: lead %s must be contacted before %s.",
			alertTitle(level), a.LeadID, formatTime(a.ExpiresAt, a.Snapshot.Timezone))
	case level == domain.LevelEscalated:
		msg = fmt.Sprintf("Lead %s passed its first contact deadline and no eligible agent was found. Please reassign it.", a.LeadID)
	default:
		msg = fmt.Sprintf("Lead %s was not contacted before %s.", a.LeadID, formatTime(a.ExpiresAt, a.Snapshot.Timezone))
	}
	if link != "" {
		msg += " " + link
	}
	return msg
}

func (d *Dispatcher) slaAlert(a domain.Assignment, level domain.NotificationLevel, to domain.Agent, consultant string) email.SLAAlert {
	alert := email.SLAAlert{
		Level:         level.String(),
		LeadID:        a.LeadID.String(),
		AssignmentID:  a.ID.String(),
		RecipientName: to.Name,
		Status:        string(a.Status),
		ExpiresAt:     formatTime(a.ExpiresAt, a.Snapshot.Timezone),
		LeadURL:       d.leadURL(a.LeadID),
	}
	if consultant != to.Name {
		alert.ConsultantName = consultant
	}
	return alert
}

func (d *Dispatcher) assignmentNotice(a domain.Assignment, to domain.Agent) email.AssignmentNotice {
	return email.AssignmentNotice{
		LeadID:        a.LeadID.String(),
		RecipientName: to.Name,
		ExpiresAt:     formatTime(a.ExpiresAt, a.Snapshot.Timezone),
		Attempt:       a.AttemptCount,
		LeadURL:       d.leadURL(a.LeadID),
	}
}

func formatTime(t time.Time, zone string) string {
	if loc, err := time.LoadLocation(zone); err == nil && zone != "" {
		t = t.In(loc)
	}
	return t.Format(timeLayout)
}
