package email

const (
	subjectWarningFmt    = "SLA warning: lead %s is waiting for first contact"
	subjectCriticalFmt   = "SLA critical: lead %s is about to expire"
	subjectEscalatedFmt  = "SLA escalated: lead %s needs a manager"
	subjectBreachFmt     = "SLA breached: lead %s expired without first contact"
	subjectAssignmentFmt = "New lead assigned: %s"
	subjectDailyReport   = "Cascade daily report for %s"
)
