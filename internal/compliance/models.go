package compliance

import (
	"time"

	"corpdesk/pkg/domain"
)

// DeadlineType names a recurring filing obligation.
type DeadlineType string

const (
	DeadlineIRS1120      DeadlineType = "irs_1120"
	DeadlineIRS5472      DeadlineType = "irs_5472"
	DeadlineAnnualReport DeadlineType = "annual_report"
	DeadlineAgentRenewal DeadlineType = "agent_renewal"
)

// AllDeadlineTypes lists every type in the order reminders are scanned.
var AllDeadlineTypes = []DeadlineType{
	DeadlineIRS1120,
	DeadlineIRS5472,
	DeadlineAnnualReport,
	DeadlineAgentRenewal,
}

func (t DeadlineType) IsValid() bool {
	switch t {
	case DeadlineIRS1120, DeadlineIRS5472, DeadlineAnnualReport, DeadlineAgentRenewal:
		return true
	}
	return false
}

// Label is the human-readable name used in emails.
func (t DeadlineType) Label() string {
	switch t {
	case DeadlineIRS1120:
		return "IRS Form 1120"
	case DeadlineIRS5472:
		return "IRS Form 5472"
	case DeadlineAnnualReport:
		return "Annual Report"
	case DeadlineAgentRenewal:
		return "Registered Agent Renewal"
	}
	return string(t)
}

// rank orders types with the same due date.
func (t DeadlineType) rank() int {
	for i, v := range AllDeadlineTypes {
		if v == t {
			return i
		}
	}
	return len(AllDeadlineTypes)
}

// Deadline is a derived compliance obligation. Dates are UTC midnights.
type Deadline struct {
	Type         DeadlineType `json:"type"`
	DueDate      time.Time    `json:"due_date"`
	ReminderDate time.Time    `json:"reminder_date"`
	Description  string       `json:"description"`
	Jurisdiction Jurisdiction `json:"jurisdiction,omitempty"`
}

// Entity is a formed company whose deadlines are tracked.
type Entity struct {
	ID            domain.EntityID `json:"id"`
	Name          string          `json:"name"`
	OwnerEmail    string          `json:"owner_email"`
	OwnerName     string          `json:"owner_name,omitempty"`
	Jurisdiction  Jurisdiction    `json:"jurisdiction"`
	FormationDate time.Time       `json:"formation_date"`
}

// Candidate pairs an entity with one of its stored deadlines.
type Candidate struct {
	Entity   Entity
	Deadline Deadline
}
