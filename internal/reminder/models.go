package reminder

import (
	"fmt"
	"time"

	"corpdesk/internal/compliance"
	"corpdesk/pkg/domain"
)

// Notification is the persisted record that a reminder was issued.
type Notification struct {
	ID           domain.NotificationID   `json:"id"`
	EntityID     domain.EntityID         `json:"entity_id"`
	DeadlineType compliance.DeadlineType `json:"deadline_type"`
	DueDate      time.Time               `json:"due_date"`
	Recipient    string                  `json:"recipient"`
	Subject      string                  `json:"subject"`
	CreatedAt    time.Time               `json:"created_at"`
}

// Event is published after a reminder is issued.
type Event struct {
	NotificationID domain.NotificationID   `json:"notification_id"`
	EntityID       domain.EntityID         `json:"entity_id"`
	EntityName     string                  `json:"entity_name"`
	DeadlineType   compliance.DeadlineType `json:"deadline_type"`
	DueDate        string                  `json:"due_date"`
	Recipient      string                  `json:"recipient"`
	EmailQueued    bool                    `json:"email_queued"`
	OccurredAt     time.Time               `json:"occurred_at"`
}

// Window is the inclusive due-date range scanned by one run.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Report summarises one RunOnce.
type Report struct {
	Window     Window   `json:"window"`
	Candidates int      `json:"candidates"`
	Notified   int      `json:"notified"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// DedupKey identifies one reminder occurrence. The due date is part of the
// key so a recomputed deadline gets a fresh reminder.
func DedupKey(entityID domain.EntityID, t compliance.DeadlineType, due time.Time) string {
	return fmt.Sprintf("reminder:%s:%s:%s", entityID, t, due.Format(compliance.DateLayout))
}
