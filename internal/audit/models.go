package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action names a security-relevant operation.
type Action string

const (
	ActionRateLimitExceeded  Action = "rate_limit_exceeded"
	ActionRateLimitReset     Action = "rate_limit_reset"
	ActionRateLimitStoreDown Action = "rate_limit_store_unavailable"
	ActionDeadlinesComputed  Action = "compliance_deadlines_computed"
	ActionReminderSent       Action = "reminder_sent"
	ActionReminderRunTrigger Action = "reminder_run_triggered"
	ActionEmailDropped       Action = "email_dropped"
	ActionAdminAccessDenied  Action = "admin_access_denied"
)

// Entry is one audit record. Keep it transport-agnostic so stores and sinks
// can fan out.
type Entry struct {
	ID        uuid.UUID         `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Action    Action            `json:"action"`
	ActorID   string            `json:"actor_id,omitempty"`
	TargetID  string            `json:"target_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}
