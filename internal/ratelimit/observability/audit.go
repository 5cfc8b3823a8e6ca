// Package observability provides audit logging helpers for the ratelimit module.
package observability

import (
	"context"
	"log/slog"

	"corpdesk/internal/audit"
	"corpdesk/internal/ratelimit/ports"
	"corpdesk/pkg/attrs"
	"corpdesk/pkg/platform/middleware/device"
	"corpdesk/pkg/requestcontext"
)

// LogAudit logs audit events to both the structured logger and the audit log.
// It enriches events with request ID and client description, and extracts
// the target from attrList.
func LogAudit(ctx context.Context, logger *slog.Logger, log ports.AuditLog, action audit.Action, attrList ...any) {
	requestID := requestcontext.RequestID(ctx)

	if requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		attrList = append(attrList, "client_ip", ip)
	}
	attrList = append(attrList, device.Parse(requestcontext.UserAgent(ctx)).Attrs()...)

	args := append(attrList, "event", string(action), "log_type", "audit")

	if logger != nil {
		logger.InfoContext(ctx, string(action), args...)
	}

	if log == nil {
		return
	}

	log.Append(ctx, audit.Entry{
		Action:   action,
		ActorID:  requestcontext.ActorID(ctx),
		TargetID: extractTarget(attrList),
		Details:  attrs.ToDetails(attrList),
	})
}

func extractTarget(attrList []any) string {
	for _, key := range []string{"key", "identifier", "ip"} {
		if val := attrs.ExtractString(attrList, key); val != "" {
			return val
		}
	}
	return ""
}
