package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpdesk/internal/audit"
	"corpdesk/pkg/requestcontext"
)

func TestLogAudit_WritesLogAndEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	log := audit.NewLog(10)

	ctx := requestcontext.WithRequestID(context.Background(), "req-1")
	ctx = requestcontext.WithActorID(ctx, "admin-7")

	LogAudit(ctx, logger, log, audit.ActionRateLimitExceeded,
		"key", "rl:login:alice",
		"category", "login",
		"retry_after", 40,
	)

	assert.Contains(t, buf.String(), "log_type=audit")
	assert.Contains(t, buf.String(), "request_id=req-1")

	entries := log.Recent(1)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, audit.ActionRateLimitExceeded, e.Action)
	assert.Equal(t, "rl:login:alice", e.TargetID)
	assert.Equal(t, "admin-7", e.ActorID)
	assert.Equal(t, "40", e.Details["retry_after"])
	assert.Equal(t, "req-1", e.Details["request_id"])
}

func TestLogAudit_NilSinks(t *testing.T) {
	assert.NotPanics(t, func() {
		LogAudit(context.Background(), nil, nil, audit.ActionRateLimitReset, "key", "k")
	})
}

func TestLogAudit_AddsClientDescription(t *testing.T) {
	log := audit.NewLog(10)
	ctx := requestcontext.WithClientMetadata(context.Background(), "192.0.2.1",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")

	LogAudit(ctx, nil, log, audit.ActionRateLimitExceeded, "key", "rl:login:x")

	details := log.Recent(1)[0].Details
	assert.Equal(t, "192.0.2.1", details["client_ip"])
	assert.Equal(t, "Firefox", details["client_browser"])
	assert.NotEmpty(t, details["client_os"])
}
