// Package httptransport wires the admin HTTP API.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"corpdesk/internal/audit"
	"corpdesk/internal/platform/logger"
	platformmetrics "corpdesk/internal/platform/metrics"
	ratelimitmw "corpdesk/internal/ratelimit/middleware"
	ratelimitmodels "corpdesk/internal/ratelimit/models"
	"corpdesk/pkg/attrs"
	dErrors "corpdesk/pkg/domain-errors"
	"corpdesk/pkg/platform/httputil"
	"corpdesk/pkg/platform/middleware/auth"
	"corpdesk/pkg/platform/middleware/device"
	"corpdesk/pkg/platform/middleware/metadata"
	"corpdesk/pkg/platform/middleware/requesttime"
	"corpdesk/pkg/requestcontext"
)

// HealthCheck probes one backend. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Deps collects everything the router needs. Logger, Now, Gatherer and
// HTTPMetrics are optional.
type Deps struct {
	Logger        *slog.Logger
	Now           func() time.Time
	Tokens        auth.TokenValidator
	Limiter       ratelimitmw.RateLimiter
	Email         EmailStatus
	Audit         *audit.Log
	Compliance    ComplianceService
	Reminders     ReminderRunner
	Notifications NotificationLister
	RateLimit     RateLimitResetter
	Health        map[string]HealthCheck
	Gatherer      prometheus.Gatherer
	HTTPMetrics   *platformmetrics.HTTP
}

// NewRouter builds the chi router. Every /admin route requires an admin
// bearer token and shares the "general" rate limit by client IP.
func NewRouter(d Deps) http.Handler {
	lg := d.Logger
	if lg == nil {
		lg = logger.Discard()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware(now))
	if d.HTTPMetrics != nil {
		r.Use(d.HTTPMetrics.Middleware)
	}

	r.Get("/healthz", healthHandler(d.Health))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	h := &AdminHandler{
		logger:        lg,
		email:         d.Email,
		audit:         d.Audit,
		compliance:    d.Compliance,
		reminders:     d.Reminders,
		notifications: d.Notifications,
		ratelimit:     d.RateLimit,
	}
	if d.Audit != nil {
		h.auditLog = d.Audit
	}

	r.Route("/admin", func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(ratelimitmw.New(d.Limiter, lg).RateLimit(ratelimitmodels.CategoryGeneral, ratelimitmw.ByClientIP))
		}
		r.Use(auth.RequireAdmin(d.Tokens, lg, denialRecorder(d.Audit)))

		r.Get("/email/status", h.handleEmailStatus)
		r.Get("/audit", h.handleAudit)
		r.Post("/compliance/deadlines", h.handleComputeDeadlines)
		r.Put("/compliance/entities/{entityID}", h.handleUpsertEntity)
		r.Get("/compliance/entities/{entityID}/deadlines", h.handleEntityDeadlines)
		r.Get("/compliance/entities/{entityID}/notifications", h.handleEntityNotifications)
		r.Post("/reminders/run", h.handleRunReminders)
		r.Delete("/ratelimit/{category}/{identifier}", h.handleResetRateLimit)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})
	return r
}

func denialRecorder(log *audit.Log) auth.DenialRecorder {
	if log == nil {
		return nil
	}
	return func(ctx context.Context, reason string) {
		attrList := []any{
			"reason", reason,
			"client_ip", requestcontext.ClientIP(ctx),
			"request_id", requestcontext.RequestID(ctx),
		}
		attrList = append(attrList, device.Parse(requestcontext.UserAgent(ctx)).Attrs()...)
		log.Append(ctx, audit.Entry{Action: audit.ActionAdminAccessDenied, Details: attrs.ToDetails(attrList)})
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthHandler reports 503 when any backend check fails.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Status = "degraded"
				resp.Checks[name] = err.Error()
				continue
			}
			resp.Checks[name] = "ok"
		}
		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}
