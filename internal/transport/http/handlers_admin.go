package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"corpdesk/internal/audit"
	"corpdesk/internal/compliance"
	"corpdesk/internal/email"
	ratelimitmodels "corpdesk/internal/ratelimit/models"
	"corpdesk/internal/reminder"
	dErrors "corpdesk/pkg/domain-errors"
	"corpdesk/pkg/domain"
	"corpdesk/pkg/platform/httputil"
	"corpdesk/pkg/requestcontext"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

type EmailStatus interface {
	Status() email.Status
}

type AuditReader interface {
	Recent(limit int) []audit.Entry
}

type ComplianceService interface {
	Recompute(ctx context.Context, e compliance.Entity) ([]compliance.Deadline, error)
	Deadlines(ctx context.Context, id domain.EntityID) ([]compliance.Deadline, error)
}

type ReminderRunner interface {
	RunOnce(ctx context.Context) (reminder.Report, error)
}

type NotificationLister interface {
	ListByEntity(ctx context.Context, id domain.EntityID) ([]reminder.Notification, error)
}

type RateLimitResetter interface {
	Reset(ctx context.Context, category ratelimitmodels.Category, identifier string) error
}

// AdminHandler serves the /admin API. Authentication happens in the router.
type AdminHandler struct {
	logger        *slog.Logger
	email         EmailStatus
	audit         AuditReader
	auditLog      AuditAppender
	compliance    ComplianceService
	reminders     ReminderRunner
	notifications NotificationLister
	ratelimit     RateLimitResetter
}

type AuditAppender interface {
	Append(ctx context.Context, e audit.Entry) audit.Entry
}

type emailStatusResponse struct {
	Pending      int       `json:"pending"`
	IsProcessing bool      `json:"is_processing"`
	AsOf         time.Time `json:"as_of"`
}

func (h *AdminHandler) handleEmailStatus(w http.ResponseWriter, r *http.Request) {
	st := h.email.Status()
	httputil.WriteJSON(w, http.StatusOK, emailStatusResponse{
		Pending:      st.Pending,
		IsProcessing: st.IsProcessing,
		AsOf:         requestcontext.Now(r.Context()).UTC(),
	})
}

type auditResponse struct {
	Entries []audit.Entry `json:"entries"`
	Count   int           `json:"count"`
}

func (h *AdminHandler) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxAuditLimit)
	}
	entries := h.audit.Recent(limit)
	httputil.WriteJSON(w, http.StatusOK, auditResponse{Entries: entries, Count: len(entries)})
}

type computeDeadlinesRequest struct {
	FormationDate string `json:"formation_date"`
	Jurisdiction  string `json:"jurisdiction"`
}

type deadlinesResponse struct {
	EntityID  string         `json:"entity_id,omitempty"`
	Deadlines []deadlineJSON  `json:"deadlines"`
}

type deadlineJSON struct {
	Type         compliance.DeadlineType `json:"type"`
	Label        string                  `json:"label"`
	DueDate      string                  `json:"due_date"`
	ReminderDate string                  `json:"reminder_date"`
	Description  string                  `json:"description"`
	Jurisdiction string                  `json:"jurisdiction,omitempty"`
}

func toDeadlinesJSON(ds []compliance.Deadline) []deadlineJSON {
	out := make([]deadlineJSON, 0, len(ds))
	for _, d := range ds {
		out = append(out, deadlineJSON{
			Type:         d.Type,
			Label:        d.Type.Label(),
			DueDate:      d.DueDate.Format(compliance.DateLayout),
			ReminderDate: d.ReminderDate.Format(compliance.DateLayout),
			Description:  d.Description,
			Jurisdiction: string(d.Jurisdiction),
		})
	}
	return out
}

// handleComputeDeadlines previews deadlines without persisting anything.
func (h *AdminHandler) handleComputeDeadlines(w http.ResponseWriter, r *http.Request) {
	var req computeDeadlinesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	formed, err := parseDate(req.FormationDate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if compliance.NormalizeJurisdiction(req.Jurisdiction) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "jurisdiction is required"))
		return
	}
	ds := compliance.ComputeDeadlines(formed, req.Jurisdiction)
	httputil.WriteJSON(w, http.StatusOK, deadlinesResponse{Deadlines: toDeadlinesJSON(ds)})
}

type upsertEntityRequest struct {
	Name          string `json:"name"`
	OwnerEmail    string `json:"owner_email"`
	OwnerName     string `json:"owner_name"`
	Jurisdiction  string `json:"jurisdiction"`
	FormationDate string `json:"formation_date"`
}

// handleUpsertEntity stores an entity and recomputes its deadlines.
func (h *AdminHandler) handleUpsertEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req upsertEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	formed, err := parseDate(req.FormationDate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ds, err := h.compliance.Recompute(ctx, compliance.Entity{
		ID:            id,
		Name:          req.Name,
		OwnerEmail:    req.OwnerEmail,
		OwnerName:     req.OwnerName,
		Jurisdiction:  compliance.Jurisdiction(req.Jurisdiction),
		FormationDate: formed,
	})
	if err != nil {
		h.logError(ctx, "recompute deadlines failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, deadlinesResponse{EntityID: id.String(), Deadlines: toDeadlinesJSON(ds)})
}

func (h *AdminHandler) handleEntityDeadlines(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ds, err := h.compliance.Deadlines(ctx, id)
	if err != nil {
		h.logError(ctx, "list deadlines failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, deadlinesResponse{EntityID: id.String(), Deadlines: toDeadlinesJSON(ds)})
}

type notificationsResponse struct {
	Notifications []reminder.Notification `json:"notifications"`
}

func (h *AdminHandler) handleEntityNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ns, err := h.notifications.ListByEntity(ctx, id)
	if err != nil {
		h.logError(ctx, "list notifications failed", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "list notifications"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, notificationsResponse{Notifications: ns})
}

// handleRunReminders triggers a scan outside the hourly schedule. A partial
// failure still returns the report.
func (h *AdminHandler) handleRunReminders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auditLog != nil {
		h.auditLog.Append(ctx, audit.Entry{
			Action:  audit.ActionReminderRunTrigger,
			ActorID: requestcontext.ActorID(ctx),
		})
	}
	report, err := h.reminders.RunOnce(ctx)
	if err != nil {
		h.logError(ctx, "manual reminder run incomplete", err)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, report)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *AdminHandler) handleResetRateLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category, err := ratelimitmodels.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.ratelimit.Reset(ctx, category, chi.URLParam(r, "identifier")); err != nil {
		h.logError(ctx, "rate limit reset failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) logError(ctx context.Context, msg string, err error) {
	level := slog.LevelError
	if code := dErrors.CodeOf(err); code == dErrors.CodeInvalidInput || code == dErrors.CodeNotFound || code == dErrors.CodeBadRequest {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", requestcontext.ActorID(ctx),
	)
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "formation_date is required")
	}
	t, err := time.Parse(compliance.DateLayout, raw)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "formation_date must be YYYY-MM-DD")
	}
	return t, nil
}
