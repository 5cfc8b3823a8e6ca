// Package middleware throttles HTTP routes through the limiter service.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"corpdesk/internal/platform/logger"
	"corpdesk/internal/ratelimit/models"
	dErrors "corpdesk/pkg/domain-errors"
	"corpdesk/pkg/platform/httputil"
	"corpdesk/pkg/requestcontext"
)

type RateLimiter interface {
	Check(ctx context.Context, category models.Category, identifier string) *models.RateLimitResult
}

// IdentifierFunc picks the throttled identity for a request.
type IdentifierFunc func(r *http.Request) string

// ByClientIP reads the address stored by the metadata middleware.
func ByClientIP(r *http.Request) string {
	return requestcontext.ClientIP(r.Context())
}

// ByFormValue throttles by a submitted field, such as the address on a
// contact form, and falls back to the client IP when the field is blank.
func ByFormValue(field string) IdentifierFunc {
	return func(r *http.Request) string {
		if v := strings.TrimSpace(r.FormValue(field)); v != "" {
			return strings.ToLower(v)
		}
		return ByClientIP(r)
	}
}

type Middleware struct {
	limiter RateLimiter
	logger  *slog.Logger
}

func New(limiter RateLimiter, lg *slog.Logger) *Middleware {
	if lg == nil {
		lg = logger.Discard()
	}
	return &Middleware{limiter: limiter, logger: lg}
}

// RateLimit admits requests for category. Every response carries the
// X-RateLimit headers; denials get 429 with Retry-After.
func (m *Middleware) RateLimit(category models.Category, identify IdentifierFunc) func(http.Handler) http.Handler {
	if identify == nil {
		identify = ByClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := identify(r)
			if identifier == "" {
				identifier = "unknown"
			}

			result := m.limiter.Check(r.Context(), category, identifier)
			setHeaders(w, result)
			if result.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			m.logger.DebugContext(r.Context(), "request throttled",
				"category", string(category),
				"retry_after", result.RetryAfter,
				"request_id", requestcontext.RequestID(r.Context()),
			)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, throttledResponse{
				Error:            string(dErrors.CodeRateLimited),
				ErrorDescription: "too many requests, retry later",
				RetryAfter:       result.RetryAfter,
			})
		})
	}
}

type throttledResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	RetryAfter       int    `json:"retry_after"`
}

func setHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if result.Degraded {
		h.Set("X-RateLimit-Status", "degraded")
	}
}
