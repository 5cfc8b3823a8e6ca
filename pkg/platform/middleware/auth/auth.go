// Package auth guards admin routes with a bearer token.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "corpdesk/pkg/domain-errors"
	"corpdesk/pkg/platform/httputil"
	"corpdesk/pkg/requestcontext"
)

// TokenValidator returns the operator subject of a valid admin token.
type TokenValidator interface {
	ValidateAdminToken(token string) (string, error)
}

// DenialRecorder is notified of every rejected request.
type DenialRecorder func(ctx context.Context, reason string)

// RequireAdmin rejects requests without a valid admin bearer token and puts
// the token subject on the context as the actor ID.
func RequireAdmin(validator TokenValidator, logger *slog.Logger, onDeny DenialRecorder) func(http.Handler) http.Handler {
	deny := func(w http.ResponseWriter, r *http.Request, err error, reason string) {
		ctx := r.Context()
		logger.WarnContext(ctx, "admin access denied",
			"reason", reason,
			"request_id", requestcontext.RequestID(ctx),
			"client_ip", requestcontext.ClientIP(ctx),
		)
		if onDeny != nil {
			onDeny(ctx, reason)
		}
		httputil.WriteError(w, err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				deny(w, r, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"), "missing_token")
				return
			}

			subject, err := validator.ValidateAdminToken(strings.TrimSpace(token))
			if err != nil {
				deny(w, r, err, string(dErrors.CodeOf(err)))
				return
			}

			ctx := requestcontext.WithActorID(r.Context(), subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
