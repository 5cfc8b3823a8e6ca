// Package requesttime pins a single "now" per request so audit timestamps
// and deadline arithmetic within one request agree.
package requesttime

import (
	"net/http"
	"time"

	"corpdesk/pkg/requestcontext"
)

// Middleware stores now() on the request context. A nil now uses time.Now.
func Middleware(now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), now())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
