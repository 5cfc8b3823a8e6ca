package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"corpdesk/internal/platform/logger"
	dErrors "corpdesk/pkg/domain-errors"
	"corpdesk/pkg/requestcontext"
	"corpdesk/pkg/testutil"
)

type stubValidator map[string]string

func (s stubValidator) ValidateAdminToken(token string) (string, error) {
	if subject, ok := s[token]; ok {
		return subject, nil
	}
	if token == "viewer" {
		return "", dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
}

func TestRequireAdmin(t *testing.T) {
	var denials []string
	var actor string
	h := RequireAdmin(stubValidator{"good": "ops@corpdesk"}, logger.Discard(), func(_ context.Context, reason string) {
		denials = append(denials, reason)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = requestcontext.ActorID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer good", http.StatusNoContent},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"invalid token", "Bearer nope", http.StatusUnauthorized},
		{"non-admin role", "Bearer viewer", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/audit", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			testutil.AssertStatus(t, rr, tc.status)
		})
	}

	assert.Equal(t, "ops@corpdesk", actor)
	assert.Equal(t, []string{"missing_token", "missing_token", "unauthorized", "forbidden"}, denials)
}
