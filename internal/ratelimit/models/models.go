package models

import (
	"strings"
	"time"

	dErrors "corpdesk/pkg/domain-errors"
)

// Category groups sensitive operations that share a throttling policy.
type Category string

const (
	CategoryLogin         Category = "login"
	CategoryOTP           Category = "otp"
	CategoryRegistration  Category = "registration"
	CategoryPasswordReset Category = "password_reset"
	CategoryContact       Category = "contact"
	CategoryGeneral       Category = "general"
)

// ParseCategory normalises a category name. Unknown names are returned as-is
// so the limiter can apply its fallback policy instead of rejecting them.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "category cannot be empty")
	}
	return Category(strings.ReplaceAll(s, "-", "_")), nil
}

func (c Category) String() string {
	return string(c)
}

// Policy is a sliding window: at most MaxRequests admissions in any trailing
// Window.
type Policy struct {
	Window      time.Duration `json:"window"`
	MaxRequests int           `json:"max_requests"`
}

// Valid reports whether the policy can admit anything at all.
func (p Policy) Valid() bool {
	return p.Window > 0 && p.MaxRequests > 0
}

// Rate is admissions per second, used to rank policies by strictness.
func (p Policy) Rate() float64 {
	return float64(p.MaxRequests) / p.Window.Seconds()
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
	Degraded   bool      `json:"-"`                     // served by the fallback store
}
