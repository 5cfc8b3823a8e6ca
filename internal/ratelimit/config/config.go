// Package config holds per-category sliding window policies.
package config

import (
	"time"

	"corpdesk/internal/ratelimit/models"
)

// DefaultRetryAfter is the retry hint when no policy can be resolved at all.
const DefaultRetryAfter = 60

// Config maps categories to policies.
type Config struct {
	Policies map[models.Category]models.Policy
}

// DefaultConfig returns the production policy table.
func DefaultConfig() *Config {
	return &Config{
		Policies: map[models.Category]models.Policy{
			models.CategoryLogin:         {Window: 15 * time.Minute, MaxRequests: 5},
			models.CategoryOTP:           {Window: 5 * time.Minute, MaxRequests: 3},
			models.CategoryRegistration:  {Window: 60 * time.Minute, MaxRequests: 3},
			models.CategoryPasswordReset: {Window: 10 * time.Minute, MaxRequests: 3},
			models.CategoryContact:       {Window: 5 * time.Minute, MaxRequests: 5},
			models.CategoryGeneral:       {Window: time.Minute, MaxRequests: 100},
		},
	}
}

// Policy returns the configured policy for a category. Invalid entries are
// treated as missing.
func (c *Config) Policy(category models.Category) (models.Policy, bool) {
	p, ok := c.Policies[category]
	if !ok || !p.Valid() {
		return models.Policy{}, false
	}
	return p, true
}

// Fallback returns the most restrictive valid policy, i.e. the one with the
// lowest admissions per second. Ties keep the longer window. ok is false
// when no valid policy exists.
func (c *Config) Fallback() (models.Policy, bool) {
	var (
		best  models.Policy
		found bool
	)
	for _, p := range c.Policies {
		if !p.Valid() {
			continue
		}
		if !found || p.Rate() < best.Rate() || (p.Rate() == best.Rate() && p.Window > best.Window) {
			best, found = p, true
		}
	}
	return best, found
}
