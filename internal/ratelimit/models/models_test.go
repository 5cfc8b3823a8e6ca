package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "corpdesk/pkg/domain-errors"
)

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Password-Reset ")
	require.NoError(t, err)
	assert.Equal(t, CategoryPasswordReset, c)

	c, err = ParseCategory("newsletter")
	require.NoError(t, err)
	assert.Equal(t, Category("newsletter"), c)

	_, err = ParseCategory("  ")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestPolicyRate(t *testing.T) {
	login := Policy{Window: 15 * time.Minute, MaxRequests: 5}
	general := Policy{Window: time.Minute, MaxRequests: 100}
	assert.Less(t, login.Rate(), general.Rate())
	assert.False(t, Policy{}.Valid())
}

func TestNewRateLimitKey_SanitizesSegments(t *testing.T) {
	assert.Equal(t, "rl:login:alice@example.com", NewRateLimitKey(CategoryLogin, "alice@example.com"))
	assert.Equal(t, "rl:login:user%3Aadmin", NewRateLimitKey(CategoryLogin, "user:admin"))
}

func TestSanitizeKeySegment_Injective(t *testing.T) {
	identifiers := []string{
		"a:b", "a_b", "a%3Ab", "a%253Ab", "a%b", "a%25b", "a::b", "a%3A%3Ab", "", ":", "%",
	}
	seen := make(map[string]string, len(identifiers))
	for _, id := range identifiers {
		key := NewRateLimitKey(CategoryContact, id)
		prev, dup := seen[key]
		assert.False(t, dup, "%q and %q share bucket %q", prev, id, key)
		seen[key] = id
		assert.Equal(t, 2, strings.Count(key, ":"), "escaped identifier %q adds no delimiter", id)
	}
}
