package models

import "strings"

// KeyPrefix namespaces all rate limit keys in shared stores.
const KeyPrefix = "rl"

// keySegmentEscaper percent-escapes the key delimiter. '%' is escaped first
// so the mapping is reversible and distinct identifiers never share a bucket.
var keySegmentEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// SanitizeKeySegment escapes delimiter characters in rate limit key segments
// so a user-controlled identifier such as "user:admin" cannot address an
// adjacent bucket.
func SanitizeKeySegment(s string) string {
	return keySegmentEscaper.Replace(s)
}

// NewRateLimitKey builds the store key for (category, identifier).
func NewRateLimitKey(category Category, identifier string) string {
	return KeyPrefix + ":" + SanitizeKeySegment(string(category)) + ":" + SanitizeKeySegment(identifier)
}
