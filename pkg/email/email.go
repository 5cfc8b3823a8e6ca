// Package email holds address helpers shared by the queue and the reminder
// templates.
package email

import (
	"errors"
	"net/mail"
	"strings"
	"unicode"
)

var ErrInvalidAddress = errors.New("invalid email address")

// NormalizeAddress parses a single RFC 5322 address and returns the bare,
// lower-cased addr-spec.
func NormalizeAddress(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidAddress
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", errors.Join(ErrInvalidAddress, err)
	}
	return strings.ToLower(addr.Address), nil
}

// GreetingName picks the name used in "Hello <name>". An explicit owner
// name wins; otherwise the first token of the mailbox local part is used.
func GreetingName(ownerName, address string) string {
	if n := strings.TrimSpace(ownerName); n != "" {
		return n
	}
	if strings.TrimSpace(address) == "" {
		return "there"
	}
	first, _ := DeriveNameFromEmail(address)
	return first
}

func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "User", "User"
	}

	first := capitalize(parts[0])
	last := "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
