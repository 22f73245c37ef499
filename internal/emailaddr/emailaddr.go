// Package emailaddr validates and normalizes email addresses. Normalized
// addresses are the identity the broker asserts, the rate-limit key, and the
// value compared against provider claims, so every component must agree on
// one canonical form.
package emailaddr

import (
	"fmt"
	"net/mail"
	"strings"
)

// Address is a validated, normalized email address. It is never mutated
// after construction and is safe to share across goroutines.
type Address string

// Parse validates raw as an email address and returns its normalized form.
// Normalization lowercases the whole address; display names and addresses
// without a domain are rejected.
func Parse(raw string) (Address, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))

	parsed, err := mail.ParseAddress(normalized)
	if err != nil {
		return "", fmt.Errorf("invalid email address: %w", err)
	}
	// mail.ParseAddress accepts "Name <addr>" forms; only a bare address is
	// a valid login_hint.
	if parsed.Address != normalized {
		return "", fmt.Errorf("invalid email address: unexpected display name")
	}

	at := strings.LastIndex(normalized, "@")
	if at <= 0 || at == len(normalized)-1 {
		return "", fmt.Errorf("invalid email address: missing local part or domain")
	}

	return Address(normalized), nil
}

func (a Address) String() string {
	return string(a)
}

// Domain returns the part after the last "@", used for provider discovery.
func (a Address) Domain() string {
	at := strings.LastIndex(string(a), "@")
	if at < 0 {
		return ""
	}
	return string(a)[at+1:]
}

// LocalPart returns the part before the last "@".
func (a Address) LocalPart() string {
	at := strings.LastIndex(string(a), "@")
	if at < 0 {
		return string(a)
	}
	return string(a)[:at]
}
