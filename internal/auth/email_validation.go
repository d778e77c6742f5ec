package auth

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/tendant/bewirtungsbeleg/internal/domain"
)

// Stricter than RFC 5322: the domain must contain at least one dot.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const maxEmailLength = 254 // RFC 5321

// ValidateEmail validates an email address for format and length.
// It returns domain.ErrInvalidEmail for every rejection.
func ValidateEmail(email string) error {
	normalized := NormalizeEmail(email)
	if normalized == "" || len(normalized) > maxEmailLength {
		return domain.ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return domain.ErrInvalidEmail
	}

	if !emailRegex.MatchString(addr.Address) {
		return domain.ErrInvalidEmail
	}

	return nil
}

// NormalizeEmail normalizes an email address by lowercasing and trimming.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
