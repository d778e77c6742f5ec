package domain

import (
	"time"

	"github.com/google/uuid"
)

// TokenKind identifies what an email token may be used for.
type TokenKind string

const (
	TokenKindEmailVerify   TokenKind = "email_verify"
	TokenKindPasswordReset TokenKind = "password_reset"
	TokenKindMagicLink     TokenKind = "magic_link"
)

// Expiry windows per token kind.
const (
	EmailVerifyExpiry   = 24 * time.Hour
	PasswordResetExpiry = 30 * time.Minute
	MagicLinkExpiry     = 60 * time.Minute
)

// ExpiredRetention is how long stores keep a token past its expiry window.
// Within it lookups report ErrTokenExpired; afterwards the token is gone and
// lookups report ErrTokenNotFound.
const ExpiredRetention = 24 * time.Hour

// Valid reports whether k is one of the known token kinds.
func (k TokenKind) Valid() bool {
	switch k {
	case TokenKindEmailVerify, TokenKindPasswordReset, TokenKindMagicLink:
		return true
	}
	return false
}

// ExpiryFor returns the expiry window for a token kind.
// Unknown kinds fall back to the password reset window.
func ExpiryFor(kind TokenKind) time.Duration {
	switch kind {
	case TokenKindEmailVerify:
		return EmailVerifyExpiry
	case TokenKindMagicLink:
		return MagicLinkExpiry
	default:
		return PasswordResetExpiry
	}
}

// RetentionFor returns how long after creation a store keeps a token of kind.
func RetentionFor(kind TokenKind) time.Duration {
	return ExpiryFor(kind) + ExpiredRetention
}

// EmailToken is a single-use credential grant sent by email.
//
// Value holds the raw token and is only populated on the record returned by
// issuing; stores key records by Hash and never persist Value.
type EmailToken struct {
	ID        uuid.UUID `json:"id"`
	Value     string    `json:"-"`
	Hash      string    `json:"hash"`
	Email     string    `json:"email"`
	Kind      TokenKind `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
}

// RegistrationPayload carries the user data needed to create the account
// once an email_verify token is redeemed.
type RegistrationPayload struct {
	FirstName string
	LastName  string
}

// HasRegistrationPayload reports whether both name fields are present.
func (t *EmailToken) HasRegistrationPayload() bool {
	return t.FirstName != "" && t.LastName != ""
}

// ExpiresAt returns the instant after which the token is expired.
func (t *EmailToken) ExpiresAt() time.Time {
	return t.CreatedAt.Add(ExpiryFor(t.Kind))
}

// Check validates the token against the expected kind at the given instant.
// A token aged exactly its expiry window is still valid.
func (t *EmailToken) Check(expected TokenKind, now time.Time) error {
	if t.Kind != expected {
		return ErrTokenWrongType
	}
	if now.Sub(t.CreatedAt) > ExpiryFor(expected) {
		return ErrTokenExpired
	}
	return nil
}
