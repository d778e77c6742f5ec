package auth

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

// DefaultPasswordMinLength matches the account service's own minimum.
const DefaultPasswordMinLength = 8

// PasswordPolicy defines password complexity requirements. Messages are
// German because they are shown to end users verbatim.
type PasswordPolicy struct {
	MinLength     int
	RequireLetter bool
	RequireNumber bool
}

// NewPasswordPolicy creates a policy; a non-positive minLength falls back to
// DefaultPasswordMinLength.
func NewPasswordPolicy(minLength int) *PasswordPolicy {
	if minLength <= 0 {
		minLength = DefaultPasswordMinLength
	}
	return &PasswordPolicy{MinLength: minLength}
}

// ValidatePassword checks if a password meets the policy requirements.
func (p *PasswordPolicy) ValidatePassword(password string) error {
	if p.MinLength > 0 && utf8.RuneCountInString(password) < p.MinLength {
		return fmt.Errorf("Passwort muss mindestens %d Zeichen lang sein", p.MinLength)
	}

	if p.RequireLetter && !containsLetter(password) {
		return errors.New("Passwort muss mindestens einen Buchstaben enthalten")
	}

	if p.RequireNumber && !containsNumber(password) {
		return errors.New("Passwort muss mindestens eine Ziffer enthalten")
	}

	return nil
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func containsNumber(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
