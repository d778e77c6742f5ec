// Package upstream talks to the account service that owns user credentials.
package upstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendant/bewirtungsbeleg/internal/domain"
)

// Existence is the outcome of asking the account service whether an email is
// already registered.
type Existence int

const (
	// CheckFailed means the account service could not answer. Callers decide
	// whether to fail open or closed.
	CheckFailed Existence = iota
	NotExists
	Exists
)

func (e Existence) String() string {
	switch e {
	case Exists:
		return "exists"
	case NotExists:
		return "not_exists"
	default:
		return "check_failed"
	}
}

// RegisterRequest carries the data for creating an account.
type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// User is an account as returned by the account service.
type User struct {
	ID        string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role,omitempty"`
}

// Directory is the account service contract used by the auth flows.
type Directory interface {
	EmailExists(ctx context.Context, email string) (Existence, error)
	Register(ctx context.Context, req RegisterRequest) (*User, error)
	ResetPassword(ctx context.Context, email, password string) error
}

// Error is a failure reported by the account service.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("account service: %s (%d %s)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("account service: %s (%d)", e.Message, e.StatusCode)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status to surface for err: the account service
// status for upstream errors in the 4xx/5xx range, 500 otherwise.
func StatusCode(err error) int {
	var upErr *Error
	if errors.As(err, &upErr) && upErr.StatusCode >= 400 && upErr.StatusCode < 600 {
		return upErr.StatusCode
	}
	return 500
}

func accountExistsError() *Error {
	return &Error{
		StatusCode: 409,
		Code:       "USER_EXISTS",
		Message:    "Ein Benutzer mit dieser E-Mail-Adresse existiert bereits",
		Err:        domain.ErrAccountExists,
	}
}
