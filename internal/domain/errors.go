package domain

import "errors"

// Token errors
var (
	ErrTokenNotFound       = errors.New("email token not found")
	ErrTokenExpired        = errors.New("email token expired")
	ErrTokenWrongType      = errors.New("email token has wrong type")
	ErrTokenPayloadMissing = errors.New("email token is missing registration data")
	ErrUnknownTokenKind    = errors.New("unknown email token kind")
	ErrInvalidTicket       = errors.New("invalid login ticket")
)

// Account errors
var (
	ErrAccountExists       = errors.New("account already exists")
	ErrAccountNotFound     = errors.New("account not found")
	ErrUpstreamUnavailable = errors.New("account service unavailable")
)

// Validation errors
var (
	ErrInvalidEmail          = errors.New("invalid email address")
	ErrWeakPassword          = errors.New("password does not meet requirements")
	ErrInvalidClassification = errors.New("unknown receipt classification")
)
