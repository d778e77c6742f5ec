package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/bewirtungsbeleg/internal/domain"
)

// TokenStore persists email tokens. Implementations must make Take atomic:
// of any number of concurrent Take calls for one hash at most one returns
// the record, the others observe domain.ErrTokenNotFound.
type TokenStore interface {
	Get(ctx context.Context, hash string) (*domain.EmailToken, error)
	Set(ctx context.Context, token *domain.EmailToken, ttl time.Duration) error
	Delete(ctx context.Context, hash string) (bool, error)
	Take(ctx context.Context, hash string) (*domain.EmailToken, error)
	SetByEmail(ctx context.Context, email string, kind domain.TokenKind, hash string, ttl time.Duration) error
	DeleteByEmail(ctx context.Context, email string, kind domain.TokenKind) (int, error)
}

// TokenService issues, looks up and consumes single-use email tokens.
type TokenService struct {
	store  TokenStore
	logger *slog.Logger
	now    func() time.Time
}

// TokenServiceOption configures a TokenService.
type TokenServiceOption func(*TokenService)

// WithClock overrides the clock used for issuing and validation.
func WithClock(now func() time.Time) TokenServiceOption {
	return func(s *TokenService) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) TokenServiceOption {
	return func(s *TokenService) { s.logger = logger }
}

// NewTokenService creates a new token service backed by store.
func NewTokenService(store TokenStore, opts ...TokenServiceOption) *TokenService {
	s := &TokenService{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates and stores a new token for email. The returned record is the
// only one carrying the raw token value.
//
// Issuing twice for the same email and kind yields two independent tokens;
// the email index points at the latest one and both stay redeemable until
// InvalidateAllForEmail runs.
func (s *TokenService) Issue(
	ctx context.Context,
	email string,
	kind domain.TokenKind,
	payload *domain.RegistrationPayload,
) (*domain.EmailToken, error) {
	if !kind.Valid() {
		return nil, domain.ErrUnknownTokenKind
	}

	raw, err := GenerateToken(TokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	token := &domain.EmailToken{
		ID:        uuid.New(),
		Value:     raw,
		Hash:      HashToken(raw),
		Email:     NormalizeEmail(email),
		Kind:      kind,
		CreatedAt: s.now().UTC(),
	}
	if payload != nil {
		token.FirstName = payload.FirstName
		token.LastName = payload.LastName
	}

	ttl := domain.RetentionFor(kind)
	if err := s.store.Set(ctx, token, ttl); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	if err := s.store.SetByEmail(ctx, token.Email, kind, token.Hash, ttl); err != nil {
		return nil, fmt.Errorf("failed to index token by email: %w", err)
	}

	s.logger.Debug("email token issued", "token_id", token.ID, "kind", kind)
	return token, nil
}

// Lookup returns the stored token without consuming it.
func (s *TokenService) Lookup(ctx context.Context, raw string) (*domain.EmailToken, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, domain.ErrTokenNotFound
	}
	token, err := s.store.Get(ctx, HashToken(raw))
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	return token, nil
}

// Consume atomically looks up and deletes the token. A second call for the
// same token returns domain.ErrTokenNotFound.
func (s *TokenService) Consume(ctx context.Context, raw string) (*domain.EmailToken, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, domain.ErrTokenNotFound
	}
	token, err := s.store.Take(ctx, HashToken(raw))
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to consume token: %w", err)
	}
	s.logger.Debug("email token consumed", "token_id", token.ID, "kind", token.Kind)
	return token, nil
}

// InvalidateAllForEmail removes the email index and every token issued for
// email and kind that has not been used yet.
func (s *TokenService) InvalidateAllForEmail(ctx context.Context, email string, kind domain.TokenKind) error {
	n, err := s.store.DeleteByEmail(ctx, NormalizeEmail(email), kind)
	if err != nil {
		return fmt.Errorf("failed to invalidate tokens: %w", err)
	}
	s.logger.Debug("email tokens invalidated", "kind", kind, "count", n)
	return nil
}

// Validate checks token type and expiry against the service clock.
func (s *TokenService) Validate(token *domain.EmailToken, expected domain.TokenKind) error {
	return token.Check(expected, s.now())
}

// LookupValid looks up a token without consuming it and validates it.
func (s *TokenService) LookupValid(ctx context.Context, raw string, kind domain.TokenKind) (*domain.EmailToken, error) {
	token, err := s.Lookup(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(token, kind); err != nil {
		return token, err
	}
	return token, nil
}

// ConsumeValid consumes a token and validates it. The token is gone even
// when validation fails.
func (s *TokenService) ConsumeValid(ctx context.Context, raw string, kind domain.TokenKind) (*domain.EmailToken, error) {
	token, err := s.Consume(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(token, kind); err != nil {
		return token, err
	}
	return token, nil
}
