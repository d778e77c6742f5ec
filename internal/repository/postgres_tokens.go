package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tendant/bewirtungsbeleg/internal/domain"
)

const tokenColumns = `id, hash, email, kind, created_at, first_name, last_name`

// PostgresTokenStore persists email tokens in the email_tokens table.
// Rows carry email and kind, so the per-email index is the table itself.
type PostgresTokenStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresTokenStore creates a new Postgres-backed token store.
func NewPostgresTokenStore(db *sql.DB) *PostgresTokenStore {
	return &PostgresTokenStore{db: db, now: time.Now}
}

// Get retrieves an unexpired token by hash.
func (s *PostgresTokenStore) Get(ctx context.Context, hash string) (*domain.EmailToken, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM email_tokens
		WHERE hash = $1 AND expires_at >= $2
	`
	return scanToken(s.db.QueryRowContext(ctx, query, hash, s.now().UTC()))
}

// Set stores a token that is kept until ttl has elapsed since its creation.
func (s *PostgresTokenStore) Set(ctx context.Context, token *domain.EmailToken, ttl time.Duration) error {
	query := `
		INSERT INTO email_tokens (id, hash, email, kind, created_at, expires_at, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		token.ID, token.Hash, token.Email, token.Kind, token.CreatedAt,
		expiresAt(token, ttl, s.now), nullString(token.FirstName), nullString(token.LastName),
	)
	return err
}

// Delete removes a token and reports whether it existed.
func (s *PostgresTokenStore) Delete(ctx context.Context, hash string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM email_tokens WHERE hash = $1`, hash)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// Take deletes and returns an unexpired token in a single statement.
func (s *PostgresTokenStore) Take(ctx context.Context, hash string) (*domain.EmailToken, error) {
	query := `
		DELETE FROM email_tokens
		WHERE hash = $1 AND expires_at >= $2
		RETURNING ` + tokenColumns
	return scanToken(s.db.QueryRowContext(ctx, query, hash, s.now().UTC()))
}

// SetByEmail is a no-op: every row is already addressable by email and kind.
func (s *PostgresTokenStore) SetByEmail(_ context.Context, _ string, _ domain.TokenKind, _ string, _ time.Duration) error {
	return nil
}

// DeleteByEmail removes every token of kind issued for email.
func (s *PostgresTokenStore) DeleteByEmail(ctx context.Context, email string, kind domain.TokenKind) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM email_tokens WHERE email = $1 AND kind = $2`, email, kind)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// PurgeExpired removes tokens past their expiry and returns how many.
func (s *PostgresTokenStore) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM email_tokens WHERE expires_at < $1`, s.now().UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanToken(row *sql.Row) (*domain.EmailToken, error) {
	token := &domain.EmailToken{}
	var firstName, lastName sql.NullString
	err := row.Scan(
		&token.ID, &token.Hash, &token.Email, &token.Kind, &token.CreatedAt,
		&firstName, &lastName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	token.FirstName = firstName.String
	token.LastName = lastName.String
	return token, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
