package repository

import (
	"strings"
	"time"

	"github.com/tendant/bewirtungsbeleg/internal/domain"
)

const (
	tokenKeyPrefix      = "email_token:"
	emailIndexKeyPrefix = "email_token_by_email:"
)

// expiresAt anchors a store TTL on the token's creation time. Tokens without
// one count from now.
func expiresAt(token *domain.EmailToken, ttl time.Duration, now func() time.Time) time.Time {
	if token.CreatedAt.IsZero() {
		return now().UTC().Add(ttl)
	}
	return token.CreatedAt.UTC().Add(ttl)
}

func tokenKey(hash string) string {
	return tokenKeyPrefix + hash
}

func emailIndexKey(email string, kind domain.TokenKind) string {
	return emailIndexKeyPrefix + string(kind) + ":" + strings.ToLower(email)
}
