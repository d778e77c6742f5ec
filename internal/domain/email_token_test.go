package domain

import (
	"testing"
	"time"
)

func TestTokenKindValid(t *testing.T) {
	for _, k := range []TokenKind{TokenKindEmailVerify, TokenKindPasswordReset, TokenKindMagicLink} {
		if !k.Valid() {
			t.Errorf("%q should be valid", k)
		}
	}
	if TokenKind("session").Valid() {
		t.Error("unknown kind should be invalid")
	}
}

func TestExpiryFor(t *testing.T) {
	tests := []struct {
		kind TokenKind
		want time.Duration
	}{
		{TokenKindEmailVerify, 24 * time.Hour},
		{TokenKindPasswordReset, 30 * time.Minute},
		{TokenKindMagicLink, 60 * time.Minute},
	}
	for _, tt := range tests {
		if got := ExpiryFor(tt.kind); got != tt.want {
			t.Errorf("ExpiryFor(%q) = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestRetentionFor(t *testing.T) {
	for _, k := range []TokenKind{TokenKindEmailVerify, TokenKindPasswordReset, TokenKindMagicLink} {
		if got, want := RetentionFor(k), ExpiryFor(k)+ExpiredRetention; got != want {
			t.Errorf("RetentionFor(%q) = %s, want %s", k, got, want)
		}
		if RetentionFor(k) <= ExpiryFor(k) {
			t.Errorf("RetentionFor(%q) must outlive the validity window", k)
		}
	}
}

func TestEmailTokenCheck(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	token := &EmailToken{Kind: TokenKindPasswordReset, CreatedAt: created}

	tests := []struct {
		name     string
		expected TokenKind
		now      time.Time
		wantErr  error
	}{
		{"fresh", TokenKindPasswordReset, created.Add(time.Minute), nil},
		{"exactly at expiry", TokenKindPasswordReset, created.Add(30 * time.Minute), nil},
		{"one nanosecond past expiry", TokenKindPasswordReset, created.Add(30*time.Minute + time.Nanosecond), ErrTokenExpired},
		{"31 minutes", TokenKindPasswordReset, created.Add(31 * time.Minute), ErrTokenExpired},
		{"wrong kind wins over expiry", TokenKindMagicLink, created.Add(48 * time.Hour), ErrTokenWrongType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := token.Check(tt.expected, tt.now); err != tt.wantErr {
				t.Errorf("Check() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEmailTokenRegistrationPayload(t *testing.T) {
	token := &EmailToken{Kind: TokenKindEmailVerify, FirstName: "Erika"}
	if token.HasRegistrationPayload() {
		t.Error("payload without last name should be incomplete")
	}
	token.LastName = "Mustermann"
	if !token.HasRegistrationPayload() {
		t.Error("payload should be complete")
	}
	if got := token.ExpiresAt().Sub(token.CreatedAt); got != 24*time.Hour {
		t.Errorf("ExpiresAt offset = %s", got)
	}
}
