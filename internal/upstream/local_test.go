package upstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/bewirtungsbeleg/internal/domain"
)

func TestLocalDirectoryLifecycle(t *testing.T) {
	ctx := context.Background()
	d := NewLocalDirectory()

	ex, err := d.EmailExists(ctx, "Anna@Example.com")
	require.NoError(t, err)
	assert.Equal(t, NotExists, ex)

	user, err := d.Register(ctx, RegisterRequest{Email: "Anna@Example.com", Password: "geheim123", FirstName: "Anna"})
	require.NoError(t, err)
	assert.Equal(t, "anna@example.com", user.Email)
	assert.NotEmpty(t, user.ID)

	ex, _ = d.EmailExists(ctx, "anna@example.com")
	assert.Equal(t, Exists, ex)

	_, err = d.Register(ctx, RegisterRequest{Email: "anna@example.com", Password: "anders123"})
	assert.ErrorIs(t, err, domain.ErrAccountExists)

	_, ok := d.Authenticate(ctx, "anna@example.com", "geheim123")
	assert.True(t, ok)

	require.NoError(t, d.ResetPassword(ctx, "anna@example.com", "neuesPasswort1"))
	_, ok = d.Authenticate(ctx, "anna@example.com", "geheim123")
	assert.False(t, ok)
	_, ok = d.Authenticate(ctx, "anna@example.com", "neuesPasswort1")
	assert.True(t, ok)
}

func TestLocalDirectoryResetUnknown(t *testing.T) {
	err := NewLocalDirectory().ResetPassword(context.Background(), "ghost@example.com", "neuesPasswort1")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Equal(t, 404, StatusCode(err))
}
