package upstream

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tendant/bewirtungsbeleg/internal/auth"
	"github.com/tendant/bewirtungsbeleg/internal/domain"
)

type localAccount struct {
	user         User
	passwordHash string
}

// LocalDirectory is an in-process account store for development setups
// without an account service.
type LocalDirectory struct {
	mu       sync.RWMutex
	accounts map[string]*localAccount
}

func NewLocalDirectory() *LocalDirectory {
	return &LocalDirectory{accounts: make(map[string]*localAccount)}
}

func (d *LocalDirectory) EmailExists(_ context.Context, email string) (Existence, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.accounts[localKey(email)]; ok {
		return Exists, nil
	}
	return NotExists, nil
}

func (d *LocalDirectory) Register(_ context.Context, r RegisterRequest) (*User, error) {
	hash, err := auth.HashPassword(r.Password)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := localKey(r.Email)
	if _, ok := d.accounts[key]; ok {
		return nil, accountExistsError()
	}
	acc := &localAccount{
		user: User{
			ID:        uuid.NewString(),
			Email:     key,
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Role:      "user",
		},
		passwordHash: hash,
	}
	d.accounts[key] = acc
	u := acc.user
	return &u, nil
}

func (d *LocalDirectory) ResetPassword(_ context.Context, email, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	acc, ok := d.accounts[localKey(email)]
	if !ok {
		return &Error{
			StatusCode: 404,
			Code:       "USER_NOT_FOUND",
			Message:    "Benutzer mit dieser E-Mail-Adresse nicht gefunden",
			Err:        domain.ErrAccountNotFound,
		}
	}
	acc.passwordHash = hash
	return nil
}

// Authenticate reports whether password matches the stored hash for email.
func (d *LocalDirectory) Authenticate(_ context.Context, email, password string) (*User, bool) {
	d.mu.RLock()
	acc, ok := d.accounts[localKey(email)]
	d.mu.RUnlock()
	if !ok || !auth.VerifyPassword(password, acc.passwordHash) {
		return nil, false
	}
	u := acc.user
	return &u, true
}

func localKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
