package magiclink

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/bewirtungsbeleg/internal/auth"
	"github.com/tendant/bewirtungsbeleg/internal/domain"
	"github.com/tendant/bewirtungsbeleg/internal/http/features/common"
	ft "github.com/tendant/bewirtungsbeleg/internal/http/features/featuretest"
)

const email = "anna@example.com"

type fixture struct {
	router  http.Handler
	clock   *ft.Clock
	tokens  *auth.TokenService
	tickets *auth.TicketService
	mailer  *ft.Mailer
}

func passthrough(next http.Handler) http.Handler { return next }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:   ft.NewClock(),
		mailer:  &ft.Mailer{},
		tickets: auth.NewTicketService(auth.TicketConfig{Secret: []byte("0123456789abcdef0123456789abcdef")}),
	}
	f.tokens = ft.Tokens(f.clock)
	f.router = f.route(f.tickets)
	return f
}

func (f *fixture) route(tickets Tickets) http.Handler {
	h := NewHandler(ft.Logger(), f.tokens, tickets, f.mailer, ft.BaseURL)
	r := chi.NewRouter()
	h.RegisterRoutes(r, passthrough, passthrough)
	return r
}

func (f *fixture) send(t *testing.T) string {
	t.Helper()
	return f.sendTo(t, email)
}

func (f *fixture) sendTo(t *testing.T, addr string) string {
	t.Helper()
	rec := ft.Do(f.router, http.MethodPost, "/api/auth/magic-link/send", map[string]string{"email": addr})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	raw := ft.TokenFromURL(f.mailer.Last().URL)
	require.NotEmpty(t, raw)
	return raw
}

func location(t *testing.T, rec interface{ Header() http.Header }) *url.URL {
	t.Helper()
	u, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return u
}

func TestSend(t *testing.T) {
	f := newFixture(t)

	rec := ft.Do(f.router, http.MethodPost, "/api/auth/magic-link/send", map[string]string{"email": "Anna@Example.com"})

	require.Equal(t, http.StatusOK, rec.Code)
	body := ft.Body(rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, msgLinkSent, body["message"])

	mail := f.mailer.Last()
	assert.Equal(t, "magic_link", mail.Kind)
	assert.Equal(t, email, mail.To)
	assert.True(t, strings.HasPrefix(mail.URL, ft.BaseURL+"/api/auth/magic-link/verify?token="), mail.URL)

	token, err := f.tokens.Lookup(t.Context(), ft.TokenFromURL(mail.URL))
	require.NoError(t, err)
	assert.Equal(t, domain.TokenKindMagicLink, token.Kind)
}

func TestSend_Errors(t *testing.T) {
	t.Run("invalid email", func(t *testing.T) {
		f := newFixture(t)
		rec := ft.Do(f.router, http.MethodPost, "/api/auth/magic-link/send", map[string]string{"email": "anna"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Ungültige E-Mail-Adresse", ft.Body(rec)["error"])
	})

	t.Run("mail failure", func(t *testing.T) {
		f := newFixture(t)
		f.mailer.Err = errors.New("smtp down")
		rec := ft.Do(f.router, http.MethodPost, "/api/auth/magic-link/send", map[string]string{"email": email})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, common.MsgEmailSendFailed, ft.Body(rec)["error"])
	})
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	raw := f.send(t)
	other := f.send(t)

	rec := ft.Do(f.router, http.MethodGet, "/api/auth/magic-link/verify?token="+raw, nil)

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	loc := location(t, rec)
	assert.Equal(t, "app.example.com", loc.Host)
	assert.Equal(t, callbackPath, loc.Path)
	assert.Equal(t, email, loc.Query().Get("email"))

	claims, err := f.tickets.Verify(loc.Query().Get("ticket"))
	require.NoError(t, err)
	assert.Equal(t, email, claims.Email)

	// Every magic link of the account is spent.
	for _, tok := range []string{raw, other} {
		_, err := f.tokens.Lookup(t.Context(), tok)
		assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	}
}

func TestVerify_Failures(t *testing.T) {
	f := newFixture(t)
	reset, err := f.tokens.Issue(t.Context(), email, domain.TokenKindPasswordReset, nil)
	require.NoError(t, err)

	now := f.clock.Now()
	f.clock.Set(now.Add(-61 * time.Minute))
	expired := f.sendTo(t, "spaet@example.com")
	f.clock.Set(now)

	used := f.send(t)
	require.Equal(t, http.StatusTemporaryRedirect, ft.Do(f.router, http.MethodGet, "/api/auth/magic-link/verify?token="+used, nil).Code)

	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"missing token", "", ErrMissingToken},
		{"unknown token", "?token=unbekannt", ErrTokenAlreadyUsed},
		{"used token", "?token=" + used, ErrTokenAlreadyUsed},
		{"wrong kind", "?token=" + reset.Value, ErrInvalidToken},
		{"expired", "?token=" + expired, ErrTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ft.Do(f.router, http.MethodGet, "/api/auth/magic-link/verify"+tt.query, nil)
			require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
			loc := location(t, rec)
			assert.Equal(t, signInPath, loc.Path)
			assert.Equal(t, tt.code, loc.Query().Get("error"))
		})
	}
}

func TestVerify_ExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.clock.Set(now.Add(-60 * time.Minute))
	raw := f.send(t)
	f.clock.Set(now)

	rec := ft.Do(f.router, http.MethodGet, "/api/auth/magic-link/verify?token="+raw, nil)

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, callbackPath, location(t, rec).Path)
}

type failingTickets struct{}

func (failingTickets) Issue(string, uuid.UUID) (string, error) {
	return "", errors.New("signing failed")
}

func TestVerify_TicketFailure(t *testing.T) {
	f := newFixture(t)
	raw := f.send(t)

	rec := ft.Do(f.route(failingTickets{}), http.MethodGet, "/api/auth/magic-link/verify?token="+raw, nil)

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, ErrVerificationFailed, location(t, rec).Query().Get("error"))
}

func TestVerify_ConcurrentRedeemSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	raw := f.send(t)

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := ft.Do(f.router, http.MethodGet, "/api/auth/magic-link/verify?token="+raw, nil)
			if strings.Contains(rec.Header().Get("Location"), callbackPath) {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}
