// Package featuretest provides fakes shared by the feature handler tests.
package featuretest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"github.com/tendant/bewirtungsbeleg/internal/auth"
	"github.com/tendant/bewirtungsbeleg/internal/repository"
	"github.com/tendant/bewirtungsbeleg/internal/upstream"
)

const BaseURL = "https://app.example.com"

// Logger discards output.
func Logger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Tokens returns a token service on a fresh memory store. Service and store
// share clock.
func Tokens(clock *Clock) *auth.TokenService {
	return auth.NewTokenService(
		repository.NewMemoryTokenStore().WithClock(clock.Now),
		auth.WithClock(clock.Now),
		auth.WithLogger(Logger()),
	)
}

// Mail is one message recorded by Mailer.
type Mail struct {
	Kind string
	To   string
	Name string
	URL  string
}

// Mailer records every mail and fails when Err is set.
type Mailer struct {
	mu    sync.Mutex
	Err   error
	Mails []Mail
}

func (m *Mailer) record(mail Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Mails = append(m.Mails, mail)
	return nil
}

func (m *Mailer) SendVerification(_ context.Context, to, name, link string) error {
	return m.record(Mail{Kind: "verification", To: to, Name: name, URL: link})
}

func (m *Mailer) SendPasswordReset(_ context.Context, to, link string) error {
	return m.record(Mail{Kind: "password_reset", To: to, URL: link})
}

func (m *Mailer) SendPasswordChanged(_ context.Context, to, name string) error {
	return m.record(Mail{Kind: "password_changed", To: to, Name: name})
}

func (m *Mailer) SendMagicLink(_ context.Context, to, link string) error {
	return m.record(Mail{Kind: "magic_link", To: to, URL: link})
}

// Last returns the most recent mail, or a zero Mail.
func (m *Mailer) Last() Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Mails) == 0 {
		return Mail{}
	}
	return m.Mails[len(m.Mails)-1]
}

// Count returns the number of recorded mails.
func (m *Mailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Mails)
}

// TokenFromURL extracts the token query parameter of a mailed link.
func TokenFromURL(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Query().Get("token")
}

// Directory wraps a LocalDirectory and lets tests override its answers.
type Directory struct {
	*upstream.LocalDirectory

	mu          sync.Mutex
	Existence   *upstream.Existence
	ExistsErr   error
	RegisterErr error
	ResetErr    error
	Resets      []string
}

func NewDirectory() *Directory {
	return &Directory{LocalDirectory: upstream.NewLocalDirectory()}
}

func (d *Directory) EmailExists(ctx context.Context, email string) (upstream.Existence, error) {
	d.mu.Lock()
	existence, err := d.Existence, d.ExistsErr
	d.mu.Unlock()
	if existence != nil {
		return *existence, err
	}
	return d.LocalDirectory.EmailExists(ctx, email)
}

func (d *Directory) Register(ctx context.Context, r upstream.RegisterRequest) (*upstream.User, error) {
	d.mu.Lock()
	err := d.RegisterErr
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return d.LocalDirectory.Register(ctx, r)
}

func (d *Directory) ResetPassword(ctx context.Context, email, password string) error {
	d.mu.Lock()
	err := d.ResetErr
	d.Resets = append(d.Resets, email)
	d.mu.Unlock()
	if err != nil {
		return err
	}
	return d.LocalDirectory.ResetPassword(ctx, email, password)
}

// Do serves one request against h and returns the recorder.
func Do(h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		r = bytes.NewBuffer(data)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// Body decodes a JSON response body.
func Body(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return out
}
