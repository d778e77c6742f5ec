// Package idm embeds the Bewirtungsbeleg account token flows (registration
// with email verification, password reset and magic link sign-in) into
// another service.
//
// Setup:
//
//  1. Pick a token store: an in-memory store (default, single instance only),
//     a Redis client, or a Postgres connection with migrations/ applied
//  2. Create an IDM instance and mount its routes
//
// Basic usage:
//
//	auth, err := idm.New(idm.Config{
//	    TicketSecret: "your-secret-key-at-least-32-chars",
//	    AppBaseURL:   "https://beleg.example.com",
//	    AuthServer:   "https://accounts.example.com",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r := chi.NewRouter()
//	r.Mount("/", auth.Router())
//	http.ListenAndServe(":8080", r)
//
// The magic link callback page receives a signed ticket; redeem it with
// VerifyTicket before creating a session.
package idm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tendant/bewirtungsbeleg/internal/auth"
	"github.com/tendant/bewirtungsbeleg/internal/config"
	"github.com/tendant/bewirtungsbeleg/internal/domain"
	httpserver "github.com/tendant/bewirtungsbeleg/internal/http"
	"github.com/tendant/bewirtungsbeleg/internal/httputil"
	"github.com/tendant/bewirtungsbeleg/internal/notification"
	"github.com/tendant/bewirtungsbeleg/internal/repository"
	"github.com/tendant/bewirtungsbeleg/internal/upstream"
)

// Config holds the configuration for the IDM library.
type Config struct {
	// TicketSecret signs magic link login tickets (required, min 32 chars).
	TicketSecret string

	// TicketTTL is the lifetime of login tickets (default: 5 minutes).
	TicketTTL time.Duration

	// AppBaseURL prefixes every link in mails and redirects (required).
	AppBaseURL string

	// DB selects the Postgres token store. The email_tokens table must exist.
	DB *sql.DB

	// Redis selects the Redis token store. Mutually exclusive with DB.
	Redis *redis.Client

	// AuthServer is the DocBits account service. When empty, accounts are
	// kept in memory, which is only suitable for development.
	AuthServer        string
	AdminAuthUser     string
	AdminAuthPassword string

	// SMTP enables mail delivery. Without it mails are written to the log.
	SMTP *SMTPConfig

	// PasswordMinLength is the minimum password length (default: 8).
	PasswordMinLength int

	// PasswordRequireLetter and PasswordRequireNumber add character rules
	// on top of the length check.
	PasswordRequireLetter bool
	PasswordRequireNumber bool

	// RateLimit enables the per-IP limits of the standalone server.
	RateLimit bool

	// Logger is the structured logger (default: JSON to stdout).
	Logger *slog.Logger
}

// SMTPConfig holds mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	TLS      bool
}

// Ticket is a redeemed magic link login ticket.
type Ticket struct {
	Email     string
	TokenID   uuid.UUID
	ExpiresAt time.Time
}

// IDM is the main instance.
type IDM struct {
	config  Config
	store   auth.TokenStore
	purger  interface{ PurgeExpired(context.Context) (int64, error) }
	ping    func(context.Context) error
	tokens  *auth.TokenService
	tickets *auth.TicketService
	handler http.Handler
}

// New creates a new IDM instance with the given configuration.
// Returns an error if the Postgres schema is missing.
func New(cfg Config) (*IDM, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	i := &IDM{config: cfg}
	switch {
	case cfg.DB != nil:
		if err := validateSchema(cfg.DB); err != nil {
			return nil, err
		}
		pg := repository.NewPostgresTokenStore(cfg.DB)
		i.store, i.purger, i.ping = pg, pg, cfg.DB.PingContext
	case cfg.Redis != nil:
		rs := repository.NewRedisTokenStore(cfg.Redis)
		i.store, i.ping = rs, rs.Ping
	default:
		i.store = repository.NewMemoryTokenStore()
	}

	var mailer notification.Mailer = notification.NewLogMailer(cfg.Logger)
	if cfg.SMTP != nil {
		m, err := notification.NewEmailService(notification.SMTPConfig(*cfg.SMTP))
		if err != nil {
			return nil, fmt.Errorf("idm: %w", err)
		}
		mailer = m
	}
	notifier, err := notification.NewNotifier(mailer)
	if err != nil {
		return nil, fmt.Errorf("idm: %w", err)
	}

	var directory upstream.Directory = upstream.NewLocalDirectory()
	if cfg.AuthServer != "" {
		directory = upstream.NewDocBitsClient(upstream.DocBitsConfig{
			BaseURL:       cfg.AuthServer,
			AdminUser:     cfg.AdminAuthUser,
			AdminPassword: cfg.AdminAuthPassword,
		}, cfg.Logger)
	}

	i.tokens = auth.NewTokenService(i.store, auth.WithLogger(cfg.Logger))
	i.tickets = auth.NewTicketService(auth.TicketConfig{
		Secret: []byte(cfg.TicketSecret),
		TTL:    cfg.TicketTTL,
	})
	policy := auth.NewPasswordPolicy(cfg.PasswordMinLength)
	policy.RequireLetter = cfg.PasswordRequireLetter
	policy.RequireNumber = cfg.PasswordRequireNumber
	i.handler = httpserver.NewRouter(httpserver.RouterConfig{
		Logger:             cfg.Logger,
		Tokens:             i.tokens,
		Directory:          directory,
		Notifier:           notifier,
		Tickets:            i.tickets,
		Policy:             policy,
		AppBaseURL:         cfg.AppBaseURL,
		RateLimit:          rateLimits(cfg.RateLimit),
		SecurityHeaders:    config.SecurityHeadersConfig{Enabled: true, ContentTypeOptions: "nosniff", CacheControl: "no-store"},
		MaxRequestBodySize: 1 << 20,
		Ready:              i.ping,
	})
	return i, nil
}

// Router returns a chi router with all routes under /api and /health.
//
// Routes:
//
//	POST /api/auth/register/send-verification
//	GET  /api/auth/verify-email, POST /api/auth/verify-email
//	POST /api/auth/setup-password
//	POST /api/auth/forgot-password
//	GET  /api/auth/verify-reset-token
//	POST /api/auth/reset-password
//	POST /api/auth/magic-link/send
//	GET  /api/auth/magic-link/verify
//	POST /api/receipts/reconcile
//	GET  /health
func (i *IDM) Router() chi.Router {
	r := chi.NewRouter()
	r.Mount("/", i.handler)
	return r
}

// Handler returns the routes as an http.Handler for a standard library
// ServeMux:
//
//	mux := http.NewServeMux()
//	mux.Handle("/", auth.Handler())
func (i *IDM) Handler() http.Handler {
	return i.handler
}

// VerifyTicket redeems a login ticket from the magic link callback.
func (i *IDM) VerifyTicket(ticket string) (*Ticket, error) {
	claims, err := i.tickets.Verify(ticket)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, fmt.Errorf("idm: invalid ticket id: %w", err)
	}
	t := &Ticket{Email: claims.Email, TokenID: id}
	if claims.ExpiresAt != nil {
		t.ExpiresAt = claims.ExpiresAt.Time
	}
	return t, nil
}

// InvalidateTokens removes every unused token of kind for email. kind is one
// of "email_verify", "password_reset" or "magic_link".
func (i *IDM) InvalidateTokens(ctx context.Context, email, kind string) error {
	k := domain.TokenKind(kind)
	if !k.Valid() {
		return fmt.Errorf("idm: %w: %q", domain.ErrUnknownTokenKind, kind)
	}
	return i.tokens.InvalidateAllForEmail(ctx, email, k)
}

// PurgeExpired deletes expired tokens from the Postgres store. Other stores
// expire entries on their own and report zero.
func (i *IDM) PurgeExpired(ctx context.Context) (int64, error) {
	if i.purger == nil {
		return 0, nil
	}
	return i.purger.PurgeExpired(ctx)
}

// HealthHandler returns a health check handler that also checks the token
// store.
func (i *IDM) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if i.ping != nil {
			if err := i.ping(r.Context()); err != nil {
				httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func validateConfig(cfg *Config) error {
	if cfg.TicketSecret == "" {
		return errors.New("idm: TicketSecret is required")
	}
	if len(cfg.TicketSecret) < 32 {
		return errors.New("idm: TicketSecret must be at least 32 characters")
	}
	if cfg.AppBaseURL == "" {
		return errors.New("idm: AppBaseURL is required")
	}
	if cfg.DB != nil && cfg.Redis != nil {
		return errors.New("idm: configure either DB or Redis, not both")
	}
	if cfg.SMTP != nil && (cfg.SMTP.Host == "" || cfg.SMTP.From == "") {
		return errors.New("idm: SMTP Host and From are required when SMTP is configured")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	cfg.AppBaseURL = strings.TrimSuffix(cfg.AppBaseURL, "/")
	if cfg.PasswordMinLength == 0 {
		cfg.PasswordMinLength = auth.DefaultPasswordMinLength
	}
	if cfg.TicketTTL == 0 {
		cfg.TicketTTL = auth.DefaultTicketTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
}

func rateLimits(enabled bool) config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:                    enabled,
		EmailRequestsPerWindow:     3,
		EmailWindowMinutes:         1,
		VerifyRequestsPerWindow:    20,
		VerifyWindowMinutes:        1,
		ReconcileRequestsPerMinute: 60,
	}
}

// validateSchema checks that the email_tokens table exists.
func validateSchema(db *sql.DB) error {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1
	`

	var name string
	err := db.QueryRow(query, "email_tokens").Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.New("idm: missing table 'email_tokens' - run migrations first (see migrations/ folder)")
	}
	if err != nil {
		return fmt.Errorf("idm: failed to check schema: %w", err)
	}
	return nil
}
