package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/bewirtungsbeleg/internal/auth"
	"github.com/tendant/bewirtungsbeleg/internal/config"
	"github.com/tendant/bewirtungsbeleg/internal/http/features/magiclink"
	"github.com/tendant/bewirtungsbeleg/internal/http/features/password"
	"github.com/tendant/bewirtungsbeleg/internal/http/features/receipts"
	"github.com/tendant/bewirtungsbeleg/internal/http/features/register"
	"github.com/tendant/bewirtungsbeleg/internal/http/middleware"
	"github.com/tendant/bewirtungsbeleg/internal/httputil"
	"github.com/tendant/bewirtungsbeleg/internal/notification"
	"github.com/tendant/bewirtungsbeleg/internal/upstream"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger             *slog.Logger
	Tokens             *auth.TokenService
	Directory          upstream.Directory
	Notifier           *notification.Notifier
	Tickets            *auth.TicketService
	Policy             *auth.PasswordPolicy
	AppBaseURL         string
	RateLimit          config.RateLimitConfig
	SecurityHeaders    config.SecurityHeadersConfig
	MaxRequestBodySize int64
	// Ready reports whether the token store is reachable. Optional.
	Ready func(ctx context.Context) error
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.MaxRequestBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(r.Context()); err != nil {
				cfg.Logger.Warn("health check failed", "error", err)
				httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	limiters := middleware.CreateRateLimiters(cfg.RateLimit, cfg.Logger)
	emailLimit := limiters[middleware.LimitEmail]
	verifyLimit := limiters[middleware.LimitVerify]

	register.NewHandler(
		cfg.Logger,
		cfg.Tokens,
		cfg.Directory,
		cfg.Notifier,
		cfg.Policy,
		cfg.AppBaseURL,
	).RegisterRoutes(r, emailLimit, verifyLimit)

	password.NewHandler(
		cfg.Logger,
		cfg.Tokens,
		cfg.Directory,
		cfg.Notifier,
		cfg.Policy,
		cfg.AppBaseURL,
	).RegisterRoutes(r, emailLimit, verifyLimit)

	magiclink.NewHandler(
		cfg.Logger,
		cfg.Tokens,
		cfg.Tickets,
		cfg.Notifier,
		cfg.AppBaseURL,
	).RegisterRoutes(r, emailLimit, verifyLimit)

	receipts.NewHandler(cfg.Logger).RegisterRoutes(r, limiters[middleware.LimitReconcile])

	return r
}
