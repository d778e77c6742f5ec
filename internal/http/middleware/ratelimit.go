package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/tendant/bewirtungsbeleg/internal/config"
	"github.com/tendant/bewirtungsbeleg/internal/httputil"
)

// MsgTooManyRequests is returned with 429 responses.
const MsgTooManyRequests = "Zu viele Anfragen. Bitte versuchen Sie es später erneut."

// Limiter names used by the router.
const (
	LimitEmail     = "email"
	LimitVerify    = "verify"
	LimitReconcile = "reconcile"
)

// RateLimitConfig holds rate limiting configuration for a specific endpoint type.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Logger   *slog.Logger
}

// RateLimit creates a client-IP and endpoint based rate limiter. The client IP
// is taken from X-Forwarded-For or X-Real-IP when present.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				cfg.Logger.Warn("rate limit exceeded",
					"ip", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
					"user_agent", r.UserAgent(),
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, MsgTooManyRequests)
		}),
	)
}

// NoRateLimit returns a no-op middleware when rate limiting is disabled.
func NoRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// CreateRateLimiters creates rate limiting middleware functions based on configuration.
func CreateRateLimiters(cfg config.RateLimitConfig, logger *slog.Logger) map[string]func(http.Handler) http.Handler {
	if !cfg.Enabled {
		noOp := NoRateLimit()
		return map[string]func(http.Handler) http.Handler{
			LimitEmail:     noOp,
			LimitVerify:    noOp,
			LimitReconcile: noOp,
		}
	}

	return map[string]func(http.Handler) http.Handler{
		LimitEmail: RateLimit(RateLimitConfig{
			Requests: cfg.EmailRequestsPerWindow,
			Window:   time.Duration(cfg.EmailWindowMinutes) * time.Minute,
			Logger:   logger,
		}),
		LimitVerify: RateLimit(RateLimitConfig{
			Requests: cfg.VerifyRequestsPerWindow,
			Window:   time.Duration(cfg.VerifyWindowMinutes) * time.Minute,
			Logger:   logger,
		}),
		LimitReconcile: RateLimit(RateLimitConfig{
			Requests: cfg.ReconcileRequestsPerMinute,
			Window:   time.Minute,
			Logger:   logger,
		}),
	}
}
