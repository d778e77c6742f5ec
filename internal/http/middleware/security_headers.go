package middleware

import (
	"fmt"
	"net/http"

	"github.com/tendant/bewirtungsbeleg/internal/config"
)

type header struct {
	name, value string
}

// securityHeaders lists the non-empty headers of cfg.
func securityHeaders(cfg config.SecurityHeadersConfig) []header {
	candidates := []header{
		{"Content-Security-Policy", cfg.CSP},
		{"X-Frame-Options", cfg.FrameOptions},
		{"X-Content-Type-Options", cfg.ContentTypeOptions},
		{"X-XSS-Protection", cfg.XSSProtection},
		{"Referrer-Policy", cfg.ReferrerPolicy},
		{"Permissions-Policy", cfg.PermissionsPolicy},
		{"Cache-Control", cfg.CacheControl},
	}
	if cfg.HSTSMaxAge > 0 {
		candidates = append(candidates, header{"Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", cfg.HSTSMaxAge)})
	}

	out := candidates[:0]
	for _, h := range candidates {
		if h.value != "" {
			out = append(out, h)
		}
	}
	return out
}

// SecurityHeaders sets the configured security headers on every response.
// Token bearing responses must not be cached, hence Cache-Control.
func SecurityHeaders(cfg config.SecurityHeadersConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	headers := securityHeaders(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range headers {
				w.Header().Set(h.name, h.value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
