package password

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the password reset routes and their German aliases.
func (h *Handler) RegisterRoutes(r chi.Router, emailLimit, verifyLimit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(emailLimit)
		r.Post("/api/auth/forgot-password", h.ForgotPassword)
		r.Post("/api/auth/passwort-vergessen", h.ForgotPassword)
	})
	r.Group(func(r chi.Router) {
		r.Use(verifyLimit)
		r.Get("/api/auth/verify-reset-token", h.VerifyResetToken)
		r.Post("/api/auth/reset-password", h.ResetPassword)
		r.Post("/api/auth/passwort-zurucksetzen", h.ResetPassword)
	})
}
