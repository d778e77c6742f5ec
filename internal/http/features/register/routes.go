package register

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the registration routes. emailLimit guards the
// endpoint that sends mail, verifyLimit the token checks.
func (h *Handler) RegisterRoutes(r chi.Router, emailLimit, verifyLimit func(http.Handler) http.Handler) {
	r.With(emailLimit).Post("/api/auth/register/send-verification", h.SendVerification)
	r.Group(func(r chi.Router) {
		r.Use(verifyLimit)
		r.Get("/api/auth/verify-email", h.VerifyEmail)
		r.Post("/api/auth/verify-email", h.VerifyEmailPost)
		r.Post("/api/auth/setup-password", h.SetupPassword)
	})
}
