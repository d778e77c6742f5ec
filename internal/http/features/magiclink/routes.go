package magiclink

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the magic link routes.
func (h *Handler) RegisterRoutes(r chi.Router, emailLimit, verifyLimit func(http.Handler) http.Handler) {
	r.With(emailLimit).Post("/api/auth/magic-link/send", h.Send)
	r.With(verifyLimit).Get(verifyPath, h.Verify)
}
