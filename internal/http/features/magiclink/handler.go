package magiclink

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/tendant/bewirtungsbeleg/internal/auth"
	"github.com/tendant/bewirtungsbeleg/internal/domain"
	"github.com/tendant/bewirtungsbeleg/internal/http/features/common"
	"github.com/tendant/bewirtungsbeleg/internal/httputil"
)

const msgLinkSent = "Ein Anmelde-Link wurde an Ihre E-Mail-Adresse gesendet."

// Error codes passed to the sign-in page.
const (
	ErrMissingToken       = "MissingToken"
	ErrTokenAlreadyUsed   = "TokenAlreadyUsed"
	ErrInvalidToken       = "InvalidToken"
	ErrTokenExpired       = "TokenExpired"
	ErrVerificationFailed = "VerificationFailed"
)

const (
	signInPath   = "/auth/anmelden"
	callbackPath = "/auth/callback/magic-link"
	verifyPath   = "/api/auth/magic-link/verify"
)

// Mailer sends the sign-in link.
type Mailer interface {
	SendMagicLink(ctx context.Context, to, url string) error
}

// Tickets signs the short-lived login ticket handed to the callback page.
type Tickets interface {
	Issue(email string, tokenID uuid.UUID) (string, error)
}

// Handler handles passwordless sign-in.
type Handler struct {
	logger     *slog.Logger
	tokens     *auth.TokenService
	tickets    Tickets
	mailer     Mailer
	appBaseURL string
}

// NewHandler creates a new magic link handler.
func NewHandler(logger *slog.Logger, tokens *auth.TokenService, tickets Tickets, mailer Mailer, appBaseURL string) *Handler {
	return &Handler{
		logger:     logger,
		tokens:     tokens,
		tickets:    tickets,
		mailer:     mailer,
		appBaseURL: appBaseURL,
	}
}

// SendRequest represents a sign-in link request.
type SendRequest struct {
	Email string `json:"email" validate:"required,mailaddr" msg:"Ungültige E-Mail-Adresse"`
}

func (r *SendRequest) Normalize() {
	r.Email = auth.NormalizeEmail(r.Email)
}

// Send issues a magic_link token and mails the sign-in link.
// POST /api/auth/magic-link/send
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		common.WriteDecodeError(w, err)
		return
	}

	token, err := h.tokens.Issue(r.Context(), req.Email, domain.TokenKindMagicLink, nil)
	if err != nil {
		h.logger.Error("failed to issue magic link token", "error", err)
		httputil.Error(w, http.StatusInternalServerError, httputil.MsgInternal)
		return
	}

	link := common.TokenLink(h.appBaseURL, verifyPath, token.Value)
	if err := h.mailer.SendMagicLink(r.Context(), req.Email, link); err != nil {
		h.logger.Error("failed to send magic link email", "error", err, "token_id", token.ID)
		httputil.Error(w, http.StatusInternalServerError, common.MsgEmailSendFailed)
		return
	}

	h.logger.Info("magic link sent", "token_id", token.ID)
	httputil.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msgLinkSent,
	})
}

// Verify redeems a magic link and redirects to the sign-in callback with a
// signed login ticket. Every failure redirects to the sign-in page with an
// error code.
// GET /api/auth/magic-link/verify?token=...
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		h.fail(w, r, ErrMissingToken)
		return
	}

	token, err := h.tokens.LookupValid(r.Context(), raw, domain.TokenKindMagicLink)
	if err != nil {
		code := errorCode(err)
		if code == ErrVerificationFailed {
			h.logger.Error("magic link lookup failed", "error", err)
		}
		h.fail(w, r, code)
		return
	}

	// Another request may have redeemed the link since the lookup.
	if _, err := h.tokens.Consume(r.Context(), raw); err != nil {
		if !errors.Is(err, domain.ErrTokenNotFound) {
			h.logger.Error("failed to consume magic link token", "error", err, "token_id", token.ID)
		}
		h.fail(w, r, errorCode(err))
		return
	}
	if err := h.tokens.InvalidateAllForEmail(r.Context(), token.Email, domain.TokenKindMagicLink); err != nil {
		h.logger.Warn("failed to invalidate magic link tokens", "error", err, "token_id", token.ID)
	}

	ticket, err := h.tickets.Issue(token.Email, token.ID)
	if err != nil {
		h.logger.Error("failed to sign login ticket", "error", err, "token_id", token.ID)
		h.fail(w, r, ErrVerificationFailed)
		return
	}

	h.logger.Info("magic link redeemed", "token_id", token.ID)
	httputil.Redirect(w, r, common.Link(h.appBaseURL, callbackPath, url.Values{
		"email":  {token.Email},
		"ticket": {ticket},
	}))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, code string) {
	httputil.Redirect(w, r, common.Link(h.appBaseURL, signInPath, url.Values{"error": {code}}))
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrTokenNotFound):
		return ErrTokenAlreadyUsed
	case errors.Is(err, domain.ErrTokenWrongType):
		return ErrInvalidToken
	case errors.Is(err, domain.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrVerificationFailed
	}
}
