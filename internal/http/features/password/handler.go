package password

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tendant/bewirtungsbeleg/internal/auth"
	"github.com/tendant/bewirtungsbeleg/internal/domain"
	"github.com/tendant/bewirtungsbeleg/internal/http/features/common"
	"github.com/tendant/bewirtungsbeleg/internal/httputil"
	"github.com/tendant/bewirtungsbeleg/internal/upstream"
)

const (
	msgResetRequested = "Wenn ein Konto mit dieser E-Mail-Adresse existiert, wurde eine E-Mail zum Zurücksetzen des Passworts gesendet."
	msgPasswordReset  = "Passwort erfolgreich geändert"
)

// Mailer sends the password reset mails.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, url string) error
	SendPasswordChanged(ctx context.Context, to, name string) error
}

// Handler handles the password reset endpoints.
type Handler struct {
	logger     *slog.Logger
	tokens     *auth.TokenService
	directory  upstream.Directory
	mailer     Mailer
	policy     *auth.PasswordPolicy
	appBaseURL string
}

// NewHandler creates a new password handler.
func NewHandler(
	logger *slog.Logger,
	tokens *auth.TokenService,
	directory upstream.Directory,
	mailer Mailer,
	policy *auth.PasswordPolicy,
	appBaseURL string,
) *Handler {
	return &Handler{
		logger:     logger,
		tokens:     tokens,
		directory:  directory,
		mailer:     mailer,
		policy:     policy,
		appBaseURL: appBaseURL,
	}
}

// ForgotPasswordRequest represents a password reset request.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,mailaddr" msg:"Ungültige E-Mail-Adresse"`
}

func (r *ForgotPasswordRequest) Normalize() {
	r.Email = auth.NormalizeEmail(r.Email)
}

// ResetPasswordRequest represents a password reset confirmation.
type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required" msg:"Token ist erforderlich"`
	Password string `json:"password"`
}

// ForgotPassword issues a password_reset token and mails the reset link.
// The response does not reveal whether an account exists.
// POST /api/auth/forgot-password
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		common.WriteDecodeError(w, err)
		return
	}

	token, err := h.tokens.Issue(r.Context(), req.Email, domain.TokenKindPasswordReset, nil)
	if err != nil {
		h.logger.Error("failed to issue password reset token", "error", err)
		httputil.Error(w, http.StatusInternalServerError, httputil.MsgInternal)
		return
	}

	link := common.TokenLink(h.appBaseURL, "/auth/reset-password", token.Value)
	if err := h.mailer.SendPasswordReset(r.Context(), req.Email, link); err != nil {
		h.logger.Error("failed to send password reset email", "error", err, "token_id", token.ID)
		httputil.Error(w, http.StatusInternalServerError, common.MsgEmailSendFailed)
		return
	}

	h.logger.Info("password reset email sent", "token_id", token.ID)
	httputil.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msgResetRequested,
	})
}

// VerifyResetToken checks a password_reset token without consuming it.
// GET /api/auth/verify-reset-token?token=...
func (h *Handler) VerifyResetToken(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		httputil.Error(w, http.StatusBadRequest, common.MsgTokenRequired)
		return
	}

	token, err := h.tokens.LookupValid(r.Context(), raw, domain.TokenKindPasswordReset)
	if err != nil {
		common.WriteTokenError(w, h.logger, err, common.DefaultTokenMessages)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"email": token.Email,
	})
}

// ResetPassword sets a new password. The token is consumed before anything
// else happens, so a failed reset needs a new link.
// POST /api/auth/reset-password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		common.WriteDecodeError(w, err)
		return
	}
	if err := h.policy.ValidatePassword(req.Password); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.tokens.ConsumeValid(r.Context(), req.Token, domain.TokenKindPasswordReset)
	if err != nil {
		common.WriteTokenError(w, h.logger, err, common.DefaultTokenMessages)
		return
	}

	if err := h.tokens.InvalidateAllForEmail(r.Context(), token.Email, domain.TokenKindPasswordReset); err != nil {
		h.logger.Error("failed to invalidate password reset tokens", "error", err, "token_id", token.ID)
		httputil.Error(w, http.StatusInternalServerError, httputil.MsgInternal)
		return
	}

	if err := h.directory.ResetPassword(r.Context(), token.Email, req.Password); err != nil {
		h.writeResetError(w, err)
		return
	}

	if err := h.mailer.SendPasswordChanged(r.Context(), token.Email, ""); err != nil {
		h.logger.Warn("failed to send password changed email", "error", err, "token_id", token.ID)
	}

	h.logger.Info("password reset", "token_id", token.ID)
	httputil.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"email":   token.Email,
		"message": msgPasswordReset,
	})
}

func (h *Handler) writeResetError(w http.ResponseWriter, err error) {
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		h.logger.Error("password reset rejected by account service", "status", upErr.StatusCode, "code", upErr.Code, "error", upErr.Err)
		httputil.Error(w, upstream.StatusCode(err), upErr.Message)
		return
	}
	h.logger.Error("password reset failed", "error", err)
	httputil.Error(w, http.StatusInternalServerError, httputil.MsgInternal)
}
