package register

import (
	"context"
	"encoding/json"
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
	msgVerificationSent = "Bestätigungs-E-Mail wurde gesendet"
	msgEmailVerified    = "E-Mail-Adresse erfolgreich bestätigt"
	msgAccountCreated   = "Konto erfolgreich erstellt! Sie können sich jetzt anmelden."
	msgInvalidVerify    = "Ungültiger Verifizierungstoken"
	msgInvalidPayload   = "Ungültige Token-Daten. Bitte registrieren Sie sich erneut."
	msgEmailRegistered  = `Ein Konto mit dieser E-Mail-Adresse existiert bereits. Bitte melden Sie sich an oder verwenden Sie "Passwort vergessen".`
	msgAccountExists    = "Ein Konto mit dieser E-Mail existiert bereits. Bitte melden Sie sich an."
)

// Mailer sends the verification mail.
type Mailer interface {
	SendVerification(ctx context.Context, to, name, url string) error
}

// Handler handles the registration endpoints: request a verification mail,
// check the emailed token, and create the account.
type Handler struct {
	logger     *slog.Logger
	tokens     *auth.TokenService
	directory  upstream.Directory
	mailer     Mailer
	policy     *auth.PasswordPolicy
	appBaseURL string
}

// NewHandler creates a new registration handler.
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

// SendVerificationRequest represents a registration request.
type SendVerificationRequest struct {
	FirstName string `json:"firstName" validate:"required" msg:"Vorname ist erforderlich"`
	LastName  string `json:"lastName" validate:"required" msg:"Nachname ist erforderlich"`
	Email     string `json:"email" validate:"required,mailaddr" msg:"Ungültige E-Mail-Adresse"`
}

func (r *SendVerificationRequest) Normalize() {
	r.FirstName = auth.SanitizeName(r.FirstName)
	r.LastName = auth.SanitizeName(r.LastName)
	r.Email = auth.NormalizeEmail(r.Email)
}

// SetupPasswordRequest represents the final account creation step.
type SetupPasswordRequest struct {
	Token    string `json:"token" validate:"required" msg:"Token ist erforderlich"`
	Password string `json:"password"`
}

type verifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

// SendVerification issues an email_verify token and mails the setup link.
// POST /api/auth/register/send-verification
func (h *Handler) SendVerification(w http.ResponseWriter, r *http.Request) {
	var req SendVerificationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		common.WriteDecodeError(w, err)
		return
	}

	existence, err := h.directory.EmailExists(r.Context(), req.Email)
	switch existence {
	case upstream.Exists:
		h.logger.Info("registration for existing account", "email", req.Email)
		httputil.Error(w, http.StatusConflict, msgEmailRegistered)
		return
	case upstream.CheckFailed:
		// Fail open: setup-password still rejects duplicates upstream.
		h.logger.Warn("email existence check failed, allowing registration", "email", req.Email, "error", err)
	}

	token, err := h.tokens.Issue(r.Context(), req.Email, domain.TokenKindEmailVerify, &domain.RegistrationPayload{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.logger.Error("failed to issue verification token", "error", err)
		httputil.Error(w, http.StatusInternalServerError, common.MsgTokenStoreFail)
		return
	}

	link := common.TokenLink(h.appBaseURL, "/auth/setup-password", token.Value)
	if err := h.mailer.SendVerification(r.Context(), req.Email, req.FirstName+" "+req.LastName, link); err != nil {
		h.logger.Error("failed to send verification email", "error", err, "token_id", token.ID)
		httputil.Error(w, http.StatusInternalServerError, httputil.MsgInternal)
		return
	}

	h.logger.Info("verification email sent", "token_id", token.ID)
	httputil.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msgVerificationSent,
	})
}

// VerifyEmail checks an email_verify token without consuming it; the token
// is consumed by SetupPassword.
// GET /api/auth/verify-email?token=...
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		httputil.Error(w, http.StatusBadRequest, common.MsgTokenRequired)
		return
	}
	h.verify(w, r, raw)
}

// VerifyEmailPost is the body based variant of VerifyEmail.
// POST /api/auth/verify-email
func (h *Handler) VerifyEmailPost(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || httputil.Validate(&req) != nil {
		httputil.Error(w, http.StatusBadRequest, msgInvalidVerify)
		return
	}
	h.verify(w, r, req.Token)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request, raw string) {
	token, err := h.tokens.LookupValid(r.Context(), raw, domain.TokenKindEmailVerify)
	if err != nil {
		common.WriteTokenError(w, h.logger, err, common.VerificationTokenMessages)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"email":   token.Email,
		"message": msgEmailVerified,
	})
}

// SetupPassword creates the account for a verified email. The token is
// consumed only after the account service accepted the account, so a failed
// attempt can be retried with the same link.
// POST /api/auth/setup-password
func (h *Handler) SetupPassword(w http.ResponseWriter, r *http.Request) {
	var req SetupPasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		common.WriteDecodeError(w, err)
		return
	}
	if err := h.policy.ValidatePassword(req.Password); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.tokens.LookupValid(r.Context(), req.Token, domain.TokenKindEmailVerify)
	if err != nil {
		common.WriteTokenError(w, h.logger, err, common.DefaultTokenMessages)
		return
	}
	if !token.HasRegistrationPayload() {
		h.logger.Warn("verification token without name payload", "token_id", token.ID)
		httputil.Error(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}

	user, err := h.directory.Register(r.Context(), upstream.RegisterRequest{
		Email:     token.Email,
		Password:  req.Password,
		FirstName: token.FirstName,
		LastName:  token.LastName,
	})
	if err != nil {
		h.writeRegisterError(w, err)
		return
	}

	if _, err := h.tokens.Consume(r.Context(), req.Token); err != nil && !errors.Is(err, domain.ErrTokenNotFound) {
		h.logger.Error("failed to consume verification token", "error", err, "token_id", token.ID)
	}
	if err := h.tokens.InvalidateAllForEmail(r.Context(), token.Email, domain.TokenKindEmailVerify); err != nil {
		h.logger.Error("failed to invalidate verification tokens", "error", err)
	}

	h.logger.Info("account created", "user_id", user.ID)
	httputil.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"email":   token.Email,
		"message": msgAccountCreated,
	})
}

func (h *Handler) writeRegisterError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrAccountExists) {
		httputil.Error(w, http.StatusConflict, msgAccountExists)
		return
	}

	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		h.logger.Error("account registration failed", "status", upErr.StatusCode, "code", upErr.Code, "error", upErr.Err)
		httputil.Error(w, upstream.StatusCode(err), upErr.Message)
		return
	}

	h.logger.Error("account registration failed", "error", err)
	httputil.Error(w, http.StatusInternalServerError, httputil.MsgInternal)
}
