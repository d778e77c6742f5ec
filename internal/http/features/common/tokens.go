// Package common holds what the auth feature handlers share: messages, token
// error mapping and link building.
package common

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tendant/bewirtungsbeleg/internal/domain"
	"github.com/tendant/bewirtungsbeleg/internal/httputil"
)

// User-facing messages.
const (
	MsgTokenRequired   = "Token ist erforderlich"
	MsgEmailSendFailed = "E-Mail konnte nicht gesendet werden. Bitte versuchen Sie es erneut."
	MsgTokenStoreFail  = "Token konnte nicht gespeichert werden"
)

// TokenMessages are the messages for the three token failure cases.
type TokenMessages struct {
	NotFound  string
	WrongType string
	Expired   string
}

var (
	// DefaultTokenMessages are used by the password flows.
	DefaultTokenMessages = TokenMessages{
		NotFound:  "Ungültiger oder abgelaufener Token",
		WrongType: "Falscher Token-Typ",
		Expired:   "Token ist abgelaufen",
	}
	// VerificationTokenMessages are used by the email verification endpoint.
	VerificationTokenMessages = TokenMessages{
		NotFound:  "Ungültiger oder abgelaufener Verifizierungstoken",
		WrongType: "Falscher Token-Typ",
		Expired:   "Verifizierungstoken ist abgelaufen",
	}
)

// TokenErrorMessage returns the message for a token error, or false if err
// is not a token error.
func TokenErrorMessage(err error, msgs TokenMessages) (string, bool) {
	switch {
	case errors.Is(err, domain.ErrTokenNotFound):
		return msgs.NotFound, true
	case errors.Is(err, domain.ErrTokenWrongType):
		return msgs.WrongType, true
	case errors.Is(err, domain.ErrTokenExpired):
		return msgs.Expired, true
	}
	return "", false
}

// WriteTokenError writes 400 for token errors and 500 for anything else.
func WriteTokenError(w http.ResponseWriter, logger *slog.Logger, err error, msgs TokenMessages) {
	if msg, ok := TokenErrorMessage(err, msgs); ok {
		httputil.Error(w, http.StatusBadRequest, msg)
		return
	}
	logger.Error("token store failure", "error", err)
	httputil.Error(w, http.StatusInternalServerError, httputil.MsgInternal)
}

// WriteDecodeError answers a failed DecodeJSON.
func WriteDecodeError(w http.ResponseWriter, err error) {
	if httputil.IsTooLarge(err) {
		httputil.Error(w, http.StatusRequestEntityTooLarge, httputil.MsgTooLarge)
		return
	}
	var vErr *httputil.ValidationError
	if errors.As(err, &vErr) {
		httputil.Error(w, http.StatusBadRequest, vErr.Message)
		return
	}
	httputil.Error(w, http.StatusBadRequest, httputil.MsgInvalidRequest)
}

// Link builds base+path with the given query parameters.
func Link(base, path string, query url.Values) string {
	if len(query) == 0 {
		return base + path
	}
	return base + path + "?" + query.Encode()
}

// TokenLink builds base+path?token=raw.
func TokenLink(base, path, raw string) string {
	return Link(base, path, url.Values{"token": {raw}})
}
