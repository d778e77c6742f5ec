// Package httputil holds the JSON response and request helpers shared by the
// feature handlers.
package httputil

import (
	"encoding/json"
	"net/http"
)

// MsgInternal is the generic message for unexpected failures.
const MsgInternal = "Ein Fehler ist aufgetreten. Bitte versuchen Sie es erneut."

// MsgTooLarge answers bodies above the configured size limit.
const MsgTooLarge = "Anfrage ist zu groß"

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes an error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// Redirect sends a 307 so the browser repeats the request method.
func Redirect(w http.ResponseWriter, r *http.Request, url string) {
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}
