package middleware

import (
	"net/http"

	"github.com/tendant/bewirtungsbeleg/internal/httputil"
)

// RequestSizeLimit caps request bodies at maxBytes. A declared Content-Length
// above the cap is answered with 413 before the handler runs; bodies without
// one are wrapped in http.MaxBytesReader and handlers detect the overflow with
// httputil.IsTooLarge. A non-positive maxBytes disables the limit.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				httputil.Error(w, http.StatusRequestEntityTooLarge, httputil.MsgTooLarge)
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
