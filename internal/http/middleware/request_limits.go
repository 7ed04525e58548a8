package middleware

import (
	"net/http"

	"github.com/tendant/simple-accounts/internal/httputil"
)

// RequestSizeLimit caps the request body at maxBytes. Reads past the cap
// fail with *http.MaxBytesError, which httputil.DecodeJSON turns into 413.
// A non-positive maxBytes disables the cap.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				w.Header().Set("Connection", "close")
				httputil.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
