package shield

import (
	"mime"
	"net/http"
)

// MaxFormBody limits the body of form-encoded requests (the login form and
// the console's form fallback). JSON bodies are bounded by their handlers.
// It is not part of DefaultStack: mount it on the routes that parse forms.
func MaxFormBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data" {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
