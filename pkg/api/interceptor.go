package api

import (
	"net/http"

	"github.com/cuemby/meshcore/pkg/apierr"
)

func readOnlyErr() error {
	return apierr.Forbidden("write operations not allowed on this listener")
}

// ReadOnlyMiddleware rejects any non-GET request, for exposing the API
// over a local Unix socket to untrusted CLI callers without granting
// write access.
func ReadOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, readOnlyErr())
			return
		}
		next.ServeHTTP(w, r)
	})
}
