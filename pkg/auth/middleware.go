package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cuemby/meshcore/pkg/apierr"
)

type contextKey int

const principalKey contextKey = iota

// PrincipalFromContext returns the Principal attached by Middleware, if
// any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// Authenticator tries each of the three admission paths in header-presence
// order: signature, bearer JWT, then API key. The first header present
// determines which path runs; if none are present the request is
// Unauthorized.
type Authenticator struct {
	signature *SignatureAuthenticator
	apiKey *APIKeyAuthenticator
	jwt *JWTAuthenticator
}

// NewAuthenticator wires the three admission paths together. jwt may be
// nil when no JWKS endpoint is configured, in which case bearer tokens are
// rejected.
func NewAuthenticator(apiKey *APIKeyAuthenticator, jwt *JWTAuthenticator) *Authenticator {
	return &Authenticator{
		signature: NewSignatureAuthenticator(),
		apiKey: apiKey,
		jwt: jwt,
	}
}

// Authenticate dispatches r to the admission path its headers select.
func (a *Authenticator) Authenticate(r *http.Request) (Principal, *RateLimitResult, error) {
	if sig := r.Header.Get("Authorization"); strings.HasPrefix(sig, "Signature ") {
		p, err := a.signature.Authenticate(sig)
		return p, nil, err
	}

	if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
		if a.jwt == nil {
			return Principal{}, nil, apierr.Unauthorized("JWT admission is not configured")
		}
		p, err := a.jwt.Authenticate(strings.TrimPrefix(bearer, "Bearer "))
		return p, nil, err
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		p, result, err := a.apiKey.Authenticate(key)
		return p, result, err
	}

	return Principal{}, nil, apierr.Unauthorized("no recognized credentials")
}

// Middleware authenticates every request, writes rate-limit headers when
// applicable, and attaches the resulting Principal to the request context.
// On failure it writes the mapped apierr status and does not call next.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, limitResult, err := a.Authenticate(r)
		if limitResult != nil {
			writeRateLimitHeaders(w, limitResult)
		}
		if err != nil {
			apiErr := apierr.As(err)
			http.Error(w, apiErr.Error(), apiErr.Status())
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole wraps next, rejecting callers whose Principal role does not
// transitively satisfy required. Must run after Middleware.
func RequireRole(required Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok || !HasRole(principal.Role, required) {
			apiErr := apierr.Forbidden("role %q required", required)
			http.Error(w, apiErr.Error(), apiErr.Status())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeRateLimitHeaders(w http.ResponseWriter, r *RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(r.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(r.Remaining))
	if !r.Allowed {
		w.Header().Set("Retry-After", fmt.Sprintf("%.0f", r.RetryAfter.Seconds()))
	}
}
