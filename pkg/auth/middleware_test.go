package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/meshcore/pkg/signing"
	"github.com/cuemby/meshcore/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestAuthenticator(accounts []types.Account) *Authenticator {
	return NewAuthenticator(NewAPIKeyAuthenticator(fakeAccounts{accounts: accounts}), nil)
}

func TestMiddlewareAttachesPrincipalOnValidSignature(t *testing.T) {
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)
	message := []byte("body")
	sig, recoveryID, err := signing.Sign(kp.Private, message)
	require.NoError(t, err)

	authr := newTestAuthenticator(nil)

	var seen Principal
	handler := authr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("Authorization", signing.HeaderValue(sig, recoveryID, message))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, kp.Address, seen.Address)
}

func TestMiddlewareRejectsMissingCredentials(t *testing.T) {
	authr := newTestAuthenticator(nil)
	handler := authr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareSetsRateLimitHeaders(t *testing.T) {
	secret := "a-secret"
	acct := types.Account{
		ID:      types.Address("0x1"),
		Tier:    types.TierFree,
		APIKeys: []types.APIKey{{ID: "key-1", SecretSHA: HashAPIKeySecret(secret)}},
	}
	authr := newTestAuthenticator([]types.Account{acct})
	handler := authr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-API-Key", secret)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestRequireRoleRejectsInsufficientRole(t *testing.T) {
	handler := RequireRole(RoleAdmin, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}
