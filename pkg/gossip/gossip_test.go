package gossip

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/meshcore/pkg/signing"
	"github.com/cuemby/meshcore/pkg/types"
	"github.com/stretchr/testify/require"
)

func newBody(data []byte) io.Reader {
	return bytes.NewReader(data)
}

type fakeDirectory struct {
	known map[types.Address]bool
}

func (d *fakeDirectory) ActivePeers() []PeerEndpoint { return nil }
func (d *fakeDirectory) IsKnownNonDisabled(addr types.Address) bool {
	return d.known[addr]
}

func TestAuthMiddlewareAcceptsKnownPeer(t *testing.T) {
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)
	dir := &fakeDirectory{known: map[types.Address]bool{kp.Address: true}}
	transport := New(kp, dir)

	var recoveredAddr types.Address
	handler := transport.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr, ok := PeerAddressFromContext(r.Context())
		require.True(t, ok)
		recoveredAddr = addr
		w.WriteHeader(http.StatusOK)
	}))

	body := []byte(`{"hello":"world"}`)
	sig, recID, err := signing.Sign(kp.Private, body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/gossip/instances", newBody(body))
	req.Header.Set("Authorization", signing.HeaderValue(sig, recID, body))
	req.RemoteAddr = "203.0.113.5:40000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, kp.Address, recoveredAddr)
}

func TestAuthMiddlewareRejectsUnknownPeer(t *testing.T) {
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)
	dir := &fakeDirectory{known: map[types.Address]bool{}} // kp is not registered
	transport := New(kp, dir)

	handler := transport.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	body := []byte(`{"hello":"world"}`)
	sig, recID, err := signing.Sign(kp.Private, body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/gossip/instances", newBody(body))
	req.Header.Set("Authorization", signing.HeaderValue(sig, recID, body))
	req.RemoteAddr = "203.0.113.5:40000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthMiddlewareBypassesLoopback(t *testing.T) {
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)
	dir := &fakeDirectory{known: map[types.Address]bool{}}
	transport := New(kp, dir)

	reached := false
	handler := transport.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/gossip/instances", newBody([]byte("no-auth-needed")))
	req.RemoteAddr = "127.0.0.1:55000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.True(t, reached)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)
	dir := &fakeDirectory{known: map[types.Address]bool{}}
	transport := New(kp, dir)

	handler := transport.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodPost, "/gossip/instances", newBody(nil))
	req.RemoteAddr = "203.0.113.5:40000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
