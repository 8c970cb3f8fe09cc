package gossip

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"

	"github.com/cuemby/meshcore/pkg/signing"
	"github.com/cuemby/meshcore/pkg/types"
)

type contextKey string

const peerAddressKey contextKey = "gossip-peer-address"

// PeerAddressFromContext returns the recovered signer address attached by
// AuthMiddleware, if any.
func PeerAddressFromContext(ctx context.Context) (types.Address, bool) {
	addr, ok := ctx.Value(peerAddressKey).(types.Address)
	return addr, ok
}

// AuthMiddleware recovers the signer of every inbound gossip request and
// rejects it unless the signer is a known, non-disabled peer. Localhost
// connections bypass authentication entirely — trusted loopback IPC
// between subsystems on the same node.
func (t *Transport) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isLoopback(r.RemoteAddr) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			http.Error(w, "missing Authorization header", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		r.Body.Close()

		sig, recID, message, err := signing.ParseHeaderValue(header)
		if err != nil {
			http.Error(w, "malformed Authorization header", http.StatusUnauthorized)
			return
		}

		signer, err := signing.Recover(sig, recID, message)
		if err != nil {
			http.Error(w, "signature does not recover", http.StatusUnauthorized)
			return
		}

		if !t.peers.IsKnownNonDisabled(signer) {
			http.Error(w, "unknown or disabled peer", http.StatusForbidden)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		ctx := context.WithValue(r.Context(), peerAddressKey, signer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
