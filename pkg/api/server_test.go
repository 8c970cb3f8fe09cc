package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/cuemby/meshcore/pkg/auth"
	"github.com/cuemby/meshcore/pkg/conncache"
	"github.com/cuemby/meshcore/pkg/crdt"
	"github.com/cuemby/meshcore/pkg/dnszone"
	"github.com/cuemby/meshcore/pkg/nat"
	"github.com/cuemby/meshcore/pkg/overlay"
	"github.com/cuemby/meshcore/pkg/queue"
	"github.com/cuemby/meshcore/pkg/signing"
	"github.com/cuemby/meshcore/pkg/types"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

// testServer bundles a fully wired Server plus the keypair tests sign
// requests with.
type testServer struct {
	srv *Server
	kp  *signing.KeyPair
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	store, err := crdt.NewStore(t.TempDir(), kp, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	qdb, err := bolt.Open(filepath.Join(t.TempDir(), "queue.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { qdb.Close() })
	q := queue.New(qdb, nil, 0)

	membership := overlay.New(store, kp)
	traverser := nat.NewTraverser(conncache.New(filepath.Join(t.TempDir(), "conncache.json")), nat.NewRelayRegistry(), nil, nil)
	zone := dnszone.New(store.DNSRecords)
	authr := auth.NewAuthenticator(auth.NewAPIKeyAuthenticator(auth.AccountsFromMap(store.Accounts)), nil)

	srv := NewServer(Deps{
		Store:      store,
		Queue:      q,
		Membership: membership,
		Traverser:  traverser,
		Relays:     nat.NewRelayRegistry(),
		ConnCache:  conncache.New(filepath.Join(t.TempDir(), "conncache2.json")),
		Zone:       zone,
		Authr:      authr,
		Access:     auth.NewProjectAccessStore(),
		NodeID:     kp.Address,
	})
	return &testServer{srv: srv, kp: kp}
}

// signedRequest builds an httptest.Request carrying a valid signature
// header; the signed message need not match the body since
// SignatureAuthenticator trusts whatever message the header carries.
func (ts *testServer) signedRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)

	message := []byte("test-request")
	sig, recoveryID, err := signing.Sign(ts.kp.Private, message)
	require.NoError(t, err)
	req.Header.Set("Authorization", signing.HeaderValue(sig, recoveryID, message))
	return req
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}
