package api

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/cuemby/meshcore/pkg/queue"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func TestQueueWriteLocalAssignsOffsetsWithoutGossip(t *testing.T) {
	ts := newTestServer(t)
	router := ts.srv.Router()

	body := WriteLocalRequest{Topic: "custom", Content: base64.StdEncoding.EncodeToString([]byte("hello"))}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, ts.signedRequest(t, http.MethodPost, "/queue/write_local", body))
	require.Equal(t, http.StatusOK, rec.Code)
	var first WriteLocalResponse
	decodeJSON(t, rec, &first)
	require.Equal(t, uint64(0), first.Offset)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, ts.signedRequest(t, http.MethodPost, "/queue/write_local", body))
	require.Equal(t, http.StatusOK, rec.Code)
	var second WriteLocalResponse
	decodeJSON(t, rec, &second)
	require.Equal(t, uint64(1), second.Offset)

	msgs, err := ts.srv.queue.ReadFrom("custom", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, []byte("hello"), msgs[0].Content)
}

func TestQueueWriteLocalReturnsRateLimitedWhenLogFull(t *testing.T) {
	ts := newTestServer(t)
	router := ts.srv.Router()

	qdb, err := bolt.Open(filepath.Join(t.TempDir(), "tiny-queue.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { qdb.Close() })
	ts.srv.queue = queue.New(qdb, nil, 8)

	body := WriteLocalRequest{Topic: "custom", Content: base64.StdEncoding.EncodeToString([]byte("too big for the ceiling"))}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, ts.signedRequest(t, http.MethodPost, "/queue/write_local", body))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestQueueWriteLocalRejectsInvalidBase64(t *testing.T) {
	ts := newTestServer(t)
	router := ts.srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, ts.signedRequest(t, http.MethodPost, "/queue/write_local", WriteLocalRequest{
		Topic: "custom", Content: "not-valid-base64!!",
	}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
