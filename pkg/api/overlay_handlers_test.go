package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/meshcore/pkg/types"
	"github.com/stretchr/testify/require"
)

func createTestCIDR(t *testing.T, ts *testServer, router http.Handler, id, network, parentID string) types.CIDR {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, ts.signedRequest(t, http.MethodPost, "/cidr/create", CreateCIDRRequest{
		ID: id, Name: id, Network: network, ParentID: parentID,
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	var cidr types.CIDR
	decodeJSON(t, rec, &cidr)
	return cidr
}

func TestCIDRCreateRejectsUnknownParent(t *testing.T) {
	ts := newTestServer(t)
	router := ts.srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, ts.signedRequest(t, http.MethodPost, "/cidr/create", CreateCIDRRequest{
		ID: "child", Network: "10.1.0.0/24", ParentID: "does-not-exist",
	}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCIDRDeleteRejectsWithDescendants(t *testing.T) {
	ts := newTestServer(t)
	router := ts.srv.Router()

	createTestCIDR(t, ts, router, "root", "10.0.0.0/16", "")
	createTestCIDR(t, ts, router, "child", "10.0.1.0/24", "root")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, ts.signedRequest(t, http.MethodPost, "/cidr/delete", DeleteCIDRRequest{ID: "root"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAssociationCreateListAndRelationships(t *testing.T) {
	ts := newTestServer(t)
	router := ts.srv.Router()

	createTestCIDR(t, ts, router, "cidr-a", "10.0.0.0/24", "")
	createTestCIDR(t, ts, router, "cidr-b", "10.0.1.0/24", "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, ts.signedRequest(t, http.MethodPost, "/assoc/create", CreateAssociationRequest{
		CIDRA: "cidr-a", CIDRB: "cidr-b",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, ts.signedRequest(t, http.MethodGet, "/assoc/list", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []types.Association
	decodeJSON(t, rec, &list)
	require.Len(t, list, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, ts.signedRequest(t, http.MethodGet, "/assoc/cidr-a/relationships", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var related []types.Association
	decodeJSON(t, rec, &related)
	require.Len(t, related, 1)
}

func TestAssociationCreateIsIdempotentRegardlessOfOrder(t *testing.T) {
	ts := newTestServer(t)
	router := ts.srv.Router()

	createTestCIDR(t, ts, router, "cidr-a", "10.0.0.0/24", "")
	createTestCIDR(t, ts, router, "cidr-b", "10.0.1.0/24", "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, ts.signedRequest(t, http.MethodPost, "/assoc/create", CreateAssociationRequest{CIDRA: "cidr-a", CIDRB: "cidr-b"}))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, ts.signedRequest(t, http.MethodPost, "/assoc/create", CreateAssociationRequest{CIDRA: "cidr-b", CIDRB: "cidr-a"}))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, ts.srv.store.Associations.List(), 1)
}
