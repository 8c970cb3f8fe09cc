package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/meshcore/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestAgentCreateAssignsIDAndUpdate(t *testing.T) {
	ts := newTestServer(t)
	router := ts.srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, ts.signedRequest(t, http.MethodPost, "/agent/create", CreateAgentRequest{
		Owner:     "0xowner",
		Name:      "research-assistant",
		Framework: types.FrameworkLangChain,
		Runtime:   types.RuntimePython,
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var created types.Agent
	decodeJSON(t, rec, &created)
	require.NotEmpty(t, created.ID)
	require.Equal(t, types.FrameworkLangChain, created.Framework)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, ts.signedRequest(t, http.MethodPost, "/agent/update", UpdateAgentRequest{
		ID: created.ID, Version: "1.1.0",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var updated types.Agent
	decodeJSON(t, rec, &updated)
	require.Equal(t, "1.1.0", updated.Version)
	require.True(t, updated.UpdatedAt.After(created.CreatedAt) || updated.UpdatedAt.Equal(created.CreatedAt))
}

func TestAgentCreateRequiresOwnerAndName(t *testing.T) {
	ts := newTestServer(t)
	router := ts.srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, ts.signedRequest(t, http.MethodPost, "/agent/create", CreateAgentRequest{Name: "no-owner"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgentUpdateUnknownReturnsNotFound(t *testing.T) {
	ts := newTestServer(t)
	router := ts.srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, ts.signedRequest(t, http.MethodPost, "/agent/update", UpdateAgentRequest{ID: "missing"}))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
