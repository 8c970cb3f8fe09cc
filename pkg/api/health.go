package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/meshcore/pkg/metrics"
)

// HealthServer provides HTTP health and readiness checks, served on an
// unauthenticated mux separate from the authenticated API router.
type HealthServer struct {
	store *Server
	mux   *http.ServeMux
}

// NewHealthServer wires a health server backed by srv's collaborators.
func NewHealthServer(srv *Server) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{store: srv, mux: mux}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start blocks serving the health mux on addr.
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// HealthResponse is the /health liveness payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the /ready payload.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

// readyHandler reports whether the local State Store and Event Queue are
// reachable — there is no leader to wait on (the store is CRDT, not Raft),
// so readiness here means "this peer can serve reads and accept writes".
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	if hs.store != nil && hs.store.store != nil {
		checks["state_store"] = "ok"
	} else {
		checks["state_store"] = "not initialized"
		ready = false
		message = "state store not initialized"
	}

	if hs.store != nil && hs.store.queue != nil {
		checks["event_queue"] = "ok"
	} else {
		checks["event_queue"] = "not initialized"
		ready = false
		if message == "" {
			message = "event queue not initialized"
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	})
}

// GetHandler returns the HTTP handler for embedding in other servers.
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}
