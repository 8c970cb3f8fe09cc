package api

import (
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/cuemby/meshcore/pkg/apierr"
	"github.com/cuemby/meshcore/pkg/types"
)

// bootstrapZone is a reserved DNS Zone Store zone under which well-known
// bootstrap peers publish their reachable endpoints, so a brand-new node
// can resolve an initial peer set the same way it resolves any other
// published record, reusing the zone store rather than introducing a
// dedicated bootstrap table.
const bootstrapZone = "bootstrap"

func bootstrapLabel(id types.Address) string {
	return fmt.Sprintf("%s.%s", id, bootstrapZone)
}

// BootstrapAddRequest publishes (or refreshes) a bootstrap node's reachable
// endpoints.
type BootstrapAddRequest struct {
	ID        types.Address `json:"id"`
	Endpoints []string      `json:"endpoints"`
	TTL       uint32        `json:"ttl,omitempty"`
}

// BootstrapRemoveRequest retracts a bootstrap node's record.
type BootstrapRemoveRequest struct {
	ID types.Address `json:"id"`
}

func (s *Server) handleBootstrapAdd(w http.ResponseWriter, r *http.Request) {
	var req BootstrapAddRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ID == "" || len(req.Endpoints) == 0 {
		writeError(w, apierr.InvalidRequest("id and endpoints are required"))
		return
	}

	ttl := req.TTL
	if ttl == 0 {
		ttl = 300
	}
	record := types.DNSRecord{
		Label:       bootstrapLabel(req.ID),
		Type:        types.RecordA,
		TTL:         ttl,
		Entrypoints: parseEntrypoints(req.Endpoints),
	}

	op, err := s.zone.Publish(req.ID, record)
	if err != nil {
		writeError(w, apierr.Forbidden("%v", err))
		return
	}
	if err := s.gossipOp(topicDNS, op); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleBootstrapRemove(w http.ResponseWriter, r *http.Request) {
	var req BootstrapRemoveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	op, err := s.zone.Remove(req.ID, bootstrapLabel(req.ID))
	if err != nil {
		writeError(w, apierr.NotFound("%v", err))
		return
	}
	if err := s.gossipOp(topicDNS, op); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "id": string(req.ID)})
}

func (s *Server) handleBootstrapList(w http.ResponseWriter, r *http.Request) {
	zone := s.zone.ExportZone(bootstrapZone, "")
	writeJSON(w, http.StatusOK, flattenRecords(&zone))
}

// flattenRecords walks a Zone's nested sub-zones into a flat record list.
func flattenRecords(zone *types.Zone) []types.DNSRecord {
	var out []types.DNSRecord
	for _, rec := range zone.Records {
		out = append(out, rec)
	}
	for _, sub := range zone.SubZones {
		out = append(out, flattenRecords(sub)...)
	}
	return out
}

// parseEntrypoints turns "host:port" strings into Entrypoints, skipping any
// that don't parse; a bootstrap node with no valid endpoints left is the
// caller's mistake, not this layer's to reject wholesale.
func parseEntrypoints(endpoints []string) []types.Entrypoint {
	eps := make([]types.Entrypoint, 0, len(endpoints))
	for _, e := range endpoints {
		host, portStr, err := net.SplitHostPort(e)
		if err != nil {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		eps = append(eps, types.Entrypoint{Addr: host, Protocol: "udp", Port: port})
	}
	return eps
}
