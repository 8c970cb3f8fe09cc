package api

import (
	"encoding/base64"
	"net/http"

	"github.com/cuemby/meshcore/pkg/apierr"
)

// WriteLocalRequest appends one message to a topic's log without gossiping
// it — distinct from the direct/op entity routes, which always gossip.
// Content is base64 so callers can enqueue arbitrary binary payloads over
// JSON.
type WriteLocalRequest struct {
	Topic string `json:"topic"`
	Subtopic byte `json:"subtopic,omitempty"`
	Content string `json:"content"`
}

// WriteLocalResponse reports the offset the message was assigned.
type WriteLocalResponse struct {
	Offset uint64 `json:"offset"`
}

func (s *Server) handleQueueWriteLocal(w http.ResponseWriter, r *http.Request) {
	var req WriteLocalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Topic == "" {
		writeError(w, apierr.InvalidRequest("topic is required"))
		return
	}

	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeError(w, apierr.InvalidRequest("content must be base64: %v", err))
		return
	}

	offset, err := s.queue.Write(req.Topic, req.Subtopic, content)
	if err != nil {
		writeError(w, enqueueErr(err))
		return
	}
	writeJSON(w, http.StatusOK, WriteLocalResponse{Offset: offset})
}
