package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/cuemby/meshcore/pkg/apierr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	apiErr := apierr.As(err)
	writeJSON(w, apiErr.Status(), map[string]string{"error": apiErr.Message})
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apierr.InvalidRequest("malformed request body: %v", err)
	}
	return nil
}

// readRawBody buffers the full request body so a handler can probe its
// shape (direct payload vs. pre-built op) before deciding how to decode it.
func readRawBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apierr.InvalidRequest("read request body: %v", err)
	}
	return raw, nil
}

// unmarshalStrict decodes a buffered body, rejecting unknown fields.
func unmarshalStrict(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apierr.InvalidRequest("malformed request body: %v", err)
	}
	return nil
}
