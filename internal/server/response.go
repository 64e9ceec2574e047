package server

import (
	"encoding/json"
	"net/http"

	"github.com/tjfontaine/workflow-gateway/internal/domain"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"Internal server error"}`)
	}
	WriteRawJSON(w, status, body)
}

// WriteRawJSON writes an already-encoded JSON body.
func WriteRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// WriteError converts err to an APIError and writes it. Errors that are not
// APIErrors become a generic 500; their text only reaches the request log.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := domain.ToAPIError(err)
	AddError(r.Context(), err)
	AddLogField(r.Context(), "error_type", string(apiErr.Type))
	WriteJSON(w, apiErr.HTTPStatusCode(), apiErr)
}
