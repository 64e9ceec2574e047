package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/tjfontaine/workflow-gateway/internal/domain"
)

// DefaultMaxRequestBytes caps a trigger body.
const DefaultMaxRequestBytes = 2621440

// emptyObject is the payload used when the caller sends none.
var emptyObject = json.RawMessage(`{}`)

// TriggerRequest is a validated trigger call.
type TriggerRequest struct {
	Slug string
	// Payload is the caller's data, byte-for-byte as received.
	Payload json.RawMessage
}

type rawTriggerRequest struct {
	Slug    json.RawMessage `json:"slug"`
	Payload json.RawMessage `json:"payload"`
}

// ParseTriggerRequest decodes and validates a trigger body. Only the slug is
// checked; the payload is opaque and defaults to {} when absent or null.
func ParseTriggerRequest(body io.Reader) (*TriggerRequest, error) {
	var raw rawTriggerRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return nil, missingSlug()
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, domain.ErrValidation("Request body too large").
				WithStatusCode(http.StatusRequestEntityTooLarge)
		}
		return nil, domain.ErrValidation("Request body must be a JSON object")
	}

	if isNull(raw.Slug) {
		return nil, missingSlug()
	}
	var slug string
	if err := json.Unmarshal(raw.Slug, &slug); err != nil {
		return nil, domain.ErrValidation("Field 'slug' must be a string")
	}
	if slug == "" {
		return nil, missingSlug()
	}

	payload := raw.Payload
	if isNull(payload) {
		payload = emptyObject
	}

	return &TriggerRequest{
		Slug:    slug,
		Payload: payload,
	}, nil
}

func missingSlug() error {
	return domain.ErrValidation("Missing required field: 'slug'")
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
