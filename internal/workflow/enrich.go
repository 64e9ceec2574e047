package workflow

import (
	"encoding/json"
	"time"

	"github.com/tjfontaine/workflow-gateway/internal/domain"
)

// DefaultSource identifies this gateway to automation servers.
const DefaultSource = "api-gateway"

// Meta is the caller metadata attached to every forwarded payload.
type Meta struct {
	UserID    *string `json:"user_id"`
	UserName  string  `json:"user_name"`
	Timestamp string  `json:"timestamp"`
	Source    string  `json:"source"`
}

// EnrichedPayload is the outbound webhook body.
type EnrichedPayload struct {
	Input json.RawMessage `json:"input"`
	Meta  Meta            `json:"meta"`
}

// Enricher wraps caller payloads with metadata.
type Enricher struct {
	source string
	now    func() time.Time
}

// NewEnricher creates an enricher. An empty source falls back to
// DefaultSource and a nil clock to time.Now.
func NewEnricher(source string, now func() time.Time) *Enricher {
	if source == "" {
		source = DefaultSource
	}
	if now == nil {
		now = time.Now
	}
	return &Enricher{source: source, now: now}
}

// Enrich builds the outbound payload for caller. The timestamp is taken at
// call time, in UTC.
func (e *Enricher) Enrich(payload json.RawMessage, caller domain.Caller) EnrichedPayload {
	if len(payload) == 0 {
		payload = emptyObject
	}
	return EnrichedPayload{
		Input: payload,
		Meta: Meta{
			UserID:    caller.UserID(),
			UserName:  caller.UserName(),
			Timestamp: e.now().UTC().Format(time.RFC3339Nano),
			Source:    e.source,
		},
	}
}
