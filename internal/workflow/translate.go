package workflow

import (
	"encoding/json"
	"net/http"

	"github.com/tjfontaine/workflow-gateway/internal/domain"
)

// Caller-facing messages for each outcome.
const (
	MessageTriggered       = "Workflow triggered"
	MessageExecutionFailed = "Workflow execution failed"
	MessageTimedOut        = "Workflow request timed out"
	MessageUnreachable     = "Failed to reach automation server"
)

// Response is the gateway's answer to a trigger call.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// Translate maps a delivery outcome onto the gateway's response vocabulary.
// Failure outcomes are returned as *domain.APIError.
func Translate(o *Outcome) (*Response, error) {
	switch o.Kind {
	case OutcomeTimeout:
		return nil, domain.NewAPIError(domain.ErrorTypeTimeout, MessageTimedOut)
	case OutcomeTransportError:
		return nil, domain.NewAPIError(domain.ErrorTypeTransport, MessageUnreachable)
	case OutcomeRemoteError:
		return nil, domain.NewAPIError(domain.ErrorTypeRemote, MessageExecutionFailed).
			WithDetails(parseBody(o.Body))
	}

	switch o.StatusCode {
	case http.StatusOK:
		return &Response{StatusCode: http.StatusOK, Body: parseBody(o.Body)}, nil
	case http.StatusNoContent:
		body, _ := json.Marshal(map[string]string{
			"status":  "success",
			"message": MessageTriggered,
		})
		return &Response{StatusCode: http.StatusOK, Body: body}, nil
	default:
		return &Response{StatusCode: o.StatusCode, Body: parseBody(o.Body)}, nil
	}
}

// parseBody returns body when it is valid JSON, {} when empty, and the raw
// text wrapped as {"message": ...} otherwise.
func parseBody(body []byte) json.RawMessage {
	if len(body) == 0 {
		return emptyObject
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	wrapped, _ := json.Marshal(map[string]string{"message": string(body)})
	return wrapped
}
