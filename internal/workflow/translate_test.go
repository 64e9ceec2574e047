package workflow

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/tjfontaine/workflow-gateway/internal/domain"
)

func TestTranslate_Success(t *testing.T) {
	tests := []struct {
		name       string
		outcome    *Outcome
		wantStatus int
		wantBody   string
	}{
		{
			name:       "200 json passthrough",
			outcome:    &Outcome{Kind: OutcomeSuccess, StatusCode: 200, Body: []byte(`{"result":"x"}`)},
			wantStatus: http.StatusOK,
			wantBody:   `{"result":"x"}`,
		},
		{
			name:       "200 plain text",
			outcome:    &Outcome{Kind: OutcomeSuccess, StatusCode: 200, Body: []byte(`Workflow was started`)},
			wantStatus: http.StatusOK,
			wantBody:   `{"message":"Workflow was started"}`,
		},
		{
			name:       "200 empty body",
			outcome:    &Outcome{Kind: OutcomeSuccess, StatusCode: 200},
			wantStatus: http.StatusOK,
			wantBody:   `{}`,
		},
		{
			name:       "204 becomes success message",
			outcome:    &Outcome{Kind: OutcomeSuccess, StatusCode: 204},
			wantStatus: http.StatusOK,
			wantBody:   `{"message":"Workflow triggered","status":"success"}`,
		},
		{
			name:       "other 2xx passes status through",
			outcome:    &Outcome{Kind: OutcomeSuccess, StatusCode: 202, Body: []byte(`{"queued":true}`)},
			wantStatus: http.StatusAccepted,
			wantBody:   `{"queued":true}`,
		},
		{
			name:       "3xx passes status through",
			outcome:    &Outcome{Kind: OutcomeSuccess, StatusCode: 302, Body: []byte(`{"location":"elsewhere"}`)},
			wantStatus: http.StatusFound,
			wantBody:   `{"location":"elsewhere"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := Translate(tt.outcome)
			if err != nil {
				t.Fatalf("Translate() error = %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if string(resp.Body) != tt.wantBody {
				t.Errorf("Body = %s, want %s", resp.Body, tt.wantBody)
			}
		})
	}
}

func TestTranslate_Failures(t *testing.T) {
	tests := []struct {
		name        string
		outcome     *Outcome
		wantStatus  int
		wantMessage string
		wantDetails string
	}{
		{
			name:        "timeout",
			outcome:     &Outcome{Kind: OutcomeTimeout, Err: errors.New("deadline exceeded")},
			wantStatus:  http.StatusGatewayTimeout,
			wantMessage: "timed out",
		},
		{
			name:        "transport",
			outcome:     &Outcome{Kind: OutcomeTransportError, Err: errors.New("connection refused")},
			wantStatus:  http.StatusBadGateway,
			wantMessage: "Failed to reach automation server",
		},
		{
			name:        "remote json error",
			outcome:     &Outcome{Kind: OutcomeRemoteError, StatusCode: 500, Body: []byte(`{"code":500,"message":"boom"}`)},
			wantStatus:  http.StatusBadGateway,
			wantMessage: "Workflow execution failed",
			wantDetails: `{"code":500,"message":"boom"}`,
		},
		{
			name:        "remote text error",
			outcome:     &Outcome{Kind: OutcomeRemoteError, StatusCode: 404, Body: []byte(`Not Found`)},
			wantStatus:  http.StatusBadGateway,
			wantMessage: "Workflow execution failed",
			wantDetails: `{"message":"Not Found"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := Translate(tt.outcome)
			if resp != nil {
				t.Errorf("Translate() response = %+v, want nil", resp)
			}
			var apiErr *domain.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Translate() error = %v, want APIError", err)
			}
			if apiErr.HTTPStatusCode() != tt.wantStatus {
				t.Errorf("status = %d, want %d", apiErr.HTTPStatusCode(), tt.wantStatus)
			}
			if !strings.Contains(apiErr.Message, tt.wantMessage) {
				t.Errorf("message = %q, want containing %q", apiErr.Message, tt.wantMessage)
			}
			if string(apiErr.Details) != tt.wantDetails {
				t.Errorf("details = %s, want %s", apiErr.Details, tt.wantDetails)
			}

			body, _ := json.Marshal(apiErr)
			var decoded map[string]any
			json.Unmarshal(body, &decoded)
			if _, ok := decoded["error"]; !ok {
				t.Errorf("error body %s has no error key", body)
			}
			if _, ok := decoded["details"]; ok != (tt.wantDetails != "") {
				t.Errorf("error body %s details presence mismatch", body)
			}
		})
	}
}
