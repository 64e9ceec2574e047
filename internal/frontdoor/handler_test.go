package frontdoor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/workflow-gateway/internal/auth"
	"github.com/tjfontaine/workflow-gateway/internal/ratelimit"
	"github.com/tjfontaine/workflow-gateway/internal/server"
	"github.com/tjfontaine/workflow-gateway/internal/storage"
	"github.com/tjfontaine/workflow-gateway/internal/storage/memory"
	"github.com/tjfontaine/workflow-gateway/internal/workflow"
)

const testAPIKey = "wg-test-key"

// webhook records the bodies it receives and answers with a canned response.
type webhook struct {
	mu     sync.Mutex
	bodies []map[string]any
	secret string
}

func (wh *webhook) last(t *testing.T) map[string]any {
	t.Helper()
	wh.mu.Lock()
	defer wh.mu.Unlock()
	if len(wh.bodies) == 0 {
		t.Fatal("webhook was not called")
	}
	return wh.bodies[len(wh.bodies)-1]
}

func (wh *webhook) calls() int {
	wh.mu.Lock()
	defer wh.mu.Unlock()
	return len(wh.bodies)
}

func (wh *webhook) handler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var decoded map[string]any
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &decoded)

		wh.mu.Lock()
		wh.bodies = append(wh.bodies, decoded)
		wh.secret = r.Header.Get(workflow.SecretHeader)
		wh.mu.Unlock()

		if body != "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

type fixture struct {
	handler http.Handler
	audit   *memory.Store
}

type fixtureOptions struct {
	webhooks    map[string]string
	timeout     time.Duration
	requireAuth bool
	limiter     ratelimit.Limiter
	maxBytes    int64
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg, err := workflow.NewRegistry(opts.webhooks)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	audit := memory.New(0)
	svc := workflow.NewService(workflow.ServiceConfig{
		Registry: reg,
		Deliverer: workflow.NewDeliverer(workflow.DelivererConfig{
			Secret:  "s3cret",
			Timeout: opts.timeout,
			Logger:  logger,
		}),
		Audit:     audit,
		Logger:    logger,
		RequestID: server.GetRequestID,
	})

	authenticator := auth.NewAuthenticator(auth.Config{
		APIKeys: []auth.APIKey{{
			KeyHash: auth.HashAPIKey(testAPIKey),
			UserID:  "42",
			Name:    "alice",
		}},
	})

	srv := server.New(server.Config{Logger: logger})
	srv.Router.Route("/api", func(r chi.Router) {
		r.Use(server.AuthMiddleware(authenticator))
		var rl func(http.Handler) http.Handler
		if opts.limiter != nil {
			rl = server.RateLimitMiddleware(server.RateLimitOptions{Limiter: opts.limiter, Logger: logger})
		}
		Mount(r, NewHandler(HandlerConfig{
			Service:         svc,
			RequireAuth:     opts.requireAuth,
			MaxRequestBytes: opts.maxBytes,
		}).Routes(), rl)
	})

	return &fixture{handler: srv, audit: audit}
}

func (f *fixture) do(t *testing.T, method, path, body, apiKey string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response is not a JSON object: %v (%q)", err, rec.Body.String())
	}
	return rec, decoded
}

// =============================================================================
// Health and identity
// =============================================================================

func TestHandleHealth(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	for _, path := range []string{"/api/health", "/api/health/"} {
		rec, body := f.do(t, http.MethodGet, path, "", "")
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
		if body["status"] != "ok" || body["version"] != Version {
			t.Errorf("GET %s body = %v", path, body)
		}
	}
}

func TestHandleMe(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	rec, body := f.do(t, http.MethodGet, "/api/me/", "", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("anonymous status = %d, want 403", rec.Code)
	}
	if body["error"] != server.MessageNotAuthenticated {
		t.Errorf("anonymous error = %v", body["error"])
	}

	rec, body = f.do(t, http.MethodGet, "/api/me/", "", testAPIKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", rec.Code)
	}
	want := map[string]any{"id": "42", "name": "alice", "email": "user@example.com"}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("%s = %v, want %v", k, body[k], v)
		}
	}

	rec, _ = f.do(t, http.MethodGet, "/api/me/", "", "wrong-key")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("invalid key status = %d, want 401", rec.Code)
	}
}

// =============================================================================
// Trigger validation and resolution
// =============================================================================

func TestHandleTrigger_MissingSlug(t *testing.T) {
	f := newFixture(t, fixtureOptions{webhooks: map[string]string{"a": "http://127.0.0.1:1/a"}})

	bodies := map[string]string{
		"absent":  `{"payload":{"x":1}}`,
		"empty":   `{"slug":""}`,
		"null":    `{"slug":null}`,
		"no body": "",
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			rec, decoded := f.do(t, http.MethodPost, "/api/workflows/trigger/", body, "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			msg, _ := decoded["error"].(string)
			if !strings.Contains(msg, "slug") {
				t.Errorf("error %q does not mention slug", msg)
			}
		})
	}
}

func TestHandleTrigger_BodyTooLarge(t *testing.T) {
	wh := &webhook{}
	remote := httptest.NewServer(wh.handler(http.StatusOK, `{}`))
	defer remote.Close()

	f := newFixture(t, fixtureOptions{
		webhooks: map[string]string{"wf": remote.URL},
		maxBytes: 64,
	})

	rec, _ := f.do(t, http.MethodPost, "/api/workflows/trigger/", `{"slug":"wf","payload":{"n":1}}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("small body status = %d, want 200", rec.Code)
	}

	big := `{"slug":"wf","payload":{"blob":"` + strings.Repeat("x", 128) + `"}}`
	rec, decoded := f.do(t, http.MethodPost, "/api/workflows/trigger/", big, "")
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	msg, _ := decoded["error"].(string)
	if !strings.Contains(msg, "too large") {
		t.Errorf("error = %q, want mention of size", msg)
	}
	if wh.calls() != 1 {
		t.Errorf("webhook calls = %d, want 1", wh.calls())
	}
}

func TestHandleTrigger_DefaultBodyLimit(t *testing.T) {
	f := newFixture(t, fixtureOptions{webhooks: map[string]string{"wf": "http://127.0.0.1:1/a"}})

	big := `{"slug":"wf","payload":"` + strings.Repeat("x", workflow.DefaultMaxRequestBytes) + `"}`
	rec, _ := f.do(t, http.MethodPost, "/api/workflows/trigger/", big, "")
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestHandleTrigger_UnknownSlug(t *testing.T) {
	f := newFixture(t, fixtureOptions{webhooks: map[string]string{"known": "http://127.0.0.1:1/a"}})

	rec, body := f.do(t, http.MethodPost, "/api/workflows/trigger/", `{"slug":"mystery"}`, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "mystery") || !strings.Contains(msg, "not found") {
		t.Errorf("error = %q", msg)
	}

	records, _ := f.audit.ListTriggers(context.Background(), 10)
	if len(records) != 0 {
		t.Errorf("unknown slug was audited: %d records", len(records))
	}
}

// =============================================================================
// Trigger delivery
// =============================================================================

func TestHandleTrigger_EnrichesPayload(t *testing.T) {
	wh := &webhook{}
	remote := httptest.NewServer(wh.handler(http.StatusOK, `{"result":"x"}`))
	defer remote.Close()

	f := newFixture(t, fixtureOptions{webhooks: map[string]string{"report": remote.URL + "/hook"}})

	tests := []struct {
		name         string
		apiKey       string
		wantUserID   any
		wantUserName string
	}{
		{"anonymous", "", nil, "anonymous"},
		{"authenticated", testAPIKey, "42", "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.do(t, http.MethodPost, "/api/workflows/trigger/",
				`{"slug":"report","payload":{"date":"2024-01-01","rows":[1,2,{"k":null}]}}`, tt.apiKey)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if body["result"] != "x" {
				t.Errorf("body = %v, want {\"result\":\"x\"}", body)
			}

			sent := wh.last(t)
			input, _ := json.Marshal(sent["input"])
			if string(input) != `{"date":"2024-01-01","rows":[1,2,{"k":null}]}` {
				t.Errorf("input = %s", input)
			}
			meta, _ := sent["meta"].(map[string]any)
			if meta["user_id"] != tt.wantUserID {
				t.Errorf("user_id = %v, want %v", meta["user_id"], tt.wantUserID)
			}
			if meta["user_name"] != tt.wantUserName {
				t.Errorf("user_name = %v, want %v", meta["user_name"], tt.wantUserName)
			}
			if meta["source"] != workflow.DefaultSource {
				t.Errorf("source = %v", meta["source"])
			}
			if _, err := time.Parse(time.RFC3339Nano, meta["timestamp"].(string)); err != nil {
				t.Errorf("timestamp %v is not RFC 3339: %v", meta["timestamp"], err)
			}
		})
	}

	if wh.secret != "s3cret" {
		t.Errorf("secret header = %q", wh.secret)
	}
}

func TestHandleTrigger_OmittedPayload(t *testing.T) {
	wh := &webhook{}
	remote := httptest.NewServer(wh.handler(http.StatusOK, ""))
	defer remote.Close()

	f := newFixture(t, fixtureOptions{webhooks: map[string]string{"ping": remote.URL}})

	rec, body := f.do(t, http.MethodPost, "/api/workflows/trigger", `{"slug":"ping"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(body) != 0 {
		t.Errorf("empty remote body should map to {}, got %v", body)
	}

	input, ok := wh.last(t)["input"].(map[string]any)
	if !ok || len(input) != 0 {
		t.Errorf("input = %v, want {}", wh.last(t)["input"])
	}
}

func TestHandleTrigger_RemoteResponses(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		check      func(t *testing.T, body map[string]any)
	}{
		{
			name: "no content", status: http.StatusNoContent, wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				msg, _ := body["message"].(string)
				if body["status"] != "success" || !strings.Contains(msg, "triggered") {
					t.Errorf("body = %v", body)
				}
			},
		},
		{
			name: "server error", status: http.StatusInternalServerError, body: `{"message":"boom"}`,
			wantStatus: http.StatusBadGateway,
			check: func(t *testing.T, body map[string]any) {
				if _, ok := body["error"]; !ok {
					t.Error("missing error key")
				}
				details, ok := body["details"].(map[string]any)
				if !ok || details["message"] != "boom" {
					t.Errorf("details = %v", body["details"])
				}
			},
		},
		{
			name: "client error", status: http.StatusNotFound, body: `not json`,
			wantStatus: http.StatusBadGateway,
			check: func(t *testing.T, body map[string]any) {
				details, _ := body["details"].(map[string]any)
				if details["message"] != "not json" {
					t.Errorf("details = %v", body["details"])
				}
			},
		},
		{
			name: "accepted passes through", status: http.StatusAccepted, body: `{"queued":true}`,
			wantStatus: http.StatusAccepted,
			check: func(t *testing.T, body map[string]any) {
				if body["queued"] != true {
					t.Errorf("body = %v", body)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wh := &webhook{}
			remote := httptest.NewServer(wh.handler(tt.status, tt.body))
			defer remote.Close()

			f := newFixture(t, fixtureOptions{webhooks: map[string]string{"wf": remote.URL}})
			rec, body := f.do(t, http.MethodPost, "/api/workflows/trigger/", `{"slug":"wf"}`, "")

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			tt.check(t, body)
		})
	}
}

func TestHandleTrigger_Timeout(t *testing.T) {
	release := make(chan struct{})
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer remote.Close()
	defer close(release)

	f := newFixture(t, fixtureOptions{
		webhooks: map[string]string{"slow": remote.URL},
		timeout:  50 * time.Millisecond,
	})

	rec, body := f.do(t, http.MethodPost, "/api/workflows/trigger/", `{"slug":"slow"}`, "")
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "timed out") {
		t.Errorf("error = %q", msg)
	}
}

func TestHandleTrigger_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	f := newFixture(t, fixtureOptions{webhooks: map[string]string{"down": "http://" + addr + "/hook"}})

	rec, body := f.do(t, http.MethodPost, "/api/workflows/trigger/", `{"slug":"down"}`, "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if _, ok := body["error"]; !ok {
		t.Error("missing error key")
	}
}

// =============================================================================
// Authentication and rate limiting on the trigger route
// =============================================================================

func TestHandleTrigger_RequireAuth(t *testing.T) {
	wh := &webhook{}
	remote := httptest.NewServer(wh.handler(http.StatusOK, `{}`))
	defer remote.Close()

	f := newFixture(t, fixtureOptions{
		webhooks:    map[string]string{"wf": remote.URL},
		requireAuth: true,
	})

	rec, _ := f.do(t, http.MethodPost, "/api/workflows/trigger/", `{"slug":"wf"}`, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("anonymous status = %d, want 403", rec.Code)
	}
	if wh.calls() != 0 {
		t.Error("webhook called for rejected caller")
	}

	rec, _ = f.do(t, http.MethodPost, "/api/workflows/trigger/", `{"slug":"wf"}`, testAPIKey)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", rec.Code)
	}
}

func TestHandleTrigger_RateLimited(t *testing.T) {
	wh := &webhook{}
	remote := httptest.NewServer(wh.handler(http.StatusOK, `{}`))
	defer remote.Close()

	f := newFixture(t, fixtureOptions{
		webhooks: map[string]string{"wf": remote.URL},
		limiter:  ratelimit.NewMemoryLimiter(1, time.Minute, nil),
	})

	rec, _ := f.do(t, http.MethodPost, "/api/workflows/trigger/", `{"slug":"wf"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("x-ratelimit-limit-requests") != "1" {
		t.Errorf("limit header = %q", rec.Header().Get("x-ratelimit-limit-requests"))
	}

	rec, _ = f.do(t, http.MethodPost, "/api/workflows/trigger/", `{"slug":"wf"}`, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", rec.Code)
	}
	if wh.calls() != 1 {
		t.Errorf("webhook calls = %d, want 1", wh.calls())
	}

	// Health is not rate limited.
	rec, _ = f.do(t, http.MethodGet, "/api/health/", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

// =============================================================================
// Trigger audit listing
// =============================================================================

func TestHandleListTriggers(t *testing.T) {
	wh := &webhook{}
	remote := httptest.NewServer(wh.handler(http.StatusOK, `{}`))
	defer remote.Close()

	f := newFixture(t, fixtureOptions{webhooks: map[string]string{"wf": remote.URL}})

	for i := 0; i < 3; i++ {
		f.do(t, http.MethodPost, "/api/workflows/trigger/", `{"slug":"wf"}`, testAPIKey)
	}

	rec, _ := f.do(t, http.MethodGet, "/api/workflows/triggers/", "", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("anonymous status = %d, want 403", rec.Code)
	}

	rec, _ = f.do(t, http.MethodGet, "/api/workflows/triggers/?limit=abc", "", testAPIKey)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/workflows/triggers?limit=2", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	out := httptest.NewRecorder()
	f.handler.ServeHTTP(out, req)

	if out.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", out.Code)
	}
	var list struct {
		Triggers []storage.TriggerRecord `json:"triggers"`
	}
	if err := json.Unmarshal(out.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Triggers) != 2 {
		t.Fatalf("triggers = %d, want 2", len(list.Triggers))
	}
	got := list.Triggers[0]
	if got.Slug != "wf" || got.Outcome != "success" || got.ResponseStatus != http.StatusOK {
		t.Errorf("record = %+v", got)
	}
	if got.UserID == nil || *got.UserID != "42" {
		t.Errorf("user_id = %v, want 42", got.UserID)
	}
	if got.RequestID == "" {
		t.Error("request id not recorded")
	}
}
