// Package frontdoor holds the HTTP handlers that face API clients: health,
// caller identity, workflow triggers and the trigger audit listing.
package frontdoor

import (
	"net/http"
	"strconv"

	"github.com/tjfontaine/workflow-gateway/internal/auth"
	"github.com/tjfontaine/workflow-gateway/internal/domain"
	"github.com/tjfontaine/workflow-gateway/internal/server"
	"github.com/tjfontaine/workflow-gateway/internal/storage"
	"github.com/tjfontaine/workflow-gateway/internal/workflow"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// HandlerRegistration describes one route exposed by the frontdoor.
type HandlerRegistration struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
	// RateLimited routes are wrapped with the rate limiter when one is configured.
	RateLimited bool
	// Authenticated routes answer 403 to anonymous callers.
	Authenticated bool
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Service *workflow.Service
	// RequireAuth marks the trigger route as Authenticated.
	RequireAuth bool
	// MaxRequestBytes caps trigger bodies; workflow.DefaultMaxRequestBytes when zero.
	MaxRequestBytes int64
}

type Handler struct {
	service     *workflow.Service
	requireAuth bool
	maxBytes    int64
}

func NewHandler(cfg HandlerConfig) *Handler {
	maxBytes := cfg.MaxRequestBytes
	if maxBytes <= 0 {
		maxBytes = workflow.DefaultMaxRequestBytes
	}
	return &Handler{
		service:     cfg.Service,
		requireAuth: cfg.RequireAuth,
		maxBytes:    maxBytes,
	}
}

// Routes returns the handler registrations relative to the API base path.
func (h *Handler) Routes() []HandlerRegistration {
	return []HandlerRegistration{
		{Method: http.MethodGet, Path: "/health", Handler: h.HandleHealth},
		{Method: http.MethodGet, Path: "/me", Handler: h.HandleMe, Authenticated: true},
		{Method: http.MethodPost, Path: "/workflows/trigger", Handler: h.HandleTrigger, RateLimited: true, Authenticated: h.requireAuth},
		{Method: http.MethodGet, Path: "/workflows/triggers", Handler: h.HandleListTriggers, Authenticated: true},
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	server.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: Version})
}

type meResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// HandleMe reports the authenticated caller. It must be mounted behind
// server.RequireCaller.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFromContext(r.Context())
	server.WriteJSON(w, http.StatusOK, meResponse{
		ID:    caller.ID,
		Name:  caller.Name,
		Email: caller.EmailOrDefault(),
	})
}

// HandleTrigger validates the body, forwards it to the configured webhook and
// relays the translated response.
func (h *Handler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFromContext(r.Context())
	server.AddLogField(r.Context(), "caller", caller.UserName())

	req, err := workflow.ParseTriggerRequest(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		server.WriteError(w, r, err)
		return
	}
	server.AddLogField(r.Context(), "slug", req.Slug)

	resp, err := h.service.Trigger(r.Context(), req, caller)
	if err != nil {
		server.WriteError(w, r, err)
		return
	}

	server.AddLogField(r.Context(), "remote_status", strconv.Itoa(resp.StatusCode))
	server.WriteRawJSON(w, resp.StatusCode, resp.Body)
}

type listTriggersResponse struct {
	Triggers []*storage.TriggerRecord `json:"triggers"`
}

// HandleListTriggers returns recent audit records. ?limit= is clamped to
// storage.MaxListLimit.
func (h *Handler) HandleListTriggers(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			server.WriteError(w, r, domain.ErrValidation("Query parameter 'limit' must be a non-negative integer"))
			return
		}
		limit = n
	}

	records, err := h.service.RecentTriggers(r.Context(), limit)
	if err != nil {
		server.WriteError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, listTriggersResponse{Triggers: records})
}
