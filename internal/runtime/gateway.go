// Package runtime provides the Gateway struct and lifecycle management for
// the workflow gateway.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/workflow-gateway/internal/auth"
	"github.com/tjfontaine/workflow-gateway/internal/config"
	"github.com/tjfontaine/workflow-gateway/internal/frontdoor"
	"github.com/tjfontaine/workflow-gateway/internal/metrics"
	"github.com/tjfontaine/workflow-gateway/internal/pkg/safehttp"
	"github.com/tjfontaine/workflow-gateway/internal/ratelimit"
	"github.com/tjfontaine/workflow-gateway/internal/server"
	"github.com/tjfontaine/workflow-gateway/internal/storage"
	"github.com/tjfontaine/workflow-gateway/internal/storage/memory"
	"github.com/tjfontaine/workflow-gateway/internal/storage/postgres"
	"github.com/tjfontaine/workflow-gateway/internal/storage/sqlite"
	"github.com/tjfontaine/workflow-gateway/internal/workflow"
)

// connectTimeout bounds start-up connections to Redis and Postgres.
const connectTimeout = 10 * time.Second

// Gateway wires configuration into a running HTTP service. It can be
// embedded in larger applications through Handler or run standalone with
// Start and Shutdown.
type Gateway struct {
	// Dependencies (injected via options or built from config)
	cfg       *config.Config
	logger    *slog.Logger
	transport http.RoundTripper
	audit     storage.AuditStore
	limiter   ratelimit.Limiter
	registry  *prometheus.Registry
	now       func() time.Time

	metrics *metrics.Metrics
	service *workflow.Service
	handler http.Handler

	// Lifecycle management
	server   *http.Server
	listener net.Listener
	closers  []func() error
	mu       sync.Mutex
}

// New builds a Gateway from cfg. Nothing listens until Start is called.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}

	gw := &Gateway{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(gw); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if err := gw.init(); err != nil {
		gw.closeResources()
		return nil, err
	}
	return gw, nil
}

func (g *Gateway) init() error {
	cfg := g.cfg

	registry, err := workflow.NewRegistry(cfg.Workflows.Webhooks)
	if err != nil {
		return fmt.Errorf("build webhook registry: %w", err)
	}
	if registry.Len() == 0 {
		g.logger.Warn("no workflows configured; every trigger will return 404")
	}

	if err := g.initAudit(); err != nil {
		return fmt.Errorf("init audit store: %w", err)
	}
	if err := g.initLimiter(); err != nil {
		return fmt.Errorf("init rate limiter: %w", err)
	}

	if g.registry == nil {
		g.registry = prometheus.NewRegistry()
	}
	g.metrics = metrics.New(g.registry)

	if g.transport == nil {
		g.transport = otelhttp.NewTransport(safehttp.NewTransport(cfg.Workflows.BlockPrivateNetworks))
	}

	g.service = workflow.NewService(workflow.ServiceConfig{
		Registry: registry,
		Enricher: workflow.NewEnricher(cfg.Workflows.Source, g.now),
		Deliverer: workflow.NewDeliverer(workflow.DelivererConfig{
			Secret:           cfg.Workflows.Secret,
			Timeout:          cfg.Workflows.Timeout,
			MaxResponseBytes: cfg.Workflows.MaxResponseBytes,
			Transport:        g.transport,
			Logger:           g.logger,
		}),
		Audit:     g.audit,
		Metrics:   g.metrics,
		Logger:    g.logger,
		RequestID: server.GetRequestID,
		Now:       g.now,
	})

	g.handler = g.buildRouter()

	g.logger.Info("gateway configured",
		slog.Int("workflows", registry.Len()),
		slog.String("base_path", cfg.Server.BasePath),
		slog.String("storage", g.storageName()),
		slog.Bool("rate_limit", g.limiter != nil),
		slog.Bool("require_auth", cfg.Workflows.RequireAuth))
	return nil
}

// initAudit opens the configured audit store unless one was injected.
func (g *Gateway) initAudit() error {
	if g.audit != nil {
		g.closers = append(g.closers, g.audit.Close)
		return nil
	}

	switch g.cfg.Storage.Type {
	case "", "none":
		return nil
	case "memory":
		g.audit = memory.New(memory.DefaultCapacity)
	case "sqlite":
		path := g.cfg.Storage.SQLite.Path
		if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		store, err := sqlite.New(path)
		if err != nil {
			return err
		}
		g.audit = store
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		store, err := postgres.New(ctx, g.cfg.Storage.Postgres.DSN)
		if err != nil {
			return err
		}
		g.audit = store
	default:
		return fmt.Errorf("unknown storage type %q", g.cfg.Storage.Type)
	}

	g.closers = append(g.closers, g.audit.Close)
	return nil
}

// initLimiter builds the configured limiter unless one was injected.
func (g *Gateway) initLimiter() error {
	rl := g.cfg.RateLimit
	if g.limiter != nil || !rl.Enabled {
		return nil
	}

	switch rl.Backend {
	case "", "memory":
		g.limiter = ratelimit.NewMemoryLimiter(rl.Limit, rl.Window, g.now)
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		rdb, err := ratelimit.NewRedisClient(ctx, rl.RedisURL)
		if err != nil {
			return err
		}
		g.closers = append(g.closers, rdb.Close)
		g.limiter = ratelimit.NewRedisLimiter(rdb, rl.Limit, rl.Window, "")
	default:
		return fmt.Errorf("unknown rate limit backend %q", rl.Backend)
	}
	return nil
}

func (g *Gateway) buildRouter() http.Handler {
	cfg := g.cfg

	srv := server.New(server.Config{
		Logger:         g.logger,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORS:           server.DefaultCORSPolicy(cfg.Server.CORS.AllowedOrigins),
		TrustProxy:     cfg.Server.TrustProxy,
		OperationName:  cfg.Telemetry.ServiceName,
	})

	srv.Router.Method(http.MethodGet, "/metrics", g.metrics.Handler())

	authenticator := auth.NewAuthenticator(authConfig(cfg.Auth))

	var rateLimit func(http.Handler) http.Handler
	if g.limiter != nil {
		rateLimit = server.RateLimitMiddleware(server.RateLimitOptions{
			Limiter:  g.limiter,
			FailOpen: cfg.RateLimit.FailOpen,
			Metrics:  g.metrics,
			Logger:   g.logger,
			Now:      g.now,
		})
	}

	handler := frontdoor.NewHandler(frontdoor.HandlerConfig{
		Service:         g.service,
		RequireAuth:     cfg.Workflows.RequireAuth,
		MaxRequestBytes: cfg.Workflows.MaxRequestBytes,
	})

	mount := func(r chi.Router) {
		r.Use(server.AuthMiddleware(authenticator))
		frontdoor.Mount(r, handler.Routes(), rateLimit)
	}

	basePath := strings.TrimSuffix(cfg.Server.BasePath, "/")
	if basePath == "" {
		srv.Router.Group(mount)
	} else {
		srv.Router.Route(basePath, mount)
	}

	return srv
}

func authConfig(cfg config.AuthConfig) auth.Config {
	keys := make([]auth.APIKey, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		keys = append(keys, auth.APIKey{
			KeyHash: k.KeyHash,
			UserID:  k.UserID,
			Name:    k.Name,
			Email:   k.Email,
		})
	}
	return auth.Config{
		APIKeys:   keys,
		JWTSecret: cfg.JWT.Secret,
		JWTIssuer: cfg.JWT.Issuer,
	}
}

func (g *Gateway) storageName() string {
	if g.audit == nil {
		return "none"
	}
	if g.cfg.Storage.Type == "" {
		return "custom"
	}
	return g.cfg.Storage.Type
}

// Handler returns the gateway's root HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Service returns the trigger service.
func (g *Gateway) Service() *workflow.Service {
	return g.service
}

// Addr returns the listening address, or "" before Start.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// Start binds the configured port and serves in the background. Bind errors
// are returned directly.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.server != nil {
		return fmt.Errorf("gateway already started")
	}

	addr := fmt.Sprintf(":%d", g.cfg.Server.Port)
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	writeTimeout := g.cfg.Server.RequestTimeout
	if writeTimeout <= 0 {
		writeTimeout = server.DefaultRequestTimeout
	}

	g.listener = ln
	g.server = &http.Server{
		Handler:           g.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Leave room for the timeout middleware to write its response.
		WriteTimeout: writeTimeout + 5*time.Second,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	srv := g.server
	go func() {
		g.logger.Info("HTTP server listening", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Shutdown gracefully stops the gateway and releases its resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("shutting down gateway")

	var shutdownErr error
	if g.server != nil {
		if err := g.server.Shutdown(ctx); err != nil {
			g.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			shutdownErr = err
		}
		g.server = nil
		g.listener = nil
	}

	g.closeResources()

	g.logger.Info("gateway shutdown complete")
	return shutdownErr
}

func (g *Gateway) closeResources() {
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i](); err != nil {
			g.logger.Error("failed to close resource", slog.String("error", err.Error()))
		}
	}
	g.closers = nil
}
