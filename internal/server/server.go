package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/workflow-gateway/internal/domain"
)

// DefaultRequestTimeout bounds a whole inbound request.
const DefaultRequestTimeout = 30 * time.Second

// Config configures the router and its shared middleware.
type Config struct {
	Logger         *slog.Logger
	RequestTimeout time.Duration
	CORS           CORSPolicy
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// OperationName labels inbound spans.
	OperationName string
}

type Server struct {
	Router *chi.Mux
	logger *slog.Logger
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	operation := cfg.OperationName
	if operation == "" {
		operation = "workflow-gateway"
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(LoggingMiddleware(logger))
	r.Use(RecovererMiddleware(logger))
	r.Use(CORSMiddleware(cfg.CORS))
	r.Use(middleware.StripSlashes)
	r.Use(TimeoutMiddleware(timeout))

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, operation)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, domain.ErrNotFound("Not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, domain.NewAPIError(domain.ErrorTypeValidation, "Method not allowed").
			WithStatusCode(http.StatusMethodNotAllowed))
	})

	return &Server{
		Router: r,
		logger: logger,
	}
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}
