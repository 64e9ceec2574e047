package runtime

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tjfontaine/workflow-gateway/internal/ratelimit"
	"github.com/tjfontaine/workflow-gateway/internal/storage"
)

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		g.logger = logger
		return nil
	}
}

// WithTransport replaces the outbound webhook transport. The private network
// guard from workflows.block_private_networks is not applied to it.
func WithTransport(rt http.RoundTripper) Option {
	return func(g *Gateway) error {
		g.transport = rt
		return nil
	}
}

// WithAuditStore sets the trigger audit store, overriding storage.type.
// The gateway closes it on shutdown.
func WithAuditStore(store storage.AuditStore) Option {
	return func(g *Gateway) error {
		g.audit = store
		return nil
	}
}

// WithRateLimiter sets the trigger rate limiter, overriding rate_limit.backend.
// It is used even when rate_limit.enabled is false.
func WithRateLimiter(limiter ratelimit.Limiter) Option {
	return func(g *Gateway) error {
		g.limiter = limiter
		return nil
	}
}

// WithMetricsRegistry registers gateway metrics on reg instead of a fresh
// registry. /metrics serves reg.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(g *Gateway) error {
		g.registry = reg
		return nil
	}
}

// WithClock sets the clock used for payload timestamps, audit records and
// the in-memory rate limiter.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) error {
		if now == nil {
			return fmt.Errorf("clock must not be nil")
		}
		g.now = now
		return nil
	}
}
