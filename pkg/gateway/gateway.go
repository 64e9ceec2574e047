// Package gateway provides the public API for embedding the workflow gateway.
// This is the stable API for external consumers.
package gateway

import (
	"github.com/tjfontaine/workflow-gateway/internal/config"
	"github.com/tjfontaine/workflow-gateway/internal/runtime"
)

// Gateway is the main entry point for running the workflow gateway.
// See internal/runtime.Gateway for full documentation.
type Gateway = runtime.Gateway

// Option is a functional option for configuring a Gateway.
type Option = runtime.Option

// Config is the gateway configuration.
type Config = config.Config

// New creates a new Gateway from a loaded configuration.
// Example:
//
//	cfg, err := gateway.LoadConfig("config.yaml")
//	if err != nil {
//	    return err
//	}
//	gw, err := gateway.New(cfg, gateway.WithLogger(logger))
var New = runtime.New

// LoadConfig reads config.yaml (or path) and GATEWAY_ environment overrides.
var LoadConfig = config.Load

// Configuration options
var (
	WithLogger          = runtime.WithLogger
	WithTransport       = runtime.WithTransport
	WithAuditStore      = runtime.WithAuditStore
	WithRateLimiter     = runtime.WithRateLimiter
	WithMetricsRegistry = runtime.WithMetricsRegistry
	WithClock           = runtime.WithClock
)
