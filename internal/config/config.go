package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides. Nested keys use "__",
// e.g. GATEWAY_WORKFLOWS__SECRET sets workflows.secret.
const EnvPrefix = "GATEWAY_"

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Workflows WorkflowsConfig `koanf:"workflows"`
	Auth      AuthConfig      `koanf:"auth"`
	Storage   StorageConfig   `koanf:"storage"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	BasePath        string        `koanf:"base_path"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// TrustProxy honors X-Forwarded-For and X-Real-IP for client addresses.
	TrustProxy bool       `koanf:"trust_proxy"`
	CORS       CORSConfig `koanf:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// WorkflowsConfig holds the webhook registry and outbound delivery settings.
type WorkflowsConfig struct {
	// Webhooks maps workflow slug to destination URL. Slugs must not contain ".".
	Webhooks             map[string]string `koanf:"webhooks"`
	Secret               string            `koanf:"secret"` // sent as X-Internal-Secret when set
	Timeout              time.Duration     `koanf:"timeout"`
	Source               string            `koanf:"source"`
	RequireAuth          bool              `koanf:"require_auth"`
	MaxResponseBytes     int64             `koanf:"max_response_bytes"`
	MaxRequestBytes      int64             `koanf:"max_request_bytes"`
	BlockPrivateNetworks bool              `koanf:"block_private_networks"`
}

type AuthConfig struct {
	APIKeys []APIKeyConfig `koanf:"api_keys"`
	JWT     JWTConfig      `koanf:"jwt"`
}

type APIKeyConfig struct {
	KeyHash     string `koanf:"key_hash"`
	UserID      string `koanf:"user_id"`
	Name        string `koanf:"name"`
	Email       string `koanf:"email"`
	Description string `koanf:"description"`
}

type JWTConfig struct {
	Secret string `koanf:"secret"`
	Issuer string `koanf:"issuer"`
}

type StorageConfig struct {
	Type     string         `koanf:"type"` // none, memory, sqlite, postgres
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type PostgresConfig struct {
	DSN string `koanf:"dsn"`
}

type RateLimitConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Backend  string        `koanf:"backend"` // memory, redis
	Limit    int           `koanf:"limit"`
	Window   time.Duration `koanf:"window"`
	RedisURL string        `koanf:"redis_url"`
	FailOpen bool          `koanf:"fail_open"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

var defaults = map[string]any{
	"server.port":                  8080,
	"server.base_path":             "/api",
	"server.request_timeout":       "30s",
	"server.shutdown_timeout":      "30s",
	"workflows.timeout":            "10s",
	"workflows.source":             "api-gateway",
	"workflows.max_response_bytes": 10 << 20,
	"workflows.max_request_bytes":  2621440,
	"storage.type":                 "none",
	"storage.sqlite.path":          "./data/gateway.db",
	"rate_limit.backend":           "memory",
	"rate_limit.limit":             60,
	"rate_limit.window":            "1m",
	"telemetry.service_name":       "workflow-gateway",
	"logging.level":                "info",
	"logging.format":               "json",
}

// Load reads configuration from the YAML file at path (a missing file is
// fine) and then from GATEWAY_ environment variables, which take precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.substitute()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// substitute expands ${VAR} placeholders in values that commonly hold secrets.
func (c *Config) substitute() {
	c.Workflows.Secret = substituteEnvVars(c.Workflows.Secret)
	for slug, url := range c.Workflows.Webhooks {
		c.Workflows.Webhooks[slug] = substituteEnvVars(url)
	}
	c.Auth.JWT.Secret = substituteEnvVars(c.Auth.JWT.Secret)
	c.Storage.Postgres.DSN = substituteEnvVars(c.Storage.Postgres.DSN)
	c.RateLimit.RedisURL = substituteEnvVars(c.RateLimit.RedisURL)
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path %q must start with /", c.Server.BasePath)
	}
	if c.Workflows.Timeout <= 0 {
		return fmt.Errorf("workflows.timeout must be positive")
	}
	for slug := range c.Workflows.Webhooks {
		if slug == "" {
			return fmt.Errorf("workflows.webhooks contains an empty slug")
		}
	}

	switch c.Storage.Type {
	case "none", "memory":
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required for sqlite storage")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage.type %q", c.Storage.Type)
	}

	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case "memory":
		case "redis":
			if c.RateLimit.RedisURL == "" {
				return fmt.Errorf("rate_limit.redis_url is required for the redis backend")
			}
		default:
			return fmt.Errorf("unknown rate_limit.backend %q", c.RateLimit.Backend)
		}
		if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate_limit.limit and rate_limit.window must be positive")
		}
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}

	return nil
}

// envKey maps GATEWAY_A__B__C to a.b.c. Path segments are lowercased, but a
// slug under workflows.webhooks keeps its case since lookups are exact.
func envKey(s string) string {
	parts := strings.Split(strings.TrimPrefix(s, EnvPrefix), "__")
	for i, part := range parts {
		if i == 2 && strings.EqualFold(parts[0], "workflows") && strings.EqualFold(parts[1], "webhooks") {
			continue
		}
		parts[i] = strings.ToLower(part)
	}
	return strings.Join(parts, ".")
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
