// Package auth resolves bearer credentials to callers.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tjfontaine/workflow-gateway/internal/domain"
)

// ErrInvalidCredentials is returned for any presented but unusable credential.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrNoCredentials is returned by ExtractBearer when no Authorization header is set.
var ErrNoCredentials = errors.New("missing Authorization header")

// APIKey binds a hashed key to a caller identity.
type APIKey struct {
	KeyHash string
	UserID  string
	Name    string
	Email   string
}

// Config configures an Authenticator.
type Config struct {
	APIKeys []APIKey
	// JWTSecret enables HS256 bearer tokens when set.
	JWTSecret string
	// JWTIssuer is checked against the iss claim when set.
	JWTIssuer string
}

// Authenticator validates API keys and bearer tokens and extracts caller information
type Authenticator struct {
	keys   map[string]APIKey // keyhash -> key
	tokens *TokenVerifier
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(cfg Config) *Authenticator {
	a := &Authenticator{
		keys: make(map[string]APIKey, len(cfg.APIKeys)),
	}
	for _, key := range cfg.APIKeys {
		a.keys[strings.ToLower(key.KeyHash)] = key
	}
	if cfg.JWTSecret != "" {
		a.tokens = NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	}
	return a
}

// Authenticate resolves a raw bearer credential. Credentials that look like
// a JWT go through the token verifier when one is configured; everything else
// is treated as an API key.
func (a *Authenticator) Authenticate(credential string) (domain.Caller, error) {
	if credential == "" {
		return domain.Caller{}, ErrInvalidCredentials
	}
	if a.tokens != nil && looksLikeJWT(credential) {
		return a.tokens.Verify(credential)
	}
	return a.ValidateAPIKey(credential)
}

// ValidateAPIKey validates an API key and returns the associated caller
func (a *Authenticator) ValidateAPIKey(apiKey string) (domain.Caller, error) {
	keyHash := HashAPIKey(apiKey)

	key, ok := a.keys[keyHash]
	if !ok {
		return domain.Caller{}, ErrInvalidCredentials
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(keyHash), []byte(strings.ToLower(key.KeyHash))) != 1 {
		return domain.Caller{}, ErrInvalidCredentials
	}

	return domain.Caller{
		Authenticated: true,
		ID:            key.UserID,
		Name:          key.Name,
		Email:         key.Email,
	}, nil
}

// ExtractBearer extracts the credential from the Authorization header.
// ErrNoCredentials means the header is absent.
func ExtractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrNoCredentials
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	if strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("unsupported authorization scheme")
	}

	credential := strings.TrimSpace(parts[1])
	if credential == "" {
		return "", fmt.Errorf("empty bearer credential")
	}
	return credential, nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}

func looksLikeJWT(credential string) bool {
	return strings.Count(credential, ".") == 2
}

type callerKey struct{}

// ContextWithCaller attaches caller to ctx.
func ContextWithCaller(ctx context.Context, caller domain.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller attached to ctx, or the anonymous
// caller when none is set.
func CallerFromContext(ctx context.Context) domain.Caller {
	if caller, ok := ctx.Value(callerKey{}).(domain.Caller); ok {
		return caller
	}
	return domain.Anonymous()
}
