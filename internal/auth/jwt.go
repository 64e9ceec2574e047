package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tjfontaine/workflow-gateway/internal/domain"
)

// Claims are the bearer token claims. The subject is the caller id.
type Claims struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 bearer tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify validates tokenString and returns its caller.
func (v *TokenVerifier) Verify(tokenString string) (domain.Caller, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return domain.Caller{}, errors.Join(ErrInvalidCredentials, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return domain.Caller{}, ErrInvalidCredentials
	}

	return domain.Caller{
		Authenticated: true,
		ID:            claims.Subject,
		Name:          claims.Name,
		Email:         claims.Email,
	}, nil
}

// TokenRequest describes a token to mint.
type TokenRequest struct {
	Subject string
	Name    string
	Email   string
	Issuer  string
	TTL     time.Duration
}

// IssueToken mints an HS256 bearer token.
func IssueToken(secret string, req TokenRequest) (string, error) {
	if secret == "" {
		return "", errors.New("token secret is required")
	}
	if req.Subject == "" {
		return "", errors.New("token subject is required")
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	now := time.Now()
	claims := Claims{
		Name:  req.Name,
		Email: req.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Subject,
			Issuer:    req.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
