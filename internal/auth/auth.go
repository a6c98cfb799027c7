// Package auth issues and validates bearer tokens for API clients.
// Tokens guard the endpoints that spend the temperature service quota.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Client roles, ordered by privilege
const (
	RoleAdmin    = "admin"    // Can issue tokens
	RoleEnricher = "enricher" // Can request surface temperatures
	RoleViewer   = "viewer"   // Read-only access
)

// Issuer is set on every token.
const Issuer = "balloonscope"

var (
	// ErrInvalidToken is returned when token validation fails
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrUnauthorized is returned when a client lacks the required role
	ErrUnauthorized = errors.New("unauthorized access")
	// ErrNoSecret is returned when tokens are requested without a secret
	ErrNoSecret = errors.New("no JWT secret configured")
)

// Claims represents the JWT claims for an API client.
type Claims struct {
	Client string `json:"client"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Config holds authentication configuration.
type Config struct {
	JWTSecret     string        // Secret key for signing JWTs; empty disables auth
	TokenDuration time.Duration // How long tokens are valid
}

// Service provides token operations.
type Service struct {
	config Config
	now    func() time.Time
}

// NewService creates a new authentication service.
func NewService(cfg Config) *Service {
	if cfg.TokenDuration == 0 {
		cfg.TokenDuration = 24 * time.Hour
	}
	return &Service{config: cfg, now: time.Now}
}

// Enabled reports whether a secret is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.config.JWTSecret != ""
}

// GenerateToken generates a signed token for a client.
func (s *Service) GenerateToken(client, role string) (string, error) {
	if !s.Enabled() {
		return "", ErrNoSecret
	}

	now := s.now()
	claims := &Claims{
		Client: client,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   client,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// ValidateToken validates a token and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	if !s.Enabled() {
		return nil, ErrNoSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithIssuer(Issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// HasRole checks if a role meets the required role.
// Role hierarchy: Admin > Enricher > Viewer
func HasRole(role, required string) bool {
	roleLevel := map[string]int{
		RoleAdmin:    2,
		RoleEnricher: 1,
		RoleViewer:   0,
	}

	have, ok1 := roleLevel[role]
	need, ok2 := roleLevel[required]
	if !ok1 || !ok2 {
		return false
	}
	return have >= need
}

type contextKey struct{}

// ClaimsFromContext returns the claims stored by Middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok
}

// Middleware requires a valid bearer token carrying at least the given role.
// When the service is disabled every request passes through.
func (s *Service) Middleware(required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Missing authorization header", http.StatusUnauthorized)
				return
			}

			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := s.ValidateToken(token)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			if !HasRole(claims.Role, required) {
				http.Error(w, ErrUnauthorized.Error(), http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), contextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
