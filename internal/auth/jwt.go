// Package auth guards the write and admin surfaces: a shared secret header
// for ingestion and HS256 bearer tokens for reviewers.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// DefaultIssuer is the iss claim when none is configured.
const DefaultIssuer = "diafano"

// SecretHeader carries the ingestion secret.
const SecretHeader = "x-api-secret"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrForbidden    = errors.New("insufficient role")
)

// SecretMatches compares in constant time. An empty configured secret
// matches nothing.
func SecretMatches(configured, got string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(got)) == 1
}

// JWTManager issues and verifies HS256 tokens with a single shared secret.
type JWTManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewJWTManager(secret, issuer string, ttl time.Duration) (*JWTManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("admin JWT secret is required")
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTManager{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

func (m *JWTManager) Sign(subject, role string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iss":  m.issuer,
		"exp":  time.Now().Add(m.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Parse verifies the token and returns its subject and role.
func (m *JWTManager) Parse(tokenString string) (string, string, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", "", fmt.Errorf("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" {
		return "", "", fmt.Errorf("token missing sub claim")
	}
	return sub, role, nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

type ctxKey struct{}

// Subject returns the authenticated subject stored by RequireRole.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(ctxKey{}).(string)
	return s
}

// Authorize checks the request's bearer token against role and returns the
// subject. ErrMissingToken and parse errors map to 401, ErrForbidden to 403.
func (m *JWTManager) Authorize(r *http.Request, role string) (string, error) {
	token, err := BearerToken(r)
	if err != nil {
		return "", err
	}
	sub, got, err := m.Parse(token)
	if err != nil {
		return "", err
	}
	if got != role {
		return sub, ErrForbidden
	}
	return sub, nil
}

// RequireRole wraps next so that only tokens carrying role get through.
func (m *JWTManager) RequireRole(role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, err := m.Authorize(r, role)
		switch {
		case errors.Is(err, ErrForbidden):
			writeError(w, http.StatusForbidden, "Forbidden")
			return
		case err != nil:
			w.Header().Set("WWW-Authenticate", `Bearer realm="diafano"`)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sub)))
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, "{\"error\":%q}\n", msg)
}
