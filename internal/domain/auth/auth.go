// Package auth describes authenticated callers. Sessions and token issuance
// live outside this service; requests arrive with a bearer token or an API
// key.
package auth

import (
	"context"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// Roles recognised by the API.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var (
	// ErrUnauthorized is returned for missing or invalid credentials.
	ErrUnauthorized = apperr.New(apperr.ErrUnauthorized, "unauthorized")
	// ErrForbidden is returned when the caller lacks the required role.
	ErrForbidden = apperr.New(apperr.ErrForbidden, "forbidden")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   string
	// APIKey is the key name when the caller used an API key.
	APIKey string
}

// IsAdmin reports whether the principal may use back-office endpoints.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key was granted scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
