package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
)

// ScopeAdmin grants an API key access to the back-office endpoints.
const ScopeAdmin = "admin"

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	// JWTSecret is the HS256 signing key of shopper and admin tokens.
	JWTSecret string
	// Issuer, when set, must match the iss claim.
	Issuer string
}

// Claims are the token claims the API relies on. The subject is the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator resolves the caller from a bearer token or an API key.
type Authenticator struct {
	secret  []byte
	parser  *jwt.Parser
	apikeys auth.Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator. API keys are stored as
// HMAC-SHA256(pepper, key) hex digests.
func NewAuthenticator(cfg AuthConfig, apikeys auth.Repository, pepper []byte) *Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Authenticator{
		secret:  []byte(cfg.JWTSecret),
		parser:  jwt.NewParser(opts...),
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate stores the caller's principal in the request context.
// Requests without credentials pass through anonymously; invalid
// credentials are rejected with 401.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			p   auth.Principal
			err error
		)
		switch {
		case r.Header.Get("Authorization") != "":
			p, err = a.bearer(r.Header.Get("Authorization"))
		case r.Header.Get("X-API-Key") != "":
			p, err = a.apiKey(r, r.Header.Get("X-API-Key"))
		default:
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			zctx.From(r.Context()).Debug("Authentication failed", zap.Error(err))
			writeError(w, r, auth.ErrUnauthorized)
			return
		}
		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zctx.With(ctx, zap.String("user_id", p.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) bearer(header string) (auth.Principal, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return auth.Principal{}, errors.New("authorization scheme is not Bearer")
	}
	var claims Claims
	_, err := a.parser.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return auth.Principal{}, errors.Wrap(err, "parse token")
	}
	if claims.Subject == "" {
		return auth.Principal{}, errors.New("token has no subject")
	}
	role := claims.Role
	if role == "" {
		role = auth.RoleUser
	}
	return auth.Principal{UserID: claims.Subject, Role: role}, nil
}

// apiKey authenticates the key by its peppered hash and compares the stored
// hash in constant time.
func (a *Authenticator) apiKey(r *http.Request, key string) (auth.Principal, error) {
	hash := hashAPIKey(a.pepper, key)
	info, err := a.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
	if err != nil {
		return auth.Principal{}, errors.Wrap(err, "find api key")
	}
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return auth.Principal{}, errors.Wrap(err, "decode stored hash")
	}
	if subtle.ConstantTimeCompare(hash, stored) != 1 {
		return auth.Principal{}, errors.New("api key hash mismatch")
	}

	role := auth.RoleUser
	if info.HasScope(ScopeAdmin) {
		role = auth.RoleAdmin
	}
	return auth.Principal{Role: role, APIKey: info.Name}, nil
}

// HashAPIKey returns the stored form of an API key.
func HashAPIKey(pepper []byte, key string) string {
	return hex.EncodeToString(hashAPIKey(pepper, key))
}

func hashAPIKey(pepper []byte, key string) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// RequireUser rejects requests that do not carry a shopper identity.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.FromContext(r.Context())
		if !ok || p.UserID == "" {
			writeError(w, r, auth.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.FromContext(r.Context())
		switch {
		case !ok:
			writeError(w, r, auth.ErrUnauthorized)
		case !p.IsAdmin():
			writeError(w, r, auth.ErrForbidden)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func userID(r *http.Request) string {
	p, _ := auth.FromContext(r.Context())
	return p.UserID
}
