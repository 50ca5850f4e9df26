// Package auth resolves bearer credentials into caller identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/justestif/coretet/internal/apperr"
)

// Identity is an authenticated caller.
type Identity struct {
	ID    string
	Email string
	Admin bool
}

// Claims are the JWT claims issued by the identity provider.
type Claims struct {
	Email       string      `json:"email"`
	Role        string      `json:"role"`
	AppMetadata AppMetadata `json:"app_metadata"`
	jwt.RegisteredClaims
}

// AppMetadata holds provider-managed user attributes.
type AppMetadata struct {
	Role string `json:"role"`
}

// Authenticator resolves a bearer token into an Identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// JWTAuthenticator verifies HS256 tokens signed with a shared secret.
type JWTAuthenticator struct {
	secret      []byte
	adminEmails []string
	leeway      time.Duration
}

// NewJWTAuthenticator creates an authenticator for the signing secret. Callers
// whose email is in adminEmails are treated as admins regardless of claims.
func NewJWTAuthenticator(secret string, adminEmails []string) *JWTAuthenticator {
	admins := make([]string, 0, len(adminEmails))
	for _, e := range adminEmails {
		admins = append(admins, strings.ToLower(strings.TrimSpace(e)))
	}
	return &JWTAuthenticator{
		secret:      []byte(secret),
		adminEmails: admins,
		leeway:      30 * time.Second,
	}
}

// Authenticate verifies the token and returns the caller identity.
func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing token", apperr.ErrUnauthorized)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", apperr.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", apperr.ErrUnauthorized)
	}

	email := strings.ToLower(strings.TrimSpace(claims.Email))
	return Identity{
		ID:    claims.Subject,
		Email: email,
		Admin: claims.AppMetadata.Role == "admin" || (email != "" && slices.Contains(a.adminEmails, email)),
	}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: missing Authorization header", apperr.ErrUnauthorized)
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: invalid Authorization header", apperr.ErrUnauthorized)
	}
	return strings.TrimSpace(token), nil
}

type ctxIdentityKey struct{}

// WithIdentity returns a context carrying the identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(ctxIdentityKey{}).(Identity)
	if !ok {
		return Identity{}, errors.New("no identity in context")
	}
	return id, nil
}

// Ensure JWTAuthenticator implements Authenticator.
var _ Authenticator = (*JWTAuthenticator)(nil)
