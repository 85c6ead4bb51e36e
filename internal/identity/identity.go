// Package identity resolves bearer credentials to a stable user id and
// display name. The rest of the service treats both as opaque; no
// authentication decisions are made outside this package.
package identity

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shellbound/focuscircle/internal/config"
	"go.uber.org/fx"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrMissingSecret   = errors.New("auth_secret_missing")
)

// Identity is a resolved caller.
type Identity struct {
	UserID      string
	DisplayName string
}

// Resolver turns a bearer token into an Identity.
type Resolver interface {
	Resolve(token string) (Identity, error)
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
}

type hmacResolver struct {
	secret []byte
}

// New builds the HMAC token resolver. The signing secret is required;
// the service refuses to boot without one rather than admit anonymous
// callers.
func New(cfg config.Config) (Resolver, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &hmacResolver{secret: []byte(secret)}, nil
}

func (r *hmacResolver) Resolve(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}

	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Identity{}, ErrUnauthenticated
	}

	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return Identity{}, ErrUnauthenticated
	}

	displayName := strings.TrimSpace(claims.Name)
	if displayName == "" {
		displayName = userID
	}
	return Identity{UserID: userID, DisplayName: displayName}, nil
}

// Module provides the resolver.
var Module = fx.Module("identity",
	fx.Provide(New),
)
