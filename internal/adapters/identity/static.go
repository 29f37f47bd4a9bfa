// Package identity adapts the external authentication provider. The
// service itself runs under a configured service identity; per-user
// auth lives with the auth provider, not here.
package identity

import (
	"context"

	"github.com/aitzolm/basomap/internal/core/ports"
)

// StaticProvider implements ports.IdentityProvider with a fixed service
// user and token from configuration. An empty user means signed out.
type StaticProvider struct {
	User  string
	Token string
}

// NewStaticProvider creates a StaticProvider.
func NewStaticProvider(user, token string) *StaticProvider {
	return &StaticProvider{User: user, Token: token}
}

// CurrentUser returns the configured user, or ErrUnauthenticated when
// none is set.
func (p *StaticProvider) CurrentUser(ctx context.Context) (string, error) {
	if p.User == "" {
		return "", ports.ErrUnauthenticated
	}
	return p.User, nil
}

// IDToken returns the configured bearer token.
func (p *StaticProvider) IDToken(ctx context.Context) (string, error) {
	if p.User == "" {
		return "", ports.ErrUnauthenticated
	}
	return p.Token, nil
}
