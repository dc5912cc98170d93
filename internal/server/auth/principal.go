package auth

import (
	"context"
	"slices"
	"time"
)

// Principal is the identity attached to a request once its token has been
// introspected. It is built once from verified claims so handlers never need
// to know how the session was established.
type Principal struct {
	AccountID int64
	Username  string
	Scopes    []string
	TokenID   string
	ExpiresAt time.Time
	// Source is SourceLocal or the federated provider's name.
	Source string
}

func PrincipalFromClaims(c *Claims) Principal {
	p := Principal{
		AccountID: c.UserID,
		Username:  c.Subject,
		Scopes:    c.Scopes(),
		TokenID:   c.ID,
		Source:    c.Source,
	}
	if p.Source == "" {
		p.Source = SourceLocal
	}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}
	return p
}

// Federated reports whether the session came from an external provider.
func (p Principal) Federated() bool {
	return p.Source != SourceLocal
}

func (p Principal) HasScope(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
