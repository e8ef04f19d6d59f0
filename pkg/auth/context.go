// Package auth establishes the authenticated principal for each request and
// propagates it across internal hops.
package auth

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcpgateway/mcpgateway/pkg/authz"
	"github.com/mcpgateway/mcpgateway/pkg/records"
)

// PrincipalContextKey is the key used to store the principal in the request
// context. Using an empty struct as the key prevents collisions with other
// context keys, as each empty struct type is distinct.
type PrincipalContextKey struct{}

// WithPrincipal stores a principal in the context.
// If principal is nil, the original context is returned unchanged.
func WithPrincipal(ctx context.Context, principal *authz.Principal) context.Context {
	if principal == nil {
		return ctx
	}
	return context.WithValue(ctx, PrincipalContextKey{}, principal)
}

// PrincipalFromContext retrieves the principal from the context.
// Returns the principal and true if present, nil and false otherwise.
func PrincipalFromContext(ctx context.Context) (*authz.Principal, bool) {
	principal, ok := ctx.Value(PrincipalContextKey{}).(*authz.Principal)
	return principal, ok
}

// claimsToPrincipal converts verified JWT claims to a principal.
// The 'sub' claim is required; role values come from the 'roles' claim and
// are normalized the same way as record requiredRoles.
func claimsToPrincipal(claims jwt.MapClaims) (*authz.Principal, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, errors.New("missing or invalid 'sub' claim")
	}

	principal := &authz.Principal{UserID: sub}
	if name, ok := claims["name"].(string); ok {
		principal.Name = name
	}
	if rawRoles, ok := claims["roles"].([]any); ok {
		roles := make([]string, 0, len(rawRoles))
		for _, r := range rawRoles {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
		principal.Roles = records.NormalizeRoles(roles)
	}
	return principal, nil
}
