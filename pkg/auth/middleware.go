package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcpgateway/mcpgateway/pkg/authz"
	"github.com/mcpgateway/mcpgateway/pkg/logger"
	"github.com/mcpgateway/mcpgateway/pkg/records"
)

// Development principal headers, honored only when development mode is on.
const (
	DevUserIDHeader = "X-Dev-UserId"
	DevNameHeader   = "X-Dev-Name"
	DevRolesHeader  = "X-Dev-Roles"
)

// TokenValidator verifies a bearer token and returns its claims. The
// concrete identity-provider integration lives outside the gateway; this is
// the narrow interface it is consumed through.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (jwt.MapClaims, error)
}

// Middleware authenticates every request and stores the resulting principal
// in the request context. Requests that cannot be authenticated are
// rejected with 401.
func Middleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				http.Error(w, "Missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				logger.Debugf("Token validation failed: %v", err)
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			principal, err := claimsToPrincipal(claims)
			if err != nil {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DevPrincipalMiddleware synthesizes a principal from X-Dev-* headers. This
// bypasses authentication entirely and must only be enabled through
// development.mode.
func DevPrincipalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(DevUserIDHeader)
		if userID == "" {
			userID = "dev-user"
		}
		principal := &authz.Principal{
			UserID: userID,
			Name:   r.Header.Get(DevNameHeader),
			Roles:  records.NormalizeRoles(splitRoles(r.Header.Get(DevRolesHeader))),
		}

		ctx := WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

func splitRoles(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
