package auth

import (
	"net/http"
	"strings"

	"github.com/mcpgateway/mcpgateway/pkg/authz"
	"github.com/mcpgateway/mcpgateway/pkg/records"
)

// Identity forwarding headers, used when the gateway forwards a request to
// an internal service such as the tool-gateway router. Only intra-cluster
// hops may supply these; StripForwardHeaders removes them at the edge.
const (
	ForwardUserIDHeader = "X-Mcp-UserId"
	ForwardNameHeader   = "X-Mcp-UserName"
	ForwardRolesHeader  = "X-Mcp-Roles"
)

// SetForwardHeaders encodes the principal into the forwarding headers of an
// outbound request.
func SetForwardHeaders(header http.Header, principal *authz.Principal) {
	if principal == nil {
		return
	}
	header.Set(ForwardUserIDHeader, principal.UserID)
	if principal.Name != "" {
		header.Set(ForwardNameHeader, principal.Name)
	}
	if len(principal.Roles) > 0 {
		header.Set(ForwardRolesHeader, strings.Join(principal.Roles, ","))
	}
}

// PrincipalFromForwardHeaders reconstructs a principal from the forwarding
// headers. Returns nil when no identity was forwarded.
func PrincipalFromForwardHeaders(header http.Header) *authz.Principal {
	userID := header.Get(ForwardUserIDHeader)
	if userID == "" {
		return nil
	}
	return &authz.Principal{
		UserID: userID,
		Name:   header.Get(ForwardNameHeader),
		Roles:  records.NormalizeRoles(splitRoles(header.Get(ForwardRolesHeader))),
	}
}

// StripForwardHeaders removes the forwarding headers from an inbound
// request. Applied at the edge so untrusted clients cannot spoof identity.
func StripForwardHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(ForwardUserIDHeader)
		r.Header.Del(ForwardNameHeader)
		r.Header.Del(ForwardRolesHeader)
		next.ServeHTTP(w, r)
	})
}

// ForwardedPrincipalMiddleware reconstructs a principal from forwarding
// headers when no identity-provider handshake happened on this hop. Used by
// the tool-gateway router, which trusts intra-cluster callers.
func ForwardedPrincipalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			if principal := PrincipalFromForwardHeaders(r.Header); principal != nil {
				r = r.WithContext(WithPrincipal(r.Context(), principal))
			}
		}
		next.ServeHTTP(w, r)
	})
}
