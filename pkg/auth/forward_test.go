package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpgateway/mcpgateway/pkg/authz"
)

func TestForwardHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	principal := &authz.Principal{
		UserID: "alice",
		Name:   "Alice",
		Roles:  []string{"ops", "data-science"},
	}

	header := http.Header{}
	SetForwardHeaders(header, principal)

	got := PrincipalFromForwardHeaders(header)
	require.NotNil(t, got)
	assert.Equal(t, principal.UserID, got.UserID)
	assert.Equal(t, principal.Name, got.Name)
	assert.Equal(t, principal.Roles, got.Roles)
}

func TestPrincipalFromForwardHeadersAbsent(t *testing.T) {
	t.Parallel()

	assert.Nil(t, PrincipalFromForwardHeaders(http.Header{}))
}

func TestStripForwardHeaders(t *testing.T) {
	t.Parallel()

	var seen http.Header
	handler := StripForwardHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
	}))

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set(ForwardUserIDHeader, "spoofed")
	req.Header.Set(ForwardNameHeader, "Spoofed")
	req.Header.Set(ForwardRolesHeader, "mcp.admin")
	req.Header.Set("Mcp-Session-Id", "s-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Empty(t, seen.Get(ForwardUserIDHeader))
	assert.Empty(t, seen.Get(ForwardNameHeader))
	assert.Empty(t, seen.Get(ForwardRolesHeader))
	// Unrelated headers pass through.
	assert.Equal(t, "s-1", seen.Get("Mcp-Session-Id"))
}

func TestForwardedPrincipalMiddleware(t *testing.T) {
	t.Parallel()

	var principal *authz.Principal
	handler := ForwardedPrincipalMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ = PrincipalFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set(ForwardUserIDHeader, "bob")
	req.Header.Set(ForwardRolesHeader, "OPS")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, principal)
	assert.Equal(t, "bob", principal.UserID)
	assert.Equal(t, []string{"ops"}, principal.Roles)
}
