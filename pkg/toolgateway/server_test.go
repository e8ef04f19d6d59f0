package toolgateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpgateway/mcpgateway/pkg/auth"
	"github.com/mcpgateway/mcpgateway/pkg/authz"
	"github.com/mcpgateway/mcpgateway/pkg/records"
	"github.com/mcpgateway/mcpgateway/pkg/store"
)

func toolRecord(name string, requiredRoles ...string) *records.ToolRecord {
	return &records.ToolRecord{
		AdapterRecord: records.AdapterRecord{
			ID:            "id-" + name,
			Name:          name,
			ImageName:     name + "-image",
			ImageVersion:  "1.0.0",
			ReplicaCount:  1,
			CreatedBy:     "alice",
			RequiredRoles: requiredRoles,
		},
		ToolDefinition: records.ToolDefinition{
			Tool: records.ToolSchema{
				Name:        name,
				Description: "tool " + name,
				InputSchema: map[string]any{
					"type":       "object",
					"properties": map[string]any{"text": map[string]any{"type": "string"}},
				},
			},
		},
	}
}

func testServer(t *testing.T, tools ...*records.ToolRecord) (*Server, store.Store[records.ToolRecord]) {
	t.Helper()
	s := store.NewMemoryStore[records.ToolRecord]()
	for _, tool := range tools {
		require.NoError(t, s.Upsert(context.Background(), tool.Name, tool))
	}
	return NewServer(s, "adapter", "test"), s
}

func principalCtx(principal *authz.Principal) context.Context {
	return auth.WithPrincipal(context.Background(), principal)
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestExecutionURL(t *testing.T) {
	t.Parallel()

	server, _ := testServer(t)

	record := toolRecord("scorer")
	assert.Equal(t,
		"http://scorer-service.adapter.svc.cluster.local:443/score",
		server.executionURL(record))

	record.ToolDefinition.Port = 8443
	record.ToolDefinition.Path = "/v1/infer"
	assert.Equal(t,
		"http://scorer-service.adapter.svc.cluster.local:8443/v1/infer",
		server.executionURL(record))
}

func TestToMCPTool(t *testing.T) {
	t.Parallel()

	tool := toMCPTool(toolRecord("scorer"))
	assert.Equal(t, "scorer", tool.Name)
	assert.Equal(t, "tool scorer", tool.Description)
	require.NotEmpty(t, tool.RawInputSchema)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(tool.RawInputSchema, &schema))
	assert.Equal(t, "object", schema["type"])

	// A tool without a schema still registers.
	bare := toolRecord("bare")
	bare.ToolDefinition.Tool.InputSchema = nil
	tool = toMCPTool(bare)
	assert.Equal(t, "bare", tool.Name)
}

func TestFilterTools(t *testing.T) {
	t.Parallel()

	server, _ := testServer(t,
		toolRecord("open"),
		toolRecord("restricted", "finance"),
	)

	all := []mcp.Tool{
		{Name: "open"},
		{Name: "restricted"},
		{Name: "unregistered"},
	}

	t.Run("unauthenticated sees nothing", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, server.filterTools(context.Background(), all))
	})

	t.Run("role-less caller sees open tools", func(t *testing.T) {
		t.Parallel()
		ctx := principalCtx(&authz.Principal{UserID: "bob"})
		visible := server.filterTools(ctx, all)
		require.Len(t, visible, 1)
		assert.Equal(t, "open", visible[0].Name)
	})

	t.Run("role holder sees restricted tools", func(t *testing.T) {
		t.Parallel()
		ctx := principalCtx(&authz.Principal{UserID: "bob", Roles: []string{"finance"}})
		visible := server.filterTools(ctx, all)
		assert.Len(t, visible, 2)
	})

	t.Run("admin sees all registered tools", func(t *testing.T) {
		t.Parallel()
		ctx := principalCtx(&authz.Principal{UserID: "root", Roles: []string{"mcp.admin"}})
		visible := server.filterTools(ctx, all)
		// The unregistered tool has no record and is never listed.
		assert.Len(t, visible, 2)
	})
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func TestCallHandlerUnknownTool(t *testing.T) {
	t.Parallel()

	server, _ := testServer(t)

	handler := server.callHandler("ghost")
	result, err := handler(principalCtx(&authz.Principal{UserID: "bob"}), callRequest("ghost", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Error: Tool 'ghost' not found", resultText(t, result))
}

func TestCallHandlerPermissionDenied(t *testing.T) {
	t.Parallel()

	server, _ := testServer(t, toolRecord("restricted", "finance"))

	handler := server.callHandler("restricted")

	result, err := handler(principalCtx(&authz.Principal{UserID: "bob"}), callRequest("restricted", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Error: You do not have permission to use tool 'restricted'", resultText(t, result))

	// No principal at all is the same denial.
	result, err = handler(context.Background(), callRequest("restricted", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// roundTripFunc lets a test stand in for the tool backend.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func cannedResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	t.Run("success returns body as text", func(t *testing.T) {
		t.Parallel()
		server, _ := testServer(t, toolRecord("scorer"))

		var seen *http.Request
		var seenBody []byte
		server.httpClient.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
			seen = r
			seenBody, _ = io.ReadAll(r.Body)
			return cannedResponse(http.StatusOK, `{"score":0.93}`), nil
		})

		handler := server.callHandler("scorer")
		result, err := handler(
			principalCtx(&authz.Principal{UserID: "bob"}),
			callRequest("scorer", map[string]any{"text": "hi"}))
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.Equal(t, `{"score":0.93}`, resultText(t, result))

		require.NotNil(t, seen)
		assert.Equal(t, http.MethodPost, seen.Method)
		assert.Equal(t, "http://scorer-service.adapter.svc.cluster.local:443/score", seen.URL.String())
		assert.Equal(t, "application/json", seen.Header.Get("Content-Type"))
		assert.JSONEq(t, `{"text":"hi"}`, string(seenBody))
	})

	t.Run("backend error status", func(t *testing.T) {
		t.Parallel()
		server, _ := testServer(t, toolRecord("scorer"))
		server.httpClient.Transport = roundTripFunc(func(*http.Request) (*http.Response, error) {
			return cannedResponse(http.StatusInternalServerError, "boom"), nil
		})

		handler := server.callHandler("scorer")
		result, err := handler(principalCtx(&authz.Principal{UserID: "bob"}), callRequest("scorer", nil))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Equal(t, "Error: Inference server returned 500", resultText(t, result))
	})

	t.Run("transport failure", func(t *testing.T) {
		t.Parallel()
		server, _ := testServer(t, toolRecord("scorer"))
		server.httpClient.Transport = roundTripFunc(func(*http.Request) (*http.Response, error) {
			return nil, io.ErrUnexpectedEOF
		})

		handler := server.callHandler("scorer")
		result, err := handler(principalCtx(&authz.Principal{UserID: "bob"}), callRequest("scorer", nil))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Equal(t, "Error: Failed to connect to inference server", resultText(t, result))
	})
}

func TestListCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := store.NewMemoryStore[records.ToolRecord]()
	require.NoError(t, s.Upsert(ctx, "first", toolRecord("first")))

	cache := newListCache(s)

	tools, byName, err := cache.snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, tools, 1)
	assert.Contains(t, byName, "first")

	// Within the TTL the snapshot does not see new records.
	require.NoError(t, s.Upsert(ctx, "second", toolRecord("second")))
	tools, _, err = cache.snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, tools, 1)

	// But lookup falls through to the store for cache misses.
	record, err := cache.lookup(ctx, "second")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "second", record.Name)

	// Invalidation reloads.
	cache.invalidate()
	tools, _, err = cache.snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, tools, 2)
}
