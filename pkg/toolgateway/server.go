// Package toolgateway implements the tool-gateway router: an MCP server
// that exposes the union of all registered tools and dispatches each tool
// call to the per-tool backend service.
package toolgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mcpgateway/mcpgateway/pkg/auth"
	"github.com/mcpgateway/mcpgateway/pkg/authz"
	"github.com/mcpgateway/mcpgateway/pkg/logger"
	"github.com/mcpgateway/mcpgateway/pkg/records"
	"github.com/mcpgateway/mcpgateway/pkg/store"
)

const (
	serverName = "mcp-tool-gateway"

	// dispatchTimeout bounds one tool invocation against its backend.
	dispatchTimeout = 120 * time.Second
)

// Server is the tool-gateway MCP server.
type Server struct {
	cache      *listCache
	namespace  string
	httpClient *http.Client
	mcpServer  *server.MCPServer
	streamable *server.StreamableHTTPServer
}

// NewServer creates the tool-gateway router over the given tool store.
// Tools are dispatched to services in the given namespace.
func NewServer(toolStore store.Store[records.ToolRecord], namespace, version string) *Server {
	s := &Server{
		cache:      newListCache(toolStore),
		namespace:  namespace,
		httpClient: &http.Client{Timeout: dispatchTimeout},
	}

	s.mcpServer = server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithToolFilter(s.filterTools),
	)

	s.streamable = server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithHTTPContextFunc(s.httpContext),
	)
	return s
}

// Handler returns the streamable-HTTP handler, refreshing the registered
// tool set before each request so new tools become listable without a
// restart.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.syncTools(r.Context()); err != nil {
			logger.Errorf("Failed to sync tool registry: %v", err)
		}
		s.streamable.ServeHTTP(w, r)
	})
}

// Invalidate drops the cached tool list. Called by the control plane after
// a tool record changes.
func (s *Server) Invalidate() {
	s.cache.invalidate()
}

// httpContext carries the authenticated principal into tool handlers. The
// principal comes from the middleware chain when the gateway fronts this
// server in-process, or from the intra-cluster forwarding headers when it
// runs as its own workload.
func (s *Server) httpContext(ctx context.Context, r *http.Request) context.Context {
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		return auth.WithPrincipal(ctx, principal)
	}
	if principal := auth.PrincipalFromForwardHeaders(r.Header); principal != nil {
		return auth.WithPrincipal(ctx, principal)
	}
	return ctx
}

// syncTools mirrors the cached tool records into the MCP server's registry.
// Registration is identity-free; per-caller visibility is applied by
// filterTools at list time.
func (s *Server) syncTools(ctx context.Context) error {
	tools, _, err := s.cache.snapshot(ctx)
	if err != nil {
		return err
	}

	serverTools := make([]server.ServerTool, 0, len(tools))
	for _, record := range tools {
		serverTools = append(serverTools, server.ServerTool{
			Tool:    toMCPTool(record),
			Handler: s.callHandler(record.Name),
		})
	}
	s.mcpServer.SetTools(serverTools...)
	return nil
}

// toMCPTool maps a tool record to its MCP tool object.
func toMCPTool(record *records.ToolRecord) mcp.Tool {
	schema := record.ToolDefinition.Tool
	if schema.InputSchema != nil {
		if raw, err := json.Marshal(schema.InputSchema); err == nil {
			return mcp.NewToolWithRawSchema(schema.Name, schema.Description, raw)
		}
	}
	tool := mcp.NewTool(schema.Name, mcp.WithDescription(schema.Description))
	return tool
}

// filterTools applies per-request read filtering over the registered tools.
// Unauthenticated callers see nothing.
func (s *Server) filterTools(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil
	}

	_, byName, err := s.cache.snapshot(ctx)
	if err != nil {
		logger.Errorf("Failed to load tool records for filtering: %v", err)
		return nil
	}

	visible := make([]mcp.Tool, 0, len(tools))
	for _, tool := range tools {
		record, found := byName[tool.Name]
		if !found {
			continue
		}
		if authz.Allowed(principal, record, authz.OperationRead) {
			visible = append(visible, tool)
		}
	}
	return visible
}

// callHandler builds the dispatch handler for one tool. All failures are
// returned as tool-result envelopes with isError set; they never surface as
// protocol errors.
func (s *Server) callHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		record, err := s.cache.lookup(ctx, name)
		if err != nil || record == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error: Tool '%s' not found", name)), nil
		}

		principal, ok := auth.PrincipalFromContext(ctx)
		if !ok || !authz.Allowed(principal, record, authz.OperationRead) {
			return mcp.NewToolResultError(
				fmt.Sprintf("Error: You do not have permission to use tool '%s'", name)), nil
		}

		return s.dispatch(ctx, record, request.GetArguments()), nil
	}
}

// executionURL is where the tool's backend service listens.
func (s *Server) executionURL(record *records.ToolRecord) string {
	return fmt.Sprintf("http://%s-service.%s.svc.cluster.local:%d%s",
		record.Name, s.namespace,
		record.ToolDefinition.EffectivePort(),
		record.ToolDefinition.EffectivePath())
}

// dispatch POSTs the arguments as JSON to the tool backend and returns the
// response body as a single text block.
func (s *Server) dispatch(ctx context.Context, record *records.ToolRecord, args map[string]any) *mcp.CallToolResult {
	body, err := json.Marshal(args)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error: Invalid tool arguments: %v", err))
	}

	url := s.executionURL(record)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error: Failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		logger.Errorf("Tool %s dispatch to %s failed: %v", record.Name, url, err)
		return mcp.NewToolResultError("Error: Failed to connect to inference server")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mcp.NewToolResultError(
			fmt.Sprintf("Error: Inference server returned %d", resp.StatusCode))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return mcp.NewToolResultError("Error: Failed to read inference server response")
	}
	return mcp.NewToolResultText(string(payload))
}
