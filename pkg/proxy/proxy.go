package proxy

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/mcpgateway/mcpgateway/pkg/auth"
	"github.com/mcpgateway/mcpgateway/pkg/authz"
	gwerrors "github.com/mcpgateway/mcpgateway/pkg/errors"
	"github.com/mcpgateway/mcpgateway/pkg/logger"
)

// AccessChecker resolves adapter-level read permission before any bytes are
// proxied. Implemented by the adapter service.
type AccessChecker interface {
	// CheckRead fails with a NotFound error when the adapter does not
	// exist and a Forbidden error when the principal may not read it.
	CheckRead(ctx context.Context, principal *authz.Principal, adapterName string) error
}

// Handler reverse-proxies MCP streamable-HTTP traffic to the backend
// replica chosen by the Router, streaming both directions without
// buffering.
type Handler struct {
	router  *Router
	access  AccessChecker
	reverse *httputil.ReverseProxy

	// toolGatewayWorkload serves the bare /mcp entry.
	toolGatewayWorkload string
}

// NewHandler creates the data-plane handler.
func NewHandler(router *Router, access AccessChecker, toolGatewayWorkload string) *Handler {
	h := &Handler{
		router:              router,
		access:              access,
		toolGatewayWorkload: toolGatewayWorkload,
	}
	h.reverse = &httputil.ReverseProxy{
		// Rewrite is a no-op: the outbound URL is fully built per request
		// in ServeHTTP before the proxy runs. Rewrite still strips
		// hop-by-hop headers and client-supplied forwarding headers.
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL = pr.In.URL
			pr.Out.Host = pr.In.URL.Host
		},
		// Never buffer: MCP responses are server-sent event streams.
		FlushInterval: -1,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if r.Context().Err() != nil {
				// Client went away; nothing to report.
				return
			}
			logger.Errorf("Upstream connect failure for %s: %v", r.URL, err)
			w.WriteHeader(http.StatusBadGateway)
		},
	}
	return h
}

// ServeAdapter handles /adapters/{name}/mcp traffic for the given adapter.
func (h *Handler) ServeAdapter(w http.ResponseWriter, r *http.Request, adapterName string) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthenticated", http.StatusUnauthorized)
		return
	}

	// Permission first; no upstream call happens on failure.
	if err := h.access.CheckRead(r.Context(), principal, adapterName); err != nil {
		switch {
		case gwerrors.IsNotFound(err):
			http.Error(w, "Adapter not found", http.StatusNotFound)
		case gwerrors.IsForbidden(err):
			http.Error(w, "Forbidden", http.StatusForbidden)
		default:
			logger.Errorf("Access check failed for adapter %s: %v", adapterName, err)
			http.Error(w, "Internal error", http.StatusInternalServerError)
		}
		return
	}

	h.proxy(w, r, adapterName, principal)
}

// ServeToolGateway handles the bare /mcp entry, which routes to the fixed
// tool-gateway workload.
func (h *Handler) ServeToolGateway(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthenticated", http.StatusUnauthorized)
		return
	}
	h.proxy(w, r, h.toolGatewayWorkload, principal)
}

func (h *Handler) proxy(w http.ResponseWriter, r *http.Request, workloadName string, principal *authz.Principal) {
	route, err := h.router.RouteRequest(r.Context(), workloadName, r)
	if err != nil {
		if gwerrors.IsUnavailable(err) {
			http.Error(w, "No backend available", http.StatusServiceUnavailable)
			return
		}
		logger.Errorf("Routing failed for %s: %v", workloadName, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	target, err := url.Parse(route.Target)
	if err != nil {
		logger.Errorf("Invalid backend target %q: %v", route.Target, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	outURL := rewriteURL(r.URL, target)

	// Clone so the outbound request can be rewritten without touching the
	// inbound one. The body is passed through untouched for streaming
	// uploads; cancellation of r.Context() aborts the upstream call.
	out := r.Clone(r.Context())
	out.URL = outURL
	out.Host = target.Host
	out.RequestURI = ""

	// Internal hops carry the authenticated identity in well-known
	// headers. The edge middleware has already stripped any client-sent
	// values.
	auth.SetForwardHeaders(out.Header, principal)

	rw := w
	if route.NewSession {
		rw = &sessionCaptureWriter{
			ResponseWriter: w,
			ctx:            r.Context(),
			router:         h.router,
			target:         route.Target,
		}
	}

	h.reverse.ServeHTTP(rw, out)
}

// rewriteURL keeps everything after the /adapters/<name> prefix, carries
// the query verbatim, and swaps the authority to the chosen backend.
func rewriteURL(in *url.URL, target *url.URL) *url.URL {
	out := *in
	out.Scheme = target.Scheme
	out.Host = target.Host

	path := in.Path
	if strings.HasPrefix(path, "/adapters/") {
		// Strip the two leading segments: "adapters" and the name.
		rest := strings.TrimPrefix(path, "/adapters/")
		if idx := strings.Index(rest, "/"); idx >= 0 {
			path = rest[idx:]
		} else {
			path = "/"
		}
	}
	// Some MCP servers mount their message endpoint with a trailing slash
	// and redirect otherwise, which a streaming POST cannot follow.
	if strings.HasSuffix(path, "/messages") {
		path += "/"
	}
	out.Path = path
	return &out
}

// sessionCaptureWriter watches the upstream response of a new-session
// request for the session header and records the binding before the first
// byte reaches the client.
type sessionCaptureWriter struct {
	http.ResponseWriter
	ctx      context.Context
	router   *Router
	target   string
	captured bool
}

func (w *sessionCaptureWriter) WriteHeader(statusCode int) {
	if !w.captured && statusCode >= 200 && statusCode < 300 {
		w.captured = true
		if sessionID := w.Header().Get(SessionHeader); sessionID != "" {
			w.router.RecordSession(w.ctx, sessionID, w.target)
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Flush propagates streaming flushes so back-pressure works end to end.
func (w *sessionCaptureWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
