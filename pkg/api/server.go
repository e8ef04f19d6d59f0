package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcpgateway/mcpgateway/pkg/auth"
	"github.com/mcpgateway/mcpgateway/pkg/logger"
	"github.com/mcpgateway/mcpgateway/pkg/proxy"
	"github.com/mcpgateway/mcpgateway/pkg/services"
)

const (
	readHeaderTimeout = 10 * time.Second

	// controlPlaneTimeout bounds CRUD requests. The data plane is exempt:
	// streamable HTTP sessions are long-lived and governed by the
	// transport's idle handling.
	controlPlaneTimeout = 60 * time.Second
)

// Options assembles the gateway's HTTP surface.
type Options struct {
	Adapters *services.AdapterService
	Tools    *services.ToolService
	Proxy    *proxy.Handler

	// AuthMiddleware establishes the principal. Wired to the token
	// validator in production and to the dev principal middleware when
	// development.mode is on.
	AuthMiddleware func(http.Handler) http.Handler

	// OnToolsChanged is invoked after tool mutations; used to invalidate
	// the tool-gateway cache.
	OnToolsChanged func()

	// ToolGateway, when set, serves the bare /mcp entry in-process.
	// When nil, /mcp is proxied to the tool-gateway workload instead.
	ToolGateway http.Handler
}

// NewRouter builds the root router: control-plane CRUD under /adapters and
// /tools, the data plane at /adapters/{name}/mcp and /mcp, and the
// operational endpoints.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		metricsMiddleware,
		// Forwarded-identity headers are only trusted on intra-cluster
		// hops; at the edge they are dropped before authentication runs.
		auth.StripForwardHeaders,
		opts.AuthMiddleware,
	)

	// Control plane. The timeout middleware must not wrap the data plane,
	// so it lives on a per-mount group.
	r.Group(func(cp chi.Router) {
		cp.Use(middleware.Timeout(controlPlaneTimeout))
		cp.Mount("/tools", ToolRouter(opts.Tools, opts.OnToolsChanged))
	})
	// /adapters hosts both planes; its subrouter carries no timeout so the
	// {name}/mcp entry can stream. CRUD requests still get cancelled by
	// client disconnect.
	r.Mount("/adapters", AdapterRouter(opts.Adapters, opts.Proxy))

	// Bare /mcp routes to the tool-gateway: in-process when embedded,
	// otherwise proxied to the fixed tool-gateway workload.
	if opts.ToolGateway != nil {
		r.Handle("/mcp", opts.ToolGateway)
	} else {
		r.Handle("/mcp", http.HandlerFunc(opts.Proxy.ServeToolGateway))
	}

	return r
}

// NewOperationalRouter serves the unauthenticated operational endpoints.
func NewOperationalRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Serve runs the handler until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, address string, handler http.Handler) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting HTTP server on %s", address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
