// Package proxy implements the data plane: session-affine routing and the
// transparent reverse proxy for MCP streamable HTTP.
package proxy

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	gwerrors "github.com/mcpgateway/mcpgateway/pkg/errors"
	"github.com/mcpgateway/mcpgateway/pkg/logger"
	"github.com/mcpgateway/mcpgateway/pkg/nodeinfo"
	"github.com/mcpgateway/mcpgateway/pkg/sessions"
)

// SessionHeader is the MCP streamable-HTTP session header. The gateway
// treats its value as opaque.
const SessionHeader = "Mcp-Session-Id"

// Route is the routing decision for one request.
type Route struct {
	// Target is the scheme-qualified backend base URL.
	Target string

	// NewSession is true when the request carried no session header, so a
	// session id on the response must be recorded against Target.
	NewSession bool
}

// Router decides the backend for a new or existing session.
type Router struct {
	nodes    nodeinfo.Provider
	sessions sessions.Store

	// Per-workload round-robin counters for new-session dispatch.
	mu       sync.Mutex
	counters map[string]*atomic.Uint64
}

// NewRouter creates a session router over the given node-info provider and
// session store.
func NewRouter(nodes nodeinfo.Provider, sessionStore sessions.Store) *Router {
	return &Router{
		nodes:    nodes,
		sessions: sessionStore,
		counters: make(map[string]*atomic.Uint64),
	}
}

// RouteRequest picks the backend for an incoming request against the given
// workload.
//
// A request without a session header starts a new session: one endpoint of
// the workload is chosen round-robin. A request with a session header must
// find its binding in the session store; a miss is unavailable, never a
// silent rebind, because the client has to re-initialize against a backend
// that knows nothing about its session.
func (r *Router) RouteRequest(ctx context.Context, workloadName string, req *http.Request) (*Route, error) {
	sessionID := req.Header.Get(SessionHeader)
	if sessionID == "" {
		target, err := r.pickEndpoint(ctx, workloadName)
		if err != nil {
			return nil, err
		}
		return &Route{Target: target, NewSession: true}, nil
	}

	target, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if target == "" {
		return nil, gwerrors.NewUnavailableError(
			fmt.Sprintf("unknown session %s: re-initialize", sessionID), nil)
	}
	return &Route{Target: target}, nil
}

// RecordSession binds a session to the routed backend. This is the only
// write path into the session store.
func (r *Router) RecordSession(ctx context.Context, sessionID, target string) {
	if err := r.sessions.Set(ctx, sessionID, target); err != nil {
		logger.Errorf("Failed to record session %s -> %s: %v", sessionID, target, err)
		return
	}
	logger.Debugf("Recorded session %s -> %s", sessionID, target)
}

func (r *Router) pickEndpoint(ctx context.Context, workloadName string) (string, error) {
	endpoints, err := r.nodes.ResolveEndpoints(ctx, workloadName)
	if err != nil {
		return "", gwerrors.NewUnavailableError(
			fmt.Sprintf("no backend available for %s", workloadName), err)
	}

	n := r.counter(workloadName).Add(1)
	endpoint := endpoints[int((n-1)%uint64(len(endpoints)))]
	return endpoint.Address, nil
}

func (r *Router) counter(workloadName string) *atomic.Uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[workloadName]
	if !ok {
		c = &atomic.Uint64{}
		r.counters[workloadName] = c
	}
	return c
}
