// Package api exposes the gateway's HTTP surface: the control-plane CRUD
// routes and the data-plane MCP entry points.
package api

import (
	"net/http"

	gwerrors "github.com/mcpgateway/mcpgateway/pkg/errors"
	"github.com/mcpgateway/mcpgateway/pkg/logger"
)

// writeError maps gateway errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case gwerrors.IsValidation(err), gwerrors.IsConflict(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case gwerrors.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case gwerrors.IsForbidden(err):
		http.Error(w, err.Error(), http.StatusForbidden)
	case gwerrors.IsUnavailable(err):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case gwerrors.IsUpstreamFailed(err), gwerrors.IsBackendUnavailable(err):
		logger.Errorf("Upstream failure: %v", err)
		http.Error(w, "Upstream failure", http.StatusBadGateway)
	default:
		logger.Errorf("Internal error: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}
