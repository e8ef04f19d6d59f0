package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mcpgateway/mcpgateway/pkg/auth"
	"github.com/mcpgateway/mcpgateway/pkg/authz"
	gwerrors "github.com/mcpgateway/mcpgateway/pkg/errors"
	"github.com/mcpgateway/mcpgateway/pkg/proxy"
	"github.com/mcpgateway/mcpgateway/pkg/records"
	"github.com/mcpgateway/mcpgateway/pkg/services"
)

// AdapterRoutes defines the routes for adapter management and the per-
// adapter data-plane entry.
type AdapterRoutes struct {
	service *services.AdapterService
	proxy   *proxy.Handler
}

// AdapterRouter creates the /adapters router.
func AdapterRouter(service *services.AdapterService, proxyHandler *proxy.Handler) http.Handler {
	routes := AdapterRoutes{service: service, proxy: proxyHandler}

	r := chi.NewRouter()
	r.Get("/", routes.listAdapters)
	r.Post("/", routes.createAdapter)
	r.Get("/{name}", routes.getAdapter)
	r.Put("/{name}", routes.updateAdapter)
	r.Delete("/{name}", routes.deleteAdapter)
	r.Get("/{name}/status", routes.getStatus)
	r.Get("/{name}/logs", routes.getLogs)
	// The data plane accepts every method streamable HTTP uses.
	r.Handle("/{name}/mcp", http.HandlerFunc(routes.serveMCP))

	return r
}

func principalOr401(w http.ResponseWriter, r *http.Request) (*authz.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthenticated", http.StatusUnauthorized)
		return nil, false
	}
	return principal, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are gone; all we can do is note it.
		return
	}
}

func (s *AdapterRoutes) createAdapter(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}

	var data records.AdapterRecord
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, err := s.service.Create(r.Context(), principal, &data)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", "/adapters/"+record.Name)
	writeJSON(w, http.StatusCreated, record)
}

func (s *AdapterRoutes) listAdapters(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}

	list, err := s.service.List(r.Context(), principal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *AdapterRoutes) getAdapter(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}

	record, err := s.service.Get(r.Context(), principal, chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *AdapterRoutes) updateAdapter(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}

	var data records.AdapterRecord
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, err := s.service.Update(r.Context(), principal, chi.URLParam(r, "name"), &data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *AdapterRoutes) deleteAdapter(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}

	err := s.service.Delete(r.Context(), principal, chi.URLParam(r, "name"))
	if err != nil {
		// Deleting an absent record is a client mistake here, not a 404:
		// the route exists, the record does not.
		if gwerrors.IsNotFound(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *AdapterRoutes) getStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}

	status, err := s.service.Status(r.Context(), principal, chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *AdapterRoutes) getLogs(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}

	ordinal := 0
	if raw := r.URL.Query().Get("instance"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid instance ordinal", http.StatusBadRequest)
			return
		}
		ordinal = parsed
	}

	logs, err := s.service.Logs(r.Context(), principal, chi.URLParam(r, "name"), ordinal)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(logs))
}

func (s *AdapterRoutes) serveMCP(w http.ResponseWriter, r *http.Request) {
	s.proxy.ServeAdapter(w, r, chi.URLParam(r, "name"))
}
