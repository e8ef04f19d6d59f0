package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	gwerrors "github.com/mcpgateway/mcpgateway/pkg/errors"
	"github.com/mcpgateway/mcpgateway/pkg/records"
	"github.com/mcpgateway/mcpgateway/pkg/services"
)

// ToolRoutes defines the routes for tool management. They mirror the
// adapter routes, with the tool definition threaded through.
type ToolRoutes struct {
	service *services.ToolService

	// onChange runs after any successful mutation; the tool-gateway router
	// hangs its cache invalidation here.
	onChange func()
}

// ToolRouter creates the /tools router. onChange may be nil.
func ToolRouter(service *services.ToolService, onChange func()) http.Handler {
	routes := ToolRoutes{service: service, onChange: onChange}

	r := chi.NewRouter()
	r.Get("/", routes.listTools)
	r.Post("/", routes.createTool)
	r.Get("/{name}", routes.getTool)
	r.Put("/{name}", routes.updateTool)
	r.Delete("/{name}", routes.deleteTool)
	r.Get("/{name}/status", routes.getStatus)
	r.Get("/{name}/logs", routes.getLogs)

	return r
}

func (s *ToolRoutes) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *ToolRoutes) createTool(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}

	var data records.ToolRecord
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, err := s.service.Create(r.Context(), principal, &data)
	if err != nil {
		writeError(w, err)
		return
	}
	s.changed()

	w.Header().Set("Location", "/tools/"+record.Name)
	writeJSON(w, http.StatusCreated, record)
}

func (s *ToolRoutes) listTools(w http.ResponseWriter, r *http.Request) {
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

func (s *ToolRoutes) getTool(w http.ResponseWriter, r *http.Request) {
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

func (s *ToolRoutes) updateTool(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}

	var data records.ToolRecord
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, err := s.service.Update(r.Context(), principal, chi.URLParam(r, "name"), &data)
	if err != nil {
		writeError(w, err)
		return
	}
	s.changed()
	writeJSON(w, http.StatusOK, record)
}

func (s *ToolRoutes) deleteTool(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}

	err := s.service.Delete(r.Context(), principal, chi.URLParam(r, "name"))
	if err != nil {
		if gwerrors.IsNotFound(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, err)
		return
	}
	s.changed()
	w.WriteHeader(http.StatusNoContent)
}

func (s *ToolRoutes) getStatus(w http.ResponseWriter, r *http.Request) {
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

func (s *ToolRoutes) getLogs(w http.ResponseWriter, r *http.Request) {
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
