package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/crib-agent/internal/state"
	"github.com/nerrad567/crib-agent/internal/supervisor"
)

// healthCheckTimeout bounds each component check run by the health endpoint.
const healthCheckTimeout = 2 * time.Second

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Thing         string            `json:"thing,omitempty"`
	Version       string            `json:"version,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Components    map[string]string `json:"components,omitempty"`
}

// AttributeResponse describes one stored attribute.
type AttributeResponse struct {
	state.Attribute
	Supported bool `json:"supported"`
}

// handleHealth runs every registered health check. Any failure turns the
// overall status to "degraded" and the response code to 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Thing:         s.thing,
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}

	if len(s.health) > 0 {
		resp.Components = make(map[string]string, len(s.health))
	}
	for name, check := range s.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check.HealthCheck(ctx)
		cancel()
		if err != nil {
			resp.Components[name] = err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Components[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleListAttributes(w http.ResponseWriter, r *http.Request) {
	attrs, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("listing attributes failed", "error", err)
		writeInternalError(w, "failed to list attributes")
		return
	}

	out := make([]AttributeResponse, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, AttributeResponse{Attribute: a, Supported: s.supported(a.Name)})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"attributes": out,
		"count":      len(out),
	})
}

func (s *Server) handleGetAttribute(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	attr, err := s.store.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			writeNotFound(w, "attribute not found")
			return
		}
		s.logger.Error("reading attribute failed", "attribute", name, "error", err)
		writeInternalError(w, "failed to read attribute")
		return
	}

	writeJSON(w, http.StatusOK, AttributeResponse{Attribute: attr, Supported: s.supported(name)})
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := []supervisor.Stats{}
	if s.tasks != nil {
		tasks = append(tasks, s.tasks()...)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })

	writeJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	})
}

func (s *Server) supported(name string) bool {
	if s.drivers == nil {
		return false
	}
	for _, n := range s.drivers.Names() {
		if n == name {
			return true
		}
	}
	return false
}
