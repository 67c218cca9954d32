package api

import (
	"context"
	"net/http"
	"time"

	"github.com/locolive/socialgraph/pkg/response"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db      Pinger
	version string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, version string) *HealthHandler {
	return &HealthHandler{db: db, version: version}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func newHealthResponse(status string) HealthResponse {
	return HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Health returns the health status
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := newHealthResponse("ok")
	resp.Version = h.version
	response.OK(w, resp)
}

// Ready returns the readiness status (for Kubernetes)
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := newHealthResponse("ready")
	resp.Checks = map[string]string{"database": "ok"}
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			resp.Status = "not_ready"
			resp.Checks["database"] = err.Error()
			response.JSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	response.OK(w, resp)
}

// Live returns the liveness status (for Kubernetes)
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	response.OK(w, newHealthResponse("alive"))
}
