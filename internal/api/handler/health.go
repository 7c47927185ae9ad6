package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ytsnap/ytsnap/internal/service"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	runs *service.RunService
}

func NewHealthHandler(runs *service.RunService) *HealthHandler {
	return &HealthHandler{runs: runs}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Runs      *service.RunStats `json:"runs,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe with run counts.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	stats := h.runs.Stats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Runs:      &stats,
	})
}
