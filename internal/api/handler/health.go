package handler

import (
	"net/http"

	"github.com/srikantkt/certmgr/internal/api/dto"
	"github.com/srikantkt/certmgr/internal/api/service"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	version string
	svc     *service.CAService
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(version string, svc *service.CAService) *HealthHandler {
	return &HealthHandler{version: version, svc: svc}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, dto.HealthResponse{
		Status:  "ok",
		Version: h.version,
	})
}

// Ready handles GET /ready. The server is ready once it can reach the
// ledger; the hierarchy state rides along for operators.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, dto.HealthResponse{
		Status:  "ready",
		Version: h.version,
		State:   h.svc.State(),
	})
}
