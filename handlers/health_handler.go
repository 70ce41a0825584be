package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-scheduler/services/registry"
	"github.com/upb/llm-scheduler/utils"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// DatabaseChecker reports database connectivity
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db       DatabaseChecker
	registry *registry.Registry
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. The database checker
// may be nil when the scheduler runs without persistence.
func NewHealthHandler(db DatabaseChecker, reg *registry.Registry, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:       db,
		registry: reg,
		logger:   logger,
	}
}

// HandleHealth handles GET /healthz.
// Always returns 200 if the process is serving.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz.
// Validates that the backend pool is populated and, when configured,
// that the database is reachable.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.registry.Count() == 0 {
		checks["backends"] = "empty"
		allHealthy = false
	} else {
		checks["backends"] = "healthy"
	}

	if h.db == nil {
		checks["database"] = "not_configured"
	} else if err := h.db.HealthCheck(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	} else {
		checks["database"] = "healthy"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
