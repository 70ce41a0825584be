package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/llm-scheduler/models"
	"github.com/upb/llm-scheduler/services/registry"
	"github.com/upb/llm-scheduler/services/workload"
	"github.com/upb/llm-scheduler/utils"
)

// BackendStatus is one backend with its current committed load
type BackendStatus struct {
	models.Backend
	Load      int `json:"load"`
	Remaining int `json:"remaining"`
}

// AvailabilityRequest toggles a backend's availability
type AvailabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

// BackendHandler handles backend pool HTTP requests
type BackendHandler struct {
	registry *registry.Registry
	tracker  *workload.Tracker
	logger   *zap.Logger
}

// NewBackendHandler creates a new BackendHandler
func NewBackendHandler(reg *registry.Registry, tracker *workload.Tracker, logger *zap.Logger) *BackendHandler {
	return &BackendHandler{
		registry: reg,
		tracker:  tracker,
		logger:   logger,
	}
}

// HandleList handles GET /api/v1/backends
func (h *BackendHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.SnapshotAll()

	backends := h.registry.List()
	statuses := make([]BackendStatus, len(backends))
	for i, b := range backends {
		statuses[i] = BackendStatus{Backend: b}
		if snap, ok := snapshot[b.ID]; ok {
			statuses[i].Load = snap.Load
			statuses[i].Remaining = snap.Remaining()
		} else {
			statuses[i].Remaining = b.Capacity
		}
	}
	_ = utils.WriteOK(w, statuses)
}

// HandleSetAvailability handles PUT /api/v1/backends/{id}/availability
func (h *BackendHandler) HandleSetAvailability(w http.ResponseWriter, r *http.Request) {
	backendID := chi.URLParam(r, "id")

	var req AvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Validation failed", validationDetails(err))
		return
	}

	if err := h.registry.SetAvailability(backendID, *req.Available); err != nil {
		if errors.Is(err, models.ErrBackendUnknown) {
			_ = utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse{
				Error:   "not_found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Error("failed to set backend availability", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to update backend")
		return
	}

	h.logger.Info("backend availability updated",
		zap.String("backend", backendID),
		zap.Bool("available", *req.Available))
	_ = utils.WriteOK(w, nil)
}
