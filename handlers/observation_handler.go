package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-scheduler/models"
	"github.com/upb/llm-scheduler/repositories"
	"github.com/upb/llm-scheduler/services/feature"
	"github.com/upb/llm-scheduler/services/predictor"
	"github.com/upb/llm-scheduler/utils"
)

// ObservationRequest reports the realized outcome of a dispatched
// query so the retrieval estimator can learn from it
type ObservationRequest struct {
	BackendID string  `json:"backend_id" validate:"required"`
	Text      string  `json:"text" validate:"required"`
	Domain    string  `json:"domain,omitempty"`
	Quality   float64 `json:"quality" validate:"gte=0,lte=1"`
	Cost      float64 `json:"cost" validate:"gte=0"`
}

// ObservationHandler handles outcome feedback HTTP requests
type ObservationHandler struct {
	extractor *feature.Extractor
	retrieval *predictor.RetrievalEstimator
	repo      repositories.ReferenceRepository
	logger    *zap.Logger
}

// NewObservationHandler creates a new ObservationHandler. The
// repository may be nil; observations then live in memory only.
func NewObservationHandler(
	extractor *feature.Extractor,
	retrieval *predictor.RetrievalEstimator,
	repo repositories.ReferenceRepository,
	logger *zap.Logger,
) *ObservationHandler {
	return &ObservationHandler{
		extractor: extractor,
		retrieval: retrieval,
		repo:      repo,
		logger:    logger,
	}
}

// HandleObservation handles POST /api/v1/observations
func (h *ObservationHandler) HandleObservation(w http.ResponseWriter, r *http.Request) {
	var req ObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Validation failed", validationDetails(err))
		return
	}

	query := models.Query{
		ID:     "observation",
		Text:   req.Text,
		Domain: models.TaskDomain(req.Domain),
	}
	features, err := h.extractor.Extract(&query)
	if err != nil {
		_ = utils.WriteUnprocessable(w, err.Error(), nil)
		return
	}

	record := models.ReferenceRecord{
		BackendID: req.BackendID,
		Features:  *features,
		Quality:   req.Quality,
		Cost:      req.Cost,
		AddedAt:   time.Now().UTC(),
	}
	h.retrieval.AddObservation(record)

	if h.repo != nil {
		if err := h.repo.Insert(r.Context(), &record); err != nil {
			// In-memory estimator already has the observation; losing
			// the durable copy is not fatal to the caller.
			h.logger.Warn("failed to persist observation", zap.Error(err))
		}
	}

	h.logger.Debug("observation recorded",
		zap.String("backend", req.BackendID),
		zap.Float64("quality", req.Quality))
	_ = utils.WriteJSON(w, http.StatusAccepted, utils.SuccessResponse{Message: "observation recorded"})
}
