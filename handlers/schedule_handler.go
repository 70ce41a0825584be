package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/llm-scheduler/models"
	"github.com/upb/llm-scheduler/services/scheduler"
	"github.com/upb/llm-scheduler/utils"
)

// SchedulerService defines the interface for batch scheduling
type SchedulerService interface {
	SubmitBatch(ctx context.Context, req scheduler.BatchRequest) (*models.AssignmentPlan, error)
}

// ScheduleQuery is one query in a schedule request
type ScheduleQuery struct {
	ID     string `json:"id" validate:"required"`
	Text   string `json:"text" validate:"required"`
	Domain string `json:"domain,omitempty"`
}

// ScheduleConstraints carries the batch's quality floors and budget
// ceilings. All fields are optional; configured defaults apply. The
// default floor is a pointer so an explicit zero survives decoding.
type ScheduleConstraints struct {
	QualityFloors       map[string]float64 `json:"quality_floors,omitempty"`
	DefaultQualityFloor *float64           `json:"default_quality_floor,omitempty" validate:"omitempty,gte=0,lte=1"`
	MaxTotalCost        float64            `json:"max_total_cost,omitempty" validate:"omitempty,gt=0"`
	MaxBackendCost      map[string]float64 `json:"max_backend_cost,omitempty"`
}

// ScheduleRequest represents a batch scheduling request
type ScheduleRequest struct {
	Queries     []ScheduleQuery      `json:"queries" validate:"required,min=1,dive"`
	Constraints *ScheduleConstraints `json:"constraints,omitempty"`
	BackendIDs  []string             `json:"backend_ids,omitempty"`
}

// ScheduleHandler handles scheduling HTTP requests
type ScheduleHandler struct {
	service SchedulerService
	logger  *zap.Logger
}

// NewScheduleHandler creates a new ScheduleHandler
func NewScheduleHandler(service SchedulerService, logger *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		service: service,
		logger:  logger,
	}
}

// HandleSchedule handles POST /api/v1/schedule
func (h *ScheduleHandler) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse schedule request", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("schedule request validation failed", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Validation failed", validationDetails(err))
		return
	}

	plan, err := h.service.SubmitBatch(r.Context(), toBatchRequest(req))
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}
	_ = utils.WriteOK(w, plan)
}

func (h *ScheduleHandler) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case utils.IsValidationError(err):
		_ = utils.WriteBadRequest(w, "Validation failed", validationDetails(err))
	case errors.Is(err, scheduler.ErrNoBackendsAvailable):
		_ = utils.WriteServiceUnavailable(w, err.Error())
	case errors.Is(err, models.ErrBackendUnknown):
		_ = utils.WriteBadRequest(w, err.Error(), nil)
	case errors.Is(err, scheduler.ErrBatchFailed):
		_ = utils.WriteUnprocessable(w, err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		_ = utils.WriteServiceUnavailable(w, "Batch timed out")
	default:
		h.logger.Error("batch submission failed", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to schedule batch")
	}
}

func toBatchRequest(req ScheduleRequest) scheduler.BatchRequest {
	batch := scheduler.BatchRequest{
		Queries:    make([]models.Query, len(req.Queries)),
		BackendIDs: req.BackendIDs,
	}
	for i, q := range req.Queries {
		batch.Queries[i] = models.Query{
			ID:     q.ID,
			Text:   q.Text,
			Domain: models.TaskDomain(q.Domain),
		}
	}
	if req.Constraints != nil {
		batch.Constraints = models.ConstraintSet{
			QualityFloors:       req.Constraints.QualityFloors,
			DefaultQualityFloor: req.Constraints.DefaultQualityFloor,
			MaxTotalCost:        req.Constraints.MaxTotalCost,
			MaxBackendCost:      req.Constraints.MaxBackendCost,
		}
	}
	return batch
}

func validationDetails(err error) map[string]interface{} {
	fields := utils.GetValidationFields(err)
	if len(fields) == 0 {
		return nil
	}
	details := make(map[string]interface{}, len(fields))
	for field, msg := range fields {
		details[field] = msg
	}
	return details
}
