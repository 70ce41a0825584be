package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/llm-scheduler/models"
	"github.com/upb/llm-scheduler/repositories"
)

// BatchRepository implements the repositories.BatchRepository interface
// against the schedule_batches and schedule_assignments tables
type BatchRepository struct {
	db     *DB
	txm    repositories.TransactionManager
	logger *zap.Logger
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *DB, txm repositories.TransactionManager, logger *zap.Logger) repositories.BatchRepository {
	return &BatchRepository{
		db:     db,
		txm:    txm,
		logger: logger,
	}
}

// RecordBatch stores a batch summary and its assignments atomically
func (r *BatchRepository) RecordBatch(ctx context.Context, plan *models.AssignmentPlan) error {
	return r.txm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		batchQuery := `
			INSERT INTO schedule_batches (
				id, assigned_count, unassigned_count, total_cost,
				degraded, floor_relaxation, created_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7
			)
		`

		executor := GetExecutor(ctx, r.db)
		_, err := executor.ExecContext(ctx, batchQuery,
			plan.BatchID,
			len(plan.Assignments),
			len(plan.Unassigned),
			plan.TotalCost,
			plan.Degraded,
			plan.FloorRelaxation,
			plan.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}

		assignmentQuery := `
			INSERT INTO schedule_assignments (
				batch_id, query_id, backend_id, predicted_quality, predicted_cost
			) VALUES (
				$1, $2, $3, $4, $5
			)
		`
		for _, a := range plan.Assignments {
			if _, err := executor.ExecContext(ctx, assignmentQuery,
				plan.BatchID, a.QueryID, a.BackendID, a.PredictedQuality, a.PredictedCost,
			); err != nil {
				return fmt.Errorf("failed to insert assignment for query %q: %w", a.QueryID, err)
			}
		}

		r.logger.Debug("batch recorded",
			zap.String("batch", plan.BatchID.String()),
			zap.Int("assignments", len(plan.Assignments)))
		return nil
	})
}

// GetBatch retrieves a stored batch summary by identifier
func (r *BatchRepository) GetBatch(ctx context.Context, batchID uuid.UUID) (*models.BatchRecord, error) {
	query := `
		SELECT id, assigned_count, unassigned_count, total_cost,
		       degraded, floor_relaxation, created_at
		FROM schedule_batches
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	record := &models.BatchRecord{}
	err := executor.QueryRowContext(ctx, query, batchID).Scan(
		&record.BatchID,
		&record.AssignedCount,
		&record.UnassignedCount,
		&record.TotalCost,
		&record.Degraded,
		&record.FloorRelaxation,
		&record.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("batch not found: %s", batchID)
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return record, nil
}
