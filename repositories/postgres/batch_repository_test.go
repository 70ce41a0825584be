package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-scheduler/models"
)

func newBatchRepo(t *testing.T) (*DB, sqlmock.Sqlmock, *BatchRepository) {
	t.Helper()
	db, mock := newMockDB(t)
	txm := NewTransactionManager(db, zap.NewNop())
	repo := NewBatchRepository(db, txm, zap.NewNop()).(*BatchRepository)
	return db, mock, repo
}

func TestBatchRepositoryRecordBatch(t *testing.T) {
	_, mock, repo := newBatchRepo(t)

	plan := &models.AssignmentPlan{
		BatchID: uuid.New(),
		Assignments: []models.Assignment{
			{QueryID: "q1", BackendID: "a", PredictedQuality: 0.8, PredictedCost: 0.01},
			{QueryID: "q2", BackendID: "b", PredictedQuality: 0.9, PredictedCost: 0.05},
		},
		Unassigned: []models.UnassignedQuery{
			{QueryID: "q3", Reason: models.ReasonCapacityExhausted},
		},
		TotalCost: 0.06,
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO schedule_batches").
		WithArgs(plan.BatchID, 2, 1, plan.TotalCost, false, 0.0, plan.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO schedule_assignments").
		WithArgs(plan.BatchID, "q1", "a", 0.8, 0.01).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO schedule_assignments").
		WithArgs(plan.BatchID, "q2", "b", 0.9, 0.05).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.RecordBatch(context.Background(), plan))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepositoryRecordBatchRollsBackOnError(t *testing.T) {
	_, mock, repo := newBatchRepo(t)

	plan := &models.AssignmentPlan{
		BatchID:   uuid.New(),
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO schedule_batches").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	assert.Error(t, repo.RecordBatch(context.Background(), plan))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepositoryGetBatch(t *testing.T) {
	_, mock, repo := newBatchRepo(t)

	batchID := uuid.New()
	createdAt := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{
			"id", "assigned_count", "unassigned_count", "total_cost",
			"degraded", "floor_relaxation", "created_at",
		}).AddRow(batchID, 3, 1, 0.12, true, 0.05, createdAt)

		mock.ExpectQuery("SELECT (.+) FROM schedule_batches").
			WithArgs(batchID).
			WillReturnRows(rows)

		record, err := repo.GetBatch(context.Background(), batchID)
		require.NoError(t, err)
		assert.Equal(t, batchID, record.BatchID)
		assert.Equal(t, 3, record.AssignedCount)
		assert.True(t, record.Degraded)
		assert.InDelta(t, 0.05, record.FloorRelaxation, 1e-12)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM schedule_batches").
			WithArgs(batchID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.GetBatch(context.Background(), batchID)
		assert.Error(t, err)
	})
}
