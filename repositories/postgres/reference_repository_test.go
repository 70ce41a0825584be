package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-scheduler/models"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return &DB{DB: mockDB, logger: zap.NewNop()}, mock
}

func TestReferenceRepositoryInsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReferenceRepository(db, zap.NewNop())

	record := &models.ReferenceRecord{
		BackendID: "small-fast",
		Features: models.FeatureVector{
			Embedding:  []float64{0.6, 0.8},
			TokenCount: 42,
			Domain:     models.DomainSummarization,
		},
		Quality: 0.85,
		Cost:    0.002,
		AddedAt: time.Now().UTC(),
	}

	mock.ExpectQuery("INSERT INTO reference_outcomes").
		WithArgs(
			record.BackendID,
			sqlmock.AnyArg(),
			record.Features.TokenCount,
			string(record.Features.Domain),
			record.Quality,
			record.Cost,
			record.AddedAt,
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	require.NoError(t, repo.Insert(context.Background(), record))
	assert.Equal(t, int64(7), record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReferenceRepositoryListAll(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReferenceRepository(db, zap.NewNop())

	addedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "backend_id", "embedding", "token_count", "domain", "quality", "cost", "added_at",
	}).
		AddRow(int64(1), "a", pq.Array([]float64{1, 0}), 10, "general", 0.7, 0.001, addedAt).
		AddRow(int64(2), "b", pq.Array([]float64{0, 1}), 20, "knowledge_qa", 0.9, 0.004, addedAt.Add(time.Hour))

	mock.ExpectQuery("SELECT (.+) FROM reference_outcomes").WillReturnRows(rows)

	records, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, int64(1), records[0].ID)
	assert.Equal(t, "a", records[0].BackendID)
	assert.Equal(t, []float64{1, 0}, records[0].Features.Embedding)
	assert.Equal(t, models.DomainGeneral, records[0].Features.Domain)
	assert.Equal(t, models.DomainKnowledgeQA, records[1].Features.Domain)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReferenceRepositoryListByBackend(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReferenceRepository(db, zap.NewNop())

	rows := sqlmock.NewRows([]string{
		"id", "backend_id", "embedding", "token_count", "domain", "quality", "cost", "added_at",
	}).AddRow(int64(3), "a", pq.Array([]float64{1}), 5, "general", 0.5, 0.001, time.Now())

	mock.ExpectQuery("SELECT (.+) FROM reference_outcomes").
		WithArgs("a").
		WillReturnRows(rows)

	records, err := repo.ListByBackend(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].BackendID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReferenceRepositoryListAllQueryError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReferenceRepository(db, zap.NewNop())

	mock.ExpectQuery("SELECT (.+) FROM reference_outcomes").
		WillReturnError(assert.AnError)

	_, err := repo.ListAll(context.Background())
	assert.Error(t, err)
}
