package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/upb/llm-scheduler/models"
	"github.com/upb/llm-scheduler/repositories"
)

// ReferenceRepository implements the repositories.ReferenceRepository
// interface against the reference_outcomes table
type ReferenceRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewReferenceRepository creates a new reference repository
func NewReferenceRepository(db *DB, logger *zap.Logger) repositories.ReferenceRepository {
	return &ReferenceRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores one observed outcome
func (r *ReferenceRepository) Insert(ctx context.Context, record *models.ReferenceRecord) error {
	query := `
		INSERT INTO reference_outcomes (
			backend_id, embedding, token_count, domain, quality, cost, added_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		RETURNING id
	`

	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query,
		record.BackendID,
		pq.Array(record.Features.Embedding),
		record.Features.TokenCount,
		string(record.Features.Domain),
		record.Quality,
		record.Cost,
		record.AddedAt,
	).Scan(&record.ID)

	if err != nil {
		return fmt.Errorf("failed to insert reference outcome: %w", err)
	}

	r.logger.Debug("reference outcome inserted",
		zap.Int64("id", record.ID),
		zap.String("backend", record.BackendID))
	return nil
}

// ListAll returns every stored outcome ordered oldest first
func (r *ReferenceRepository) ListAll(ctx context.Context) ([]models.ReferenceRecord, error) {
	query := `
		SELECT id, backend_id, embedding, token_count, domain, quality, cost, added_at
		FROM reference_outcomes
		ORDER BY added_at ASC, id ASC
	`
	return r.list(ctx, query)
}

// ListByBackend returns stored outcomes for one backend ordered oldest first
func (r *ReferenceRepository) ListByBackend(ctx context.Context, backendID string) ([]models.ReferenceRecord, error) {
	query := `
		SELECT id, backend_id, embedding, token_count, domain, quality, cost, added_at
		FROM reference_outcomes
		WHERE backend_id = $1
		ORDER BY added_at ASC, id ASC
	`
	return r.list(ctx, query, backendID)
}

func (r *ReferenceRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.ReferenceRecord, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reference outcomes: %w", err)
	}
	defer rows.Close()

	var records []models.ReferenceRecord
	for rows.Next() {
		var record models.ReferenceRecord
		var domain string
		if err := rows.Scan(
			&record.ID,
			&record.BackendID,
			pq.Array(&record.Features.Embedding),
			&record.Features.TokenCount,
			&domain,
			&record.Quality,
			&record.Cost,
			&record.AddedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reference outcome: %w", err)
		}
		record.Features.Domain = models.TaskDomain(domain)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reference outcomes: %w", err)
	}
	return records, nil
}
