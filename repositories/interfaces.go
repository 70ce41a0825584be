package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/upb/llm-scheduler/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// Commits if the function succeeds, rolls back on error.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	Context() context.Context
}

// ReferenceRepository persists observed (query, backend) outcomes that
// seed the retrieval estimator
type ReferenceRepository interface {
	// Insert stores one observed outcome
	Insert(ctx context.Context, record *models.ReferenceRecord) error

	// ListAll returns every stored outcome ordered oldest first
	ListAll(ctx context.Context) ([]models.ReferenceRecord, error)

	// ListByBackend returns stored outcomes for one backend ordered oldest first
	ListByBackend(ctx context.Context, backendID string) ([]models.ReferenceRecord, error)
}

// BatchRepository persists completed batch plans for audit
type BatchRepository interface {
	// RecordBatch stores a batch summary and its assignments atomically
	RecordBatch(ctx context.Context, plan *models.AssignmentPlan) error

	// GetBatch retrieves a stored batch summary by identifier
	GetBatch(ctx context.Context, batchID uuid.UUID) (*models.BatchRecord, error)
}
