package models

import "errors"

var (
	// ErrInvalidQuery is returned when a query payload is malformed
	// (empty or over the size bound). The orchestrator excludes such
	// queries from the batch rather than aborting it.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrPredictionUnavailable is returned when both estimators report
	// zero confidence for a (query, backend) pair. The optimizer treats
	// the pair as non-existent.
	ErrPredictionUnavailable = errors.New("prediction unavailable")

	// ErrCapacityExceeded is returned when a reservation would push a
	// backend past its capacity ceiling.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrBudgetExhausted is returned when an assignment would exceed a
	// budget ceiling.
	ErrBudgetExhausted = errors.New("budget exhausted")

	// ErrOptimizationInfeasible is returned when no candidate exists
	// for any query in a batch.
	ErrOptimizationInfeasible = errors.New("optimization infeasible")

	// ErrBackendUnknown is returned for operations against a backend
	// the tracker or registry does not know.
	ErrBackendUnknown = errors.New("backend unknown")
)
