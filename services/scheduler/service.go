package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/llm-scheduler/config"
	"github.com/upb/llm-scheduler/models"
	"github.com/upb/llm-scheduler/services/feature"
	"github.com/upb/llm-scheduler/services/optimizer"
	"github.com/upb/llm-scheduler/services/predictor"
	"github.com/upb/llm-scheduler/services/registry"
	"github.com/upb/llm-scheduler/services/workload"
	"github.com/upb/llm-scheduler/utils"
)

var (
	// ErrNoBackendsAvailable is returned when the batch has no candidate backends
	ErrNoBackendsAvailable = errors.New("no backends available")

	// ErrBatchFailed is returned when a batch reaches the failed terminal state
	ErrBatchFailed = errors.New("batch failed")
)

// BatchState tracks a batch through the scheduling pipeline. Transitions
// are sequential and single-pass; a batch never re-enters an earlier
// state.
type BatchState string

const (
	StateReceived         BatchState = "received"
	StateFeatureExtracted BatchState = "feature_extracted"
	StatePredicted        BatchState = "predicted"
	StateOptimized        BatchState = "optimized"
	StateCommitted        BatchState = "committed"
	StateFailed           BatchState = "failed"
)

// BatchRequest is the one logical operation the scheduler exposes:
// a set of queries with per-query constraints plus candidate backends.
type BatchRequest struct {
	Queries     []models.Query `validate:"required,min=1,dive"`
	Constraints models.ConstraintSet

	// BackendIDs optionally restricts the candidate pool; empty means
	// all available backends from the registry.
	BackendIDs []string
}

// BatchRecorder persists completed batch summaries for audit. Recording
// is best-effort and never fails a batch.
type BatchRecorder interface {
	RecordBatch(ctx context.Context, plan *models.AssignmentPlan) error
}

// Service orchestrates a scheduling batch end to end: extract features,
// predict, optimize, commit load, emit the assignment plan. It owns the
// retry and degradation policy when no feasible assignment exists.
type Service struct {
	extractor *feature.Extractor
	predictor *predictor.Service
	optimizer *optimizer.Service
	tracker   *workload.Tracker
	registry  *registry.Registry
	recorder  BatchRecorder
	cfg       config.SchedulerConfig
	logger    *zap.Logger
}

// NewService creates a scheduler orchestrator. The recorder may be nil.
func NewService(
	extractor *feature.Extractor,
	pred *predictor.Service,
	opt *optimizer.Service,
	tracker *workload.Tracker,
	reg *registry.Registry,
	recorder BatchRecorder,
	cfg config.SchedulerConfig,
	logger *zap.Logger,
) *Service {
	return &Service{
		extractor: extractor,
		predictor: pred,
		optimizer: opt,
		tracker:   tracker,
		registry:  reg,
		recorder:  recorder,
		cfg:       cfg,
		logger:    logger,
	}
}

// batchRun carries the mutable state of one pipeline pass
type batchRun struct {
	id       uuid.UUID
	state    BatchState
	queries  []models.Query
	invalid  []models.UnassignedQuery
	backends []models.Backend
}

func (b *batchRun) transition(s BatchState, logger *zap.Logger) {
	logger.Debug("batch state transition",
		zap.String("batch", b.id.String()),
		zap.String("from", string(b.state)),
		zap.String("to", string(s)))
	b.state = s
}

// SubmitBatch runs one batch through the full pipeline and returns its
// assignment plan. Per-query failures degrade to unassignable entries;
// only batch-level conditions (no valid queries, no backends, commit
// deadlock) fail the batch as a whole. No partial reservations are
// left outstanding on failure.
func (s *Service) SubmitBatch(ctx context.Context, req BatchRequest) (*models.AssignmentPlan, error) {
	if s.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.BatchTimeout)
		defer cancel()
	}

	run := &batchRun{id: uuid.New(), state: StateReceived}

	if err := utils.ValidateStruct(&req); err != nil {
		run.transition(StateFailed, s.logger)
		return nil, err
	}
	// A nil default floor means the caller left it to configuration; an
	// explicit zero is honored as a genuine zero floor.
	constraints := req.Constraints
	if constraints.DefaultQualityFloor == nil {
		constraints.DefaultQualityFloor = models.Floor(s.cfg.DefaultQualityFloor)
	}

	if err := s.resolveBackends(run, req.BackendIDs); err != nil {
		run.transition(StateFailed, s.logger)
		return nil, err
	}
	s.dedupQueries(run, req.Queries)

	// Phase 1: feature extraction, parallel per query
	if err := s.extractFeatures(ctx, run); err != nil {
		run.transition(StateFailed, s.logger)
		return nil, err
	}
	run.transition(StateFeatureExtracted, s.logger)

	// Phase 2: per-pair prediction, parallel per (query, backend)
	predictions, err := s.predictPairs(ctx, run)
	if err != nil {
		run.transition(StateFailed, s.logger)
		return nil, err
	}
	run.transition(StatePredicted, s.logger)

	// Phase 3: constrained optimization with degradation policy
	plan := s.optimizeWithRelaxation(run, predictions, constraints)
	run.transition(StateOptimized, s.logger)

	// Phase 4: atomic commit with one refreshed retry
	plan, err = s.commit(run, plan, predictions, constraints)
	if err != nil {
		run.transition(StateFailed, s.logger)
		return nil, err
	}

	plan.BatchID = run.id
	plan.CreatedAt = time.Now().UTC()
	plan.Unassigned = append(plan.Unassigned, run.invalid...)
	run.transition(StateCommitted, s.logger)

	s.logger.Info("batch committed",
		zap.String("batch", run.id.String()),
		zap.Int("assigned", len(plan.Assignments)),
		zap.Int("unassigned", len(plan.Unassigned)),
		zap.Float64("total_cost", plan.TotalCost),
		zap.Bool("degraded", plan.Degraded))

	if s.recorder != nil {
		if err := s.recorder.RecordBatch(ctx, plan); err != nil {
			s.logger.Warn("failed to record batch", zap.Error(err))
		}
	}
	return plan, nil
}

// resolveBackends selects the candidate pool and makes sure the
// tracker knows each backend's capacity ceiling
func (s *Service) resolveBackends(run *batchRun, backendIDs []string) error {
	if len(backendIDs) == 0 {
		run.backends = s.registry.ListAvailable()
	} else {
		for _, id := range backendIDs {
			backend, err := s.registry.Get(id)
			if err != nil {
				return fmt.Errorf("batch %s: %w", run.id, err)
			}
			if backend.Available {
				run.backends = append(run.backends, backend)
			}
		}
	}
	if len(run.backends) == 0 {
		return fmt.Errorf("batch %s: %w", run.id, ErrNoBackendsAvailable)
	}

	for _, b := range run.backends {
		if err := s.tracker.Register(b.ID, b.Capacity); err != nil {
			return fmt.Errorf("batch %s: %w", run.id, err)
		}
	}
	return nil
}

// dedupQueries keeps the first occurrence of each query identifier and
// reports duplicates as invalid
func (s *Service) dedupQueries(run *batchRun, queries []models.Query) {
	seen := make(map[string]bool, len(queries))
	for _, q := range queries {
		if seen[q.ID] {
			s.logger.Warn("duplicate query id in batch",
				zap.String("batch", run.id.String()),
				zap.String("query", q.ID))
			run.invalid = append(run.invalid, models.UnassignedQuery{
				QueryID: q.ID,
				Reason:  models.ReasonInvalidQuery,
			})
			continue
		}
		seen[q.ID] = true
		run.queries = append(run.queries, q)
	}
}

// extractFeatures populates Features for every valid query; malformed
// queries are excluded from the batch and reported as unassignable
// rather than aborting the batch
func (s *Service) extractFeatures(ctx context.Context, run *batchRun) error {
	type result struct {
		features *models.FeatureVector
		err      error
	}
	results := make([]result, len(run.queries))

	sem := make(chan struct{}, s.cfg.Parallelism)
	var wg sync.WaitGroup
	for i := range run.queries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			features, err := s.extractor.Extract(&run.queries[i])
			results[i] = result{features: features, err: err}
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch %s abandoned during feature extraction: %w", run.id, err)
	}

	valid := run.queries[:0]
	for i, q := range run.queries {
		if results[i].err != nil {
			if errors.Is(results[i].err, models.ErrInvalidQuery) {
				s.logger.Warn("query excluded from batch",
					zap.String("batch", run.id.String()),
					zap.String("query", q.ID),
					zap.Error(results[i].err))
				run.invalid = append(run.invalid, models.UnassignedQuery{
					QueryID: q.ID,
					Reason:  models.ReasonInvalidQuery,
				})
				continue
			}
			return fmt.Errorf("batch %s: feature extraction failed for query %q: %w",
				run.id, q.ID, results[i].err)
		}
		q.Features = results[i].features
		valid = append(valid, q)
	}
	run.queries = valid

	if len(run.queries) == 0 {
		return fmt.Errorf("batch %s: %w: all queries invalid", run.id, ErrBatchFailed)
	}
	return nil
}

// predictPairs produces predictions for all (query, backend) pairs.
// Pairs the predictor refuses (zero confidence on both paths) are
// treated as non-existent. The result is independent of worker
// execution order.
func (s *Service) predictPairs(ctx context.Context, run *batchRun) (map[string]map[string]*models.Prediction, error) {
	type pair struct{ queryIdx, backendIdx int }
	pairs := make([]pair, 0, len(run.queries)*len(run.backends))
	for qi := range run.queries {
		for bi := range run.backends {
			pairs = append(pairs, pair{qi, bi})
		}
	}
	results := make([]*models.Prediction, len(pairs))

	sem := make(chan struct{}, s.cfg.Parallelism)
	var wg sync.WaitGroup
	for i := range pairs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			p := pairs[i]
			query := &run.queries[p.queryIdx]
			backend := &run.backends[p.backendIdx]
			pred, err := s.predictor.Predict(query.Features, backend)
			if err != nil {
				if !errors.Is(err, models.ErrPredictionUnavailable) {
					s.logger.Warn("prediction failed",
						zap.String("batch", run.id.String()),
						zap.String("query", query.ID),
						zap.String("backend", backend.ID),
						zap.Error(err))
				}
				return
			}
			pred.QueryID = query.ID
			results[i] = pred
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch %s abandoned during prediction: %w", run.id, err)
	}

	predictions := make(map[string]map[string]*models.Prediction, len(run.queries))
	for _, q := range run.queries {
		predictions[q.ID] = make(map[string]*models.Prediction, len(run.backends))
	}
	for _, pred := range results {
		if pred == nil {
			continue
		}
		predictions[pred.QueryID][pred.BackendID] = pred
	}
	return predictions, nil
}

// optimizeWithRelaxation runs the optimizer and, when the unassignable
// fraction exceeds the configured tolerance, retries with stepwise
// relaxed quality floors. A plan produced under relaxation is always
// marked degraded; constraints are never relaxed silently.
func (s *Service) optimizeWithRelaxation(
	run *batchRun,
	predictions map[string]map[string]*models.Prediction,
	constraints models.ConstraintSet,
) *models.AssignmentPlan {
	queryIDs := make([]string, len(run.queries))
	for i, q := range run.queries {
		queryIDs[i] = q.ID
	}

	input := optimizer.Input{
		QueryIDs:    queryIDs,
		Predictions: predictions,
		Constraints: constraints,
		Workload:    s.tracker.SnapshotAll(),
	}
	plan := s.optimizer.Optimize(input)

	if plan.UnassignedFraction() <= s.cfg.RelaxTolerance || s.cfg.RelaxStep <= 0 {
		return plan
	}

	best := plan
	relaxation := 0.0
	for step := 1; step <= s.cfg.MaxRelaxSteps; step++ {
		relaxed := constraints.Relaxed(s.cfg.RelaxStep * float64(step))
		input.Constraints = relaxed
		candidate := s.optimizer.Optimize(input)

		if candidate.AssignedCount() > best.AssignedCount() {
			best = candidate
			relaxation = s.cfg.RelaxStep * float64(step)
		}
		if candidate.UnassignedFraction() <= s.cfg.RelaxTolerance {
			break
		}
	}

	if relaxation > 0 {
		best.Degraded = true
		best.FloorRelaxation = relaxation
		s.logger.Warn("plan degraded by quality-floor relaxation",
			zap.String("batch", run.id.String()),
			zap.Float64("relaxation", relaxation),
			zap.Int("assigned", best.AssignedCount()))
	}
	return best
}

// commit reserves the plan's load deltas all-or-nothing. On a capacity
// race with a concurrent batch it re-optimizes once against a fresh
// snapshot, under the same effective floors that produced the plan —
// if relaxation rescued queries, the retry keeps them rescued. If the
// retry also cannot be committed, the affected queries fail rather
// than looping indefinitely.
func (s *Service) commit(
	run *batchRun,
	plan *models.AssignmentPlan,
	predictions map[string]map[string]*models.Prediction,
	constraints models.ConstraintSet,
) (*models.AssignmentPlan, error) {
	err := s.tracker.ReserveAll(plan.LoadDelta())
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, models.ErrCapacityExceeded) {
		return nil, fmt.Errorf("batch %s: commit failed: %w", run.id, err)
	}

	s.logger.Warn("commit lost capacity race, retrying with fresh snapshot",
		zap.String("batch", run.id.String()),
		zap.Error(err))

	effective := constraints
	if plan.FloorRelaxation > 0 {
		effective = constraints.Relaxed(plan.FloorRelaxation)
	}

	queryIDs := make([]string, len(run.queries))
	for i, q := range run.queries {
		queryIDs[i] = q.ID
	}
	retry := s.optimizer.Optimize(optimizer.Input{
		QueryIDs:    queryIDs,
		Predictions: predictions,
		Constraints: effective,
		Workload:    s.tracker.SnapshotAll(),
	})
	retry.Degraded = plan.Degraded
	retry.FloorRelaxation = plan.FloorRelaxation

	if err := s.tracker.ReserveAll(retry.LoadDelta()); err != nil {
		if !errors.Is(err, models.ErrCapacityExceeded) {
			return nil, fmt.Errorf("batch %s: commit retry failed: %w", run.id, err)
		}
		// Still racing: fail every planned assignment instead of
		// looping. Nothing was reserved; ReserveAll rolled back.
		s.logger.Error("commit retry lost capacity race, failing affected queries",
			zap.String("batch", run.id.String()),
			zap.Error(err))
		for _, a := range retry.Assignments {
			retry.Unassigned = append(retry.Unassigned, models.UnassignedQuery{
				QueryID: a.QueryID,
				Reason:  models.ReasonCapacityExhausted,
			})
		}
		retry.Assignments = nil
		retry.TotalCost = 0
	}
	return retry, nil
}

// ReleaseCompleted returns load to the tracker once the external
// dispatcher reports a query finished. Load never decays implicitly.
func (s *Service) ReleaseCompleted(backendID string, count int) error {
	return s.tracker.Release(backendID, count)
}
