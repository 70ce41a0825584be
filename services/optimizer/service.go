package optimizer

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/upb/llm-scheduler/config"
	"github.com/upb/llm-scheduler/models"
	"github.com/upb/llm-scheduler/services/workload"
)

// Input carries everything one optimization pass needs. Predictions
// are keyed by query ID then backend ID; pairs the predictor refused
// are simply absent.
type Input struct {
	QueryIDs    []string
	Predictions map[string]map[string]*models.Prediction
	Constraints models.ConstraintSet
	Workload    map[string]workload.Snapshot
}

// Service produces a cost-minimal feasible assignment of queries to
// backends. Small batches are solved exactly by branch-and-bound;
// larger ones use a deterministic greedy heuristic with bounded
// displacement. Both paths satisfy the same feasibility invariants.
type Service struct {
	cfg    config.OptimizerConfig
	logger *zap.Logger
}

// NewService creates an optimizer service
func NewService(cfg config.OptimizerConfig, logger *zap.Logger) *Service {
	return &Service{cfg: cfg, logger: logger}
}

// candidate is one feasible (query, backend) edge
type candidate struct {
	backendID string
	quality   float64
	cost      float64
}

// Optimize computes an assignment plan from the given predictions,
// constraints, and workload snapshot. The result is deterministic for
// identical inputs and feasible with respect to the snapshot's
// remaining capacity; it is not committed to the tracker here.
func (s *Service) Optimize(input Input) *models.AssignmentPlan {
	candidates := s.buildCandidates(input)
	order := constrainedFirstOrder(input.QueryIDs, candidates)

	var plan *models.AssignmentPlan
	if len(order) <= s.cfg.ExactBatchLimit {
		plan = s.solveExact(order, candidates, input)
	} else {
		plan = s.solveGreedy(order, candidates, input)
	}

	sort.Slice(plan.Assignments, func(i, j int) bool {
		return plan.Assignments[i].QueryID < plan.Assignments[j].QueryID
	})
	sort.Slice(plan.Unassigned, func(i, j int) bool {
		return plan.Unassigned[i].QueryID < plan.Unassigned[j].QueryID
	})

	// Summed in sorted order so repeated runs agree to the last bit
	plan.TotalCost = 0
	for _, a := range plan.Assignments {
		plan.TotalCost += a.PredictedCost
	}

	s.logger.Debug("optimization pass complete",
		zap.Int("queries", len(order)),
		zap.Int("assigned", len(plan.Assignments)),
		zap.Int("unassigned", len(plan.Unassigned)),
		zap.Float64("total_cost", plan.TotalCost),
		zap.Bool("exact", len(order) <= s.cfg.ExactBatchLimit))

	return plan
}

// buildCandidates keeps only edges whose predicted quality meets the
// query's floor and whose predicted cost is finite. Each query's
// candidates are ordered lowest cost first, ties broken by highest
// quality then backend identifier.
func (s *Service) buildCandidates(input Input) map[string][]candidate {
	candidates := make(map[string][]candidate, len(input.QueryIDs))
	for _, queryID := range input.QueryIDs {
		floor := input.Constraints.FloorFor(queryID)

		var edges []candidate
		for backendID, pred := range input.Predictions[queryID] {
			if pred == nil {
				continue
			}
			if math.IsInf(pred.Cost, 0) || math.IsNaN(pred.Cost) {
				continue
			}
			if pred.Quality < floor {
				continue
			}
			if _, tracked := input.Workload[backendID]; !tracked {
				continue
			}
			edges = append(edges, candidate{
				backendID: backendID,
				quality:   pred.Quality,
				cost:      pred.Cost,
			})
		}

		sort.Slice(edges, func(i, j int) bool {
			if edges[i].cost != edges[j].cost {
				return edges[i].cost < edges[j].cost
			}
			if edges[i].quality != edges[j].quality {
				return edges[i].quality > edges[j].quality
			}
			return edges[i].backendID < edges[j].backendID
		})
		candidates[queryID] = edges
	}
	return candidates
}

// constrainedFirstOrder sorts queries by ascending candidate count,
// ties broken by query identifier for determinism
func constrainedFirstOrder(queryIDs []string, candidates map[string][]candidate) []string {
	order := make([]string, len(queryIDs))
	copy(order, queryIDs)
	sort.Slice(order, func(i, j int) bool {
		ci, cj := len(candidates[order[i]]), len(candidates[order[j]])
		if ci != cj {
			return ci < cj
		}
		return order[i] < order[j]
	})
	return order
}

// solverState tracks remaining capacity and spent budget during a pass
type solverState struct {
	remaining    map[string]int
	spentTotal   float64
	spentBackend map[string]float64
	constraints  models.ConstraintSet
}

func newSolverState(input Input) *solverState {
	remaining := make(map[string]int, len(input.Workload))
	for id, snap := range input.Workload {
		remaining[id] = snap.Remaining()
	}
	return &solverState{
		remaining:    remaining,
		spentBackend: make(map[string]float64),
		constraints:  input.Constraints,
	}
}

// budgetAllows checks the global and per-backend cost ceilings
func (st *solverState) budgetAllows(backendID string, cost float64) bool {
	if st.constraints.MaxTotalCost > 0 && st.spentTotal+cost > st.constraints.MaxTotalCost {
		return false
	}
	if cap, ok := st.constraints.MaxBackendCost[backendID]; ok && cap > 0 {
		if st.spentBackend[backendID]+cost > cap {
			return false
		}
	}
	return true
}

func (st *solverState) commit(backendID string, cost float64) {
	st.remaining[backendID]--
	st.spentTotal += cost
	st.spentBackend[backendID] += cost
}

func (st *solverState) uncommit(backendID string, cost float64) {
	st.remaining[backendID]++
	st.spentTotal -= cost
	st.spentBackend[backendID] -= cost
}

// solveGreedy runs the most-constrained-first heuristic with bounded
// displacement when capacity runs out
func (s *Service) solveGreedy(order []string, candidates map[string][]candidate, input Input) *models.AssignmentPlan {
	state := newSolverState(input)
	assigned := make(map[string]models.Assignment)
	plan := &models.AssignmentPlan{}

	for _, queryID := range order {
		edges := candidates[queryID]
		if len(edges) == 0 {
			plan.Unassigned = append(plan.Unassigned, models.UnassignedQuery{
				QueryID: queryID,
				Reason:  models.ReasonQualityInfeasible,
			})
			continue
		}

		chosen, reason := pickDirect(edges, state)
		if chosen == nil && reason == models.ReasonCapacityExhausted {
			chosen = s.displace(queryID, edges, candidates, assigned, state)
		}

		if chosen == nil {
			plan.Unassigned = append(plan.Unassigned, models.UnassignedQuery{
				QueryID: queryID,
				Reason:  reason,
			})
			continue
		}

		state.commit(chosen.backendID, chosen.cost)
		assigned[queryID] = models.Assignment{
			QueryID:          queryID,
			BackendID:        chosen.backendID,
			PredictedQuality: chosen.quality,
			PredictedCost:    chosen.cost,
		}
	}

	for _, a := range assigned {
		plan.Assignments = append(plan.Assignments, a)
	}
	return plan
}

// pickDirect chooses the cheapest candidate with remaining capacity
// and budget headroom. When no pick is possible the returned reason
// distinguishes capacity from budget exhaustion.
func pickDirect(edges []candidate, state *solverState) (*candidate, models.UnassignableReason) {
	sawCapacity := false
	for i := range edges {
		c := &edges[i]
		if state.remaining[c.backendID] <= 0 {
			continue
		}
		sawCapacity = true
		if !state.budgetAllows(c.backendID, c.cost) {
			continue
		}
		return c, ""
	}
	if sawCapacity {
		return nil, models.ReasonBudgetExhausted
	}
	return nil, models.ReasonCapacityExhausted
}

// displacementMove relocates an already-assigned query to free a slot
type displacementMove struct {
	target    candidate // where the new query lands
	displaced string    // query being relocated
	dest      candidate // its new backend
	extraCost float64
}

// displace performs the bounded local search: relocate one previously
// assigned query to another feasible backend so the blocked query fits,
// choosing the move with the strictly lowest added cost. It is a
// single-move search, not a re-optimization; nothing changes when no
// feasible move exists.
func (s *Service) displace(
	queryID string,
	edges []candidate,
	candidates map[string][]candidate,
	assigned map[string]models.Assignment,
	state *solverState,
) *candidate {
	// Deterministic iteration over current assignments
	assignedIDs := make([]string, 0, len(assigned))
	for id := range assigned {
		assignedIDs = append(assignedIDs, id)
	}
	sort.Strings(assignedIDs)

	var best *displacementMove
	for _, target := range edges {
		for _, victimID := range assignedIDs {
			victim := assigned[victimID]
			if victim.BackendID != target.backendID {
				continue
			}
			for _, dest := range candidates[victimID] {
				if dest.backendID == victim.BackendID {
					continue
				}
				if state.remaining[dest.backendID] <= 0 {
					continue
				}
				extra := target.cost + dest.cost - victim.PredictedCost
				if !moveWithinBudget(state, target, dest, extra) {
					continue
				}
				if best == nil || extra < best.extraCost {
					best = &displacementMove{
						target:    target,
						displaced: victimID,
						dest:      dest,
						extraCost: extra,
					}
				}
				// Candidates are cost-sorted; the first feasible
				// destination is this victim's cheapest
				break
			}
		}
	}

	if best == nil {
		return nil
	}

	victim := assigned[best.displaced]
	state.uncommit(victim.BackendID, victim.PredictedCost)
	state.commit(best.dest.backendID, best.dest.cost)
	assigned[best.displaced] = models.Assignment{
		QueryID:          best.displaced,
		BackendID:        best.dest.backendID,
		PredictedQuality: best.dest.quality,
		PredictedCost:    best.dest.cost,
	}

	s.logger.Debug("displacement applied",
		zap.String("query", queryID),
		zap.String("displaced", best.displaced),
		zap.String("from", victim.BackendID),
		zap.String("to", best.dest.backendID),
		zap.Float64("extra_cost", best.extraCost))

	target := best.target
	return &target
}

// moveWithinBudget checks the combined cost effect of a displacement
// move against the global and per-backend ceilings
func moveWithinBudget(state *solverState, target, dest candidate, extra float64) bool {
	if state.constraints.MaxTotalCost > 0 && state.spentTotal+extra > state.constraints.MaxTotalCost {
		return false
	}
	if cap, ok := state.constraints.MaxBackendCost[target.backendID]; ok && cap > 0 {
		if state.spentBackend[target.backendID]+target.cost > cap {
			return false
		}
	}
	if cap, ok := state.constraints.MaxBackendCost[dest.backendID]; ok && cap > 0 {
		if state.spentBackend[dest.backendID]+dest.cost > cap {
			return false
		}
	}
	return true
}

// exactSolution is the branch-and-bound incumbent
type exactSolution struct {
	assigned map[string]candidate
	cost     float64
}

// solveExact explores assignments in most-constrained-first order,
// maximizing assigned queries and then minimizing total cost. Batches
// are small enough (ExactBatchLimit) for exhaustive search with
// pruning.
func (s *Service) solveExact(order []string, candidates map[string][]candidate, input Input) *models.AssignmentPlan {
	state := newSolverState(input)
	best := &exactSolution{cost: math.Inf(1)}
	current := make(map[string]candidate, len(order))

	var search func(idx int, cost float64)
	search = func(idx int, cost float64) {
		// Bound: even assigning every remaining query cannot beat the
		// incumbent's assigned count
		maxPossible := len(current) + (len(order) - idx)
		if maxPossible < len(best.assigned) {
			return
		}
		if maxPossible == len(best.assigned) && cost >= best.cost {
			return
		}

		if idx == len(order) {
			if len(current) > len(best.assigned) ||
				(len(current) == len(best.assigned) && cost < best.cost) {
				snapshot := make(map[string]candidate, len(current))
				for id, c := range current {
					snapshot[id] = c
				}
				best = &exactSolution{assigned: snapshot, cost: cost}
			}
			return
		}

		queryID := order[idx]
		for _, c := range candidates[queryID] {
			if state.remaining[c.backendID] <= 0 {
				continue
			}
			if !state.budgetAllows(c.backendID, c.cost) {
				continue
			}
			state.commit(c.backendID, c.cost)
			current[queryID] = c
			search(idx+1, cost+c.cost)
			delete(current, queryID)
			state.uncommit(c.backendID, c.cost)
		}

		// Leaving the query unassigned is always an option
		search(idx+1, cost)
	}
	search(0, 0)

	plan := &models.AssignmentPlan{}
	finalState := newSolverState(input)
	for queryID, c := range best.assigned {
		plan.Assignments = append(plan.Assignments, models.Assignment{
			QueryID:          queryID,
			BackendID:        c.backendID,
			PredictedQuality: c.quality,
			PredictedCost:    c.cost,
		})
		finalState.commit(c.backendID, c.cost)
	}

	for _, queryID := range order {
		if _, ok := best.assigned[queryID]; ok {
			continue
		}
		plan.Unassigned = append(plan.Unassigned, models.UnassignedQuery{
			QueryID: queryID,
			Reason:  unassignedReason(candidates[queryID], finalState),
		})
	}
	return plan
}

// unassignedReason classifies why a query stayed unplaced given the
// final solver state
func unassignedReason(edges []candidate, state *solverState) models.UnassignableReason {
	if len(edges) == 0 {
		return models.ReasonQualityInfeasible
	}
	for i := range edges {
		if state.remaining[edges[i].backendID] > 0 {
			return models.ReasonBudgetExhausted
		}
	}
	return models.ReasonCapacityExhausted
}
