package models

import (
	"time"

	"github.com/google/uuid"
)

// UnassignableReason explains why a query could not be assigned
type UnassignableReason string

const (
	ReasonQualityInfeasible UnassignableReason = "quality_infeasible"
	ReasonCapacityExhausted UnassignableReason = "capacity_exhausted"
	ReasonBudgetExhausted   UnassignableReason = "budget_exhausted"
	ReasonInvalidQuery      UnassignableReason = "invalid_query"
)

// Assignment is a single (query, backend) decision with its realized
// predicted cost and quality
type Assignment struct {
	QueryID          string  `json:"query_id"`
	BackendID        string  `json:"backend_id"`
	PredictedQuality float64 `json:"predicted_quality"`
	PredictedCost    float64 `json:"predicted_cost"`
}

// UnassignedQuery marks a query the optimizer could not place
type UnassignedQuery struct {
	QueryID string             `json:"query_id"`
	Reason  UnassignableReason `json:"reason"`
}

// AssignmentPlan is the output of one scheduling batch. Every query in
// the batch appears exactly once, either assigned or unassigned.
type AssignmentPlan struct {
	BatchID     uuid.UUID         `json:"batch_id"`
	Assignments []Assignment      `json:"assignments"`
	Unassigned  []UnassignedQuery `json:"unassigned"`
	TotalCost   float64           `json:"total_cost"`

	// Degraded marks a plan produced after explicit quality-floor
	// relaxation. Constraints are never relaxed without this marker.
	Degraded        bool    `json:"degraded"`
	FloorRelaxation float64 `json:"floor_relaxation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// AssignedCount returns the number of placed queries
func (p *AssignmentPlan) AssignedCount() int {
	return len(p.Assignments)
}

// UnassignedFraction returns the share of queries the plan left
// unplaced. Invalid queries count toward the batch size but are not
// recoverable by relaxation.
func (p *AssignmentPlan) UnassignedFraction() float64 {
	total := len(p.Assignments) + len(p.Unassigned)
	if total == 0 {
		return 0
	}
	return float64(len(p.Unassigned)) / float64(total)
}

// BatchRecord is the stored audit summary of a committed batch
type BatchRecord struct {
	BatchID         uuid.UUID `json:"batch_id"`
	AssignedCount   int       `json:"assigned_count"`
	UnassignedCount int       `json:"unassigned_count"`
	TotalCost       float64   `json:"total_cost"`
	Degraded        bool      `json:"degraded"`
	FloorRelaxation float64   `json:"floor_relaxation"`
	CreatedAt       time.Time `json:"created_at"`
}

// LoadDelta returns the per-backend load increase committing this plan
// implies
func (p *AssignmentPlan) LoadDelta() map[string]int {
	delta := make(map[string]int)
	for _, a := range p.Assignments {
		delta[a.BackendID]++
	}
	return delta
}
