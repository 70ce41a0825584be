package models

// ConstraintSet carries the per-batch scheduling constraints. It is
// supplied by the caller and immutable within a batch.
type ConstraintSet struct {
	// QualityFloors maps query ID to the minimum acceptable predicted
	// quality. Queries absent from the map use DefaultQualityFloor.
	QualityFloors map[string]float64 `json:"quality_floors"`

	// DefaultQualityFloor applies to queries without an explicit floor.
	// Nil means the caller did not set one and the configured default
	// applies; an explicit zero is honored as a genuine zero floor.
	DefaultQualityFloor *float64 `json:"default_quality_floor,omitempty" validate:"omitempty,gte=0,lte=1"`

	// MaxTotalCost is an optional ceiling on the summed predicted cost
	// of the whole plan. Zero means no ceiling.
	MaxTotalCost float64 `json:"max_total_cost" validate:"gte=0"`

	// MaxBackendCost optionally caps the summed predicted cost per
	// backend. Zero or absent means no per-backend ceiling.
	MaxBackendCost map[string]float64 `json:"max_backend_cost"`
}

// FloorFor returns the quality floor for a query
func (c *ConstraintSet) FloorFor(queryID string) float64 {
	if f, ok := c.QualityFloors[queryID]; ok {
		return f
	}
	if c.DefaultQualityFloor != nil {
		return *c.DefaultQualityFloor
	}
	return 0
}

// Floor returns f as a constraint-set default floor
func Floor(f float64) *float64 {
	return &f
}

// Relaxed returns a copy of the constraint set with every quality
// floor reduced by step (floored at zero). Budget ceilings are never
// relaxed.
func (c *ConstraintSet) Relaxed(step float64) ConstraintSet {
	relaxed := ConstraintSet{
		MaxTotalCost:   c.MaxTotalCost,
		MaxBackendCost: c.MaxBackendCost,
	}
	if c.DefaultQualityFloor != nil {
		relaxed.DefaultQualityFloor = Floor(maxFloat(*c.DefaultQualityFloor-step, 0))
	}
	if len(c.QualityFloors) > 0 {
		relaxed.QualityFloors = make(map[string]float64, len(c.QualityFloors))
		for id, f := range c.QualityFloors {
			relaxed.QualityFloors[id] = maxFloat(f-step, 0)
		}
	}
	return relaxed
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
