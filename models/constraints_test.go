package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstraintSetFloorFor(t *testing.T) {
	constraints := ConstraintSet{
		QualityFloors:       map[string]float64{"q1": 0.9},
		DefaultQualityFloor: Floor(0.5),
	}

	assert.Equal(t, 0.9, constraints.FloorFor("q1"))
	assert.Equal(t, 0.5, constraints.FloorFor("q2"))

	t.Run("unset default means no floor", func(t *testing.T) {
		unset := ConstraintSet{QualityFloors: map[string]float64{"q1": 0.9}}
		assert.Equal(t, 0.0, unset.FloorFor("q2"))
	})

	t.Run("explicit zero is a genuine floor", func(t *testing.T) {
		zero := ConstraintSet{DefaultQualityFloor: Floor(0)}
		assert.NotNil(t, zero.DefaultQualityFloor)
		assert.Equal(t, 0.0, zero.FloorFor("q1"))
	})
}

func TestConstraintSetRelaxed(t *testing.T) {
	constraints := ConstraintSet{
		QualityFloors:       map[string]float64{"q1": 0.9, "q2": 0.03},
		DefaultQualityFloor: Floor(0.5),
		MaxTotalCost:        10,
		MaxBackendCost:      map[string]float64{"a": 3},
	}

	relaxed := constraints.Relaxed(0.05)

	t.Run("floors reduced", func(t *testing.T) {
		assert.InDelta(t, 0.85, relaxed.QualityFloors["q1"], 1e-12)
		assert.InDelta(t, 0.45, *relaxed.DefaultQualityFloor, 1e-12)
	})

	t.Run("floors never go negative", func(t *testing.T) {
		assert.Equal(t, 0.0, relaxed.QualityFloors["q2"])
	})

	t.Run("budget ceilings untouched", func(t *testing.T) {
		assert.Equal(t, 10.0, relaxed.MaxTotalCost)
		assert.Equal(t, 3.0, relaxed.MaxBackendCost["a"])
	})

	t.Run("original unchanged", func(t *testing.T) {
		assert.Equal(t, 0.9, constraints.QualityFloors["q1"])
		assert.Equal(t, 0.5, *constraints.DefaultQualityFloor)
	})

	t.Run("unset default stays unset", func(t *testing.T) {
		unset := ConstraintSet{QualityFloors: map[string]float64{"q1": 0.9}}
		assert.Nil(t, unset.Relaxed(0.05).DefaultQualityFloor)
	})
}
