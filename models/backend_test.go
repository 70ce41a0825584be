package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackendBaseCost(t *testing.T) {
	backend := Backend{
		ID:              "medium-general",
		Tier:            TierMedium,
		PromptPer1K:     0.001,
		CompletionPer1K: 0.003,
		Capacity:        32,
	}

	tests := []struct {
		name       string
		tokenCount int
		want       float64
	}{
		{name: "zero tokens", tokenCount: 0, want: 0},
		{name: "1K prompt tokens", tokenCount: 1000, want: 0.001 + 0.0015},
		{name: "2K prompt tokens", tokenCount: 2000, want: 0.002 + 0.003},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, backend.BaseCost(tt.tokenCount), 1e-12)
		})
	}
}

func TestBackendBaseCostMonotonic(t *testing.T) {
	backend := Backend{
		ID:              "small-fast",
		Tier:            TierSmall,
		PromptPer1K:     0.0002,
		CompletionPer1K: 0.0006,
		Capacity:        64,
	}

	prev := backend.BaseCost(0)
	for _, tokens := range []int{10, 100, 500, 2000, 10000} {
		cost := backend.BaseCost(tokens)
		assert.GreaterOrEqual(t, cost, prev, "cost must not decrease with token count")
		prev = cost
	}
}

func TestBackendHasSpecialty(t *testing.T) {
	backend := Backend{
		ID:          "large-reasoning",
		Specialties: []TaskDomain{DomainMathReasoning, DomainCodeGen},
	}

	assert.True(t, backend.HasSpecialty(DomainMathReasoning))
	assert.True(t, backend.HasSpecialty(DomainCodeGen))
	assert.False(t, backend.HasSpecialty(DomainSummarization))
	assert.False(t, backend.HasSpecialty(DomainGeneral))
}
