package models

// CapabilityTier represents the parameter-scale class of a backend
type CapabilityTier string

const (
	TierSmall  CapabilityTier = "small"
	TierMedium CapabilityTier = "medium"
	TierLarge  CapabilityTier = "large"
)

// Backend represents an LLM serving endpoint. The static descriptor
// (tier, specialties, pricing, capacity) is read-only per batch;
// current load is owned exclusively by the workload tracker.
type Backend struct {
	ID          string         `json:"id" yaml:"id" validate:"required"`
	Tier        CapabilityTier `json:"tier" yaml:"tier" validate:"required,oneof=small medium large"`
	Specialties []TaskDomain   `json:"specialties" yaml:"specialties"`

	// Pricing per 1K tokens, applied to the query's estimated token count
	PromptPer1K     float64 `json:"prompt_per_1k" yaml:"prompt_per_1k" validate:"gte=0"`
	CompletionPer1K float64 `json:"completion_per_1k" yaml:"completion_per_1k" validate:"gte=0"`

	// Capacity is the maximum number of concurrently committed queries
	Capacity  int  `json:"capacity" yaml:"capacity" validate:"gt=0"`
	Available bool `json:"available" yaml:"available"`
}

// HasSpecialty checks whether the backend declares a specialty for a domain
func (b *Backend) HasSpecialty(domain TaskDomain) bool {
	for _, s := range b.Specialties {
		if s == domain {
			return true
		}
	}
	return false
}

// BaseCost returns the pricing-model cost for a query of the given
// estimated token count. Completion tokens are approximated as a fixed
// fraction of prompt tokens; the predictor scales this further per tier.
func (b *Backend) BaseCost(tokenCount int) float64 {
	promptCost := float64(tokenCount) / 1000.0 * b.PromptPer1K
	completionCost := float64(tokenCount) / 2000.0 * b.CompletionPer1K
	return promptCost + completionCost
}
