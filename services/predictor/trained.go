package predictor

import (
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"github.com/upb/llm-scheduler/models"
)

// TierParams holds the regression coefficients for one capability tier
type TierParams struct {
	BaseQuality    float64 `yaml:"base_quality"`
	SpecialtyBonus float64 `yaml:"specialty_bonus"`
	LengthPenalty  float64 `yaml:"length_penalty"`
	CostMultiplier float64 `yaml:"cost_multiplier"`
}

// DomainParams describes the training distribution for one task
// domain. Confidence is derived from the distance of a query's
// embedding to the domain centroid.
type DomainParams struct {
	Centroid []float64 `yaml:"centroid"`
	Spread   float64   `yaml:"spread"`
}

// Artifact is the trained-estimator model, calibrated offline on
// labeled (query, backend, outcome) triples. Loaded once and treated
// as immutable for the process lifetime.
type Artifact struct {
	EmbeddingDim int                                   `yaml:"embedding_dim"`
	Tiers        map[models.CapabilityTier]TierParams  `yaml:"tiers"`
	Domains      map[models.TaskDomain]*DomainParams   `yaml:"domains"`
}

// LoadArtifact reads and validates a trained-estimator artifact file
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read estimator artifact: %w", err)
	}

	var artifact Artifact
	if err := yaml.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to parse estimator artifact: %w", err)
	}

	if err := artifact.Validate(); err != nil {
		return nil, fmt.Errorf("invalid estimator artifact: %w", err)
	}
	return &artifact, nil
}

// Validate checks the artifact's internal consistency
func (a *Artifact) Validate() error {
	if a.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding_dim must be positive")
	}
	if len(a.Tiers) == 0 {
		return fmt.Errorf("at least one tier is required")
	}
	for tier, params := range a.Tiers {
		if params.BaseQuality < 0 || params.BaseQuality > 1 {
			return fmt.Errorf("tier %s: base_quality must be in [0,1]", tier)
		}
		if params.CostMultiplier < 0 {
			return fmt.Errorf("tier %s: cost_multiplier must not be negative", tier)
		}
	}
	for domain, params := range a.Domains {
		if params == nil {
			continue
		}
		if len(params.Centroid) != a.EmbeddingDim {
			return fmt.Errorf("domain %s: centroid dimension %d does not match embedding_dim %d",
				domain, len(params.Centroid), a.EmbeddingDim)
		}
		if params.Spread <= 0 {
			return fmt.Errorf("domain %s: spread must be positive", domain)
		}
	}
	return nil
}

// TrainedEstimator maps (query features, backend descriptor) to a
// quality/cost estimate using the offline-calibrated artifact. It is a
// pure function over immutable state and safe for concurrent use.
type TrainedEstimator struct {
	artifact *Artifact
}

// NewTrainedEstimator creates a trained estimator from an artifact
func NewTrainedEstimator(artifact *Artifact) *TrainedEstimator {
	return &TrainedEstimator{artifact: artifact}
}

// Estimate predicts quality and cost for a (query, backend) pair.
// Confidence reflects how well the query falls within the training
// distribution of its domain; an unseen tier or domain yields zero
// confidence.
func (e *TrainedEstimator) Estimate(features *models.FeatureVector, backend *models.Backend) models.Estimate {
	params, ok := e.artifact.Tiers[backend.Tier]
	if !ok {
		return models.Estimate{}
	}

	quality := params.BaseQuality
	if backend.HasSpecialty(features.Domain) {
		quality += params.SpecialtyBonus
	}
	quality -= params.LengthPenalty * float64(features.TokenCount)
	quality = clamp01(quality)

	cost := backend.BaseCost(features.TokenCount) * params.CostMultiplier
	if cost < 0 {
		cost = 0
	}

	return models.Estimate{
		Quality:    quality,
		Cost:       cost,
		Confidence: e.confidence(features),
	}
}

// confidence scores the query against the domain's training centroid
// with a Gaussian kernel. Embeddings are unit-norm, so distances are
// bounded and the kernel stays well-conditioned.
func (e *TrainedEstimator) confidence(features *models.FeatureVector) float64 {
	domainParams, ok := e.artifact.Domains[features.Domain]
	if !ok || domainParams == nil || len(domainParams.Centroid) == 0 {
		return 0
	}
	if len(features.Embedding) != len(domainParams.Centroid) {
		return 0
	}

	d := floats.Distance(features.Embedding, domainParams.Centroid, 2)
	return math.Exp(-(d * d) / (2 * domainParams.Spread * domainParams.Spread))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
