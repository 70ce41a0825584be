package predictor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/llm-scheduler/models"
)

func testArtifact() *Artifact {
	centroid := make([]float64, 4)
	centroid[0] = 1 // unit vector along the first axis
	return &Artifact{
		EmbeddingDim: 4,
		Tiers: map[models.CapabilityTier]TierParams{
			models.TierSmall: {
				BaseQuality:    0.5,
				SpecialtyBonus: 0.2,
				LengthPenalty:  0.001,
				CostMultiplier: 1.0,
			},
			models.TierLarge: {
				BaseQuality:    0.9,
				SpecialtyBonus: 0.05,
				LengthPenalty:  0.0001,
				CostMultiplier: 2.0,
			},
		},
		Domains: map[models.TaskDomain]*DomainParams{
			models.DomainKnowledgeQA: {Centroid: centroid, Spread: 1.0},
		},
	}
}

func unitFeatures(domain models.TaskDomain, tokens int) *models.FeatureVector {
	embedding := make([]float64, 4)
	embedding[0] = 1
	return &models.FeatureVector{
		Embedding:  embedding,
		TokenCount: tokens,
		Domain:     domain,
	}
}

func TestTrainedEstimatorEstimate(t *testing.T) {
	estimator := NewTrainedEstimator(testArtifact())
	backend := &models.Backend{
		ID:              "small-fast",
		Tier:            models.TierSmall,
		Specialties:     []models.TaskDomain{models.DomainKnowledgeQA},
		PromptPer1K:     1.0,
		CompletionPer1K: 0,
		Capacity:        4,
	}

	t.Run("specialty bonus applies", func(t *testing.T) {
		est := estimator.Estimate(unitFeatures(models.DomainKnowledgeQA, 100), backend)
		// 0.5 base + 0.2 bonus - 0.001*100 penalty
		assert.InDelta(t, 0.6, est.Quality, 1e-9)
	})

	t.Run("no bonus outside specialty", func(t *testing.T) {
		other := *backend
		other.Specialties = nil
		est := estimator.Estimate(unitFeatures(models.DomainKnowledgeQA, 100), &other)
		assert.InDelta(t, 0.4, est.Quality, 1e-9)
	})

	t.Run("cost scales with multiplier", func(t *testing.T) {
		large := &models.Backend{
			ID:          "large-reasoning",
			Tier:        models.TierLarge,
			PromptPer1K: 1.0,
			Capacity:    2,
		}
		est := estimator.Estimate(unitFeatures(models.DomainKnowledgeQA, 1000), large)
		// BaseCost(1000) = 1.0, multiplier 2.0
		assert.InDelta(t, 2.0, est.Cost, 1e-9)
	})

	t.Run("confidence is one at the centroid", func(t *testing.T) {
		est := estimator.Estimate(unitFeatures(models.DomainKnowledgeQA, 10), backend)
		assert.InDelta(t, 1.0, est.Confidence, 1e-9)
	})

	t.Run("confidence decays away from centroid", func(t *testing.T) {
		far := &models.FeatureVector{
			Embedding:  []float64{0, 1, 0, 0},
			TokenCount: 10,
			Domain:     models.DomainKnowledgeQA,
		}
		est := estimator.Estimate(far, backend)
		assert.Greater(t, est.Confidence, 0.0)
		assert.Less(t, est.Confidence, 1.0)
	})

	t.Run("unknown tier yields zero estimate", func(t *testing.T) {
		unknown := &models.Backend{ID: "x", Tier: models.TierMedium, Capacity: 1}
		est := estimator.Estimate(unitFeatures(models.DomainKnowledgeQA, 10), unknown)
		assert.Zero(t, est.Quality)
		assert.Zero(t, est.Confidence)
	})

	t.Run("unknown domain yields zero confidence", func(t *testing.T) {
		est := estimator.Estimate(unitFeatures(models.DomainGeneral, 10), backend)
		assert.Zero(t, est.Confidence)
	})

	t.Run("dimension mismatch yields zero confidence", func(t *testing.T) {
		short := &models.FeatureVector{
			Embedding:  []float64{1, 0},
			TokenCount: 10,
			Domain:     models.DomainKnowledgeQA,
		}
		est := estimator.Estimate(short, backend)
		assert.Zero(t, est.Confidence)
	})

	t.Run("quality clamped to unit interval", func(t *testing.T) {
		est := estimator.Estimate(unitFeatures(models.DomainKnowledgeQA, 100000), backend)
		assert.GreaterOrEqual(t, est.Quality, 0.0)
		assert.LessOrEqual(t, est.Quality, 1.0)
	})
}

func TestArtifactValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(a *Artifact)
		wantErr string
	}{
		{
			name:    "valid",
			mutate:  func(a *Artifact) {},
			wantErr: "",
		},
		{
			name:    "zero embedding dim",
			mutate:  func(a *Artifact) { a.EmbeddingDim = 0 },
			wantErr: "embedding_dim",
		},
		{
			name:    "no tiers",
			mutate:  func(a *Artifact) { a.Tiers = nil },
			wantErr: "at least one tier",
		},
		{
			name: "base quality out of range",
			mutate: func(a *Artifact) {
				a.Tiers[models.TierSmall] = TierParams{BaseQuality: 1.5}
			},
			wantErr: "base_quality",
		},
		{
			name: "centroid dimension mismatch",
			mutate: func(a *Artifact) {
				a.Domains[models.DomainKnowledgeQA] = &DomainParams{
					Centroid: []float64{1, 0},
					Spread:   1,
				}
			},
			wantErr: "centroid dimension",
		},
		{
			name: "non-positive spread",
			mutate: func(a *Artifact) {
				a.Domains[models.DomainKnowledgeQA].Spread = 0
			},
			wantErr: "spread",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			artifact := testArtifact()
			tt.mutate(artifact)
			err := artifact.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadArtifact(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "estimator.yaml")
		content := `
embedding_dim: 2
tiers:
  small:
    base_quality: 0.6
    specialty_bonus: 0.1
    length_penalty: 0.0001
    cost_multiplier: 1.0
domains:
  general:
    centroid: [0.0, 1.0]
    spread: 0.8
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		artifact, err := LoadArtifact(path)
		require.NoError(t, err)
		assert.Equal(t, 2, artifact.EmbeddingDim)
		assert.InDelta(t, 0.6, artifact.Tiers[models.TierSmall].BaseQuality, 1e-12)
		assert.InDelta(t, 0.8, artifact.Domains[models.DomainGeneral].Spread, 1e-12)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadArtifact(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid content rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("embedding_dim: 0\n"), 0o644))
		_, err := LoadArtifact(path)
		assert.Error(t, err)
	})
}
