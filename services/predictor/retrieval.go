package predictor

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/upb/llm-scheduler/models"
)

// RetrievalEstimator estimates quality and cost from the k most
// similar labeled reference queries served by the same backend.
// The reference set is read-only during estimation; AddObservation is
// for the offline refresh process between batches.
type RetrievalEstimator struct {
	mu        sync.RWMutex
	k         int
	byBackend map[string][]models.ReferenceRecord
}

// NewRetrievalEstimator creates a retrieval estimator over a labeled
// reference corpus. Records must be ordered oldest-first; insertion
// order is the recency tie-break for equally similar neighbors.
func NewRetrievalEstimator(k int, records []models.ReferenceRecord) *RetrievalEstimator {
	byBackend := make(map[string][]models.ReferenceRecord)
	for _, rec := range records {
		byBackend[rec.BackendID] = append(byBackend[rec.BackendID], rec)
	}
	return &RetrievalEstimator{
		k:         k,
		byBackend: byBackend,
	}
}

// AddObservation appends a labeled outcome to the reference set.
// The new record is the most recent for its backend.
func (e *RetrievalEstimator) AddObservation(rec models.ReferenceRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byBackend[rec.BackendID] = append(e.byBackend[rec.BackendID], rec)
}

// Size returns the number of reference records for a backend
func (e *RetrievalEstimator) Size(backendID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.byBackend[backendID])
}

// neighbor pairs a reference record with its feature-space distance
type neighbor struct {
	index    int // position in the backend's record slice; higher is more recent
	distance float64
	quality  float64
	cost     float64
}

// Estimate returns the similarity-weighted average of the k nearest
// reference outcomes for the backend. With fewer than k references the
// confidence scales down proportionally; with none it is zero.
func (e *RetrievalEstimator) Estimate(features *models.FeatureVector, backendID string) models.Estimate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	records := e.byBackend[backendID]
	if len(records) == 0 {
		return models.Estimate{}
	}

	neighbors := make([]neighbor, 0, len(records))
	for i, rec := range records {
		if len(rec.Features.Embedding) != len(features.Embedding) {
			continue
		}
		neighbors = append(neighbors, neighbor{
			index:    i,
			distance: floats.Distance(features.Embedding, rec.Features.Embedding, 2),
			quality:  rec.Quality,
			cost:     rec.Cost,
		})
	}
	if len(neighbors) == 0 {
		return models.Estimate{}
	}

	// Nearest first; ties in similarity prefer the most recently added
	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].distance == neighbors[j].distance {
			return neighbors[i].index > neighbors[j].index
		}
		return neighbors[i].distance < neighbors[j].distance
	})

	count := e.k
	if len(neighbors) < count {
		count = len(neighbors)
	}
	neighbors = neighbors[:count]

	qualities := make([]float64, count)
	costs := make([]float64, count)
	weights := make([]float64, count)
	for i, n := range neighbors {
		qualities[i] = n.quality
		costs[i] = n.cost
		weights[i] = 1 / (1 + n.distance)
	}

	quality := stat.Mean(qualities, weights)
	cost := stat.Mean(costs, weights)

	// Mean similarity in (0,1], scaled down when fewer than k
	// references exist for the backend
	confidence := stat.Mean(weights, nil) * float64(count) / float64(e.k)
	if confidence > 1 {
		confidence = 1
	}

	return models.Estimate{
		Quality:    clamp01(quality),
		Cost:       cost,
		Confidence: confidence,
	}
}
