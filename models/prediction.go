package models

// PredictionSource tags which estimator produced a prediction
type PredictionSource string

const (
	SourceTrained   PredictionSource = "trained"
	SourceRetrieval PredictionSource = "retrieval"
	SourceBlended   PredictionSource = "blended"
)

// Prediction is the estimated outcome of serving a query on a backend.
// Produced fresh per scheduling batch and never persisted beyond it.
type Prediction struct {
	QueryID    string           `json:"query_id"`
	BackendID  string           `json:"backend_id"`
	Quality    float64          `json:"quality"`    // in [0,1]
	Cost       float64          `json:"cost"`       // >= 0
	Confidence float64          `json:"confidence"` // in [0,1]
	Source     PredictionSource `json:"source"`
}

// Estimate is a raw estimator output before blending
type Estimate struct {
	Quality    float64
	Cost       float64
	Confidence float64
}
