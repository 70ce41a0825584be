package models

import "time"

// ReferenceRecord is one labeled (query, backend, outcome) triple from
// the offline-maintained reference corpus. The retrieval estimator
// reads these; only an offline process writes them.
type ReferenceRecord struct {
	ID        int64         `json:"id" db:"id"`
	BackendID string        `json:"backend_id" db:"backend_id"`
	Features  FeatureVector `json:"features"`
	Quality   float64       `json:"quality" db:"quality"`
	Cost      float64       `json:"cost" db:"cost"`
	AddedAt   time.Time     `json:"added_at" db:"added_at"`
}
