package models

// TaskDomain classifies the kind of work a query represents
type TaskDomain string

const (
	DomainKnowledgeQA   TaskDomain = "knowledge_qa"
	DomainMathReasoning TaskDomain = "math_reasoning"
	DomainCodeGen       TaskDomain = "code_generation"
	DomainSummarization TaskDomain = "summarization"
	DomainGeneral       TaskDomain = "general"
)

// KnownDomains lists all recognized task domains
var KnownDomains = []TaskDomain{
	DomainKnowledgeQA,
	DomainMathReasoning,
	DomainCodeGen,
	DomainSummarization,
	DomainGeneral,
}

// IsKnownDomain checks whether a domain tag is recognized
func IsKnownDomain(d TaskDomain) bool {
	for _, known := range KnownDomains {
		if d == known {
			return true
		}
	}
	return false
}

// Query represents a single incoming request to be scheduled.
// Features is populated once by the feature extractor and is
// immutable afterwards.
type Query struct {
	ID       string         `json:"id" validate:"required"`
	Text     string         `json:"text" validate:"required"`
	Domain   TaskDomain     `json:"domain"`
	Features *FeatureVector `json:"-"`
}

// FeatureVector is the fixed-form representation of a query used by
// both predictor paths. The embedding is L2-normalized so that
// distances between queries are comparable.
type FeatureVector struct {
	Embedding  []float64  `json:"embedding"`
	TokenCount int        `json:"token_count"`
	Domain     TaskDomain `json:"domain"`
}
