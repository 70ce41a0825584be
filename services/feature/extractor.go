package feature

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"

	"github.com/upb/llm-scheduler/config"
	"github.com/upb/llm-scheduler/models"
)

// charsPerToken approximates the tokenizer's compression ratio
const charsPerToken = 4

// Extractor turns a raw query into its fixed-form feature
// representation. Extraction is deterministic and side-effect-free:
// the same input always yields the same feature vector.
type Extractor struct {
	cfg config.FeatureConfig
}

// NewExtractor creates a new feature extractor
func NewExtractor(cfg config.FeatureConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// Extract computes the feature vector for a query. Malformed payloads
// (empty or over the size bound) fail with ErrInvalidQuery.
func (e *Extractor) Extract(query *models.Query) (*models.FeatureVector, error) {
	if strings.TrimSpace(query.Text) == "" {
		return nil, fmt.Errorf("%w: empty payload for query %q", models.ErrInvalidQuery, query.ID)
	}
	if len(query.Text) > e.cfg.MaxQueryBytes {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds bound %d for query %q",
			models.ErrInvalidQuery, len(query.Text), e.cfg.MaxQueryBytes, query.ID)
	}

	domain := query.Domain
	if domain == "" {
		domain = models.DomainGeneral
	}
	if !models.IsKnownDomain(domain) {
		return nil, fmt.Errorf("%w: unknown task domain %q for query %q",
			models.ErrInvalidQuery, query.Domain, query.ID)
	}

	embedding := e.embed(query.Text)
	tokenCount := estimateTokens(query.Text)

	return &models.FeatureVector{
		Embedding:  embedding,
		TokenCount: tokenCount,
		Domain:     domain,
	}, nil
}

// embed produces an L2-normalized hashed bag-of-words embedding.
// Hashing keeps the representation stable across calls without any
// shared vocabulary state.
func (e *Extractor) embed(text string) []float64 {
	embedding := make([]float64, e.cfg.EmbeddingDim)

	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum32()
		bucket := int(sum % uint32(e.cfg.EmbeddingDim))
		// Sign bit decorrelates colliding tokens
		if sum&0x80000000 != 0 {
			embedding[bucket]--
		} else {
			embedding[bucket]++
		}
	}

	norm := floats.Norm(embedding, 2)
	if norm > 0 {
		floats.Scale(1/norm, embedding)
	}
	return embedding
}

// tokenize lowercases and splits on non-alphanumeric runs
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// estimateTokens approximates the token count from the payload length
func estimateTokens(text string) int {
	n := len(text) / charsPerToken
	if n == 0 {
		n = 1
	}
	return n
}
