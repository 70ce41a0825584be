package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-scheduler/config"
	"github.com/upb/llm-scheduler/models"
	"github.com/upb/llm-scheduler/services/feature"
	"github.com/upb/llm-scheduler/services/predictor"
)

func newObservationHandler() (*ObservationHandler, *predictor.RetrievalEstimator) {
	extractor := feature.NewExtractor(config.FeatureConfig{
		EmbeddingDim:  16,
		MaxQueryBytes: 4096,
	})
	retrieval := predictor.NewRetrievalEstimator(3, nil)
	return NewObservationHandler(extractor, retrieval, nil, zap.NewNop()), retrieval
}

func postObservation(handler *ObservationHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/observations", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.HandleObservation(w, req)
	return w
}

func TestHandleObservation(t *testing.T) {
	t.Run("records observation in estimator", func(t *testing.T) {
		handler, retrieval := newObservationHandler()

		w := postObservation(handler, `{
			"backend_id": "small-fast",
			"text": "summarize this memo",
			"domain": "summarization",
			"quality": 0.82,
			"cost": 0.003
		}`)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, 1, retrieval.Size("small-fast"))
	})

	t.Run("malformed body", func(t *testing.T) {
		handler, _ := newObservationHandler()
		w := postObservation(handler, `{`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("quality out of range", func(t *testing.T) {
		handler, _ := newObservationHandler()
		w := postObservation(handler, `{
			"backend_id": "a", "text": "x", "quality": 1.5, "cost": 0.1
		}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown domain rejected", func(t *testing.T) {
		handler, retrieval := newObservationHandler()
		w := postObservation(handler, `{
			"backend_id": "a", "text": "hello", "domain": "astrology",
			"quality": 0.5, "cost": 0.1
		}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, 0, retrieval.Size("a"))
	})

	t.Run("stored features are extractor output", func(t *testing.T) {
		handler, retrieval := newObservationHandler()

		w := postObservation(handler, `{
			"backend_id": "a", "text": "sort integers in python",
			"quality": 0.9, "cost": 0.002
		}`)
		require.Equal(t, http.StatusAccepted, w.Code)

		extractor := feature.NewExtractor(config.FeatureConfig{EmbeddingDim: 16, MaxQueryBytes: 4096})
		features, err := extractor.Extract(&models.Query{ID: "same-text", Text: "sort integers in python"})
		require.NoError(t, err)

		est := retrieval.Estimate(features, "a")
		assert.InDelta(t, 0.9, est.Quality, 1e-9)
		assert.Greater(t, est.Confidence, 0.0)
	})
}
