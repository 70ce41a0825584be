package predictor

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/llm-scheduler/config"
	"github.com/upb/llm-scheduler/models"
)

// Service is the capability/cost predictor. It combines the trained
// estimator with the retrieval estimator under a single blending rule
// and is safe for concurrent use across (query, backend) pairs.
type Service struct {
	trained   *TrainedEstimator
	retrieval *RetrievalEstimator
	cfg       config.PredictorConfig
	logger    *zap.Logger
}

// NewService creates a new predictor service
func NewService(trained *TrainedEstimator, retrieval *RetrievalEstimator, cfg config.PredictorConfig, logger *zap.Logger) *Service {
	return &Service{
		trained:   trained,
		retrieval: retrieval,
		cfg:       cfg,
		logger:    logger,
	}
}

// Predict estimates quality and cost for a (query, backend) pair.
//
// Blending rule: when the trained estimator's confidence meets the
// configured threshold its output is used alone; otherwise trained and
// retrieval outputs are averaged weighted by confidence. When both
// estimators report zero confidence the pair fails with
// ErrPredictionUnavailable and must be treated as non-existent by the
// optimizer.
func (s *Service) Predict(features *models.FeatureVector, backend *models.Backend) (*models.Prediction, error) {
	trained := s.trained.Estimate(features, backend)

	if trained.Confidence >= s.cfg.TrainedConfidenceThreshold {
		return s.prediction(features, backend, trained, models.SourceTrained), nil
	}

	retrieved := s.retrieval.Estimate(features, backend.ID)

	total := trained.Confidence + retrieved.Confidence
	if total == 0 {
		return nil, fmt.Errorf("%w: backend %q, domain %q",
			models.ErrPredictionUnavailable, backend.ID, features.Domain)
	}

	if trained.Confidence == 0 {
		return s.prediction(features, backend, retrieved, models.SourceRetrieval), nil
	}
	if retrieved.Confidence == 0 {
		return s.prediction(features, backend, trained, models.SourceTrained), nil
	}

	wTrained := trained.Confidence / total
	wRetrieved := retrieved.Confidence / total
	blended := models.Estimate{
		Quality:    wTrained*trained.Quality + wRetrieved*retrieved.Quality,
		Cost:       wTrained*trained.Cost + wRetrieved*retrieved.Cost,
		Confidence: maxConfidence(trained.Confidence, retrieved.Confidence),
	}
	return s.prediction(features, backend, blended, models.SourceBlended), nil
}

func (s *Service) prediction(features *models.FeatureVector, backend *models.Backend, est models.Estimate, source models.PredictionSource) *models.Prediction {
	s.logger.Debug("prediction produced",
		zap.String("backend", backend.ID),
		zap.String("domain", string(features.Domain)),
		zap.String("source", string(source)),
		zap.Float64("quality", est.Quality),
		zap.Float64("cost", est.Cost),
		zap.Float64("confidence", est.Confidence))

	return &models.Prediction{
		BackendID:  backend.ID,
		Quality:    clamp01(est.Quality),
		Cost:       est.Cost,
		Confidence: clamp01(est.Confidence),
		Source:     source,
	}
}

func maxConfidence(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
