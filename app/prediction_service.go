package app

import (
	"context"
	"fmt"
	"time"

	"agriprice/domain/model"
	"agriprice/internal"
	"agriprice/internal/errors"
	"agriprice/internal/metrics"
	"agriprice/ports"
)

// Predictor is the part of the engine the prediction service calls
type Predictor interface {
	PredictVersioned(input model.PredictionInput) (model.PredictionResult, uint64, error)
	Version() uint64
}

// PredictionService serves engine predictions through an optional cache
type PredictionService struct {
	predictor Predictor
	cache     ports.PredictionCache
	metrics   *metrics.Collector
	logger    *internal.Logger
}

// NewPredictionService creates a prediction service. cache and collector may be nil.
func NewPredictionService(predictor Predictor, cache ports.PredictionCache, collector *metrics.Collector, logger *internal.Logger) *PredictionService {
	return &PredictionService{
		predictor: predictor,
		cache:     cache,
		metrics:   collector,
		logger:    logger.With("Prediction"),
	}
}

// Predict returns the price estimate for input. Cache failures are logged and
// fall through to the engine.
func (s *PredictionService) Predict(ctx context.Context, input model.PredictionInput) (*model.PredictionResult, error) {
	if !input.Frequency.Valid() {
		return nil, errors.InvalidInput(fmt.Sprintf("unsupported frequency %q", input.Frequency))
	}
	if input.Frequency == "" {
		input.Frequency = model.FrequencyMonthly
	}

	start := time.Now()
	version := s.predictor.Version()
	if version == 0 {
		return nil, errors.NotTrained("models are still training, try again shortly")
	}

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, version, input)
		switch {
		case err != nil:
			s.logger.Warn("Cache lookup failed: %v", err)
		case ok:
			s.observe(cached.Model, true, start)
			return cached, nil
		}
	}

	result, served, err := s.predictor.PredictVersioned(input)
	if err != nil {
		return nil, errors.Wrap(errors.FromDomain(err), "prediction failed")
	}

	// a retrain may have landed since the lookup; store under the version that answered
	if s.cache != nil {
		if err := s.cache.Set(ctx, served, input, result); err != nil {
			s.logger.Warn("Cache store failed: %v", err)
		}
	}
	s.observe(result.Model, false, start)
	s.logger.Debug("%d-%02d %s/%s -> %d (%d%%, %s)", input.Year, input.Month, input.City, input.Variety,
		result.PredictedPrice, result.Confidence, result.Model)

	return &result, nil
}

func (s *PredictionService) observe(modelName string, cacheHit bool, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObservePrediction(modelName, cacheHit, time.Since(start))
	}
}
