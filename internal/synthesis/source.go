package synthesis

import (
	"context"
	"sync"

	"agriprice/domain/dataset"
	"agriprice/internal"
)

// CachedSource generates the dataset once and serves the same slice on every
// load. Callers must not modify the returned observations.
type CachedSource struct {
	generator *Generator
	logger    *internal.Logger

	once         sync.Once
	observations []dataset.Observation
	stats        dataset.Stats
}

// NewCachedSource wraps a generator so repeated loads do not regenerate
func NewCachedSource(generator *Generator, logger *internal.Logger) *CachedSource {
	return &CachedSource{generator: generator, logger: logger.With("Synthesis")}
}

// LoadObservations implements ports.ObservationSource
func (s *CachedSource) LoadObservations(ctx context.Context) ([]dataset.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.once.Do(func() {
		cfg := s.generator.Config()
		s.logger.Info("Generating market data %d-%d for %d cities x %d varieties",
			cfg.StartYear, cfg.EndYear, len(cfg.Cities), len(cfg.Varieties))
		s.observations, s.stats = s.generator.Generate()
		s.logger.Info("Generated %d observations, price range %.0f-%.0f",
			s.stats.TotalSamples, s.stats.PriceRange.Min, s.stats.PriceRange.Max)
	})
	return s.observations, nil
}

// Stats returns the summary of the generated dataset, generating it if needed
func (s *CachedSource) Stats(ctx context.Context) (dataset.Stats, error) {
	if _, err := s.LoadObservations(ctx); err != nil {
		return dataset.Stats{}, err
	}
	return s.stats, nil
}
