package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agriprice/domain/core"
	"agriprice/domain/dataset"
	"agriprice/domain/model"
	"agriprice/internal"
	"agriprice/internal/statistics"
	"agriprice/ports"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Config holds the engine's tunables
type Config struct {
	Bounds       dataset.Bounds
	Coefficients Coefficients
	Profiles     []model.Profile
	WarmupDelay  time.Duration // artificial pause before each training pass
	Parallelism  int64         // concurrent variant scorers

	ConfidenceYearWindow int     // ±years counted as nearby evidence
	ConfidenceSaturation float64 // nearby observations for full data confidence
}

// DefaultConfig returns the production engine settings without warm-up delay
func DefaultConfig() Config {
	return Config{
		Bounds:               dataset.DefaultBounds(),
		Coefficients:         DefaultCoefficients(),
		Profiles:             DefaultProfiles(),
		Parallelism:          4,
		ConfidenceYearWindow: 2,
		ConfidenceSaturation: 10,
	}
}

// Engine trains the variant table over an observation source and serves
// predictions from the active variant.
type Engine struct {
	config Config
	source ports.ObservationSource
	logger *internal.Logger

	trainMu sync.Mutex // serialises Train

	mu    sync.RWMutex
	state *trainedState
}

// trainedState is the immutable product of one training pass
type trainedState struct {
	version   uint64
	trainedAt time.Time
	features  model.FeatureStatistics
	dataset   dataset.Stats
	weights   []model.Weights // parallel to config.Profiles
	metrics   []model.ModelMetrics
	active    int
	cells     map[cellKey]*cellAccumulator
	global    model.HistoricalAverages
	density   map[densityKey]int
}

type cellKey struct {
	city    string
	variety string
	month   int
}

type densityKey struct {
	city    string
	variety string
	year    int
}

type cellAccumulator struct {
	count       int
	rainfall    float64
	arrivals    float64
	temperature float64
	price       float64
}

func (a *cellAccumulator) add(o dataset.Observation) {
	a.count++
	a.rainfall += o.Rainfall
	a.arrivals += o.Arrivals
	a.temperature += o.Temperature
	a.price += o.Price
}

func (a *cellAccumulator) averages() model.HistoricalAverages {
	if a.count == 0 {
		return model.HistoricalAverages{}
	}
	n := float64(a.count)
	return model.HistoricalAverages{
		Count:       a.count,
		Rainfall:    a.rainfall / n,
		Arrivals:    a.arrivals / n,
		Temperature: a.temperature / n,
		Price:       a.price / n,
	}
}

// New creates an untrained engine
func New(config Config, source ports.ObservationSource, logger *internal.Logger) (*Engine, error) {
	if source == nil {
		return nil, core.NewConfigError("source", "is required")
	}
	if len(config.Profiles) == 0 {
		return nil, core.NewConfigError("profiles", "must not be empty")
	}
	seen := make(map[model.Variant]bool, len(config.Profiles))
	for _, p := range config.Profiles {
		if seen[p.Variant] {
			return nil, core.NewConfigError("profiles", fmt.Sprintf("duplicate variant %s", p.Variant))
		}
		seen[p.Variant] = true
	}
	if config.Bounds.PriceCeiling < config.Bounds.PriceFloor {
		return nil, core.NewConfigError("bounds", "price ceiling below floor")
	}
	if config.Parallelism < 1 {
		config.Parallelism = 1
	}
	if config.ConfidenceSaturation <= 0 {
		config.ConfidenceSaturation = 10
	}

	return &Engine{
		config: config,
		source: source,
		logger: logger.With("Engine"),
	}, nil
}

// Train loads the observations, fits every variant, scores them against the
// training set and activates the best one. Concurrent calls fail with
// core.ErrTrainingInProgress. The previous model keeps serving until the new
// one is ready.
func (e *Engine) Train(ctx context.Context) ([]model.ModelMetrics, error) {
	if !e.trainMu.TryLock() {
		return nil, core.ErrTrainingInProgress
	}
	defer e.trainMu.Unlock()

	if e.config.WarmupDelay > 0 {
		timer := time.NewTimer(e.config.WarmupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	observations, err := e.source.LoadObservations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	if len(observations) == 0 {
		return nil, fmt.Errorf("%w: nothing to train on", core.ErrEmptyDataset)
	}

	start := time.Now()
	e.logger.Info("Training %d variants on %d samples", len(e.config.Profiles), len(observations))

	next, err := e.fit(ctx, observations)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.state != nil {
		next.version = e.state.version + 1
	} else {
		next.version = 1
	}
	e.state = next
	e.mu.Unlock()

	for _, m := range next.metrics {
		e.logger.Debug("%s: accuracy=%.1f%% mae=%.2f rmse=%.2f r2=%.3f", m.Name, m.Accuracy, m.MAE, m.RMSE, m.R2Score)
	}
	e.logger.Info("Training complete in %v, active model %s (version %d)",
		time.Since(start).Round(time.Millisecond), e.config.Profiles[next.active].Name, next.version)

	return copyMetrics(next.metrics), nil
}

func (e *Engine) fit(ctx context.Context, observations []dataset.Observation) (*trainedState, error) {
	features, err := statistics.Describe(observations)
	if err != nil {
		return nil, fmt.Errorf("describe observations: %w", err)
	}
	base := TrainBase(observations, features, e.config.Coefficients)

	profiles := e.config.Profiles
	weights := make([]model.Weights, len(profiles))
	metrics := make([]model.ModelMetrics, len(profiles))

	actual := make([]float64, len(observations))
	for i, o := range observations {
		actual[i] = o.Price
	}

	sem := semaphore.NewWeighted(e.config.Parallelism)
	g, gctx := errgroup.WithContext(ctx)
	for i, profile := range profiles {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			w := profile.Apply(base)
			predicted := make([]float64, len(observations))
			for j, o := range observations {
				if j%4096 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				predicted[j], _ = e.evaluate(w, features, o.Year, o.Month, o.City, o.Variety, o.Rainfall, o.Arrivals, o.Temperature)
			}

			score, err := statistics.Score(actual, predicted)
			if err != nil {
				return fmt.Errorf("score %s: %w", profile.Variant, err)
			}

			weights[i] = w
			metrics[i] = model.ModelMetrics{
				Variant:   profile.Variant,
				Name:      profile.Name,
				Accuracy:  score.Accuracy(),
				MAE:       score.MAE,
				RMSE:      score.RMSE,
				R2Score:   score.R2,
				R2Defined: score.R2Defined,
				Trained:   true,
			}
			e.logger.Trace("Scored %s over %d rows: MAE %.2f, RMSE %.2f, R2 %.4f (defined=%t), scale %.4f",
				profile.Variant, len(observations), score.MAE, score.RMSE, score.R2, score.R2Defined, w.Scale)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next := &trainedState{
		trainedAt: time.Now(),
		features:  features,
		dataset:   dataset.Summarize(observations),
		weights:   weights,
		metrics:   metrics,
		active:    selectActive(metrics),
		cells:     make(map[cellKey]*cellAccumulator),
		density:   make(map[densityKey]int),
	}

	global := &cellAccumulator{}
	for _, o := range observations {
		key := cellKey{city: o.City, variety: o.Variety, month: o.Month}
		acc, ok := next.cells[key]
		if !ok {
			acc = &cellAccumulator{}
			next.cells[key] = acc
		}
		acc.add(o)
		global.add(o)
		next.density[densityKey{city: o.City, variety: o.Variety, year: o.Year}]++
	}
	next.global = global.averages()

	return next, nil
}

// evaluate applies weights to one fully specified input and returns the
// scaled, clamped price along with the additive factor breakdown.
func (e *Engine) evaluate(w model.Weights, fs model.FeatureStatistics, year, month int, city, variety string, rainfall, arrivals, temperature float64) (float64, model.Factors) {
	factors := model.Factors{
		SeasonalImpact: dataset.SeasonalPhase(month) * w.Month,
		RainfallImpact: (fs.Rainfall.Mean - rainfall) * w.Rainfall,
		ArrivalsImpact: (fs.Arrivals.Mean - arrivals) * w.Arrivals,
		VarietyImpact:  w.Variety[variety],
		CityImpact:     w.City[city],
	}

	price := w.Intercept
	price += (float64(year) - fs.Year.Mean) * w.Year
	price += factors.SeasonalImpact
	price += factors.RainfallImpact
	price += factors.ArrivalsImpact
	price += (temperature - fs.Temperature.Mean) * w.Temperature
	price += factors.VarietyImpact
	price += factors.CityImpact

	if w.Scale != 0 {
		price *= w.Scale
	}
	return e.config.Bounds.ClampPrice(price), factors
}

func (e *Engine) snapshot() (*trainedState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state == nil {
		return nil, core.ErrNotTrained
	}
	return e.state, nil
}

// IsTrained reports whether a training pass has completed
func (e *Engine) IsTrained() bool {
	_, err := e.snapshot()
	return err == nil
}

// Version increments with every successful training pass; 0 means untrained
func (e *Engine) Version() uint64 {
	s, err := e.snapshot()
	if err != nil {
		return 0
	}
	return s.version
}

// TrainedAt returns when the serving model finished training
func (e *Engine) TrainedAt() time.Time {
	s, err := e.snapshot()
	if err != nil {
		return time.Time{}
	}
	return s.trainedAt
}

// Metrics returns per-variant metrics in profile order. Before training every
// entry carries Trained=false.
func (e *Engine) Metrics() []model.ModelMetrics {
	s, err := e.snapshot()
	if err != nil {
		out := make([]model.ModelMetrics, len(e.config.Profiles))
		for i, p := range e.config.Profiles {
			out[i] = model.ModelMetrics{Variant: p.Variant, Name: p.Name}
		}
		return out
	}
	return copyMetrics(s.metrics)
}

// ModelMetrics returns the metrics of one variant
func (e *Engine) ModelMetrics(variant model.Variant) (model.ModelMetrics, error) {
	idx := profileIndex(e.config.Profiles, variant)
	if idx < 0 {
		return model.ModelMetrics{}, core.NewUnknownModelError(string(variant))
	}
	s, err := e.snapshot()
	if err != nil {
		return model.ModelMetrics{}, err
	}
	return s.metrics[idx], nil
}

// ActiveModel returns the display name of the serving variant, or "" when
// untrained
func (e *Engine) ActiveModel() string {
	s, err := e.snapshot()
	if err != nil {
		return ""
	}
	return e.config.Profiles[s.active].Name
}

// ActiveVariant returns the identifier of the serving variant
func (e *Engine) ActiveVariant() (model.Variant, error) {
	s, err := e.snapshot()
	if err != nil {
		return "", err
	}
	return e.config.Profiles[s.active].Variant, nil
}

// Weights returns a copy of a trained variant's weights
func (e *Engine) Weights(variant model.Variant) (model.Weights, error) {
	idx := profileIndex(e.config.Profiles, variant)
	if idx < 0 {
		return model.Weights{}, core.NewUnknownModelError(string(variant))
	}
	s, err := e.snapshot()
	if err != nil {
		return model.Weights{}, err
	}
	w := s.weights[idx]
	w.Variety = cloneOffsets(w.Variety)
	w.City = cloneOffsets(w.City)
	return w, nil
}

// FeatureStatistics returns the normalization statistics of the last pass
func (e *Engine) FeatureStatistics() (model.FeatureStatistics, error) {
	s, err := e.snapshot()
	if err != nil {
		return model.FeatureStatistics{}, err
	}
	return s.features, nil
}

// DatasetStats summarises the observations the serving model was trained on
func (e *Engine) DatasetStats() (dataset.Stats, error) {
	s, err := e.snapshot()
	if err != nil {
		return dataset.Stats{}, err
	}
	return s.dataset, nil
}

// HistoricalAverages returns the mean readings for a (city, variety, month)
// cell. The boolean is false when the cell has no observations and the
// global averages were returned instead.
func (e *Engine) HistoricalAverages(city, variety string, month int) (model.HistoricalAverages, bool, error) {
	s, err := e.snapshot()
	if err != nil {
		return model.HistoricalAverages{}, false, err
	}
	avg, matched := s.averagesFor(city, variety, month)
	return avg, matched, nil
}

func (s *trainedState) averagesFor(city, variety string, month int) (model.HistoricalAverages, bool) {
	if acc, ok := s.cells[cellKey{city: city, variety: variety, month: month}]; ok && acc.count > 0 {
		return acc.averages(), true
	}
	return s.global, false
}

func cloneOffsets(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyMetrics(in []model.ModelMetrics) []model.ModelMetrics {
	out := make([]model.ModelMetrics, len(in))
	copy(out, in)
	return out
}
