package model

import (
	"sort"
	"time"

	"agriprice/domain/core"
)

// Variant identifies a weight-perturbation profile. The labels mirror the
// algorithm names shown to users; all variants share one linear formula.
type Variant string

const (
	VariantRandomForest     Variant = "random_forest"
	VariantXGBoost          Variant = "xgboost"
	VariantLSTM             Variant = "lstm"
	VariantLinearRegression Variant = "linear_regression"
)

// Frequency is the reporting cadence a prediction is adjusted for
type Frequency string

const (
	FrequencyWeekly  Frequency = "Weekly"
	FrequencyMonthly Frequency = "Monthly"
	FrequencyYearly  Frequency = "Yearly"
)

// Multiplier returns the price adjustment for the cadence. Unknown or empty
// values are treated as Monthly.
func (f Frequency) Multiplier() float64 {
	switch f {
	case FrequencyWeekly:
		return 0.97
	case FrequencyYearly:
		return 1.05
	default:
		return 1.0
	}
}

// Valid reports whether f is empty or one of the known cadences
func (f Frequency) Valid() bool {
	switch f {
	case "", FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// Moments holds a feature's mean and population standard deviation
type Moments struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// FeatureStatistics holds normalization statistics over a training set
type FeatureStatistics struct {
	Count       int     `json:"count"`
	Year        Moments `json:"year"`
	Month       Moments `json:"month"`
	Rainfall    Moments `json:"rainfall"`
	Arrivals    Moments `json:"arrivals"`
	Temperature Moments `json:"temperature"`
	Price       Moments `json:"price"`
}

// Weights are the linear coefficients of one variant.
// INVARIANTS:
// - Variety and City contain an entry for every category seen in training
// - Scale is the product of the variant's scalar factors (1 for the baseline)
type Weights struct {
	Intercept   float64            `json:"intercept"`
	Year        float64            `json:"year_weight"`
	Month       float64            `json:"month_weight"`
	Rainfall    float64            `json:"rainfall_weight"`
	Arrivals    float64            `json:"arrivals_weight"`
	Temperature float64            `json:"temperature_weight"`
	Variety     map[string]float64 `json:"variety_weights"`
	City        map[string]float64 `json:"city_weights"`
	Scale       float64            `json:"scale"`
}

// Profile describes how a variant perturbs the base weights
type Profile struct {
	Variant          Variant            `json:"variant"`
	Name             string             `json:"name"`
	YearBoost        float64            `json:"year_boost"`
	MonthBoost       float64            `json:"month_boost"`
	RainfallBoost    float64            `json:"rainfall_boost"`
	ArrivalsBoost    float64            `json:"arrivals_boost"`
	TemperatureBoost float64            `json:"temperature_boost"`
	Scalars          map[string]float64 `json:"scalars,omitempty"` // e.g. interaction_boost, regularization
}

// Apply derives the variant's weights from a base set without mutating it
func (p Profile) Apply(base Weights) Weights {
	out := base
	out.Year = base.Year * p.YearBoost
	out.Month = base.Month * p.MonthBoost
	out.Rainfall = base.Rainfall * p.RainfallBoost
	out.Arrivals = base.Arrivals * p.ArrivalsBoost
	out.Temperature = base.Temperature * p.TemperatureBoost

	scale := base.Scale
	if scale == 0 {
		scale = 1
	}
	keys := make([]string, 0, len(p.Scalars))
	for k := range p.Scalars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		scale *= p.Scalars[k]
	}
	out.Scale = scale

	out.Variety = copyMap(base.Variety)
	out.City = copyMap(base.City)
	return out
}

func copyMap(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ModelMetrics are computed by scoring a variant against the training set.
// R2Score is meaningful only when R2Defined is true (constant actual prices
// make the coefficient of determination undefined).
type ModelMetrics struct {
	Variant   Variant `json:"variant"`
	Name      string  `json:"name"`
	Accuracy  float64 `json:"accuracy"`
	MAE       float64 `json:"mae"`
	RMSE      float64 `json:"rmse"`
	R2Score   float64 `json:"r2_score"`
	R2Defined bool    `json:"r2_defined"`
	Trained   bool    `json:"trained"`
}

// PredictionInput is a request for a price estimate. Nil environmental
// fields are back-filled from historical averages.
type PredictionInput struct {
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	City        string    `json:"city"`
	Variety     string    `json:"variety"`
	Frequency   Frequency `json:"frequency,omitempty"`
	Rainfall    *float64  `json:"rainfall,omitempty"`
	Arrivals    *float64  `json:"arrivals,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// Factors are the additive contributions of each driver, before summing
type Factors struct {
	SeasonalImpact float64 `json:"seasonal_impact"`
	RainfallImpact float64 `json:"rainfall_impact"`
	ArrivalsImpact float64 `json:"arrivals_impact"`
	VarietyImpact  float64 `json:"variety_impact"`
	CityImpact     float64 `json:"city_impact"`
}

// PredictionResult is the engine's answer to a PredictionInput
type PredictionResult struct {
	PredictedPrice int     `json:"predicted_price"`
	Confidence     int     `json:"confidence"`
	Model          string  `json:"model"`
	Factors        Factors `json:"factors"`
}

// TrainingRun records one completed training pass
type TrainingRun struct {
	ID          core.RunID     `json:"id"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	SampleCount int            `json:"sample_count"`
	ActiveModel string         `json:"active_model"`
	Metrics     []ModelMetrics `json:"metrics"`
}

// Float is a helper for building optional PredictionInput fields
func Float(v float64) *float64 {
	return &v
}

// HistoricalAverages are the mean environmental readings of a market cell
type HistoricalAverages struct {
	Count       int     `json:"count"`
	Rainfall    float64 `json:"rainfall"`
	Arrivals    float64 `json:"arrivals"`
	Temperature float64 `json:"temperature"`
	Price       float64 `json:"price"`
}
