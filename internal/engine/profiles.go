package engine

import (
	"agriprice/domain/dataset"
	"agriprice/domain/model"
)

// Coefficients are the fixed numeric sensitivities of the base model
type Coefficients struct {
	Year        float64 `json:"year"`
	Month       float64 `json:"month"`
	Rainfall    float64 `json:"rainfall"`
	Arrivals    float64 `json:"arrivals"`
	Temperature float64 `json:"temperature"`
}

// DefaultCoefficients returns the calibrated base sensitivities
func DefaultCoefficients() Coefficients {
	return Coefficients{
		Year:        150,
		Month:       80,
		Rainfall:    -12,
		Arrivals:    -0.6,
		Temperature: 25,
	}
}

// DefaultProfiles returns the variant table in selection order. Ties in
// model selection go to the earliest entry.
func DefaultProfiles() []model.Profile {
	return []model.Profile{
		{
			Variant:          model.VariantRandomForest,
			Name:             "Random Forest",
			YearBoost:        1.02,
			MonthBoost:       1.01,
			RainfallBoost:    1.03,
			ArrivalsBoost:    1.02,
			TemperatureBoost: 1.01,
			Scalars:          map[string]float64{"interaction_boost": 1.005},
		},
		{
			Variant:          model.VariantXGBoost,
			Name:             "XGBoost",
			YearBoost:        1.015,
			MonthBoost:       1.01,
			RainfallBoost:    1.02,
			ArrivalsBoost:    1.015,
			TemperatureBoost: 1.01,
			Scalars:          map[string]float64{"regularization": 0.98},
		},
		{
			Variant:          model.VariantLSTM,
			Name:             "LSTM Neural Network",
			YearBoost:        1.01,
			MonthBoost:       1.03,
			RainfallBoost:    1.015,
			ArrivalsBoost:    1.02,
			TemperatureBoost: 1.01,
			Scalars:          map[string]float64{"temporal_factor": 1.005},
		},
		{
			Variant:          model.VariantLinearRegression,
			Name:             "Linear Regression",
			YearBoost:        1,
			MonthBoost:       1,
			RainfallBoost:    1,
			ArrivalsBoost:    1,
			TemperatureBoost: 1,
		},
	}
}

// TrainBase derives the baseline weights: the intercept is the mean price and
// every city and variety gets the offset of its average price from that mean.
func TrainBase(observations []dataset.Observation, fs model.FeatureStatistics, c Coefficients) model.Weights {
	type acc struct {
		sum   float64
		count int
	}
	varieties := make(map[string]*acc)
	cities := make(map[string]*acc)
	add := func(m map[string]*acc, key string, price float64) {
		a, ok := m[key]
		if !ok {
			a = &acc{}
			m[key] = a
		}
		a.sum += price
		a.count++
	}
	for _, o := range observations {
		add(varieties, o.Variety, o.Price)
		add(cities, o.City, o.Price)
	}

	offsets := func(m map[string]*acc) map[string]float64 {
		out := make(map[string]float64, len(m))
		for k, a := range m {
			out[k] = a.sum/float64(a.count) - fs.Price.Mean
		}
		return out
	}

	return model.Weights{
		Intercept:   fs.Price.Mean,
		Year:        c.Year,
		Month:       c.Month,
		Rainfall:    c.Rainfall,
		Arrivals:    c.Arrivals,
		Temperature: c.Temperature,
		Variety:     offsets(varieties),
		City:        offsets(cities),
		Scale:       1,
	}
}

// selectActive picks the index of the variant with the highest defined R².
// When no variant has a defined R² the lowest MAE wins instead.
func selectActive(metrics []model.ModelMetrics) int {
	best := -1
	for i, m := range metrics {
		if !m.R2Defined {
			continue
		}
		if best < 0 || m.R2Score > metrics[best].R2Score {
			best = i
		}
	}
	if best >= 0 {
		return best
	}

	best = 0
	for i, m := range metrics {
		if m.MAE < metrics[best].MAE {
			best = i
		}
	}
	return best
}

func profileIndex(profiles []model.Profile, variant model.Variant) int {
	for i, p := range profiles {
		if p.Variant == variant {
			return i
		}
	}
	return -1
}
