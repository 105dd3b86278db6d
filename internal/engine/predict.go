package engine

import (
	"math"

	"agriprice/domain/model"
)

// Predict estimates the price for input using the active variant. Missing
// environmental readings are back-filled from the (city, variety, month)
// averages, falling back to global averages. Non-finite readings count as
// missing. Implausible readings are accepted and only lower the confidence.
func (e *Engine) Predict(input model.PredictionInput) (model.PredictionResult, error) {
	result, _, err := e.PredictVersioned(input)
	return result, err
}

// PredictVersioned is Predict that also returns the version of the model that
// produced the result
func (e *Engine) PredictVersioned(input model.PredictionInput) (model.PredictionResult, uint64, error) {
	s, err := e.snapshot()
	if err != nil {
		return model.PredictionResult{}, 0, err
	}

	rainfall, arrivals, temperature := s.enrich(input)
	w := s.weights[s.active]

	price, factors := e.evaluate(w, s.features, input.Year, input.Month, input.City, input.Variety, rainfall, arrivals, temperature)
	price *= input.Frequency.Multiplier()

	return model.PredictionResult{
		PredictedPrice: int(math.Round(price)),
		Confidence:     e.confidence(s, input, rainfall, arrivals, temperature),
		Model:          e.config.Profiles[s.active].Name,
		Factors:        factors,
	}, s.version, nil
}

func (s *trainedState) enrich(input model.PredictionInput) (rainfall, arrivals, temperature float64) {
	avg, _ := s.averagesFor(input.City, input.Variety, input.Month)
	return reading(input.Rainfall, avg.Rainfall),
		reading(input.Arrivals, avg.Arrivals),
		reading(input.Temperature, avg.Temperature)
}

// reading returns the supplied value, or fallback when it is missing or not finite
func reading(v *float64, fallback float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return fallback
	}
	return *v
}

// confidence blends the density of nearby training rows (60%) with the
// plausibility of the environmental readings (40%) into an integer 0-100.
func (e *Engine) confidence(s *trainedState, input model.PredictionInput, rainfall, arrivals, temperature float64) int {
	nearby := 0
	window := e.config.ConfidenceYearWindow
	for d := -window; d <= window; d++ {
		year, ok := offsetYear(input.Year, d)
		if !ok {
			continue
		}
		nearby += s.density[densityKey{city: input.City, variety: input.Variety, year: year}]
	}
	dataConfidence := math.Min(float64(nearby)/e.config.ConfidenceSaturation, 1)

	bounds := e.config.Bounds
	inputConfidence := (plausibility(rainfall, 0, 300) +
		plausibility(arrivals, bounds.ArrivalsFloor, 5000) +
		plausibility(temperature, bounds.TemperatureMin, bounds.TemperatureMax)) / 3

	score := math.Round((0.6*dataConfidence + 0.4*inputConfidence) * 100)
	if math.IsNaN(score) {
		return 0
	}
	return int(math.Max(0, math.Min(100, score)))
}

// offsetYear returns year+d, or false when the sum overflows int
func offsetYear(year, d int) (int, bool) {
	if (d > 0 && year > math.MaxInt-d) || (d < 0 && year < math.MinInt-d) {
		return 0, false
	}
	return year + d, true
}

func plausibility(v, lo, hi float64) float64 {
	if v >= lo && v <= hi {
		return 1
	}
	return 0.5
}
