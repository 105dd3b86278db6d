package dataset

import (
	"math"
	"sort"
)

// Observation is one historical market row: a (year, month, city, variety)
// cell with its environmental readings and the realised price per quintal.
type Observation struct {
	Year        int     `json:"year" db:"year"`
	Month       int     `json:"month" db:"month"`
	City        string  `json:"city" db:"city"`
	Variety     string  `json:"variety" db:"variety"`
	Rainfall    float64 `json:"rainfall" db:"rainfall"`       // mm
	Arrivals    float64 `json:"arrivals" db:"arrivals"`       // quintals
	Temperature float64 `json:"temperature" db:"temperature"` // °C
	Price       float64 `json:"price" db:"price"`             // ₹ per quintal
}

// Bounds are the clamp limits every observation must respect.
type Bounds struct {
	ArrivalsFloor  float64 `json:"arrivals_floor"`
	TemperatureMin float64 `json:"temperature_min"`
	TemperatureMax float64 `json:"temperature_max"`
	PriceFloor     float64 `json:"price_floor"`
	PriceCeiling   float64 `json:"price_ceiling"`
}

// DefaultBounds returns the realistic market band used across the system
func DefaultBounds() Bounds {
	return Bounds{
		ArrivalsFloor:  500,
		TemperatureMin: 15,
		TemperatureMax: 40,
		PriceFloor:     20000,
		PriceCeiling:   30000,
	}
}

// ClampPrice restricts a price to the configured band
func (b Bounds) ClampPrice(price float64) float64 {
	return math.Max(b.PriceFloor, math.Min(b.PriceCeiling, price))
}

// ClampTemperature restricts a temperature to the configured band
func (b Bounds) ClampTemperature(temp float64) float64 {
	return math.Max(b.TemperatureMin, math.Min(b.TemperatureMax, temp))
}

// Violation returns a description of the first invariant the observation
// breaks, or "" when it lies inside the bounds.
func (b Bounds) Violation(o Observation) string {
	switch {
	case o.Month < 1 || o.Month > 12:
		return "month outside 1-12"
	case o.City == "":
		return "city is empty"
	case o.Variety == "":
		return "variety is empty"
	case math.IsNaN(o.Rainfall) || o.Rainfall < 0:
		return "rainfall below 0"
	case math.IsNaN(o.Arrivals) || o.Arrivals < b.ArrivalsFloor:
		return "arrivals below floor"
	case math.IsNaN(o.Temperature) || o.Temperature < b.TemperatureMin || o.Temperature > b.TemperatureMax:
		return "temperature outside band"
	case math.IsNaN(o.Price) || o.Price <= 0 || o.Price < b.PriceFloor || o.Price > b.PriceCeiling:
		return "price outside band"
	}
	return ""
}

// PriceRange summarises the observed price band
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// Stats is the side artifact produced alongside a dataset
type Stats struct {
	TotalSamples int        `json:"total_samples"`
	Years        []int      `json:"years"`
	Cities       []string   `json:"cities"`
	Varieties    []string   `json:"varieties"`
	PriceRange   PriceRange `json:"price_range"`
}

// Summarize computes dataset statistics. An empty input yields zero-valued
// stats with empty (non-nil) slices.
func Summarize(observations []Observation) Stats {
	stats := Stats{
		TotalSamples: len(observations),
		Years:        []int{},
		Cities:       []string{},
		Varieties:    []string{},
	}
	if len(observations) == 0 {
		return stats
	}

	years := make(map[int]struct{})
	cities := make(map[string]struct{})
	varieties := make(map[string]struct{})

	min, max, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, o := range observations {
		years[o.Year] = struct{}{}
		cities[o.City] = struct{}{}
		varieties[o.Variety] = struct{}{}
		if o.Price < min {
			min = o.Price
		}
		if o.Price > max {
			max = o.Price
		}
		sum += o.Price
	}

	for y := range years {
		stats.Years = append(stats.Years, y)
	}
	for c := range cities {
		stats.Cities = append(stats.Cities, c)
	}
	for v := range varieties {
		stats.Varieties = append(stats.Varieties, v)
	}
	sort.Ints(stats.Years)
	sort.Strings(stats.Cities)
	sort.Strings(stats.Varieties)

	stats.PriceRange = PriceRange{Min: min, Max: max, Avg: sum / float64(len(observations))}
	return stats
}

// IsMonsoon reports whether month falls inside the inclusive [start, end] window
func IsMonsoon(month, start, end int) bool {
	return month >= start && month <= end
}

// SeasonalPhase is the shared month sinusoid sin((month-1)·π/6)
func SeasonalPhase(month int) float64 {
	return math.Sin(float64(month-1) * math.Pi / 6)
}
