package statistics

import (
	"fmt"

	"agriprice/domain/core"
	"agriprice/domain/dataset"
	"agriprice/domain/model"

	"github.com/montanaflynn/stats"
)

// Moments computes the mean and population standard deviation of data.
// The deviation is taken around the sample mean itself.
func Moments(data []float64) (model.Moments, error) {
	if len(data) == 0 {
		return model.Moments{}, core.ErrEmptyDataset
	}

	mean, err := stats.Mean(data)
	if err != nil {
		return model.Moments{}, fmt.Errorf("mean: %w", err)
	}
	std, err := stats.StandardDeviationPopulation(data)
	if err != nil {
		return model.Moments{}, fmt.Errorf("standard deviation: %w", err)
	}

	return model.Moments{Mean: mean, Std: std}, nil
}

// Describe computes FeatureStatistics over every numeric observation field
func Describe(observations []dataset.Observation) (model.FeatureStatistics, error) {
	n := len(observations)
	if n == 0 {
		return model.FeatureStatistics{}, core.ErrEmptyDataset
	}

	columns := Columns(observations)
	fs := model.FeatureStatistics{Count: n}

	targets := []struct {
		name string
		data []float64
		dst  *model.Moments
	}{
		{"year", columns.Year, &fs.Year},
		{"month", columns.Month, &fs.Month},
		{"rainfall", columns.Rainfall, &fs.Rainfall},
		{"arrivals", columns.Arrivals, &fs.Arrivals},
		{"temperature", columns.Temperature, &fs.Temperature},
		{"price", columns.Price, &fs.Price},
	}
	for _, target := range targets {
		m, err := Moments(target.data)
		if err != nil {
			return model.FeatureStatistics{}, fmt.Errorf("%s: %w", target.name, err)
		}
		*target.dst = m
	}

	return fs, nil
}

// FeatureColumns is a column-major view of an observation set
type FeatureColumns struct {
	Year        []float64
	Month       []float64
	Rainfall    []float64
	Arrivals    []float64
	Temperature []float64
	Price       []float64
}

// Columns splits observations into per-feature slices
func Columns(observations []dataset.Observation) FeatureColumns {
	n := len(observations)
	c := FeatureColumns{
		Year:        make([]float64, n),
		Month:       make([]float64, n),
		Rainfall:    make([]float64, n),
		Arrivals:    make([]float64, n),
		Temperature: make([]float64, n),
		Price:       make([]float64, n),
	}
	for i, o := range observations {
		c.Year[i] = float64(o.Year)
		c.Month[i] = float64(o.Month)
		c.Rainfall[i] = o.Rainfall
		c.Arrivals[i] = o.Arrivals
		c.Temperature[i] = o.Temperature
		c.Price[i] = o.Price
	}
	return c
}
