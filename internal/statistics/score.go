package statistics

import (
	"errors"
	"fmt"
	"math"

	"agriprice/domain/core"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RegressionScore holds goodness-of-fit metrics for one prediction vector.
// INVARIANTS:
// - MAE, RMSE >= 0
// - R2 is only meaningful when R2Defined (SS_total > 0)
type RegressionScore struct {
	N         int     `json:"n"`
	MAE       float64 `json:"mae"`
	RMSE      float64 `json:"rmse"`
	MAPE      float64 `json:"mape"` // fraction, not percent
	R2        float64 `json:"r2"`
	R2Defined bool    `json:"r2_defined"`
}

// Accuracy converts MAPE into a 0-100 percentage
func (s RegressionScore) Accuracy() float64 {
	acc := 100 * (1 - s.MAPE)
	return math.Max(0, math.Min(100, acc))
}

// Score compares actual and predicted vectors of equal, non-zero length
func Score(actual, predicted []float64) (RegressionScore, error) {
	if err := checkVectors(actual, predicted); err != nil {
		return RegressionScore{}, err
	}

	n := float64(len(actual))
	residual := make([]float64, len(actual))
	floats.SubTo(residual, actual, predicted)

	score := RegressionScore{
		N:    len(actual),
		MAE:  floats.Norm(residual, 1) / n,
		RMSE: math.Sqrt(floats.Dot(residual, residual) / n),
		MAPE: meanAbsolutePercentage(actual, residual),
	}

	r2, err := RSquared(actual, predicted)
	switch {
	case err == nil:
		score.R2 = r2
		score.R2Defined = true
	case errors.Is(err, core.ErrDegenerateMetric):
		score.R2Defined = false
	default:
		return RegressionScore{}, err
	}

	return score, nil
}

// RSquared returns 1 - SS_residual/SS_total. Constant actual values make the
// denominator zero and yield core.ErrDegenerateMetric.
func RSquared(actual, predicted []float64) (float64, error) {
	if err := checkVectors(actual, predicted); err != nil {
		return 0, err
	}

	mean := stat.Mean(actual, nil)
	ssTotal := 0.0
	for _, v := range actual {
		d := v - mean
		ssTotal += d * d
	}
	if ssTotal == 0 {
		return 0, core.ErrDegenerateMetric
	}

	return stat.RSquaredFrom(predicted, actual, nil), nil
}

func checkVectors(actual, predicted []float64) error {
	if len(actual) == 0 {
		return core.ErrEmptyDataset
	}
	if len(actual) != len(predicted) {
		return fmt.Errorf("%w: %d actual vs %d predicted", core.ErrLengthMismatch, len(actual), len(predicted))
	}
	return nil
}

func meanAbsolutePercentage(actual, residual []float64) float64 {
	sum := 0.0
	counted := 0
	for i, a := range actual {
		if a == 0 {
			continue
		}
		sum += math.Abs(residual[i] / a)
		counted++
	}
	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}
