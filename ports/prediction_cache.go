package ports

import (
	"context"

	"agriprice/domain/model"
)

// PredictionCache memoises prediction results. Keys embed the engine version
// so results from a previous training pass are never served.
type PredictionCache interface {
	// Get returns the cached result and whether it was found
	Get(ctx context.Context, version uint64, input model.PredictionInput) (*model.PredictionResult, bool, error)
	Set(ctx context.Context, version uint64, input model.PredictionInput, result model.PredictionResult) error
}
