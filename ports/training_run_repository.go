package ports

import (
	"context"

	"agriprice/domain/core"
	"agriprice/domain/model"
)

// TrainingRunRepository records completed training passes
type TrainingRunRepository interface {
	Save(ctx context.Context, run model.TrainingRun) error
	Get(ctx context.Context, id core.RunID) (*model.TrainingRun, error)
	// List returns up to limit runs, newest first
	List(ctx context.Context, limit int) ([]model.TrainingRun, error)
}
