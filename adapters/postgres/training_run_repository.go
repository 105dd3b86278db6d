package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"agriprice/domain/core"
	"agriprice/domain/model"
	"agriprice/ports"

	"github.com/jmoiron/sqlx"
)

// trainingRunRepository implements the TrainingRunRepository interface
type trainingRunRepository struct {
	db *sqlx.DB
}

// NewTrainingRunRepository creates a new training run repository
func NewTrainingRunRepository(db *sqlx.DB) ports.TrainingRunRepository {
	return &trainingRunRepository{db: db}
}

type trainingRunRow struct {
	ID          string    `db:"id"`
	StartedAt   time.Time `db:"started_at"`
	CompletedAt time.Time `db:"completed_at"`
	SampleCount int       `db:"sample_count"`
	ActiveModel string    `db:"active_model"`
	Metrics     []byte    `db:"metrics"`
}

func (row trainingRunRow) toDomain() (model.TrainingRun, error) {
	run := model.TrainingRun{
		ID:          core.RunID(row.ID),
		StartedAt:   row.StartedAt,
		CompletedAt: row.CompletedAt,
		SampleCount: row.SampleCount,
		ActiveModel: row.ActiveModel,
	}
	if len(row.Metrics) > 0 {
		if err := json.Unmarshal(row.Metrics, &run.Metrics); err != nil {
			return model.TrainingRun{}, fmt.Errorf("failed to unmarshal metrics for run %s: %w", row.ID, err)
		}
	}
	return run, nil
}

// Save inserts a completed training run
func (r *trainingRunRepository) Save(ctx context.Context, run model.TrainingRun) error {
	metricsJSON, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO training_runs (id, started_at, completed_at, sample_count, active_model, metrics)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.StartedAt, run.CompletedAt, run.SampleCount, run.ActiveModel, metricsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save training run: %w", err)
	}
	return nil
}

// Get retrieves a training run by its ID
func (r *trainingRunRepository) Get(ctx context.Context, id core.RunID) (*model.TrainingRun, error) {
	var row trainingRunRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, started_at, completed_at, sample_count, active_model, metrics
		FROM training_runs WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get training run: %w", err)
	}

	run, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns the newest runs first
func (r *trainingRunRepository) List(ctx context.Context, limit int) ([]model.TrainingRun, error) {
	var rows []trainingRunRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, started_at, completed_at, sample_count, active_model, metrics
		FROM training_runs
		ORDER BY completed_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list training runs: %w", err)
	}

	runs := make([]model.TrainingRun, 0, len(rows))
	for _, row := range rows {
		run, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}
