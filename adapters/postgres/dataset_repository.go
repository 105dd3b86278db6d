package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"agriprice/domain/core"
	"agriprice/domain/dataset"
	"agriprice/ports"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// datasetRepository implements the DatasetRepository interface
type datasetRepository struct {
	db *sqlx.DB
}

// NewDatasetRepository creates a new dataset repository
func NewDatasetRepository(db *sqlx.DB) ports.DatasetRepository {
	return &datasetRepository{db: db}
}

// SaveSnapshot stores the observations under a new snapshot in one transaction
func (r *datasetRepository) SaveSnapshot(ctx context.Context, origin string, observations []dataset.Observation) (core.SnapshotID, error) {
	id := core.NewSnapshotID()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO dataset_snapshots (id, origin, sample_count, created_at) VALUES ($1, $2, $3, $4)`,
		id, origin, len(observations), time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("observations",
		"snapshot_id", "row_number", "year", "month", "city", "variety",
		"rainfall", "arrivals", "temperature", "price"))
	if err != nil {
		return "", fmt.Errorf("failed to prepare observation copy: %w", err)
	}
	for i, o := range observations {
		if _, err := stmt.ExecContext(ctx, id, i, o.Year, o.Month, o.City, o.Variety,
			o.Rainfall, o.Arrivals, o.Temperature, o.Price); err != nil {
			stmt.Close()
			return "", fmt.Errorf("failed to copy observation %d: %w", i, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return "", fmt.Errorf("failed to flush observation copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return "", fmt.Errorf("failed to close observation copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return id, nil
}

// LatestSnapshot returns metadata for the newest snapshot
func (r *datasetRepository) LatestSnapshot(ctx context.Context) (*ports.SnapshotInfo, error) {
	var info ports.SnapshotInfo
	err := r.db.GetContext(ctx, &info,
		`SELECT id, origin, sample_count, created_at FROM dataset_snapshots ORDER BY created_at DESC LIMIT 1`)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: dataset snapshot", core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return &info, nil
}

// LoadObservations reads the observations of the newest snapshot in their
// original order
func (r *datasetRepository) LoadObservations(ctx context.Context) ([]dataset.Observation, error) {
	info, err := r.LatestSnapshot(ctx)
	if err != nil {
		if core.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: no dataset snapshot stored", core.ErrEmptyDataset)
		}
		return nil, err
	}

	observations := make([]dataset.Observation, 0, info.SampleCount)
	err = r.db.SelectContext(ctx, &observations, `
		SELECT year, month, city, variety, rainfall, arrivals, temperature, price
		FROM observations
		WHERE snapshot_id = $1
		ORDER BY row_number`, info.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load observations for snapshot %s: %w", info.ID, err)
	}
	return observations, nil
}
