package migration

import (
	"context"

	"agriprice/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order. Every step is
// idempotent.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	for _, step := range r.steps() {
		if _, err := db.ExecContext(ctx, step.sql); err != nil {
			return errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "failed to %s", step.name))
		}
	}
	return nil
}

type step struct {
	name string
	sql  string
}

func (r *MigrationRunner) steps() []step {
	return []step{
		{"create dataset_snapshots table", `
		CREATE TABLE IF NOT EXISTS dataset_snapshots (
			id UUID PRIMARY KEY,
			origin VARCHAR(50) NOT NULL,
			sample_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`},
		{"create observations table", `
		CREATE TABLE IF NOT EXISTS observations (
			snapshot_id UUID NOT NULL REFERENCES dataset_snapshots(id) ON DELETE CASCADE,
			row_number INTEGER NOT NULL,
			year INTEGER NOT NULL,
			month SMALLINT NOT NULL CHECK (month BETWEEN 1 AND 12),
			city VARCHAR(100) NOT NULL,
			variety VARCHAR(100) NOT NULL,
			rainfall DOUBLE PRECISION NOT NULL,
			arrivals DOUBLE PRECISION NOT NULL,
			temperature DOUBLE PRECISION NOT NULL,
			price DOUBLE PRECISION NOT NULL CHECK (price > 0),
			PRIMARY KEY (snapshot_id, row_number)
		)`},
		{"create training_runs table", `
		CREATE TABLE IF NOT EXISTS training_runs (
			id UUID PRIMARY KEY,
			started_at TIMESTAMP WITH TIME ZONE NOT NULL,
			completed_at TIMESTAMP WITH TIME ZONE NOT NULL,
			sample_count INTEGER NOT NULL,
			active_model VARCHAR(100) NOT NULL,
			metrics JSONB NOT NULL DEFAULT '[]'::jsonb
		)`},
		{"create indexes", `
		CREATE INDEX IF NOT EXISTS idx_dataset_snapshots_created_at ON dataset_snapshots(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_observations_cell ON observations(snapshot_id, city, variety, month);
		CREATE INDEX IF NOT EXISTS idx_training_runs_completed_at ON training_runs(completed_at DESC)`},
	}
}
