package ports

import (
	"context"
	"time"

	"agriprice/domain/core"
	"agriprice/domain/dataset"
)

// ObservationSource supplies the training observations
type ObservationSource interface {
	LoadObservations(ctx context.Context) ([]dataset.Observation, error)
}

// SnapshotInfo describes a persisted dataset snapshot
type SnapshotInfo struct {
	ID          core.SnapshotID `json:"id" db:"id"`
	Origin      string          `json:"origin" db:"origin"`
	SampleCount int             `json:"sample_count" db:"sample_count"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// DatasetRepository persists observation snapshots. The most recent snapshot
// doubles as an ObservationSource.
type DatasetRepository interface {
	ObservationSource

	// SaveSnapshot stores observations under a new snapshot and returns its ID
	SaveSnapshot(ctx context.Context, origin string, observations []dataset.Observation) (core.SnapshotID, error)

	// LatestSnapshot returns metadata for the newest snapshot
	LatestSnapshot(ctx context.Context) (*SnapshotInfo, error)
}
