package app

import (
	"context"
	"sync"

	"agriprice/domain/dataset"
	"agriprice/ports"
)

// DatasetSource is the observation source the engine trains on. An operator
// can replace it with an uploaded dataset; the next training pass picks it up.
type DatasetSource struct {
	mu     sync.RWMutex
	source ports.ObservationSource
	origin string
}

// NewDatasetSource wraps the initial source. origin names where it came from
// ("synthetic", "file", "database", "upload").
func NewDatasetSource(source ports.ObservationSource, origin string) *DatasetSource {
	return &DatasetSource{source: source, origin: origin}
}

// LoadObservations delegates to the current source
func (d *DatasetSource) LoadObservations(ctx context.Context) ([]dataset.Observation, error) {
	d.mu.RLock()
	source := d.source
	d.mu.RUnlock()
	return source.LoadObservations(ctx)
}

// Origin reports where the current observations came from
func (d *DatasetSource) Origin() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.origin
}

// Replace swaps in a new source
func (d *DatasetSource) Replace(source ports.ObservationSource, origin string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.source = source
	d.origin = origin
}

// observationSet serves a fixed, already validated set of observations
type observationSet []dataset.Observation

func (o observationSet) LoadObservations(ctx context.Context) ([]dataset.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return o, nil
}
