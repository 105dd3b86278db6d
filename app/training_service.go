package app

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"agriprice/domain/core"
	"agriprice/domain/dataset"
	"agriprice/domain/model"
	"agriprice/internal"
	"agriprice/internal/errors"
	"agriprice/internal/metrics"
	"agriprice/ports"
)

// TrainingStatus is the lifecycle stage of the serving model
type TrainingStatus string

const (
	StatusIdle     TrainingStatus = "idle"
	StatusTraining TrainingStatus = "training"
	StatusReady    TrainingStatus = "ready"
	StatusFailed   TrainingStatus = "failed"
)

const recentRunLimit = 20

// Trainer is the part of the engine the training service drives
type Trainer interface {
	Train(ctx context.Context) ([]model.ModelMetrics, error)
	ActiveModel() string
	Version() uint64
	DatasetStats() (dataset.Stats, error)
}

// TrainingState is a point-in-time view of the training lifecycle
type TrainingState struct {
	Status      TrainingStatus `json:"status"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	LastRunID   core.RunID     `json:"last_run_id,omitempty"`
	ActiveModel string         `json:"active_model,omitempty"`
	Version     uint64         `json:"version"`
	Samples     int            `json:"samples"`
}

// TrainingDependencies wires the optional collaborators of TrainingService.
// Runs, Snapshots and Metrics may be nil.
// Datasets, when set, backs ReplaceDataset and names the snapshot origin.
type TrainingDependencies struct {
	Trainer        Trainer
	Source         ports.ObservationSource
	Datasets       *DatasetSource
	Runs           ports.TrainingRunRepository
	Snapshots      ports.DatasetRepository
	SnapshotOrigin string
	Metrics        *metrics.Collector
	Logger         *internal.Logger
}

// TrainingService runs training passes, tracks their status and records
// completed runs.
type TrainingService struct {
	deps   TrainingDependencies
	logger *internal.Logger

	mu            sync.RWMutex
	state         TrainingState
	recent        []model.TrainingRun // newest first
	snapshotTaken bool
}

// NewTrainingService creates a training service in the idle state
func NewTrainingService(deps TrainingDependencies) *TrainingService {
	if deps.Source == nil && deps.Datasets != nil {
		deps.Source = deps.Datasets
	}
	return &TrainingService{
		deps:   deps,
		logger: deps.Logger.With("Training"),
		state:  TrainingState{Status: StatusIdle},
	}
}

// Start launches a training pass in the background. It fails with a
// CONFLICT error when a pass is already running.
func (s *TrainingService) Start(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	go func() {
		if _, err := s.run(ctx); err != nil {
			s.logger.Error("Background training failed: %v", err)
		}
	}()
	return nil
}

// ReplaceDataset swaps the training observations for an uploaded set and
// starts a training pass over them. It fails with CONFLICT while a pass is
// running, leaving the current dataset in place.
func (s *TrainingService) ReplaceDataset(ctx context.Context, observations []dataset.Observation, origin string) error {
	if s.deps.Datasets == nil {
		return errors.ConfigInvalid("dataset replacement is not enabled")
	}
	if len(observations) == 0 {
		return errors.WithCode(errors.CodeInvalidInput, core.ErrEmptyDataset)
	}
	if err := s.begin(); err != nil {
		return err
	}

	s.deps.Datasets.Replace(observationSet(observations), origin)
	s.mu.Lock()
	s.snapshotTaken = false
	s.mu.Unlock()
	s.logger.Info("Dataset replaced with %d %s observations", len(observations), origin)

	go func() {
		if _, err := s.run(ctx); err != nil {
			s.logger.Error("Training on replaced dataset failed: %v", err)
		}
	}()
	return nil
}

// Run executes one training pass synchronously
func (s *TrainingService) Run(ctx context.Context) (*model.TrainingRun, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	return s.run(ctx)
}

func (s *TrainingService) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status == StatusTraining {
		return errors.Conflict("training already in progress")
	}
	now := time.Now().UTC()
	s.state.Status = StatusTraining
	s.state.StartedAt = &now
	s.state.CompletedAt = nil
	s.state.LastError = ""
	return nil
}

func (s *TrainingService) run(ctx context.Context) (*model.TrainingRun, error) {
	started := time.Now().UTC()

	metricsOut, err := s.deps.Trainer.Train(ctx)
	if err != nil {
		s.fail(err, started)
		return nil, errors.Wrap(errors.FromDomain(err), "training failed")
	}

	completed := time.Now().UTC()
	stats, err := s.deps.Trainer.DatasetStats()
	if err != nil {
		s.fail(err, started)
		return nil, errors.Wrap(errors.FromDomain(err), "training finished without dataset stats")
	}

	run := model.TrainingRun{
		ID:          core.NewRunID(),
		StartedAt:   started,
		CompletedAt: completed,
		SampleCount: stats.TotalSamples,
		ActiveModel: s.deps.Trainer.ActiveModel(),
		Metrics:     metricsOut,
	}
	version := s.deps.Trainer.Version()

	if s.deps.Runs != nil {
		if err := s.deps.Runs.Save(ctx, run); err != nil {
			s.logger.Warn("Failed to persist training run %s: %v", run.ID, err)
		}
	}
	s.snapshot(ctx)

	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveTraining(string(StatusReady), completed.Sub(started))
		s.deps.Metrics.SetModelMetrics(metricsOut)
		s.deps.Metrics.SetServingModel(stats.TotalSamples, version)
	}

	s.mu.Lock()
	s.state = TrainingState{
		Status:      StatusReady,
		StartedAt:   &started,
		CompletedAt: &completed,
		LastRunID:   run.ID,
		ActiveModel: run.ActiveModel,
		Version:     version,
		Samples:     stats.TotalSamples,
	}
	s.recent = append([]model.TrainingRun{run}, s.recent...)
	if len(s.recent) > recentRunLimit {
		s.recent = s.recent[:recentRunLimit]
	}
	s.mu.Unlock()

	s.logger.Info("Run %s ready: %d samples, active model %s", run.ID, run.SampleCount, run.ActiveModel)
	return &run, nil
}

func (s *TrainingService) fail(err error, started time.Time) {
	completed := time.Now().UTC()
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveTraining(string(StatusFailed), completed.Sub(started))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// a model from an earlier pass keeps serving
	if s.state.Version > 0 && stderrors.Is(err, context.Canceled) {
		s.state.Status = StatusReady
	} else {
		s.state.Status = StatusFailed
	}
	s.state.CompletedAt = &completed
	s.state.LastError = err.Error()
}

// snapshot persists the training observations once per dataset so the data
// behind a model can be reloaded later. Observations that were themselves
// loaded from the database are not stored again.
func (s *TrainingService) snapshot(ctx context.Context) {
	if s.deps.Snapshots == nil || s.deps.Source == nil {
		return
	}
	origin := s.deps.SnapshotOrigin
	if s.deps.Datasets != nil {
		origin = s.deps.Datasets.Origin()
	}
	if origin == "" {
		origin = "synthetic"
	}
	if origin == "database" {
		return
	}
	s.mu.Lock()
	if s.snapshotTaken {
		s.mu.Unlock()
		return
	}
	s.snapshotTaken = true
	s.mu.Unlock()

	observations, err := s.deps.Source.LoadObservations(ctx)
	if err != nil {
		s.logger.Warn("Skipping dataset snapshot: %v", err)
		return
	}
	id, err := s.deps.Snapshots.SaveSnapshot(ctx, origin, observations)
	if err != nil {
		s.logger.Warn("Failed to snapshot dataset: %v", err)
		return
	}
	s.logger.Info("Saved dataset snapshot %s (%d observations)", id, len(observations))
}

// Status returns the current training state
func (s *TrainingService) Status() TrainingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Runs lists recent training runs, newest first. Persisted history is used
// when a repository is configured.
func (s *TrainingService) Runs(ctx context.Context, limit int) ([]model.TrainingRun, error) {
	if limit <= 0 || limit > 100 {
		limit = recentRunLimit
	}
	if s.deps.Runs != nil {
		runs, err := s.deps.Runs.List(ctx, limit)
		if err != nil {
			return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to list training runs"))
		}
		return runs, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]model.TrainingRun, limit)
	copy(out, s.recent[:limit])
	return out, nil
}

// GetRun looks up one training run by ID
func (s *TrainingService) GetRun(ctx context.Context, id core.RunID) (*model.TrainingRun, error) {
	if s.deps.Runs != nil {
		run, err := s.deps.Runs.Get(ctx, id)
		if err != nil {
			return nil, errors.FromDomain(err)
		}
		return run, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.recent {
		if s.recent[i].ID == id {
			run := s.recent[i]
			return &run, nil
		}
	}
	return nil, errors.FromDomain(core.ErrRunNotFound)
}
