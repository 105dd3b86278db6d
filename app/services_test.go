package app

import (
	"context"
	stderrors "errors"
	"io"
	"testing"
	"time"

	"agriprice/domain/core"
	"agriprice/domain/dataset"
	"agriprice/domain/model"
	"agriprice/internal"
	"agriprice/internal/errors"
	"agriprice/internal/metrics"
	"agriprice/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEngine implements Trainer and Predictor for testing
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Train(ctx context.Context) ([]model.ModelMetrics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ModelMetrics), args.Error(1)
}

func (m *MockEngine) ActiveModel() string {
	return m.Called().String(0)
}

func (m *MockEngine) Version() uint64 {
	return m.Called().Get(0).(uint64)
}

func (m *MockEngine) DatasetStats() (dataset.Stats, error) {
	args := m.Called()
	return args.Get(0).(dataset.Stats), args.Error(1)
}

func (m *MockEngine) PredictVersioned(input model.PredictionInput) (model.PredictionResult, uint64, error) {
	args := m.Called(input)
	return args.Get(0).(model.PredictionResult), args.Get(1).(uint64), args.Error(2)
}

// MockRunRepository implements ports.TrainingRunRepository for testing
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Save(ctx context.Context, run model.TrainingRun) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockRunRepository) Get(ctx context.Context, id core.RunID) (*model.TrainingRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TrainingRun), args.Error(1)
}

func (m *MockRunRepository) List(ctx context.Context, limit int) ([]model.TrainingRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TrainingRun), args.Error(1)
}

// MockDatasetRepository implements ports.DatasetRepository for testing
type MockDatasetRepository struct {
	mock.Mock
}

func (m *MockDatasetRepository) LoadObservations(ctx context.Context) ([]dataset.Observation, error) {
	args := m.Called(ctx)
	return args.Get(0).([]dataset.Observation), args.Error(1)
}

func (m *MockDatasetRepository) SaveSnapshot(ctx context.Context, origin string, observations []dataset.Observation) (core.SnapshotID, error) {
	args := m.Called(ctx, origin, observations)
	return args.Get(0).(core.SnapshotID), args.Error(1)
}

func (m *MockDatasetRepository) LatestSnapshot(ctx context.Context) (*ports.SnapshotInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.SnapshotInfo), args.Error(1)
}

// MockCache implements ports.PredictionCache for testing
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, version uint64, input model.PredictionInput) (*model.PredictionResult, bool, error) {
	args := m.Called(ctx, version, input)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.PredictionResult), args.Bool(1), args.Error(2)
}

func (m *MockCache) Set(ctx context.Context, version uint64, input model.PredictionInput, result model.PredictionResult) error {
	return m.Called(ctx, version, input, result).Error(0)
}

type staticSource []dataset.Observation

func (s staticSource) LoadObservations(ctx context.Context) ([]dataset.Observation, error) {
	return s, nil
}

func quietLogger() *internal.Logger {
	return internal.NewLoggerTo(io.Discard, internal.LogLevelError)
}

var trainedMetrics = []model.ModelMetrics{
	{Variant: model.VariantXGBoost, Name: "XGBoost", MAE: 800, R2Score: 0.8, R2Defined: true, Trained: true},
}

func readyEngine(version uint64) *MockEngine {
	engine := new(MockEngine)
	engine.On("Train", mock.Anything).Return(trainedMetrics, nil)
	engine.On("DatasetStats").Return(dataset.Stats{TotalSamples: 96}, nil)
	engine.On("ActiveModel").Return("XGBoost")
	engine.On("Version").Return(version)
	return engine
}

func TestTrainingServiceRunRecordsRun(t *testing.T) {
	engine := readyEngine(1)
	runs := new(MockRunRepository)
	runs.On("Save", mock.Anything, mock.AnythingOfType("model.TrainingRun")).Return(nil)

	collector, err := metrics.NewCollector()
	require.NoError(t, err)

	svc := NewTrainingService(TrainingDependencies{Trainer: engine, Runs: runs, Metrics: collector, Logger: quietLogger()})
	assert.Equal(t, StatusIdle, svc.Status().Status)

	run, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, core.ID(run.ID).IsEmpty())
	assert.Equal(t, 96, run.SampleCount)
	assert.Equal(t, "XGBoost", run.ActiveModel)
	assert.Equal(t, trainedMetrics, run.Metrics)
	assert.False(t, run.CompletedAt.Before(run.StartedAt))

	state := svc.Status()
	assert.Equal(t, StatusReady, state.Status)
	assert.Equal(t, run.ID, state.LastRunID)
	assert.Equal(t, uint64(1), state.Version)
	assert.Equal(t, 96, state.Samples)
	assert.Empty(t, state.LastError)
	require.NotNil(t, state.CompletedAt)

	runs.AssertCalled(t, "Save", mock.Anything, *run)
}

func TestTrainingServiceRunFailure(t *testing.T) {
	engine := new(MockEngine)
	engine.On("Train", mock.Anything).Return(nil, core.ErrEmptyDataset)

	svc := NewTrainingService(TrainingDependencies{Trainer: engine, Logger: quietLogger()})
	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	assert.ErrorIs(t, err, core.ErrEmptyDataset)

	state := svc.Status()
	assert.Equal(t, StatusFailed, state.Status)
	assert.Contains(t, state.LastError, "no observations")
}

func TestTrainingServiceRejectsOverlappingRun(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	engine := new(MockEngine)
	engine.On("Train", mock.Anything).Run(func(args mock.Arguments) {
		close(entered)
		<-release
	}).Return(trainedMetrics, nil)
	engine.On("DatasetStats").Return(dataset.Stats{TotalSamples: 10}, nil)
	engine.On("ActiveModel").Return("XGBoost")
	engine.On("Version").Return(uint64(1))

	svc := NewTrainingService(TrainingDependencies{Trainer: engine, Logger: quietLogger()})
	require.NoError(t, svc.Start(context.Background()))
	<-entered

	assert.Equal(t, StatusTraining, svc.Status().Status)
	_, err := svc.Run(context.Background())
	assert.Equal(t, errors.CodeConflict, errors.GetCode(err))
	assert.Equal(t, errors.CodeConflict, errors.GetCode(svc.Start(context.Background())))

	close(release)
	assert.Eventually(t, func() bool { return svc.Status().Status == StatusReady }, time.Second, 5*time.Millisecond)
}

func TestTrainingServiceSnapshotsOnce(t *testing.T) {
	observations := []dataset.Observation{{Year: 2020, Month: 1, City: "Delhi", Variety: "Teja", Price: 25000}}
	snapshots := new(MockDatasetRepository)
	snapshots.On("SaveSnapshot", mock.Anything, "upload", observations).Return(core.NewSnapshotID(), nil).Once()

	svc := NewTrainingService(TrainingDependencies{
		Trainer:        readyEngine(1),
		Source:         staticSource(observations),
		Snapshots:      snapshots,
		SnapshotOrigin: "upload",
		Logger:         quietLogger(),
	})

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	_, err = svc.Run(context.Background())
	require.NoError(t, err)

	snapshots.AssertNumberOfCalls(t, "SaveSnapshot", 1)
}

func TestTrainingServiceReplaceDataset(t *testing.T) {
	initial := []dataset.Observation{{Year: 2020, Month: 1, City: "Delhi", Variety: "Teja", Price: 25000}}
	uploaded := []dataset.Observation{
		{Year: 2024, Month: 5, City: "Guntur", Variety: "Byadgi", Price: 26500},
		{Year: 2024, Month: 6, City: "Guntur", Variety: "Byadgi", Price: 26900},
	}
	snapshots := new(MockDatasetRepository)
	snapshots.On("SaveSnapshot", mock.Anything, "synthetic", initial).Return(core.NewSnapshotID(), nil).Once()
	snapshots.On("SaveSnapshot", mock.Anything, "upload", uploaded).Return(core.NewSnapshotID(), nil).Once()

	datasets := NewDatasetSource(staticSource(initial), "synthetic")
	svc := NewTrainingService(TrainingDependencies{
		Trainer:   readyEngine(1),
		Datasets:  datasets,
		Snapshots: snapshots,
		Logger:    quietLogger(),
	})
	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, svc.ReplaceDataset(context.Background(), uploaded, "upload"))
	assert.Eventually(t, func() bool { return svc.Status().Status == StatusReady }, time.Second, 5*time.Millisecond)

	got, err := datasets.LoadObservations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uploaded, got)
	assert.Equal(t, "upload", datasets.Origin())
	snapshots.AssertExpectations(t)
}

func TestTrainingServiceReplaceDatasetRejected(t *testing.T) {
	observations := []dataset.Observation{{Year: 2020, Month: 1, City: "Delhi", Variety: "Teja", Price: 25000}}

	svc := NewTrainingService(TrainingDependencies{Trainer: readyEngine(1), Logger: quietLogger()})
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(svc.ReplaceDataset(context.Background(), observations, "upload")))

	release := make(chan struct{})
	entered := make(chan struct{})
	engine := new(MockEngine)
	engine.On("Train", mock.Anything).Run(func(args mock.Arguments) {
		close(entered)
		<-release
	}).Return(trainedMetrics, nil)
	engine.On("DatasetStats").Return(dataset.Stats{TotalSamples: 1}, nil)
	engine.On("ActiveModel").Return("XGBoost")
	engine.On("Version").Return(uint64(1))

	datasets := NewDatasetSource(staticSource(observations), "file")
	svc = NewTrainingService(TrainingDependencies{Trainer: engine, Datasets: datasets, Logger: quietLogger()})

	err := svc.ReplaceDataset(context.Background(), nil, "upload")
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	assert.ErrorIs(t, err, core.ErrEmptyDataset)

	require.NoError(t, svc.Start(context.Background()))
	<-entered
	err = svc.ReplaceDataset(context.Background(), []dataset.Observation{{Year: 2030}}, "upload")
	assert.Equal(t, errors.CodeConflict, errors.GetCode(err))
	assert.Equal(t, "file", datasets.Origin())

	close(release)
	assert.Eventually(t, func() bool { return svc.Status().Status == StatusReady }, time.Second, 5*time.Millisecond)
}

func TestTrainingServiceSkipsSnapshotOfDatabaseData(t *testing.T) {
	observations := []dataset.Observation{{Year: 2020, Month: 1, City: "Delhi", Variety: "Teja", Price: 25000}}
	snapshots := new(MockDatasetRepository)

	svc := NewTrainingService(TrainingDependencies{
		Trainer:   readyEngine(1),
		Datasets:  NewDatasetSource(staticSource(observations), "database"),
		Snapshots: snapshots,
		Logger:    quietLogger(),
	})
	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	snapshots.AssertNotCalled(t, "SaveSnapshot", mock.Anything, mock.Anything, mock.Anything)
}

func TestTrainingServicePersistFailureIsNotFatal(t *testing.T) {
	runs := new(MockRunRepository)
	runs.On("Save", mock.Anything, mock.Anything).Return(stderrors.New("connection refused"))

	svc := NewTrainingService(TrainingDependencies{Trainer: readyEngine(1), Runs: runs, Logger: quietLogger()})
	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusReady, svc.Status().Status)
}

func TestTrainingServiceInMemoryHistory(t *testing.T) {
	svc := NewTrainingService(TrainingDependencies{Trainer: readyEngine(1), Logger: quietLogger()})

	first, err := svc.Run(context.Background())
	require.NoError(t, err)
	second, err := svc.Run(context.Background())
	require.NoError(t, err)

	runs, err := svc.Runs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)

	got, err := svc.GetRun(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = svc.GetRun(context.Background(), core.NewRunID())
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestTrainingServiceRepositoryHistory(t *testing.T) {
	stored := []model.TrainingRun{{ID: core.NewRunID(), SampleCount: 5}}
	runs := new(MockRunRepository)
	runs.On("List", mock.Anything, 20).Return(stored, nil)
	runs.On("Get", mock.Anything, stored[0].ID).Return(&stored[0], nil)

	svc := NewTrainingService(TrainingDependencies{Trainer: readyEngine(1), Runs: runs, Logger: quietLogger()})

	listed, err := svc.Runs(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, stored, listed)

	got, err := svc.GetRun(context.Background(), stored[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.SampleCount)
	runs.AssertExpectations(t)
}

func TestPredictionServiceNotTrained(t *testing.T) {
	engine := new(MockEngine)
	engine.On("Version").Return(uint64(0))

	svc := NewPredictionService(engine, nil, nil, quietLogger())
	_, err := svc.Predict(context.Background(), model.PredictionInput{Year: 2025, Month: 1, City: "Delhi", Variety: "Teja"})
	assert.Equal(t, errors.CodeNotTrained, errors.GetCode(err))
	engine.AssertNotCalled(t, "PredictVersioned", mock.Anything)
}

func TestPredictionServiceRejectsUnknownFrequency(t *testing.T) {
	svc := NewPredictionService(new(MockEngine), nil, nil, quietLogger())
	_, err := svc.Predict(context.Background(), model.PredictionInput{Frequency: "Daily"})
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestPredictionServiceCacheMissThenStore(t *testing.T) {
	input := model.PredictionInput{Year: 2025, Month: 3, City: "Delhi", Variety: "Teja", Frequency: model.FrequencyMonthly}
	result := model.PredictionResult{PredictedPrice: 25500, Confidence: 88, Model: "XGBoost"}

	engine := new(MockEngine)
	engine.On("Version").Return(uint64(4))
	engine.On("PredictVersioned", input).Return(result, uint64(4), nil).Once()

	cache := new(MockCache)
	cache.On("Get", mock.Anything, uint64(4), input).Return(nil, false, nil).Once()
	cache.On("Set", mock.Anything, uint64(4), input, result).Return(nil).Once()

	collector, err := metrics.NewCollector()
	require.NoError(t, err)

	svc := NewPredictionService(engine, cache, collector, quietLogger())
	// empty frequency is normalised to Monthly before the cache lookup
	got, err := svc.Predict(context.Background(), model.PredictionInput{Year: 2025, Month: 3, City: "Delhi", Variety: "Teja"})
	require.NoError(t, err)
	assert.Equal(t, result, *got)

	engine.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestPredictionServiceCacheHit(t *testing.T) {
	input := model.PredictionInput{Year: 2025, Month: 3, City: "Delhi", Variety: "Teja", Frequency: model.FrequencyYearly}
	cached := &model.PredictionResult{PredictedPrice: 26775, Confidence: 88, Model: "XGBoost"}

	engine := new(MockEngine)
	engine.On("Version").Return(uint64(4))
	cache := new(MockCache)
	cache.On("Get", mock.Anything, uint64(4), input).Return(cached, true, nil)

	svc := NewPredictionService(engine, cache, nil, quietLogger())
	got, err := svc.Predict(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, cached, got)
	engine.AssertNotCalled(t, "PredictVersioned", mock.Anything)
}

func TestPredictionServiceCacheErrorsFallThrough(t *testing.T) {
	input := model.PredictionInput{Year: 2025, Month: 3, City: "Delhi", Variety: "Teja", Frequency: model.FrequencyWeekly}
	result := model.PredictionResult{PredictedPrice: 24000, Confidence: 70, Model: "XGBoost"}

	engine := new(MockEngine)
	engine.On("Version").Return(uint64(1))
	engine.On("PredictVersioned", input).Return(result, uint64(1), nil)
	cache := new(MockCache)
	cache.On("Get", mock.Anything, uint64(1), input).Return(nil, false, stderrors.New("redis down"))
	cache.On("Set", mock.Anything, uint64(1), input, result).Return(stderrors.New("redis down"))

	svc := NewPredictionService(engine, cache, nil, quietLogger())
	got, err := svc.Predict(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 24000, got.PredictedPrice)
}

func TestPredictionServiceStoresUnderServedVersion(t *testing.T) {
	input := model.PredictionInput{Year: 2025, Month: 8, City: "Guntur", Variety: "Teja", Frequency: model.FrequencyMonthly}
	result := model.PredictionResult{PredictedPrice: 24800, Confidence: 81, Model: "LSTM Neural Network"}

	// version 4 is current at lookup; a retrain to 5 lands before the engine answers
	engine := new(MockEngine)
	engine.On("Version").Return(uint64(4))
	engine.On("PredictVersioned", input).Return(result, uint64(5), nil).Once()

	cache := new(MockCache)
	cache.On("Get", mock.Anything, uint64(4), input).Return(nil, false, nil).Once()
	cache.On("Set", mock.Anything, uint64(5), input, result).Return(nil).Once()

	svc := NewPredictionService(engine, cache, nil, quietLogger())
	got, err := svc.Predict(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, result, *got)

	engine.AssertExpectations(t)
	cache.AssertExpectations(t)
	cache.AssertNotCalled(t, "Set", mock.Anything, uint64(4), input, result)
}
