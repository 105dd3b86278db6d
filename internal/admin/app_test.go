package admin

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agriprice/adapters/excel"
	"agriprice/app"
	"agriprice/domain/core"
	"agriprice/domain/dataset"
	"agriprice/domain/model"
	"agriprice/internal"
	"agriprice/internal/engine"
	"agriprice/internal/errors"
	"agriprice/internal/metrics"
	"agriprice/internal/synthesis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func quietLogger() *internal.Logger {
	return internal.NewLoggerTo(&bytes.Buffer{}, internal.LogLevelError)
}

type fixedSchedule time.Time

func (s fixedSchedule) Next() time.Time { return time.Time(s) }

type stack struct {
	app      *App
	engine   *engine.Engine
	training *app.TrainingService
	metrics  *metrics.Collector
}

func newStack(t *testing.T) *stack {
	t.Helper()
	cfg := synthesis.DefaultConfig()
	cfg.StartYear, cfg.EndYear = 2023, 2023
	cfg.Cities = []string{"Delhi", "Guntur"}
	cfg.Varieties = []string{"Teja"}
	cfg.Seed = 3

	logger := quietLogger()
	source := app.NewDatasetSource(synthesis.NewCachedSource(synthesis.NewGenerator(cfg), logger), "synthetic")
	eng, err := engine.New(engine.DefaultConfig(), source, logger)
	require.NoError(t, err)

	collector, err := metrics.NewCollector()
	require.NoError(t, err)

	training := app.NewTrainingService(app.TrainingDependencies{
		Trainer:  eng,
		Datasets: source,
		Metrics:  collector,
		Logger:   logger,
	})

	a := NewApp(context.Background(), Dependencies{
		Trainer:  training,
		Catalog:  eng,
		Source:   source,
		Schedule: fixedSchedule(time.Date(2030, 1, 1, 3, 0, 0, 0, time.UTC)),
		Metrics:  collector,
		Logger:   logger,
	})
	return &stack{app: a, engine: eng, training: training, metrics: collector}
}

func (s *stack) get(target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.app.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func (s *stack) post(target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.app.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, target, nil))
	return w
}

func (s *stack) train(t *testing.T) model.TrainingRun {
	t.Helper()
	run, err := s.training.Run(context.Background())
	require.NoError(t, err)
	return *run
}

func TestTrainingStatusAndRetrain(t *testing.T) {
	s := newStack(t)

	w := s.get("/admin/training-status")
	require.Equal(t, http.StatusOK, w.Code)
	var status TrainingStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, app.StatusIdle, status.Status)
	require.NotNil(t, status.NextScheduledRun)
	assert.Equal(t, 2030, status.NextScheduledRun.Year())

	w = s.post("/admin/retrain")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	assert.Eventually(t, func() bool {
		return s.training.Status().Status == app.StatusReady
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), s.engine.Version())
}

type busyTrainer struct{}

func (busyTrainer) Start(context.Context) error {
	return errors.Conflict("training already in progress")
}

func (busyTrainer) ReplaceDataset(context.Context, []dataset.Observation, string) error {
	return errors.Conflict("training already in progress")
}

func (busyTrainer) Status() app.TrainingState {
	return app.TrainingState{Status: app.StatusTraining}
}

func (busyTrainer) Runs(context.Context, int) ([]model.TrainingRun, error) {
	return nil, nil
}

func (busyTrainer) GetRun(_ context.Context, id core.RunID) (*model.TrainingRun, error) {
	return nil, core.ErrRunNotFound
}

func (s *stack) upload(t *testing.T, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/admin/dataset", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.app.Handler().ServeHTTP(w, req)
	return w
}

func uploadedCorpus(t *testing.T, format excel.Format) []byte {
	t.Helper()
	cfg := synthesis.DefaultConfig()
	cfg.StartYear, cfg.EndYear = 2024, 2024
	cfg.Cities = []string{"Warangal"}
	cfg.Varieties = []string{"Byadgi", "Kashmiri"}
	cfg.SamplesPerCombination = 1
	cfg.Seed = 8
	observations, _ := synthesis.NewGenerator(cfg).Generate()

	var buf bytes.Buffer
	require.NoError(t, excel.Write(&buf, format, observations))
	return buf.Bytes()
}

func TestDatasetUpload(t *testing.T) {
	for _, format := range []excel.Format{excel.FormatCSV, excel.FormatXLSX} {
		t.Run(string(format), func(t *testing.T) {
			s := newStack(t)
			s.train(t)

			w := s.upload(t, "market."+string(format), uploadedCorpus(t, format))
			require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
			var resp DatasetUploadResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, 12*2, resp.Samples)

			assert.Eventually(t, func() bool {
				return s.engine.Version() == 2 && s.training.Status().Status == app.StatusReady
			}, 5*time.Second, 10*time.Millisecond)

			stats, err := s.engine.DatasetStats()
			require.NoError(t, err)
			assert.Equal(t, []string{"Warangal"}, stats.Cities)
			assert.Equal(t, []string{"Byadgi", "Kashmiri"}, stats.Varieties)

			// the export reflects the uploaded dataset
			records, err := csv.NewReader(strings.NewReader(s.get("/admin/dataset/export").Body.String())).ReadAll()
			require.NoError(t, err)
			assert.Len(t, records, 1+12*2)
		})
	}
}

func TestDatasetUploadRejected(t *testing.T) {
	s := newStack(t)
	invalid := "year,month,city,variety,rainfall,arrivals,temperature,price\n" +
		"2024,1,Delhi,Teja,30,3500,25,25000\n" +
		"2024,2,Delhi,Teja,30,3500,25,99000\n"

	tests := []struct {
		name     string
		filename string
		content  string
		contains string
	}{
		{"missing file field", "", "", "file"},
		{"unsupported extension", "market.txt", "year\n", "market.txt"},
		{"invalid row", "market.csv", invalid, "row 3"},
		{"header only", "market.csv", "year,month,city,variety,rainfall,arrivals,temperature,price\n", "no observations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.upload(t, tt.filename, []byte(tt.content))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "INVALID_INPUT")
			assert.Contains(t, w.Body.String(), tt.contains)
		})
	}

	assert.Equal(t, app.StatusIdle, s.training.Status().Status)
	records, err := csv.NewReader(strings.NewReader(s.get("/admin/dataset/export").Body.String())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1+12*2*1*2)
}

func TestDatasetUploadConflict(t *testing.T) {
	s := newStack(t)
	s.app.deps.Trainer = busyTrainer{}

	w := s.upload(t, "market.csv", uploadedCorpus(t, excel.FormatCSV))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRetrainConflict(t *testing.T) {
	s := newStack(t)
	s.app.deps.Trainer = busyTrainer{}

	w := s.post("/admin/retrain")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "CONFLICT")
}

func TestRuns(t *testing.T) {
	s := newStack(t)
	first := s.train(t)
	second := s.train(t)

	w := s.get("/admin/runs")
	require.Equal(t, http.StatusOK, w.Code)
	var runs []model.TrainingRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)

	w = s.get("/admin/runs?limit=1")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)

	w = s.get("/admin/runs?limit=zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.get("/admin/runs/" + first.ID.String())
	require.Equal(t, http.StatusOK, w.Code)
	var run model.TrainingRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, first.ID, run.ID)
	assert.Len(t, run.Metrics, 4)

	w = s.get("/admin/runs/" + core.NewRunID().String())
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.get("/admin/runs/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDatasetExportCSV(t *testing.T) {
	s := newStack(t)

	w := s.get("/admin/dataset/export?format=csv")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")

	records, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"year", "month", "city", "variety", "rainfall", "arrivals", "temperature", "price"}, records[0])
	assert.Len(t, records, 1+12*2*1*2)
}

func TestDatasetExportXLSX(t *testing.T) {
	s := newStack(t)

	w := s.get("/admin/dataset/export?format=xlsx")
	require.Equal(t, http.StatusOK, w.Code)

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Len(t, rows, 1+12*2*1*2)

	w = s.get("/admin/dataset/export?format=pdf")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReport(t *testing.T) {
	s := newStack(t)
	s.train(t)

	w := s.get("/admin/report")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	body := w.Body.String()
	assert.Contains(t, body, "<title>Model Performance Report</title>")
	assert.Contains(t, body, "<table>")
	assert.Contains(t, body, s.engine.ActiveModel())

	w = s.get("/admin/report?format=markdown")
	assert.True(t, strings.HasPrefix(w.Body.String(), "# Model Performance Report"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newStack(t)
	s.train(t)
	s.get("/admin/training-status")

	w := s.get("/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `agriprice_engine_training_runs_total{status="ready"} 1`)
	assert.Contains(t, body, `path="/admin/training-status"`)
}
