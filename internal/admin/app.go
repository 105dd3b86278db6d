package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"agriprice/app"
	"agriprice/domain/core"
	"agriprice/domain/dataset"
	"agriprice/domain/model"
	"agriprice/internal"
	"agriprice/internal/errors"
	"agriprice/internal/metrics"
	"agriprice/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Trainer controls and reports the training lifecycle
type Trainer interface {
	Start(ctx context.Context) error
	ReplaceDataset(ctx context.Context, observations []dataset.Observation, origin string) error
	Status() app.TrainingState
	Runs(ctx context.Context, limit int) ([]model.TrainingRun, error)
	GetRun(ctx context.Context, id core.RunID) (*model.TrainingRun, error)
}

// ModelCatalog exposes the serving models
type ModelCatalog interface {
	ActiveModel() string
	Version() uint64
	Metrics() []model.ModelMetrics
	DatasetStats() (dataset.Stats, error)
}

// Schedule reports the next automatic retrain
type Schedule interface {
	Next() time.Time
}

// Dependencies are the collaborators of the admin surface. Schedule and
// Metrics may be nil.
type Dependencies struct {
	Trainer  Trainer
	Catalog  ModelCatalog
	Source   ports.ObservationSource
	Schedule Schedule
	Metrics  *metrics.Collector
	Logger   *internal.Logger
}

// App is the operator-facing HTTP surface
type App struct {
	router *chi.Mux
	deps   Dependencies
	logger *internal.Logger
	base   context.Context // parent of retrains started over HTTP
}

// NewApp creates the admin application. base outlives individual requests
// and bounds retrains they start.
func NewApp(base context.Context, deps Dependencies) *App {
	a := &App{
		router: chi.NewRouter(),
		deps:   deps,
		logger: deps.Logger.With("Admin"),
		base:   base,
	}
	a.setupMiddleware()
	a.setupRoutes()
	return a
}

// setupMiddleware configures HTTP middleware
func (a *App) setupMiddleware() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
	if a.deps.Metrics != nil {
		a.router.Use(a.deps.Metrics.InstrumentHandler("admin"))
	}
}

// setupRoutes configures all HTTP routes
func (a *App) setupRoutes() {
	a.router.Route("/admin", func(r chi.Router) {
		r.Get("/training-status", a.handleTrainingStatus)
		r.Post("/retrain", a.handleRetrain)
		r.Get("/runs", a.handleListRuns)
		r.Get("/runs/{id}", a.handleGetRun)
		r.Post("/dataset", a.handleDatasetUpload)
		r.Get("/dataset/export", a.handleDatasetExport)
		r.Get("/report", a.handleReport)
	})
	if a.deps.Metrics != nil {
		a.router.Handle("/metrics", a.deps.Metrics.Handler())
	}
}

// Handler returns the router
func (a *App) Handler() http.Handler {
	return a.router
}

// HTTPServer returns an http.Server for addr serving the admin routes
func (a *App) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	err = errors.FromDomain(err)
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeInvalidInput, errors.CodeValidationError:
		status = http.StatusBadRequest
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodeConflict:
		status = http.StatusConflict
	case errors.CodeNotTrained:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}
