package container

import (
	"context"
	"fmt"
	"time"

	"agriprice/adapters/excel"
	"agriprice/adapters/postgres"
	rediscache "agriprice/adapters/redis"
	"agriprice/app"
	"agriprice/domain/dataset"
	"agriprice/internal"
	"agriprice/internal/config"
	"agriprice/internal/engine"
	"agriprice/internal/errors"
	"agriprice/internal/insights"
	"agriprice/internal/metrics"
	"agriprice/internal/migration"
	"agriprice/internal/scheduler"
	"agriprice/internal/synthesis"
	"agriprice/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB    *sqlx.DB
	Redis *goredis.Client

	// Repositories (data access layer)
	DatasetRepo ports.DatasetRepository
	RunRepo     ports.TrainingRunRepository
	Cache       ports.PredictionCache

	// Data
	Source       *app.DatasetSource
	SourceOrigin string

	// Engine and services
	Metrics    *metrics.Collector
	Engine     *engine.Engine
	Training   *app.TrainingService
	Prediction *app.PredictionService
	Insights   *insights.Generator
	Scheduler  *scheduler.RetrainScheduler
}

// New creates a new dependency injection container
func New(cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return &Container{Config: cfg, Logger: logger}, nil
}

// Init connects the optional infrastructure and builds the engine and
// services. A configured database must be reachable; an unreachable cache
// only disables caching.
func (c *Container) Init(ctx context.Context) error {
	if c.Config.Database.Enabled() {
		if err := c.initDatabase(ctx); err != nil {
			return err
		}
	}
	if c.Config.Redis.Enabled() {
		c.initCache(ctx)
	}
	if err := c.initSource(); err != nil {
		return err
	}

	collector, err := metrics.NewCollector()
	if err != nil {
		return errors.Wrap(err, "failed to create metrics collector")
	}
	c.Metrics = collector

	if err := c.initEngine(); err != nil {
		return err
	}
	c.initServices()

	if spec := c.Config.Training.RetrainSchedule; spec != "" {
		s, err := scheduler.NewRetrainScheduler(spec, c.Training, 10*time.Minute, c.Logger)
		if err != nil {
			return err
		}
		c.Scheduler = s
	}

	c.Logger.Info("Container initialized (source=%s, database=%t, cache=%t)",
		c.SourceOrigin, c.DB != nil, c.Cache != nil)
	return nil
}

// initDatabase opens the PostgreSQL connection and applies migrations
func (c *Container) initDatabase(ctx context.Context) error {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.Config.Database.URL)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to connect to database"))
	}

	migrator := migration.NewRunner()
	if err := migrator.Run(ctx, db); err != nil {
		db.Close()
		return errors.Wrap(err, "database migration failed")
	}

	c.DB = db
	c.DatasetRepo = postgres.NewDatasetRepository(db)
	c.RunRepo = postgres.NewTrainingRunRepository(db)
	c.Logger.Info("Database ready (schema %s)", migrator.Version())
	return nil
}

// initCache connects to Redis, continuing without a cache on failure
func (c *Container) initCache(ctx context.Context) {
	rc := c.Config.Redis
	client, err := rediscache.NewClient(ctx, rediscache.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
		TTL:      rc.TTL,
	})
	if err != nil {
		c.Logger.Warn("Prediction cache disabled: %v", err)
		return
	}
	c.Redis = client
	c.Cache = rediscache.NewPredictionCache(client, rc.TTL)
}

// initSource selects where training observations come from: the latest
// database snapshot, an uploaded file, or the synthesizer.
func (c *Container) initSource() error {
	data := c.Config.Data
	var source ports.ObservationSource
	switch {
	case data.LoadFromDBOnly:
		if c.DatasetRepo == nil {
			return errors.ConfigInvalid("LOAD_FROM_DB requires DATABASE_URL")
		}
		source, c.SourceOrigin = c.DatasetRepo, "database"
	case data.DatasetFile != "":
		source, c.SourceOrigin = excel.NewDataReader(data.DatasetFile, dataset.DefaultBounds(), c.Logger), "file"
	default:
		source, c.SourceOrigin = synthesis.NewCachedSource(synthesis.NewGenerator(SynthesisConfig(c.Config.Synthesis)), c.Logger), "synthetic"
	}
	c.Source = app.NewDatasetSource(source, c.SourceOrigin)
	return nil
}

// SynthesisConfig applies the environment overrides to the default generator
// configuration
func SynthesisConfig(sc config.SynthesisConfig) synthesis.GeneratorConfig {
	cfg := synthesis.DefaultConfig()
	cfg.StartYear = sc.StartYear
	cfg.EndYear = sc.EndYear
	cfg.SamplesPerCombination = sc.SamplesPerCombination
	cfg.SamplingRate = sc.SamplingRate
	cfg.Seed = sc.Seed
	return cfg
}

func (c *Container) initEngine() error {
	cfg := engine.DefaultConfig()
	cfg.WarmupDelay = c.Config.Training.WarmupDelay

	eng, err := engine.New(cfg, c.Source, c.Logger)
	if err != nil {
		return errors.Wrap(errors.FromDomain(err), "failed to create engine")
	}
	c.Engine = eng
	return nil
}

func (c *Container) initServices() {
	var snapshots ports.DatasetRepository
	if c.DatasetRepo != nil && c.Config.Data.SnapshotToDB {
		snapshots = c.DatasetRepo
	}

	c.Training = app.NewTrainingService(app.TrainingDependencies{
		Trainer:   c.Engine,
		Datasets:  c.Source,
		Runs:      c.RunRepo,
		Snapshots: snapshots,
		Metrics:   c.Metrics,
		Logger:    c.Logger,
	})
	c.Prediction = app.NewPredictionService(c.Engine, c.Cache, c.Metrics, c.Logger)
	c.Insights = insights.NewGenerator(c.Engine, insights.DefaultThresholds())
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	if c.Scheduler != nil {
		select {
		case <-c.Scheduler.Stop().Done():
		case <-ctx.Done():
		}
	}

	var firstErr error
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			firstErr = err
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
