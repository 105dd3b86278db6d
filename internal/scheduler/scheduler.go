package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agriprice/domain/model"
	"agriprice/internal"
	"agriprice/internal/errors"

	"github.com/robfig/cron/v3"
)

// Runner performs one synchronous training pass
type Runner interface {
	Run(ctx context.Context) (*model.TrainingRun, error)
}

// RetrainScheduler triggers training on a cron schedule. Overlapping ticks
// are skipped rather than queued.
type RetrainScheduler struct {
	spec     string
	schedule cron.Schedule
	runner   Runner
	logger   *internal.Logger
	timeout  time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	lastRun *time.Time
	lastErr error
}

// NewRetrainScheduler parses a standard five-field spec (descriptors such as
// "@daily" and "@every 6h" are accepted too). timeout bounds each run; zero
// means no bound.
func NewRetrainScheduler(spec string, runner Runner, timeout time.Duration, logger *internal.Logger) (*RetrainScheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, errors.Wrapf(err, "invalid retrain schedule %q", spec))
	}

	s := &RetrainScheduler{
		spec:     spec,
		schedule: schedule,
		runner:   runner,
		logger:   logger.With("Scheduler"),
		timeout:  timeout,
	}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cronLogger{s.logger}), cron.SkipIfStillRunning(cronLogger{s.logger})),
	)
	return s, nil
}

// Start registers the job and starts the cron loop. Runs use ctx as their
// parent, so cancelling it aborts an in-flight run.
func (s *RetrainScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if _, err := s.cron.AddJob(s.spec, cron.FuncJob(func() { s.Trigger() })); err != nil {
		return fmt.Errorf("failed to register retrain job: %w", err)
	}
	s.cron.Start()
	s.logger.Info("Retraining scheduled (%s), next run at %s", s.spec, s.Next().Format(time.RFC3339))
	return nil
}

// Stop halts the loop and returns a context that is done once any running
// job has finished.
func (s *RetrainScheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Next returns the next activation time after now
func (s *RetrainScheduler) Next() time.Time {
	return s.schedule.Next(time.Now())
}

// Trigger runs one training pass immediately. A pass that collides with a
// run already in progress is logged and ignored.
func (s *RetrainScheduler) Trigger() {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}

	ctx := parent
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.timeout)
		defer cancel()
	}

	started := time.Now()
	run, err := s.runner.Run(ctx)

	s.mu.Lock()
	s.lastRun = &started
	s.lastErr = err
	s.mu.Unlock()

	switch {
	case err == nil:
		s.logger.Info("Scheduled retrain %s finished in %v (active model %s)", run.ID, time.Since(started), run.ActiveModel)
	case errors.GetCode(err) == errors.CodeConflict:
		s.logger.Info("Scheduled retrain skipped: %v", err)
	default:
		s.logger.Error("Scheduled retrain failed: %v", err)
	}
}

// LastRun reports when the scheduler last fired and the outcome
func (s *RetrainScheduler) LastRun() (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

// cronLogger adapts the leveled logger to cron.Logger
type cronLogger struct {
	logger *internal.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("%s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("%s: %v %v", msg, err, keysAndValues)
}
