package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is a unit of scheduled work.
type JobFunc func(ctx context.Context) error

// JobID identifies a cron entry.
type JobID = cron.EntryID

// OverlapPolicy decides what happens when a job fires while its previous run
// is still going.
type OverlapPolicy int

const (
	// AllowOverlap runs every firing.
	AllowOverlap OverlapPolicy = iota
	// SkipIfRunning drops a firing while the job runs.
	SkipIfRunning
	// DelayIfRunning queues a firing until the job finishes.
	DelayIfRunning
)

func (p OverlapPolicy) String() string {
	switch p {
	case SkipIfRunning:
		return "skip"
	case DelayIfRunning:
		return "delay"
	default:
		return "allow"
	}
}

// JobOptions configures one job.
type JobOptions struct {
	Name          string
	Timeout       time.Duration
	OverlapPolicy OverlapPolicy
}

// JobHooks observe job runs.
type JobHooks struct {
	OnJobStart  func(name string)
	OnJobFinish func(name string, duration time.Duration, err error)
}

// Config configures New.
type Config struct {
	Logger   *slog.Logger
	JobHooks JobHooks
}

// cronLogger routes cron's own log lines into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	a := append([]slog.Attr{slog.Any("error", err)}, attrs(keysAndValues)...)
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, a...)
}

func attrs(keysAndValues []any) []slog.Attr {
	out := make([]slog.Attr, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		out = append(out, slog.Any(key, keysAndValues[i+1]))
	}
	return out
}

// Scheduler owns a cron runner and the context its jobs run under.
type Scheduler struct {
	cron   *cron.Cron
	clog   cronLogger
	logger *slog.Logger
	hooks  JobHooks

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a scheduler whose jobs run under a background context.
func New(cfg Config) *Scheduler {
	return NewWithContext(context.Background(), cfg)
}

// NewWithContext creates a scheduler stopped when parent is canceled.
// Schedules take an optional leading seconds field.
func NewWithContext(parent context.Context, cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	clog := cronLogger{logger: logger}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
		cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser), cron.WithLogger(clog)),
		clog:   clog,
		logger: logger,
		hooks:  cfg.JobHooks,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddCronJob adds job with default options.
func (s *Scheduler) AddCronJob(schedule string, job JobFunc) (JobID, error) {
	return s.AddCronJobWithOptions(schedule, job, JobOptions{})
}

// AddCronJobWithOptions adds job on schedule, e.g. "0 */30 * * * *",
// "@hourly" or "@every 5m".
func (s *Scheduler) AddCronJobWithOptions(schedule string, job JobFunc, opts JobOptions) (JobID, error) {
	if opts.Name == "" {
		opts.Name = "unnamed"
	}

	id, err := s.cron.AddJob(schedule, s.wrap(job, opts))
	if err != nil {
		return 0, fmt.Errorf("failed to add job %s with schedule %q: %w", opts.Name, schedule, err)
	}

	s.logger.Info("job added", "name", opts.Name, "schedule", schedule,
		"overlap", opts.OverlapPolicy.String(), "id", id)
	return id, nil
}

// wrap turns job into a cron.Job honoring the overlap policy of opts.
func (s *Scheduler) wrap(job JobFunc, opts JobOptions) cron.Job {
	var chain cron.Chain
	switch opts.OverlapPolicy {
	case SkipIfRunning:
		chain = cron.NewChain(cron.SkipIfStillRunning(s.clog))
	case DelayIfRunning:
		chain = cron.NewChain(cron.DelayIfStillRunning(s.clog))
	default:
		chain = cron.NewChain()
	}
	return chain.Then(cron.FuncJob(func() {
		s.run(job, opts)
	}))
}

// RemoveJob removes a job. Runs in progress finish.
func (s *Scheduler) RemoveJob(id JobID) {
	s.cron.Remove(id)
	s.logger.Info("job removed", "id", id)
}

// Start begins firing jobs. It is safe to call more than once.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.cron.Start()
		s.logger.Info("scheduler started")
		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	s.stopOnce.Do(s.stop)
}

// StopContext is Stop bounded by ctx. The scheduler still stops when ctx
// expires first; the error reports the missed deadline.
func (s *Scheduler) StopContext(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stopOnce.Do(s.stop)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop deadline exceeded")
		<-done
		return ctx.Err()
	}
}

func (s *Scheduler) stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the scheduler has not been stopped.
func (s *Scheduler) IsRunning() bool {
	return s.ctx.Err() == nil
}

func (s *Scheduler) run(job JobFunc, opts JobOptions) {
	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(opts.Name)
	}

	ctx := s.ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.call(ctx, job)
	duration := time.Since(start)

	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(opts.Name, duration, err)
	}
	if err != nil {
		s.logger.Error("job failed", "name", opts.Name, "error", err, "duration", duration)
		return
	}
	s.logger.Debug("job finished", "name", opts.Name, "duration", duration)
}

// call runs job and turns a panic into an error.
func (s *Scheduler) call(ctx context.Context, job JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job(ctx)
}
