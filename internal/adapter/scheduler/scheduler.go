// Package scheduler runs the batch jobs on cron schedules evaluated in UTC.
// A job never overlaps itself: a fire that arrives while the previous run of
// the same job is still going is skipped and counted.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/V4T54L/marketplace-pulse/internal/adapter/metrics"
	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

// Job is a named unit of scheduled work.
type Job struct {
	Name string
	Spec string // five-field cron expression or descriptor such as @hourly
	Run  func(ctx context.Context) error
}

type entry struct {
	job     Job
	running atomic.Bool
}

type Scheduler struct {
	cron    *cron.Cron
	parser  cron.Parser
	metrics *metrics.PipelineMetrics
	logger  *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*entry
	ctx  context.Context
}

func New(m *metrics.PipelineMetrics, logger *slog.Logger) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC), cron.WithParser(parser)),
		parser:  parser,
		metrics: m,
		logger:  logger.With("component", "scheduler"),
		jobs:    make(map[string]*entry),
		ctx:     context.Background(),
	}
}

// Register adds a job. It fails on an invalid expression or a duplicate name.
func (s *Scheduler) Register(job Job) error {
	schedule, err := s.parser.Parse(job.Spec)
	if err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", job.Name, job.Spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	s.jobs[job.Name] = &entry{job: job}

	name := job.Name
	s.cron.Schedule(schedule, cron.FuncJob(func() {
		// Errors are logged and counted by Trigger.
		_ = s.Trigger(s.context(), name)
	}))
	s.logger.Info("job registered", "job", name, "schedule", job.Spec)
	return nil
}

func (s *Scheduler) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// Trigger runs a job now, outside of its schedule. It returns
// domain.ErrJobRunning if the previous run has not finished.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}

	if !e.running.CompareAndSwap(false, true) {
		s.metrics.JobSkipsTotal.WithLabelValues(name).Inc()
		s.logger.Warn("previous run still in progress, skipping", "job", name)
		return domain.ErrJobRunning
	}
	defer e.running.Store(false)

	start := time.Now()
	err := e.job.Run(ctx)
	elapsed := time.Since(start)
	s.metrics.JobSeconds.WithLabelValues(name).Observe(elapsed.Seconds())

	if err != nil {
		s.metrics.JobRunsTotal.WithLabelValues(name, "error").Inc()
		s.logger.Error("job failed", "job", name, "duration", elapsed, "error", err)
		return err
	}
	s.metrics.JobRunsTotal.WithLabelValues(name, "success").Inc()
	s.logger.Info("job finished", "job", name, "duration", elapsed)
	return nil
}

// Start begins firing jobs. Runs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop prevents new fires. The returned context is done once running jobs return.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Serve implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.Start(ctx)
	for _, e := range s.cron.Entries() {
		s.logger.Debug("next run", "entry", e.ID, "at", e.Next)
	}
	<-ctx.Done()
	<-s.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) String() string { return "scheduler" }
