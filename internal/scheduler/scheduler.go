// Package scheduler re-runs the ETL on a cron schedule.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs a Job on a six-field (seconds first) cron spec.
// A tick that fires while the previous run is still going is skipped.
type Scheduler struct {
	Cron   *cron.Cron
	job    Job
	ctx    context.Context
	logger *zap.Logger
}

// NewScheduler creates a scheduler whose runs inherit ctx.
func NewScheduler(ctx context.Context, job Job, logger *zap.Logger) *Scheduler {
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		job:    job,
		ctx:    ctx,
		logger: logger,
	}
}

// Register adds the job under spec.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.RunNow); err != nil {
		return fmt.Errorf("register run task %q: %w", spec, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler started")
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunNow executes the job immediately (for RunOnStart and cron ticks).
func (s *Scheduler) RunNow() {
	if err := s.ctx.Err(); err != nil {
		return
	}
	s.logger.Info("running scheduled job")
	if err := s.job(s.ctx); err != nil {
		s.logger.Error("scheduled job failed", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
