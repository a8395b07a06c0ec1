// Package scheduler runs periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a named unit of periodic work.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type durationRecorder interface {
	JobDuration(job string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) JobDuration(string, time.Duration) {}

// Scheduler triggers jobs independently. A job never overlaps itself, different jobs may
// overlap, and a panicking job is logged without stopping the others.
type Scheduler struct {
	cron *cron.Cron
	rec  durationRecorder
	l    *zap.Logger
}

// New creates a stopped Scheduler. rec may be nil.
func New(rec durationRecorder, l *zap.Logger) *Scheduler {
	if rec == nil {
		rec = nopRecorder{}
	}
	logger := cronLogger{l: l.Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return &Scheduler{cron: c, rec: rec, l: l}
}

// Add registers job. An empty spec disables the job.
func (s *Scheduler) Add(job Job) error {
	if job.Spec == "" {
		s.l.Info("job disabled", zap.String("job", job.Name))
		return nil
	}
	if job.Run == nil {
		return errors.Errorf("job %s has no run function", job.Name)
	}

	if _, err := s.cron.AddFunc(job.Spec, func() { s.run(job) }); err != nil {
		return errors.Wrapf(err, "schedule job %s (%q)", job.Name, job.Spec)
	}
	s.l.Info("job scheduled", zap.String("job", job.Name), zap.String("spec", job.Spec))

	return nil
}

func (s *Scheduler) run(job Job) {
	start := time.Now()
	err := job.Run(context.Background())
	elapsed := time.Since(start)
	s.rec.JobDuration(job.Name, elapsed)

	if err != nil {
		s.l.Error("job failed", zap.String("job", job.Name), zap.Duration("elapsed", elapsed), zap.Error(err))
		return
	}
	s.l.Debug("job finished", zap.String("job", job.Name), zap.Duration("elapsed", elapsed))
}

// Start begins triggering jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops triggering jobs and waits for running ones until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.l.Warn("scheduler stopped with jobs still running")
	}
}

// cronLogger adapts zap to the cron logger interface.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
