// Package scheduler drives periodic refresh jobs, currently the forecast
// poll, on fixed intervals.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Job is a refreshable unit with its own cadence.
type Job interface {
	Name() string
	Interval() time.Duration
	Refresh(ctx context.Context) error
}

// Scheduler runs registered jobs on their intervals.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	jobs       []Job
	jobTimeout time.Duration
	logger     *slog.Logger
}

// New creates an empty scheduler. Jobs run on UTC wall time.
func New(jobTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler:  gocron.NewScheduler(time.UTC),
		jobTimeout: jobTimeout,
		logger:     logger,
	}
}

// Add registers a job to run every job.Interval().
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start schedules all registered jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.jobs) == 0 {
		s.logger.Info("no jobs registered, scheduler idle")
		return nil
	}

	for _, job := range s.jobs {
		_, err := s.scheduler.Every(job.Interval()).Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
			defer cancel()

			if err := job.Refresh(ctx); err != nil {
				s.logger.Error("scheduled refresh failed", "job", job.Name(), "error", err)
				return
			}
			s.logger.Debug("scheduled refresh completed", "job", job.Name())
		})
		if err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}
