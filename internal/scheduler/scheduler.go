// Package scheduler wraps robfig/cron for the background jobs that drive the
// settlement engine: the recurring settlement batch and the nightly plan
// auto-close sweep.
package scheduler

import (
	"github.com/robfig/cron/v3"

	"moara/internal/logger"
)

// Job represents a scheduled job.
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs.
type Scheduler struct {
	cron *cron.Cron
}

// New creates a new scheduler. Cron expressions include a seconds field.
func New() *Scheduler {
	return &Scheduler{cron: cron.New(cron.WithSeconds())}
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Get().Info("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Get().Info("Scheduler stopped")
}

// AddJob registers a job with a cron schedule.
// Schedule examples:
//   - "0 */5 * * * *" - every 5 minutes
//   - "0 0 4 * * *"   - 4 AM daily
//   - "@every 30s"    - every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		log := logger.Get()
		log.Debugw("running job", "job", job.Name())

		if err := job.Run(); err != nil {
			log.Errorw("job failed", "job", job.Name(), "error", err.Error())
			return
		}
		log.Debugw("job completed", "job", job.Name())
	})
	if err != nil {
		return err
	}

	logger.Get().Infow("job registered", "job", job.Name(), "schedule", schedule)
	return nil
}
