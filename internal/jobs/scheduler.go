/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package jobs

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Schedules holds the cron expressions of the scheduled jobs. An empty expression
// leaves the job unscheduled.
type Schedules struct {
	Retrain   string
	FraudScan string
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron      *cron.Cron
	jobs      *Jobs
	logger    *slog.Logger
	schedules Schedules
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, schedules Schedules) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	// SkipIfStillRunning keeps a slow retrain from overlapping the next run.
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:      c,
		jobs:      jobs,
		logger:    logger,
		schedules: schedules,
	}
}

// Start registers the jobs and starts the cron scheduler. It returns the number of jobs
// that were scheduled.
func (s *Scheduler) Start() int {
	scheduled := 0
	for _, job := range []struct {
		name     string
		schedule string
		run      func()
	}{
		{name: JobRetrainModels, schedule: s.schedules.Retrain, run: s.jobs.RetrainModels},
		{name: JobFraudScan, schedule: s.schedules.FraudScan, run: s.jobs.ScanRecentTransactions},
	} {
		if job.schedule == "" {
			s.logger.Info("job disabled", "job", job.name)
			continue
		}
		if _, err := s.cron.AddFunc(job.schedule, job.run); err != nil {
			s.logger.Error("failed to schedule job", "job", job.name, "schedule", job.schedule, "error", err)
			continue
		}
		s.logger.Info("scheduled job", "job", job.name, "schedule", job.schedule)
		scheduled++
	}

	s.cron.Start()
	return scheduled
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
