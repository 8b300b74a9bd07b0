// Package scheduler runs the background jobs on cron schedules, at most once per window.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/synergysphere/server/internal/jobs"
	"github.com/synergysphere/server/pkg/logger"
)

const DefaultTimeout = 5 * time.Minute

// Runner owns the cron registry. Ticks run on cron's goroutines.
type Runner struct {
	cron    *cron.Cron
	guard   Guard
	loc     *time.Location
	timeout time.Duration
	now     func() time.Time
}

// NewRunner creates a runner evaluating schedules in loc. A nil guard disables
// the once-per-window check.
func NewRunner(guard Guard, loc *time.Location) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{
		cron:    cron.New(cron.WithLocation(loc)),
		guard:   guard,
		loc:     loc,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
}

// Register adds job under a standard five-field cron spec.
func (r *Runner) Register(spec string, job jobs.Job, window Window) error {
	_, err := r.cron.AddFunc(spec, func() {
		r.RunJob(context.Background(), job, window)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", job.Name(), err)
	}
	logger.Log.WithFields(logrus.Fields{"job": job.Name(), "schedule": spec}).Info("Job scheduled")
	return nil
}

// RunJob runs one tick of job. It reports whether the job ran; a tick whose window
// is already claimed is skipped. Failures are logged and never retried.
func (r *Runner) RunJob(ctx context.Context, job jobs.Job, window Window) (ran bool, err error) {
	now := r.now().In(r.loc)
	key := window.Key(job.Name(), now)
	log := logger.Log.WithFields(logrus.Fields{"job": job.Name(), "window": key})

	if r.guard != nil {
		acquired, gErr := r.guard.Acquire(ctx, key, window.TTL)
		switch {
		case gErr != nil:
			// fail open: a missed run is worse than a duplicate one
			log.WithError(gErr).Warn("Job guard unavailable, running unguarded")
		case !acquired:
			log.Debug("Job window already claimed, skipping")
			return false, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), p)
			log.WithField("panic", p).Error("Job panicked")
		}
	}()

	ran = true
	start := time.Now()
	if err = job.Run(ctx, now); err != nil {
		log.WithError(err).Error("Job failed")
		return true, err
	}
	log.WithField("duration", time.Since(start).String()).Info("Job completed")
	return true, nil
}

func (r *Runner) Start() {
	r.cron.Start()
	logger.Log.WithField("timezone", r.loc.String()).Info("Scheduler started")
}

// Stop halts the cron loop and waits for running jobs until ctx is done.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		logger.Log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs groups the background jobs registered by RegisterDefaults.
type Jobs struct {
	WeeklyReport        jobs.Job
	MeetingReminders    jobs.Job
	OverdueTasks        jobs.Job
	NotificationCleanup jobs.Job
}

// RegisterDefaults installs the standard schedule. Nil jobs are left out.
func (r *Runner) RegisterDefaults(j Jobs) error {
	entries := []struct {
		spec   string
		job    jobs.Job
		window Window
	}{
		{"0 17 * * 5", j.WeeklyReport, Weekly},
		{"*/5 * * * *", j.MeetingReminders, FiveMinutes},
		{"0 * * * *", j.OverdueTasks, Hourly},
		{"0 2 * * *", j.NotificationCleanup, Daily},
	}
	for _, e := range entries {
		if e.job == nil {
			continue
		}
		if err := r.Register(e.spec, e.job, e.window); err != nil {
			return err
		}
	}
	return nil
}
