package cron

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
	"github.com/angelmondragon/coachcredits-backend/pkg/metrics"
)

const defaultInterval = 6 * time.Hour

// Job is one maintenance task run during a sweep.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger *logger.Logger
	Locker Locker
	// Jobs run in order on every sweep. Nil entries are dropped.
	Jobs     []Job
	Metrics  *metrics.JobMetrics
	Interval time.Duration
}

// Service sweeps its jobs once per interval. A sweep only happens on the
// replica that wins the lock.
type Service struct {
	logg     *logger.Logger
	locker   Locker
	jobs     []Job
	metrics  *metrics.JobMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("cron: logger is required")
	case params.Locker == nil:
		return nil, errors.New("cron: locker is required")
	}
	svc := &Service{
		logg:     params.Logger,
		locker:   params.Locker,
		jobs:     slices.DeleteFunc(slices.Clone(params.Jobs), func(j Job) bool { return j == nil }),
		metrics:  params.Metrics,
		interval: params.Interval,
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	return svc, nil
}

// JobNames lists the scheduled jobs in run order.
func (s *Service) JobNames() []string {
	names := make([]string, 0, len(s.jobs))
	for _, job := range s.jobs {
		names = append(names, job.Name())
	}
	return names
}

// Run sweeps at once and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.Sweep(ctx); err != nil {
			s.logg.Error(ctx, "cron.sweep_failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep runs each job once while holding the lock. Job failures are logged and
// counted; only lock errors are returned.
func (s *Service) Sweep(ctx context.Context) error {
	unlock, ok, err := s.locker.TryLock(ctx)
	if err != nil {
		return fmt.Errorf("cron: take sweep lock: %w", err)
	}
	if !ok {
		s.logg.Info(ctx, "cron.sweep_skipped")
		return nil
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cron.unlock_failed")
		}
	}()

	for _, job := range s.jobs {
		s.runJob(ctx, job)
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	started := time.Now()
	err := job.Run(ctx)
	took := time.Since(started)
	s.metrics.ObserveRun(job.Name(), took, err)

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron.job_failed", err)
		return
	}
	s.logg.Info(ctx, "cron.job_done")
}
