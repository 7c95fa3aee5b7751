package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
)

const (
	defaultNotificationRetention = 30 * 24 * time.Hour
	defaultOutboxRetention       = 7 * 24 * time.Hour
)

type purgeFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// retentionJob deletes rows older than a fixed age through a single purge call.
type retentionJob struct {
	name   string
	logg   *logger.Logger
	maxAge time.Duration
	purge  purgeFunc
	now    func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.maxAge)
	deleted, err := j.purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "retention purge complete")
	return nil
}

type readNotificationPurger interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewNotificationRetentionJob purges read notifications past maxAge.
func NewNotificationRetentionJob(logg *logger.Logger, repo readNotificationPurger, maxAge time.Duration) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return newRetentionJob("notification-retention", logg, maxAge, defaultNotificationRetention, repo.DeleteReadBefore)
}

type publishedOutboxPurger interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob purges outbox rows that were published more than maxAge ago.
func NewOutboxRetentionJob(logg *logger.Logger, repo publishedOutboxPurger, maxAge time.Duration) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return newRetentionJob("outbox-retention", logg, maxAge, defaultOutboxRetention, repo.DeletePublishedBefore)
}

func newRetentionJob(name string, logg *logger.Logger, maxAge, fallback time.Duration, purge purgeFunc) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if maxAge <= 0 {
		maxAge = fallback
	}
	return &retentionJob{name: name, logg: logg, maxAge: maxAge, purge: purge, now: time.Now}, nil
}
