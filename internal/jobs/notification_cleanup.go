package jobs

import (
	"context"
	"time"

	"github.com/synergysphere/server/pkg/logger"
)

// ExpiredCleaner is implemented by *services.NotificationService.
type ExpiredCleaner interface {
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

type NotificationCleanupJob struct {
	notifications ExpiredCleaner
}

func NewNotificationCleanupJob(notifications ExpiredCleaner) *NotificationCleanupJob {
	return &NotificationCleanupJob{notifications: notifications}
}

func (j *NotificationCleanupJob) Name() string { return "notification-cleanup" }

func (j *NotificationCleanupJob) Run(ctx context.Context, now time.Time) error {
	deleted, err := j.notifications.CleanupExpired(ctx, now)
	if err != nil {
		return err
	}
	logger.Log.WithField("deleted", deleted).Info("Cleaned up expired notifications")
	return nil
}
