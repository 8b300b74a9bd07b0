package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/synergysphere/server/internal/models"
	"github.com/synergysphere/server/internal/services"
	"github.com/synergysphere/server/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OverdueFinder is the part of the task store the overdue sweep reads.
type OverdueFinder interface {
	FindOverdue(ctx context.Context, now time.Time) ([]models.Task, error)
}

// Notifier is implemented by *services.NotificationService.
type Notifier interface {
	CreateNotification(ctx context.Context, spec services.NotificationSpec) (*models.Notification, error)
}

// OverdueTaskJob warns the assignee and creator of every open task past its due date.
type OverdueTaskJob struct {
	tasks         OverdueFinder
	notifications Notifier
}

func NewOverdueTaskJob(tasks OverdueFinder, notifications Notifier) *OverdueTaskJob {
	return &OverdueTaskJob{tasks: tasks, notifications: notifications}
}

func (j *OverdueTaskJob) Name() string { return "overdue-tasks" }

func (j *OverdueTaskJob) Run(ctx context.Context, now time.Time) error {
	overdue, err := j.tasks.FindOverdue(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to fetch overdue tasks: %w", err)
	}

	sent := 0
	for i := range overdue {
		task := &overdue[i]
		for _, recipient := range overdueRecipients(task) {
			_, err := j.notifications.CreateNotification(ctx, services.NotificationSpec{
				Recipient:   recipient,
				Type:        models.NotificationTaskUpdated,
				Title:       "Task Overdue",
				Message:     fmt.Sprintf("Task %q is overdue", task.Title),
				RelatedTask: &task.ID,
				ActionURL:   "/tasks/" + task.ID.Hex(),
				ActionText:  "View Task",
				Priority:    models.PriorityHigh,
				Metadata: map[string]interface{}{
					"reason":  "overdue",
					"dueDate": task.DueDate,
				},
			})
			if err != nil {
				logger.Log.WithFields(logrus.Fields{"task_id": task.ID.Hex(), "error": err}).Warn("Overdue notification failed")
				continue
			}
			sent++
		}
	}

	logger.Log.WithFields(logrus.Fields{"tasks": len(overdue), "notifications": sent}).Info("Overdue task scan completed")
	return nil
}

// overdueRecipients is the assignee plus the creator when they differ.
// Unassigned tasks notify nobody.
func overdueRecipients(task *models.Task) []primitive.ObjectID {
	if task.Assignee == nil {
		return nil
	}
	if *task.Assignee == task.Creator {
		return []primitive.ObjectID{task.Creator}
	}
	return []primitive.ObjectID{*task.Assignee, task.Creator}
}
