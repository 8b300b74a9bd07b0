package services

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/events"
	"github.com/synergysphere/server/internal/models"
	"github.com/synergysphere/server/internal/realtime"
	"github.com/synergysphere/server/internal/validation"
	"github.com/synergysphere/server/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CreateTaskInput struct {
	Title          string              `json:"title" validate:"required,max=200"`
	Description    string              `json:"description" validate:"max=2000"`
	Status         models.TaskStatus   `json:"status" validate:"omitempty,oneof=todo in-progress done"`
	Priority       models.Priority     `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Assignee       *primitive.ObjectID `json:"assignee"`
	DueDate        *time.Time          `json:"dueDate"`
	Tags           []string            `json:"tags"`
	EstimatedHours float64             `json:"estimatedHours" validate:"gte=0"`
}

// UpdateTaskInput holds the fields to change; nil fields are left alone.
type UpdateTaskInput struct {
	Title          *string             `json:"title" validate:"omitempty,min=1,max=200"`
	Description    *string             `json:"description" validate:"omitempty,max=2000"`
	Status         *models.TaskStatus  `json:"status" validate:"omitempty,oneof=todo in-progress done"`
	Priority       *models.Priority    `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Assignee       *primitive.ObjectID `json:"assignee"`
	DueDate        *time.Time          `json:"dueDate"`
	Tags           []string            `json:"tags"`
	EstimatedHours *float64            `json:"estimatedHours" validate:"omitempty,gte=0"`
	ActualHours    *float64            `json:"actualHours" validate:"omitempty,gte=0"`
}

type FeedbackInput struct {
	Content string              `json:"content" validate:"required,max=1000"`
	Type    models.FeedbackType `json:"type" validate:"omitempty,oneof=comment progress blocker"`
}

type TaskPage struct {
	Tasks []models.Task `json:"tasks"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

type TaskService struct {
	repo          TaskStore
	users         UserStore
	notifications *NotificationService
	announce      announcer
	now           func() time.Time
}

func NewTaskService(repo TaskStore, users UserStore, notifications *NotificationService, hub realtime.Broadcaster, publisher events.Publisher) *TaskService {
	return &TaskService{
		repo:          repo,
		users:         users,
		notifications: notifications,
		announce:      newAnnouncer(hub, publisher),
		now:           time.Now,
	}
}

func (s *TaskService) Create(ctx context.Context, actor Actor, input CreateTaskInput) (*models.Task, error) {
	input.Title = strings.TrimSpace(input.Title)
	if err := validation.Struct("invalid task", input); err != nil {
		return nil, err
	}
	if input.Assignee != nil {
		if _, err := s.users.FindByID(ctx, *input.Assignee); err != nil {
			if apperrors.IsNotFound(err) {
				return nil, apperrors.NewValidationError("invalid task").WithField("assignee", "user does not exist")
			}
			return nil, err
		}
	}

	now := s.now()
	task := &models.Task{
		Title:          input.Title,
		Description:    input.Description,
		Status:         models.TaskTodo,
		Priority:       models.PriorityMedium,
		Assignee:       input.Assignee,
		Creator:        actor.ID,
		DueDate:        input.DueDate,
		Tags:           input.Tags,
		EstimatedHours: input.EstimatedHours,
	}
	if input.Priority != "" {
		task.Priority = input.Priority
	}
	if input.Status != "" {
		task.SetStatus(input.Status, now)
	}
	task.Log("created", actor.ID, "", now)

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, err
	}

	if task.Assignee != nil && *task.Assignee != actor.ID {
		s.notify(ctx, models.NotificationTaskAssigned, task, *task.Assignee, actor.ID)
	}
	s.announce.broadcast("task-created", task.ID.Hex(), task)
	return task, nil
}

func (s *TaskService) Get(ctx context.Context, id primitive.ObjectID) (*models.Task, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *TaskService) List(ctx context.Context, filter models.TaskFilter) (*TaskPage, error) {
	filter.Page, filter.Limit = normalizePage(filter.Page, filter.Limit)
	tasks, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &TaskPage{Tasks: tasks, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

func canEditTask(actor Actor, task *models.Task) bool {
	return actor.IsAdmin() || task.Creator == actor.ID || (task.Assignee != nil && *task.Assignee == actor.ID)
}

// Update applies input and sends the notifications the change calls for.
func (s *TaskService) Update(ctx context.Context, actor Actor, id primitive.ObjectID, input UpdateTaskInput) (*models.Task, error) {
	if err := validation.Struct("invalid task", input); err != nil {
		return nil, err
	}
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canEditTask(actor, task) {
		return nil, apperrors.NewForbiddenError("not authorized to update this task")
	}

	now := s.now()
	oldStatus := task.Status
	oldAssignee := task.Assignee
	var changes []string

	if input.Title != nil && strings.TrimSpace(*input.Title) != task.Title {
		task.Title = strings.TrimSpace(*input.Title)
		changes = append(changes, "title updated")
	}
	if input.Description != nil && *input.Description != task.Description {
		task.Description = *input.Description
		changes = append(changes, "description updated")
	}
	if input.Priority != nil && *input.Priority != task.Priority {
		task.Priority = *input.Priority
		changes = append(changes, "priority changed to "+string(task.Priority))
	}
	if input.Status != nil && *input.Status != task.Status {
		task.SetStatus(*input.Status, now)
		changes = append(changes, "status changed from "+string(oldStatus)+" to "+string(task.Status))
	}
	if input.Assignee != nil && (oldAssignee == nil || *oldAssignee != *input.Assignee) {
		if _, err := s.users.FindByID(ctx, *input.Assignee); err != nil {
			if apperrors.IsNotFound(err) {
				return nil, apperrors.NewValidationError("invalid task").WithField("assignee", "user does not exist")
			}
			return nil, err
		}
		assignee := *input.Assignee
		task.Assignee = &assignee
		changes = append(changes, "assignee updated")
	}
	if input.DueDate != nil {
		task.DueDate = input.DueDate
		changes = append(changes, "due date updated")
	}
	if input.Tags != nil {
		task.Tags = input.Tags
	}
	if input.EstimatedHours != nil {
		task.EstimatedHours = *input.EstimatedHours
	}
	if input.ActualHours != nil {
		task.ActualHours = *input.ActualHours
	}
	if len(changes) > 0 {
		task.Log("updated", actor.ID, strings.Join(changes, ", "), now)
	}

	if err := s.repo.Update(ctx, task); err != nil {
		return nil, err
	}

	if task.Status != oldStatus {
		if task.Status == models.TaskDone && task.Creator != actor.ID {
			s.notify(ctx, models.NotificationTaskCompleted, task, task.Creator, actor.ID)
		}
		if _, err := s.notifications.NotifyTaskMoved(ctx, task, oldStatus, task.Status, actor.ID, s.username(ctx, actor.ID)); err != nil {
			logger.Log.WithError(err).WithField("task_id", task.ID.Hex()).Warn("Task moved notification failed")
		}
		s.announce.broadcast("task-moved", task.ID.Hex(), map[string]interface{}{
			"taskId":     task.ID.Hex(),
			"fromStatus": oldStatus,
			"toStatus":   task.Status,
			"movedBy":    actor.ID.Hex(),
		})
	}
	if task.Assignee != nil && (oldAssignee == nil || *oldAssignee != *task.Assignee) && *task.Assignee != actor.ID {
		s.notify(ctx, models.NotificationTaskAssigned, task, *task.Assignee, actor.ID)
	}

	s.announce.broadcast("task-updated", task.ID.Hex(), task)
	return task, nil
}

// Delete removes the task. Only its creator or an admin may do this.
func (s *TaskService) Delete(ctx context.Context, actor Actor, id primitive.ObjectID) error {
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if task.Creator != actor.ID && !actor.IsAdmin() {
		return apperrors.NewForbiddenError("not authorized to delete this task")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.announce.broadcast("task-deleted", id.Hex(), map[string]string{"id": id.Hex()})
	return nil
}

func (s *TaskService) AddFeedback(ctx context.Context, actor Actor, id primitive.ObjectID, input FeedbackInput) (*models.Task, error) {
	input.Content = strings.TrimSpace(input.Content)
	if err := validation.Struct("invalid feedback", input); err != nil {
		return nil, err
	}
	if input.Type == "" {
		input.Type = models.FeedbackComment
	}

	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	fb := models.Feedback{User: actor.ID, Content: input.Content, Type: input.Type, CreatedAt: now}
	entry := task.Log("feedback", actor.ID, "feedback added: "+string(input.Type), now)
	if err := s.repo.AddFeedback(ctx, id, fb, entry); err != nil {
		return nil, err
	}
	task.Feedback = append(task.Feedback, fb)

	for _, recipient := range taskWatchers(task, actor.ID) {
		s.notify(ctx, models.NotificationFeedbackReceived, task, recipient, actor.ID)
	}
	s.announce.broadcast("task-updated", task.ID.Hex(), task)
	return task, nil
}

// notify sends a task notification after the task change is already stored,
// so a failure is logged rather than returned.
func (s *TaskService) notify(ctx context.Context, kind models.NotificationType, task *models.Task, recipient, sender primitive.ObjectID) {
	if _, err := s.notifications.NotifyTask(ctx, kind, task, recipient, &sender, nil); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"task_id":   task.ID.Hex(),
			"recipient": recipient.Hex(),
			"type":      kind,
			"error":     err,
		}).Warn("Task notification failed")
	}
}

func (s *TaskService) username(ctx context.Context, id primitive.ObjectID) string {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return ""
	}
	return user.Username
}
