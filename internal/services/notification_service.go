package services

import (
	"context"
	"fmt"
	"math"
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

// NotificationSpec is the input of CreateNotification.
type NotificationSpec struct {
	Recipient      primitive.ObjectID      `json:"recipient"`
	Sender         *primitive.ObjectID     `json:"sender,omitempty"`
	Type           models.NotificationType `json:"type"`
	Title          string                  `json:"title" validate:"required,max=200"`
	Message        string                  `json:"message" validate:"required,max=1000"`
	RelatedTask    *primitive.ObjectID     `json:"relatedTask,omitempty"`
	RelatedMeeting *primitive.ObjectID     `json:"relatedMeeting,omitempty"`
	ActionURL      string                  `json:"actionUrl,omitempty"`
	ActionText     string                  `json:"actionText,omitempty"`
	Priority       models.Priority         `json:"priority,omitempty"`
	Metadata       map[string]interface{}  `json:"metadata,omitempty"`
	// ExpiresAt overrides the default TTL when it lies in the future.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// NotificationService persists notifications and pushes them to connected recipients.
// The stored record is the source of truth; the push is at most once.
type NotificationService struct {
	repo     NotificationStore
	hub      realtime.Broadcaster
	announce announcer
	now      func() time.Time
}

func NewNotificationService(repo NotificationStore, hub realtime.Broadcaster, publisher events.Publisher) *NotificationService {
	return &NotificationService{
		repo:     repo,
		hub:      hub,
		announce: newAnnouncer(hub, publisher),
		now:      time.Now,
	}
}

func (s *NotificationService) validate(spec *NotificationSpec) error {
	spec.Title = strings.TrimSpace(spec.Title)
	spec.Message = strings.TrimSpace(spec.Message)

	err := validation.Struct("invalid notification", spec)
	vErr, _ := err.(*apperrors.ValidationError)
	if err != nil && vErr == nil {
		return err
	}
	fail := func(field, msg string) {
		if vErr == nil {
			vErr = apperrors.NewValidationError("invalid notification")
		}
		vErr.WithField(field, msg)
	}

	if spec.Recipient.IsZero() {
		fail("recipient", "is required")
	}
	if !spec.Type.Valid() {
		fail("type", fmt.Sprintf("unknown notification type %q", spec.Type))
	}
	switch spec.Priority {
	case "":
		spec.Priority = models.PriorityMedium
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityUrgent:
	default:
		fail("priority", "must be one of: low medium high urgent")
	}

	if vErr != nil {
		return vErr
	}
	return nil
}

// CreateNotification validates and stores one notification, then pushes it to the
// recipient's room. A failed push is not reported.
func (s *NotificationService) CreateNotification(ctx context.Context, spec NotificationSpec) (*models.Notification, error) {
	if err := s.validate(&spec); err != nil {
		return nil, err
	}

	now := s.now()
	notif := &models.Notification{
		Recipient:      spec.Recipient,
		Sender:         spec.Sender,
		Type:           spec.Type,
		Title:          spec.Title,
		Message:        spec.Message,
		RelatedTask:    spec.RelatedTask,
		RelatedMeeting: spec.RelatedMeeting,
		ActionURL:      spec.ActionURL,
		ActionText:     spec.ActionText,
		Metadata:       spec.Metadata,
		Priority:       spec.Priority,
		CreatedAt:      now,
		ExpiresAt:      now.Add(models.NotificationTTL),
	}
	if spec.ExpiresAt != nil && spec.ExpiresAt.After(now) {
		notif.ExpiresAt = *spec.ExpiresAt
	}
	if err := s.repo.Create(ctx, notif); err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"notification_id": notif.ID.Hex(),
		"recipient":       notif.Recipient.Hex(),
		"type":            notif.Type,
	}).Debug("Notification created")

	if s.hub != nil {
		s.hub.EmitToUser(notif.Recipient.Hex(), "notification", notif.Push())
	}
	s.announce.publish("notification.created", notif.Recipient.Hex(), notif.Push())
	return notif, nil
}

// SendBulk creates spec for every recipient in order. Nothing is rolled back on
// failure; the created set and the first error are returned.
func (s *NotificationService) SendBulk(ctx context.Context, spec NotificationSpec, recipients []primitive.ObjectID) ([]models.Notification, error) {
	created := make([]models.Notification, 0, len(recipients))
	var firstErr error
	for _, recipient := range recipients {
		spec.Recipient = recipient
		notif, err := s.CreateNotification(ctx, spec)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"recipient": recipient.Hex(), "error": err}).Error("Bulk notification failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		created = append(created, *notif)
	}
	return created, firstErr
}

type taskTemplate struct {
	title    string
	message  string
	priority models.Priority
}

var taskTemplates = map[models.NotificationType]taskTemplate{
	models.NotificationTaskAssigned:     {"New Task Assigned", "You have been assigned to: %s", models.PriorityMedium},
	models.NotificationTaskUpdated:      {"Task Updated", "Task %q has been updated", models.PriorityLow},
	models.NotificationTaskCompleted:    {"Task Completed", "Task %q has been completed", models.PriorityMedium},
	models.NotificationFeedbackReceived: {"New Feedback", "New feedback received on task %q", models.PriorityMedium},
}

func taskActionURL(task *models.Task) string {
	return "/tasks/" + task.ID.Hex()
}

// NotifyTask sends one of the task notification kinds about task to recipient.
func (s *NotificationService) NotifyTask(ctx context.Context, kind models.NotificationType, task *models.Task, recipient primitive.ObjectID, sender *primitive.ObjectID, meta map[string]interface{}) (*models.Notification, error) {
	tmpl, ok := taskTemplates[kind]
	if !ok {
		return nil, apperrors.NewValidationError("unknown task notification type %q", kind)
	}
	return s.CreateNotification(ctx, NotificationSpec{
		Recipient:   recipient,
		Sender:      sender,
		Type:        kind,
		Title:       tmpl.title,
		Message:     fmt.Sprintf(tmpl.message, task.Title),
		RelatedTask: &task.ID,
		ActionURL:   taskActionURL(task),
		ActionText:  "View Task",
		Priority:    tmpl.priority,
		Metadata:    meta,
	})
}

// MeetingCancelled is the builder kind for cancellations. It is stored as a system alert.
const MeetingCancelled = "meeting-cancelled"

// NotifyMeeting sends a meeting invite, reminder or cancellation to recipient.
func (s *NotificationService) NotifyMeeting(ctx context.Context, kind string, meeting *models.Meeting, recipient primitive.ObjectID, sender *primitive.ObjectID, meta map[string]interface{}) (*models.Notification, error) {
	spec := NotificationSpec{
		Recipient:      recipient,
		Sender:         sender,
		RelatedMeeting: &meeting.ID,
		ActionURL:      "/meetings/" + meeting.ID.Hex(),
		ActionText:     "View Meeting",
		Metadata:       meta,
	}
	switch kind {
	case string(models.NotificationMeetingInvite):
		spec.Type = models.NotificationMeetingInvite
		spec.Title = "Meeting Invitation"
		spec.Message = "You have been invited to: " + meeting.Title
		spec.Priority = models.PriorityHigh
	case string(models.NotificationMeetingReminder):
		spec.Type = models.NotificationMeetingReminder
		spec.Title = "Meeting Reminder"
		spec.Message = reminderMessage(meeting.Title, minutesUntil(meeting, meta, s.now()))
		spec.Priority = models.PriorityHigh
	case MeetingCancelled:
		spec.Type = models.NotificationSystemAlert
		spec.Title = "Meeting Cancelled"
		spec.Message = fmt.Sprintf("Meeting %q has been cancelled", meeting.Title)
		spec.Priority = models.PriorityMedium
	default:
		return nil, apperrors.NewValidationError("unknown meeting notification type %q", kind)
	}
	return s.CreateNotification(ctx, spec)
}

// MetaMinutesUntil is the reminder metadata key carrying the minutes left at the tick
// that produced it.
const MetaMinutesUntil = "minutesUntil"

func minutesUntil(meeting *models.Meeting, meta map[string]interface{}, now time.Time) int {
	if m, ok := meta[MetaMinutesUntil].(int); ok {
		return m
	}
	return int(math.Round(meeting.StartTime.Sub(now).Minutes()))
}

func reminderMessage(title string, minutes int) string {
	switch {
	case minutes <= 0:
		return fmt.Sprintf("Meeting %q is starting now", title)
	case minutes == 1:
		return fmt.Sprintf("Meeting %q starts in 1 minute", title)
	default:
		return fmt.Sprintf("Meeting %q starts in %d minutes", title, minutes)
	}
}

// GitHub notification actions.
const (
	GitHubIssueImported = "issue-imported"
	GitHubIssueSynced   = "issue-synced"
	GitHubIssueClosed   = "issue-closed"
)

// GitHubIssueRef identifies the issue a GitHub notification is about.
type GitHubIssueRef struct {
	Title      string
	URL        string
	Number     int
	Repository string
	TaskID     *primitive.ObjectID
}

func (s *NotificationService) NotifyGitHub(ctx context.Context, action string, issue GitHubIssueRef, recipient primitive.ObjectID) (*models.Notification, error) {
	spec := NotificationSpec{
		Recipient:   recipient,
		Type:        models.NotificationGitHubIssueSynced,
		RelatedTask: issue.TaskID,
		ActionURL:   issue.URL,
		ActionText:  "View on GitHub",
		Metadata: map[string]interface{}{
			"action":     action,
			"number":     issue.Number,
			"repository": issue.Repository,
		},
	}
	switch action {
	case GitHubIssueImported:
		spec.Title = "GitHub Issue Imported"
		spec.Message = fmt.Sprintf("Issue %q has been imported from GitHub", issue.Title)
		spec.Priority = models.PriorityMedium
	case GitHubIssueSynced:
		spec.Title = "GitHub Issue Synced"
		spec.Message = fmt.Sprintf("Issue %q has been synced with GitHub", issue.Title)
		spec.Priority = models.PriorityLow
	case GitHubIssueClosed:
		spec.Title = "GitHub Issue Closed"
		spec.Message = fmt.Sprintf("Issue %q has been closed on GitHub", issue.Title)
		spec.Priority = models.PriorityMedium
	default:
		return nil, apperrors.NewValidationError("unknown GitHub action %q", action)
	}
	return s.CreateNotification(ctx, spec)
}

func (s *NotificationService) NotifySystem(ctx context.Context, title, message string, recipient primitive.ObjectID, priority models.Priority) (*models.Notification, error) {
	if priority == "" {
		priority = models.PriorityLow
	}
	return s.CreateNotification(ctx, NotificationSpec{
		Recipient: recipient,
		Type:      models.NotificationSystemAlert,
		Title:     title,
		Message:   message,
		Priority:  priority,
	})
}

// WeeklyReportSpec is the template shared by every weekly-report-ready notification.
func WeeklyReportSpec(downloadURL, filename string) NotificationSpec {
	return NotificationSpec{
		Type:       models.NotificationWeeklyReportReady,
		Title:      "Weekly Report Ready",
		Message:    "Your weekly report is ready for download",
		ActionURL:  downloadURL,
		ActionText: "Download Report",
		Priority:   models.PriorityMedium,
		Metadata:   map[string]interface{}{"filename": filename},
	}
}

func (s *NotificationService) NotifyWeeklyReport(ctx context.Context, recipient primitive.ObjectID, downloadURL, filename string) (*models.Notification, error) {
	spec := WeeklyReportSpec(downloadURL, filename)
	spec.Recipient = recipient
	return s.CreateNotification(ctx, spec)
}

// NotifyTaskMoved tells the creator and assignee, except the mover, that task changed column.
func (s *NotificationService) NotifyTaskMoved(ctx context.Context, task *models.Task, from, to models.TaskStatus, mover primitive.ObjectID, moverName string) ([]models.Notification, error) {
	if moverName == "" {
		moverName = "Someone"
	}
	spec := NotificationSpec{
		Sender:      &mover,
		Type:        models.NotificationTaskUpdated,
		Title:       "Task Moved",
		Message:     fmt.Sprintf("%s moved %q from %s to %s", moverName, task.Title, from, to),
		RelatedTask: &task.ID,
		ActionURL:   taskActionURL(task),
		ActionText:  "View Task",
		Priority:    models.PriorityLow,
		Metadata:    map[string]interface{}{"fromStatus": string(from), "toStatus": string(to)},
	}
	return s.SendBulk(ctx, spec, taskWatchers(task, mover))
}

// taskWatchers returns the creator and assignee of task, without except and without duplicates.
func taskWatchers(task *models.Task, except primitive.ObjectID) []primitive.ObjectID {
	var out []primitive.ObjectID
	if task.Creator != except {
		out = append(out, task.Creator)
	}
	if task.Assignee != nil && *task.Assignee != except && *task.Assignee != task.Creator {
		out = append(out, *task.Assignee)
	}
	return out
}

// CleanupExpired deletes notifications that expired before now.
func (s *NotificationService) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeleteExpired(ctx, now)
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

// NotificationPage is one page of a user's notifications.
type NotificationPage struct {
	Notifications []models.Notification `json:"notifications"`
	Total         int64                 `json:"total"`
	Page          int                   `json:"page"`
	Limit         int                   `json:"limit"`
	UnreadCount   int64                 `json:"unreadCount"`
}

// List returns the user's unexpired notifications, newest first.
func (s *NotificationService) List(ctx context.Context, user primitive.ObjectID, filter models.NotificationFilter) (*NotificationPage, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, apperrors.NewValidationError("invalid filter").WithField("type", "unknown notification type")
	}
	filter.Page, filter.Limit = normalizePage(filter.Page, filter.Limit)

	now := s.now()
	items, total, err := s.repo.List(ctx, user, filter, now)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnread(ctx, user, now)
	if err != nil {
		return nil, err
	}
	return &NotificationPage{
		Notifications: items,
		Total:         total,
		Page:          filter.Page,
		Limit:         filter.Limit,
		UnreadCount:   unread,
	}, nil
}

// Get returns a notification owned by user.
func (s *NotificationService) Get(ctx context.Context, id, user primitive.ObjectID) (*models.Notification, error) {
	notif, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if notif.Recipient != user {
		return nil, apperrors.NewForbiddenError("not authorized to access this notification")
	}
	return notif, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id, user primitive.ObjectID) (*models.Notification, error) {
	return s.setRead(ctx, id, user, true)
}

func (s *NotificationService) MarkUnread(ctx context.Context, id, user primitive.ObjectID) (*models.Notification, error) {
	return s.setRead(ctx, id, user, false)
}

func (s *NotificationService) setRead(ctx context.Context, id, user primitive.ObjectID, read bool) (*models.Notification, error) {
	if _, err := s.Get(ctx, id, user); err != nil {
		return nil, err
	}
	if err := s.repo.SetRead(ctx, id, read, s.now()); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, user primitive.ObjectID) (int64, error) {
	return s.repo.MarkAllRead(ctx, user, s.now())
}

func (s *NotificationService) UnreadCount(ctx context.Context, user primitive.ObjectID) (int64, error) {
	return s.repo.CountUnread(ctx, user, s.now())
}

func (s *NotificationService) Delete(ctx context.Context, id, user primitive.ObjectID) error {
	if _, err := s.Get(ctx, id, user); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// ClearRead deletes every read notification of user.
func (s *NotificationService) ClearRead(ctx context.Context, user primitive.ObjectID) (int64, error) {
	return s.repo.DeleteRead(ctx, user)
}

func (s *NotificationService) Types(ctx context.Context, user primitive.ObjectID) ([]string, error) {
	return s.repo.DistinctTypes(ctx, user)
}

func (s *NotificationService) Stats(ctx context.Context, user primitive.ObjectID) (*models.NotificationStats, error) {
	return s.repo.Stats(ctx, user, s.now())
}
