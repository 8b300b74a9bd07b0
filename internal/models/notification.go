package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationType string

const (
	NotificationTaskAssigned      NotificationType = "task-assigned"
	NotificationTaskUpdated       NotificationType = "task-updated"
	NotificationTaskCompleted     NotificationType = "task-completed"
	NotificationMeetingInvite     NotificationType = "meeting-invite"
	NotificationMeetingReminder   NotificationType = "meeting-reminder"
	NotificationGitHubIssueSynced NotificationType = "github-issue-synced"
	NotificationWeeklyReportReady NotificationType = "weekly-report-ready"
	NotificationFeedbackReceived  NotificationType = "feedback-received"
	NotificationSystemAlert       NotificationType = "system-alert"
)

// NotificationTypes lists every accepted notification kind.
var NotificationTypes = []NotificationType{
	NotificationTaskAssigned,
	NotificationTaskUpdated,
	NotificationTaskCompleted,
	NotificationMeetingInvite,
	NotificationMeetingReminder,
	NotificationGitHubIssueSynced,
	NotificationWeeklyReportReady,
	NotificationFeedbackReceived,
	NotificationSystemAlert,
}

func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

const (
	NotificationTitleMax   = 200
	NotificationMessageMax = 1000

	// NotificationTTL is how long a notification lives unless told otherwise.
	NotificationTTL = 30 * 24 * time.Hour
)

// Notification is a persisted, per-user message. Read and ReadAt always move together.
type Notification struct {
	ID             primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	Recipient      primitive.ObjectID     `bson:"recipient" json:"recipient"`
	Sender         *primitive.ObjectID    `bson:"sender,omitempty" json:"sender,omitempty"`
	Type           NotificationType       `bson:"type" json:"type"`
	Title          string                 `bson:"title" json:"title"`
	Message        string                 `bson:"message" json:"message"`
	RelatedTask    *primitive.ObjectID    `bson:"related_task,omitempty" json:"relatedTask,omitempty"`
	RelatedMeeting *primitive.ObjectID    `bson:"related_meeting,omitempty" json:"relatedMeeting,omitempty"`
	ActionURL      string                 `bson:"action_url,omitempty" json:"actionUrl,omitempty"`
	ActionText     string                 `bson:"action_text,omitempty" json:"actionText,omitempty"`
	Metadata       map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Read           bool                   `bson:"read" json:"read"`
	ReadAt         *time.Time             `bson:"read_at,omitempty" json:"readAt,omitempty"`
	EmailSent      bool                   `bson:"email_sent" json:"emailSent"`
	PushSent       bool                   `bson:"push_sent" json:"pushSent"`
	Priority       Priority               `bson:"priority" json:"priority"`
	ExpiresAt      time.Time              `bson:"expires_at" json:"expiresAt"`
	CreatedAt      time.Time              `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time              `bson:"updated_at" json:"updatedAt"`
}

// Expired reports whether the notification is past its expiry at now.
func (n *Notification) Expired(now time.Time) bool {
	return !n.ExpiresAt.IsZero() && !n.ExpiresAt.After(now)
}

// NotificationPush is the payload delivered on the "notification" socket event.
type NotificationPush struct {
	ID         string           `json:"id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	ActionURL  string           `json:"actionUrl,omitempty"`
	ActionText string           `json:"actionText,omitempty"`
	Priority   Priority         `json:"priority"`
	Timestamp  time.Time        `json:"timestamp"`
}

func (n *Notification) Push() NotificationPush {
	return NotificationPush{
		ID:         n.ID.Hex(),
		Type:       n.Type,
		Title:      n.Title,
		Message:    n.Message,
		ActionURL:  n.ActionURL,
		ActionText: n.ActionText,
		Priority:   n.Priority,
		Timestamp:  n.CreatedAt,
	}
}

// NotificationFilter narrows a recipient's notification list.
type NotificationFilter struct {
	Read  *bool
	Type  NotificationType
	Page  int
	Limit int
}

type NotificationStats struct {
	Total  int64            `json:"total"`
	Unread int64            `json:"unread"`
	Read   int64            `json:"read"`
	Recent int64            `json:"recent"`
	ByType map[string]int64 `json:"byType"`
}
