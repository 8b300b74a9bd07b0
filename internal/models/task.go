package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in-progress"
	TaskDone       TaskStatus = "done"
)

type FeedbackType string

const (
	FeedbackComment  FeedbackType = "comment"
	FeedbackProgress FeedbackType = "progress"
	FeedbackBlocker  FeedbackType = "blocker"
)

type Feedback struct {
	User      primitive.ObjectID `bson:"user" json:"user"`
	Content   string             `bson:"content" json:"content"`
	Type      FeedbackType       `bson:"type" json:"type"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}

type ActivityEntry struct {
	Action    string             `bson:"action" json:"action"`
	User      primitive.ObjectID `bson:"user" json:"user"`
	Details   string             `bson:"details,omitempty" json:"details,omitempty"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

// Task is a unit of work. CompletedAt is set exactly while Status is done.
type Task struct {
	ID                primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Title             string              `bson:"title" json:"title"`
	Description       string              `bson:"description,omitempty" json:"description,omitempty"`
	Status            TaskStatus          `bson:"status" json:"status"`
	Priority          Priority            `bson:"priority" json:"priority"`
	Assignee          *primitive.ObjectID `bson:"assignee,omitempty" json:"assignee,omitempty"`
	Creator           primitive.ObjectID  `bson:"creator" json:"creator"`
	DueDate           *time.Time          `bson:"due_date,omitempty" json:"dueDate,omitempty"`
	CompletedAt       *time.Time          `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
	GitHubIssueID     *int64              `bson:"github_issue_id,omitempty" json:"githubIssueId,omitempty"`
	GitHubIssueNumber *int                `bson:"github_issue_number,omitempty" json:"githubIssueNumber,omitempty"`
	GitHubRepository  string              `bson:"github_repository,omitempty" json:"githubRepository,omitempty"`
	Tags              []string            `bson:"tags,omitempty" json:"tags,omitempty"`
	EstimatedHours    float64             `bson:"estimated_hours,omitempty" json:"estimatedHours,omitempty"`
	ActualHours       float64             `bson:"actual_hours,omitempty" json:"actualHours,omitempty"`
	Feedback          []Feedback          `bson:"feedback,omitempty" json:"feedback,omitempty"`
	ActivityLog       []ActivityEntry     `bson:"activity_log,omitempty" json:"activityLog,omitempty"`
	CreatedAt         time.Time           `bson:"created_at" json:"createdAt"`
	UpdatedAt         time.Time           `bson:"updated_at" json:"updatedAt"`
}

// SetStatus moves the task to status and keeps CompletedAt in step.
func (t *Task) SetStatus(status TaskStatus, now time.Time) {
	if status == TaskDone && t.CompletedAt == nil {
		completed := now
		t.CompletedAt = &completed
	}
	if status != TaskDone {
		t.CompletedAt = nil
	}
	t.Status = status
}

// Log appends an activity entry.
func (t *Task) Log(action string, user primitive.ObjectID, details string, now time.Time) ActivityEntry {
	entry := ActivityEntry{Action: action, User: user, Details: details, Timestamp: now}
	t.ActivityLog = append(t.ActivityLog, entry)
	return entry
}

// IsOverdue reports whether the due date has passed and the task is still open.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && t.Status != TaskDone
}

type TaskFilter struct {
	Status   TaskStatus
	Priority Priority
	Assignee *primitive.ObjectID
	Search   string
	Page     int
	Limit    int
}
