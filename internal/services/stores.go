package services

import (
	"context"
	"time"

	"github.com/synergysphere/server/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// The store interfaces are satisfied by the Mongo repositories and by memstore.

type NotificationStore interface {
	Create(ctx context.Context, notif *models.Notification) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Notification, error)
	List(ctx context.Context, recipient primitive.ObjectID, filter models.NotificationFilter, now time.Time) ([]models.Notification, int64, error)
	CountUnread(ctx context.Context, recipient primitive.ObjectID, now time.Time) (int64, error)
	SetRead(ctx context.Context, id primitive.ObjectID, read bool, at time.Time) error
	MarkAllRead(ctx context.Context, recipient primitive.ObjectID, at time.Time) (int64, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	DeleteRead(ctx context.Context, recipient primitive.ObjectID) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DistinctTypes(ctx context.Context, recipient primitive.ObjectID) ([]string, error)
	Stats(ctx context.Context, recipient primitive.ObjectID, now time.Time) (*models.NotificationStats, error)
}

type TaskStore interface {
	Create(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Task, error)
	List(ctx context.Context, filter models.TaskFilter) ([]models.Task, int64, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	AddFeedback(ctx context.Context, id primitive.ObjectID, fb models.Feedback, entry models.ActivityEntry) error
	FindCompletedSince(ctx context.Context, since time.Time) ([]models.Task, error)
	FindWithFeedbackSince(ctx context.Context, since time.Time) ([]models.Task, error)
	FindOverdue(ctx context.Context, now time.Time) ([]models.Task, error)
	FindByGitHubIssue(ctx context.Context, repository string, issueID int64) (*models.Task, error)
}

type MeetingStore interface {
	Create(ctx context.Context, meeting *models.Meeting) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Meeting, error)
	Update(ctx context.Context, meeting *models.Meeting) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	ListForUser(ctx context.Context, user primitive.ObjectID) ([]models.Meeting, error)
	FindStartingBetween(ctx context.Context, from, to time.Time, status models.MeetingStatus) ([]models.Meeting, error)
}

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindAll(ctx context.Context) ([]models.User, error)
	UpdateLastActive(ctx context.Context, id primitive.ObjectID, at time.Time) error
	UpdatePreferences(ctx context.Context, id primitive.ObjectID, prefs models.NotificationPrefs) error
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   primitive.ObjectID
	Role string
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}
