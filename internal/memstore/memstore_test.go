package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNotificationsHideExpired(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	user := primitive.NewObjectID()

	live := &models.Notification{Recipient: user, Type: models.NotificationSystemAlert, Title: "live", Message: "m", CreatedAt: now.Add(-time.Minute)}
	stale := &models.Notification{Recipient: user, Type: models.NotificationSystemAlert, Title: "stale", Message: "m", CreatedAt: now.Add(-2 * time.Minute), ExpiresAt: now.Add(-time.Second)}
	require.NoError(t, s.Notifications().Create(ctx, live))
	require.NoError(t, s.Notifications().Create(ctx, stale))

	list, total, err := s.Notifications().List(ctx, user, models.NotificationFilter{Page: 1, Limit: 10}, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "live", list[0].Title)

	unread, err := s.Notifications().CountUnread(ctx, user, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)

	deleted, err := s.Notifications().DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestNotificationStatsAgreeWithUnreadCount(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	user := primitive.NewObjectID()

	require.NoError(t, s.Notifications().Create(ctx, &models.Notification{
		Recipient: user, Type: models.NotificationSystemAlert, Title: "expired", Message: "m",
		CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute),
	}))

	unread, err := s.Notifications().CountUnread(ctx, user, now)
	require.NoError(t, err)
	stats, err := s.Notifications().Stats(ctx, user, now)
	require.NoError(t, err)

	assert.EqualValues(t, 0, unread)
	assert.Equal(t, unread, stats.Unread)
	assert.Equal(t, stats.Total-stats.Unread, stats.Read)
}

func TestNotificationsPaginateNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	user := primitive.NewObjectID()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Notifications().Create(ctx, &models.Notification{
			Recipient: user,
			Type:      models.NotificationSystemAlert,
			Title:     string(rune('a' + i)),
			Message:   "m",
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}

	page, total, err := s.Notifications().List(ctx, user, models.NotificationFilter{Page: 2, Limit: 2}, now)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].Title)
	assert.Equal(t, "b", page[1].Title)
}

func TestUsersRejectDuplicateEmail(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Users().Create(ctx, &models.User{Username: "alice", Email: "alice@example.com"}))

	err := s.Users().Create(ctx, &models.User{Username: "alice2", Email: "alice@example.com"})
	var vErr *apperrors.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "email")
}

func TestJobRunsAcquire(t *testing.T) {
	s := New()
	ctx := context.Background()
	current := time.Now()
	s.now = func() time.Time { return current }

	ok, err := s.JobRuns().Acquire(ctx, "weekly-report:2024-W17", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.JobRuns().Acquire(ctx, "weekly-report:2024-W17", time.Hour)
	assert.False(t, ok)

	current = current.Add(2 * time.Hour)
	ok, _ = s.JobRuns().Acquire(ctx, "weekly-report:2024-W17", time.Hour)
	assert.True(t, ok)
}
