package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/credentials"
	"github.com/synergysphere/server/internal/events"
	"github.com/synergysphere/server/internal/integrations/github"
	"github.com/synergysphere/server/internal/memstore"
	"github.com/synergysphere/server/internal/models"
	"github.com/synergysphere/server/internal/realtime"
	"github.com/synergysphere/server/internal/realtime/realtimetest"
	"github.com/synergysphere/server/internal/storage"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type testEnv struct {
	store         *memstore.Store
	hub           *realtimetest.Recorder
	notifications *NotificationService
	tasks         *TaskService
	meetings      *MeetingService
	users         *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memstore.New()
	hub := &realtimetest.Recorder{}
	notifications := NewNotificationService(store.Notifications(), hub, events.NopPublisher{})
	return &testEnv{
		store:         store,
		hub:           hub,
		notifications: notifications,
		tasks:         NewTaskService(store.Tasks(), store.Users(), notifications, hub, nil),
		meetings:      NewMeetingService(store.Meetings(), notifications, hub, nil),
		users:         NewUserService(store.Users()),
	}
}

func (e *testEnv) user(t *testing.T, name string) *models.User {
	t.Helper()
	u, err := e.users.Register(context.Background(), RegisterInput{
		Username: name,
		Email:    name + "@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	return u
}

func (e *testEnv) inbox(t *testing.T, user primitive.ObjectID) []models.Notification {
	t.Helper()
	page, err := e.notifications.List(context.Background(), user, models.NotificationFilter{Limit: 100})
	require.NoError(t, err)
	return page.Notifications
}

func validationFields(t *testing.T, err error) map[string]string {
	t.Helper()
	var vErr *apperrors.ValidationError
	require.ErrorAs(t, err, &vErr)
	return vErr.Fields
}

func TestCreateNotificationPersistsThenPushes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	recipient := primitive.NewObjectID()

	notif, err := env.notifications.CreateNotification(ctx, NotificationSpec{
		Recipient: recipient,
		Type:      models.NotificationSystemAlert,
		Title:     "  Maintenance  ",
		Message:   "Tonight at 10pm",
	})
	require.NoError(t, err)
	assert.False(t, notif.ID.IsZero())
	assert.Equal(t, "Maintenance", notif.Title)
	assert.Equal(t, models.PriorityMedium, notif.Priority)
	assert.False(t, notif.Read)
	assert.WithinDuration(t, notif.CreatedAt.Add(models.NotificationTTL), notif.ExpiresAt, time.Second)

	stored, err := env.store.Notifications().FindByID(ctx, notif.ID)
	require.NoError(t, err)
	assert.Equal(t, notif.Title, stored.Title)

	pushes := env.hub.Events("notification")
	require.Len(t, pushes, 1)
	assert.Equal(t, realtime.UserRoom(recipient.Hex()), pushes[0].Room)
	push, ok := pushes[0].Payload.(models.NotificationPush)
	require.True(t, ok)
	assert.Equal(t, notif.ID.Hex(), push.ID)
	assert.Equal(t, models.NotificationSystemAlert, push.Type)
}

func TestCreateNotificationValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.notifications.CreateNotification(ctx, NotificationSpec{
		Type:     "carrier-pigeon",
		Title:    strings.Repeat("x", models.NotificationTitleMax+1),
		Message:  "",
		Priority: "critical",
	})
	fields := validationFields(t, err)
	assert.Contains(t, fields, "recipient")
	assert.Contains(t, fields, "type")
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "message")
	assert.Contains(t, fields, "priority")

	assert.Empty(t, env.hub.Emits())
}

func TestSendBulkKeepsPartialResults(t *testing.T) {
	env := newTestEnv(t)
	a, b := primitive.NewObjectID(), primitive.NewObjectID()

	spec := NotificationSpec{Type: models.NotificationSystemAlert, Title: "Hi", Message: "All hands"}
	created, err := env.notifications.SendBulk(context.Background(), spec, []primitive.ObjectID{a, primitive.NilObjectID, b})

	assert.Error(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, a, created[0].Recipient)
	assert.Equal(t, b, created[1].Recipient)
	assert.Len(t, env.inbox(t, a), 1)
	assert.Len(t, env.inbox(t, b), 1)
}

func TestListExcludesExpiredAndCleanupDeletesThem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := primitive.NewObjectID()
	now := time.Now()

	require.NoError(t, env.store.Notifications().Create(ctx, &models.Notification{
		Recipient: user, Type: models.NotificationSystemAlert, Title: "old", Message: "old",
		CreatedAt: now.Add(-40 * 24 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))
	_, err := env.notifications.NotifySystem(ctx, "new", "new", user, "")
	require.NoError(t, err)

	inbox := env.inbox(t, user)
	require.Len(t, inbox, 1)
	assert.Equal(t, "new", inbox[0].Title)
	assert.Equal(t, models.PriorityLow, inbox[0].Priority)

	unread, err := env.notifications.UnreadCount(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	deleted, err := env.notifications.CleanupExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	stats, err := env.notifications.Stats(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
}

func TestReadStateIsOwnedByRecipient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, other := primitive.NewObjectID(), primitive.NewObjectID()

	notif, err := env.notifications.NotifySystem(ctx, "t", "m", owner, models.PriorityHigh)
	require.NoError(t, err)

	_, err = env.notifications.MarkRead(ctx, notif.ID, other)
	var forbidden *apperrors.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)
	assert.ErrorAs(t, env.notifications.Delete(ctx, notif.ID, other), &forbidden)

	_, err = env.notifications.MarkRead(ctx, primitive.NewObjectID(), owner)
	assert.True(t, apperrors.IsNotFound(err))

	read, err := env.notifications.MarkRead(ctx, notif.ID, owner)
	require.NoError(t, err)
	assert.True(t, read.Read)
	require.NotNil(t, read.ReadAt)

	unread, err := env.notifications.MarkUnread(ctx, notif.ID, owner)
	require.NoError(t, err)
	assert.False(t, unread.Read)
	assert.Nil(t, unread.ReadAt)

	_, err = env.notifications.NotifySystem(ctx, "t2", "m2", owner, "")
	require.NoError(t, err)
	othersNotif, err := env.notifications.NotifySystem(ctx, "theirs", "m", other, "")
	require.NoError(t, err)
	n, err := env.notifications.MarkAllRead(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	untouched, err := env.notifications.Get(ctx, othersNotif.ID, other)
	require.NoError(t, err)
	assert.False(t, untouched.Read)
	otherUnread, err := env.notifications.UnreadCount(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, int64(1), otherUnread)

	cleared, err := env.notifications.ClearRead(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cleared)
	assert.Len(t, env.inbox(t, other), 1)
}

func TestCreateNotificationExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	env.notifications.now = func() time.Time { return now }
	recipient := primitive.NewObjectID()

	custom := now.Add(48 * time.Hour)
	n, err := env.notifications.CreateNotification(ctx, NotificationSpec{
		Recipient: recipient, Type: models.NotificationSystemAlert, Title: "t", Message: "m", ExpiresAt: &custom,
	})
	require.NoError(t, err)
	assert.True(t, custom.Equal(n.ExpiresAt))

	past := now.Add(-time.Hour)
	n, err = env.notifications.CreateNotification(ctx, NotificationSpec{
		Recipient: recipient, Type: models.NotificationSystemAlert, Title: "t", Message: "m", ExpiresAt: &past,
	})
	require.NoError(t, err)
	assert.True(t, now.Add(30*24*time.Hour).Equal(n.ExpiresAt))

	n, err = env.notifications.CreateNotification(ctx, NotificationSpec{
		Recipient: recipient, Type: models.NotificationSystemAlert, Title: "t", Message: "m",
	})
	require.NoError(t, err)
	assert.True(t, now.Add(models.NotificationTTL).Equal(n.ExpiresAt))
}

func TestStatsUnreadMatchesBadgeCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := primitive.NewObjectID()

	_, err := env.notifications.NotifySystem(ctx, "live", "m", user, "")
	require.NoError(t, err)
	require.NoError(t, env.store.Notifications().Create(ctx, &models.Notification{
		Recipient: user, Type: models.NotificationSystemAlert, Title: "expired", Message: "m",
		CreatedAt: time.Now().Add(-time.Hour), ExpiresAt: time.Now().Add(-time.Minute),
	}))

	badge, err := env.notifications.UnreadCount(ctx, user)
	require.NoError(t, err)
	stats, err := env.notifications.Stats(ctx, user)
	require.NoError(t, err)

	assert.Equal(t, int64(1), badge)
	assert.Equal(t, badge, stats.Unread)
	assert.Equal(t, stats.Total-stats.Unread, stats.Read)
}

func TestMeetingReminderMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	env.notifications.now = func() time.Time { return now }
	user := primitive.NewObjectID()
	meeting := &models.Meeting{ID: primitive.NewObjectID(), Title: "Standup", StartTime: now.Add(22 * time.Minute)}
	reminder := string(models.NotificationMeetingReminder)

	n, err := env.notifications.NotifyMeeting(ctx, reminder, meeting, user, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, `Meeting "Standup" starts in 22 minutes`, n.Message)

	n, err = env.notifications.NotifyMeeting(ctx, reminder, meeting, user, nil, map[string]interface{}{MetaMinutesUntil: 17})
	require.NoError(t, err)
	assert.Equal(t, `Meeting "Standup" starts in 17 minutes`, n.Message)

	n, err = env.notifications.NotifyMeeting(ctx, reminder, meeting, user, nil, map[string]interface{}{MetaMinutesUntil: 1})
	require.NoError(t, err)
	assert.Equal(t, `Meeting "Standup" starts in 1 minute`, n.Message)
}

func TestTypedBuilders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := primitive.NewObjectID()
	task := &models.Task{ID: primitive.NewObjectID(), Title: "Ship it"}
	meeting := &models.Meeting{ID: primitive.NewObjectID(), Title: "Standup"}

	n, err := env.notifications.NotifyTask(ctx, models.NotificationTaskAssigned, task, user, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "You have been assigned to: Ship it", n.Message)
	assert.Equal(t, "/tasks/"+task.ID.Hex(), n.ActionURL)

	_, err = env.notifications.NotifyTask(ctx, models.NotificationMeetingInvite, task, user, nil, nil)
	assert.Error(t, err)

	n, err = env.notifications.NotifyMeeting(ctx, MeetingCancelled, meeting, user, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationSystemAlert, n.Type)
	assert.Equal(t, meeting.ID, *n.RelatedMeeting)

	n, err = env.notifications.NotifyGitHub(ctx, GitHubIssueClosed, GitHubIssueRef{Title: "Bug", URL: "https://github.com/a/b/issues/1"}, user)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationGitHubIssueSynced, n.Type)
	assert.Equal(t, "GitHub Issue Closed", n.Title)

	n, err = env.notifications.NotifyWeeklyReport(ctx, user, "/api/reports/download/x.pdf", "x.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.NotificationWeeklyReportReady, n.Type)

	types, err := env.notifications.Types(ctx, user)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"task-assigned", "system-alert", "github-issue-synced", "weekly-report-ready"}, types)
}

func TestTaskLifecycleNotifications(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator, assignee := env.user(t, "carol"), env.user(t, "dave")

	task, err := env.tasks.Create(ctx, Actor{ID: creator.ID}, CreateTaskInput{Title: "Write docs", Assignee: &assignee.ID})
	require.NoError(t, err)
	assert.Equal(t, models.TaskTodo, task.Status)
	assert.Len(t, env.hub.Events("task-created"), 1)

	inbox := env.inbox(t, assignee.ID)
	require.Len(t, inbox, 1)
	assert.Equal(t, models.NotificationTaskAssigned, inbox[0].Type)

	done := models.TaskDone
	updated, err := env.tasks.Update(ctx, Actor{ID: assignee.ID}, task.ID, UpdateTaskInput{Status: &done})
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)

	creatorInbox := env.inbox(t, creator.ID)
	var titles []string
	for _, n := range creatorInbox {
		titles = append(titles, n.Title)
	}
	assert.ElementsMatch(t, []string{"Task Completed", "Task Moved"}, titles)
	for _, n := range creatorInbox {
		if n.Title == "Task Moved" {
			assert.Equal(t, `dave moved "Write docs" from todo to done`, n.Message)
		}
	}
	assert.Len(t, env.inbox(t, assignee.ID), 1)
	assert.Len(t, env.hub.Events("task-moved"), 1)

	todo := models.TaskTodo
	reopened, err := env.tasks.Update(ctx, Actor{ID: creator.ID}, task.ID, UpdateTaskInput{Status: &todo})
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)
}

func TestTaskAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator, stranger := env.user(t, "erin"), env.user(t, "frank")

	task, err := env.tasks.Create(ctx, Actor{ID: creator.ID}, CreateTaskInput{Title: "Secret"})
	require.NoError(t, err)

	title := "Hijacked"
	_, err = env.tasks.Update(ctx, Actor{ID: stranger.ID}, task.ID, UpdateTaskInput{Title: &title})
	var forbidden *apperrors.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	assert.ErrorAs(t, env.tasks.Delete(ctx, Actor{ID: stranger.ID}, task.ID), &forbidden)
	require.NoError(t, env.tasks.Delete(ctx, Actor{ID: stranger.ID, Role: models.RoleAdmin}, task.ID))
	assert.Len(t, env.hub.Events("task-deleted"), 1)

	_, err = env.tasks.Get(ctx, task.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTaskCreateRejectsUnknownAssignee(t *testing.T) {
	env := newTestEnv(t)
	creator := env.user(t, "gina")
	ghost := primitive.NewObjectID()

	_, err := env.tasks.Create(context.Background(), Actor{ID: creator.ID}, CreateTaskInput{Title: "x", Assignee: &ghost})
	assert.Contains(t, validationFields(t, err), "assignee")
}

func TestFeedbackNotifiesWatchersExceptAuthor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator, assignee, reviewer := env.user(t, "hana"), env.user(t, "ivan"), env.user(t, "jon")

	task, err := env.tasks.Create(ctx, Actor{ID: creator.ID}, CreateTaskInput{Title: "Review", Assignee: &assignee.ID})
	require.NoError(t, err)

	updated, err := env.tasks.AddFeedback(ctx, Actor{ID: reviewer.ID}, task.ID, FeedbackInput{Content: "Looks good", Type: models.FeedbackProgress})
	require.NoError(t, err)
	require.Len(t, updated.Feedback, 1)

	stored, err := env.tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Feedback, 1)

	assert.Len(t, env.inbox(t, creator.ID), 1)
	assert.Len(t, env.inbox(t, assignee.ID), 2)
	assert.Empty(t, env.inbox(t, reviewer.ID))

	_, err = env.tasks.AddFeedback(ctx, Actor{ID: creator.ID}, task.ID, FeedbackInput{Content: "Thanks"})
	require.NoError(t, err)
	assert.Len(t, env.inbox(t, creator.ID), 1)
	assert.Len(t, env.inbox(t, assignee.ID), 3)
}

func TestMeetingInvitesResponsesAndCancellation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	organizer, guest, outsider := env.user(t, "kim"), env.user(t, "lee"), env.user(t, "max")
	start := time.Now().Add(24 * time.Hour)

	_, err := env.meetings.Create(ctx, Actor{ID: organizer.ID}, CreateMeetingInput{Title: "Bad", StartTime: start, EndTime: start})
	assert.Contains(t, validationFields(t, err), "endTime")

	meeting, err := env.meetings.Create(ctx, Actor{ID: organizer.ID}, CreateMeetingInput{
		Title:     "Planning",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Attendees: []primitive.ObjectID{guest.ID, organizer.ID},
	})
	require.NoError(t, err)
	require.Len(t, meeting.Attendees, 2)
	assert.Equal(t, models.AttendeeAccepted, meeting.Attendee(organizer.ID).Status)
	assert.Equal(t, models.AttendeeInvited, meeting.Attendee(guest.ID).Status)
	assert.Len(t, env.hub.Events("meeting-created"), 1)

	invites := env.inbox(t, guest.ID)
	require.Len(t, invites, 1)
	assert.Equal(t, models.NotificationMeetingInvite, invites[0].Type)
	assert.Empty(t, env.inbox(t, organizer.ID))

	var forbidden *apperrors.ForbiddenError
	_, err = env.meetings.Get(ctx, Actor{ID: outsider.ID}, meeting.ID)
	assert.ErrorAs(t, err, &forbidden)
	_, err = env.meetings.Respond(ctx, Actor{ID: outsider.ID}, meeting.ID, models.AttendeeAccepted)
	assert.ErrorAs(t, err, &forbidden)

	responded, err := env.meetings.Respond(ctx, Actor{ID: guest.ID}, meeting.ID, models.AttendeeDeclined)
	require.NoError(t, err)
	assert.Equal(t, models.AttendeeDeclined, responded.Attendee(guest.ID).Status)

	cancelled := models.MeetingCancelled
	_, err = env.meetings.Update(ctx, Actor{ID: guest.ID}, meeting.ID, UpdateMeetingInput{Status: &cancelled})
	assert.ErrorAs(t, err, &forbidden)

	_, err = env.meetings.Update(ctx, Actor{ID: organizer.ID}, meeting.ID, UpdateMeetingInput{Status: &cancelled})
	require.NoError(t, err)
	inbox := env.inbox(t, guest.ID)
	require.Len(t, inbox, 2)
	assert.Equal(t, "Meeting Cancelled", inbox[0].Title)

	list, err := env.meetings.List(ctx, Actor{ID: guest.ID})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, env.meetings.Delete(ctx, Actor{ID: organizer.ID}, meeting.ID))
	assert.Len(t, env.hub.Events("meeting-deleted"), 1)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.users.Register(ctx, RegisterInput{Username: "nora", Email: "Nora@Example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "nora@example.com", u.Email)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.True(t, u.NotificationPrefs.Email)
	assert.NotEqual(t, "hunter22", u.HashedPassword)

	_, err = env.users.Register(ctx, RegisterInput{Username: "nora2", Email: "nora@example.com", Password: "hunter22"})
	assert.Contains(t, validationFields(t, err), "email")

	_, err = env.users.Register(ctx, RegisterInput{Username: "x", Email: "not-an-email", Password: "1"})
	assert.Error(t, err)

	got, err := env.users.Authenticate(ctx, "NORA@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	var unauthorized *apperrors.UnauthorizedError
	_, err = env.users.Authenticate(ctx, "nora@example.com", "wrong")
	assert.ErrorAs(t, err, &unauthorized)
	_, err = env.users.Authenticate(ctx, "nobody@example.com", "hunter22")
	assert.ErrorAs(t, err, &unauthorized)

	prefs, err := env.users.UpdatePreferences(ctx, u.ID, models.NotificationPrefs{Email: false, Push: true})
	require.NoError(t, err)
	assert.False(t, prefs.NotificationPrefs.Email)
}

type fakeMailer struct {
	sent []string
}

func (m *fakeMailer) Enabled() bool { return true }

func (m *fakeMailer) Send(to, _, _ string) error {
	m.sent = append(m.sent, to)
	return nil
}

func TestGenerateWeeklyReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	_, err := env.users.UpdatePreferences(ctx, bob.ID, models.NotificationPrefs{Email: false, Push: true})
	require.NoError(t, err)

	task, err := env.tasks.Create(ctx, Actor{ID: alice.ID}, CreateTaskInput{Title: "Done thing", Status: models.TaskDone})
	require.NoError(t, err)
	require.NotNil(t, task.CompletedAt)

	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	mailer := &fakeMailer{}
	svc := NewReportService(env.store.Tasks(), env.store.Users(), local, env.notifications, mailer, env.hub, nil)

	result, err := svc.Generate(ctx, time.Now())
	require.NoError(t, err)
	assert.Regexp(t, `^weekly-report-\d{4}-\d{2}-\d{2}-\d{6}-[0-9a-f]{8}\.pdf$`, result.Artifact.Name)
	assert.Equal(t, 1, result.Report.TotalCompleted)
	assert.Equal(t, 2, result.Notified)
	assert.Equal(t, []string{"alice@example.com"}, mailer.sent)

	for _, u := range []*models.User{alice, bob} {
		inbox := env.inbox(t, u.ID)
		require.Len(t, inbox, 1)
		assert.Equal(t, models.NotificationWeeklyReportReady, inbox[0].Type)
		assert.Equal(t, result.Artifact.DownloadURL, inbox[0].ActionURL)
	}
	ready := env.hub.Events("weekly-report-ready")
	require.Len(t, ready, 1)
	assert.Empty(t, ready[0].Room)

	second, err := svc.Generate(ctx, time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, result.Artifact.Name, second.Artifact.Name)
	for _, u := range []*models.User{alice, bob} {
		assert.Len(t, env.inbox(t, u.ID), 2)
	}
	assert.Len(t, env.hub.Events("weekly-report-ready"), 2)
	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	var forbidden *apperrors.ForbiddenError
	assert.ErrorAs(t, svc.Delete(ctx, Actor{ID: alice.ID}, result.Artifact.Name), &forbidden)
	require.NoError(t, svc.Delete(ctx, Actor{ID: alice.ID, Role: models.RoleAdmin}, result.Artifact.Name))
}

type fakeIssues struct {
	issues []github.Issue
	err    error
	tokens []string
}

func (f *fakeIssues) ListOpenIssues(_ context.Context, token, _, _ string) ([]github.Issue, error) {
	f.tokens = append(f.tokens, token)
	return f.issues, f.err
}

func newGitHubService(env *testEnv, issues IssueLister, mock bool) (*GitHubService, credentials.Store) {
	creds := credentials.NewKeyringStore(keyring.NewArrayKeyring(nil))
	return NewGitHubService(issues, creds, env.store.Tasks(), env.notifications, env.hub, nil, mock), creds
}

func TestImportIssues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "octo")
	actor := Actor{ID: owner.ID}

	issues := &fakeIssues{issues: []github.Issue{
		{ID: 101, Number: 1, Title: "Crash on save", Labels: []string{"high"}, URL: "https://github.com/acme/app/issues/1"},
		{ID: 102, Number: 2, Title: "Typo"},
	}}
	svc, _ := newGitHubService(env, issues, false)

	_, err := svc.ImportIssues(ctx, actor, ImportIssuesInput{Owner: "acme", Repo: "app"})
	var vErr *apperrors.ValidationError
	assert.ErrorAs(t, err, &vErr)

	status, err := svc.SaveToken(ctx, actor, GitHubTokenInput{AccessToken: "ghp_abc", Login: "octo"})
	require.NoError(t, err)
	assert.True(t, status.Connected)

	result, err := svc.ImportIssues(ctx, actor, ImportIssuesInput{Owner: "acme", Repo: "app"})
	require.NoError(t, err)
	require.Len(t, result.Imported, 2)
	assert.Equal(t, []string{"ghp_abc"}, issues.tokens)
	assert.Equal(t, models.PriorityHigh, result.Imported[0].Priority)
	assert.Equal(t, "acme/app", result.Imported[0].GitHubRepository)
	assert.Len(t, env.inbox(t, owner.ID), 2)
	assert.Len(t, env.hub.Events("github-sync"), 1)

	again, err := svc.ImportIssues(ctx, actor, ImportIssuesInput{Owner: "acme", Repo: "app"})
	require.NoError(t, err)
	assert.Empty(t, again.Imported)
	assert.Equal(t, 2, again.Skipped)

	require.NoError(t, svc.Disconnect(ctx, actor))
	status, err = svc.Status(ctx, actor)
	require.NoError(t, err)
	assert.False(t, status.Connected)
}

func TestImportIssuesUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "octo")
	actor := Actor{ID: owner.ID}
	failing := &fakeIssues{err: errors.New("connection refused")}

	svc, creds := newGitHubService(env, failing, false)
	require.NoError(t, creds.Put("github", owner.ID.Hex(), credentials.Token{AccessToken: "t"}))
	_, err := svc.ImportIssues(ctx, actor, ImportIssuesInput{Owner: "acme", Repo: "app"})
	var upstream *apperrors.UpstreamError
	assert.ErrorAs(t, err, &upstream)

	mockSvc, mockCreds := newGitHubService(env, failing, true)
	require.NoError(t, mockCreds.Put("github", owner.ID.Hex(), credentials.Token{AccessToken: "t"}))
	result, err := mockSvc.ImportIssues(ctx, actor, ImportIssuesInput{Owner: "acme", Repo: "app"})
	require.NoError(t, err)
	assert.True(t, result.Mock)
	assert.Empty(t, result.Imported)
}

func TestHandleIssueEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "octo")
	issues := &fakeIssues{issues: []github.Issue{{ID: 7, Number: 7, Title: "Flaky test"}}}
	svc, creds := newGitHubService(env, issues, false)
	require.NoError(t, creds.Put("github", owner.ID.Hex(), credentials.Token{AccessToken: "t"}))

	imported, err := svc.ImportIssues(ctx, Actor{ID: owner.ID}, ImportIssuesInput{Owner: "acme", Repo: "app"})
	require.NoError(t, err)
	require.Len(t, imported.Imported, 1)

	task, err := svc.HandleIssueEvent(ctx, &github.IssueEvent{Action: "closed", Repo: "acme/app", Issue: github.Issue{ID: 7, Number: 7, Title: "Flaky test"}})
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, models.TaskDone, task.Status)
	assert.NotNil(t, task.CompletedAt)

	inbox := env.inbox(t, owner.ID)
	assert.Equal(t, "GitHub Issue Closed", inbox[0].Title)

	task, err = svc.HandleIssueEvent(ctx, &github.IssueEvent{Action: "reopened", Repo: "acme/app", Issue: github.Issue{ID: 7}})
	require.NoError(t, err)
	assert.Equal(t, models.TaskTodo, task.Status)
	assert.Nil(t, task.CompletedAt)

	longTitle := strings.Repeat("é", 250)
	task, err = svc.HandleIssueEvent(ctx, &github.IssueEvent{Action: "edited", Repo: "acme/app", Issue: github.Issue{ID: 7, Number: 7, Title: longTitle, Body: "new body"}})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 200), task.Title)
	stored, err := env.store.Tasks().FindByGitHubIssue(ctx, "acme/app", 7)
	require.NoError(t, err)
	assert.Len(t, []rune(stored.Title), 200)
	assert.Equal(t, "new body", stored.Description)

	untracked, err := svc.HandleIssueEvent(ctx, &github.IssueEvent{Action: "closed", Repo: "acme/app", Issue: github.Issue{ID: 999}})
	require.NoError(t, err)
	assert.Nil(t, untracked)
}

func TestEventType(t *testing.T) {
	assert.Equal(t, "task.created", eventType("task-created"))
	assert.Equal(t, "weekly-report.ready", eventType("weekly-report-ready"))
	assert.Equal(t, "github.sync", eventType("github-sync"))
	assert.Equal(t, "plain", eventType("plain"))
}
