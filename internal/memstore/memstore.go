// Package memstore holds every store in process memory. It backs the --memory
// server mode and the service tests; data is lost on restart.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store struct {
	mu            sync.RWMutex
	notifications map[primitive.ObjectID]models.Notification
	tasks         map[primitive.ObjectID]models.Task
	meetings      map[primitive.ObjectID]models.Meeting
	users         map[primitive.ObjectID]models.User
	jobRuns       map[string]time.Time
	now           func() time.Time
}

func New() *Store {
	return &Store{
		notifications: map[primitive.ObjectID]models.Notification{},
		tasks:         map[primitive.ObjectID]models.Task{},
		meetings:      map[primitive.ObjectID]models.Meeting{},
		users:         map[primitive.ObjectID]models.User{},
		jobRuns:       map[string]time.Time{},
		now:           time.Now,
	}
}

// Notifications, Tasks, Meetings, Users and JobRuns expose the store under the
// method sets of the matching Mongo repositories.
func (s *Store) Notifications() *NotificationStore { return &NotificationStore{s} }
func (s *Store) Tasks() *TaskStore { return &TaskStore{s} }
func (s *Store) Meetings() *MeetingStore { return &MeetingStore{s} }
func (s *Store) Users() *UserStore { return &UserStore{s} }
func (s *Store) JobRuns() *JobRunStore { return &JobRunStore{s} }

func paginate(total, page, limit int) (int, int) {
	if limit <= 0 {
		return 0, total
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return start, end
}

type NotificationStore struct{ s *Store }

func visible(n models.Notification, now time.Time) bool {
	return n.ExpiresAt.IsZero() || n.ExpiresAt.After(now)
}

func (r *NotificationStore) Create(_ context.Context, notif *models.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = r.s.now()
	}
	notif.UpdatedAt = notif.CreatedAt
	if notif.ExpiresAt.IsZero() {
		notif.ExpiresAt = notif.CreatedAt.Add(models.NotificationTTL)
	}
	if notif.ID.IsZero() {
		notif.ID = primitive.NewObjectID()
	}
	r.s.notifications[notif.ID] = *notif
	return nil
}

func (r *NotificationStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n, ok := r.s.notifications[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("notification")
	}
	return &n, nil
}

func (r *NotificationStore) List(_ context.Context, recipient primitive.ObjectID, filter models.NotificationFilter, now time.Time) ([]models.Notification, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched := []models.Notification{}
	for _, n := range r.s.notifications {
		if n.Recipient != recipient || !visible(n, now) {
			continue
		}
		if filter.Read != nil && n.Read != *filter.Read {
			continue
		}
		if filter.Type != "" && n.Type != filter.Type {
			continue
		}
		matched = append(matched, n)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	start, end := paginate(len(matched), filter.Page, filter.Limit)
	return matched[start:end], int64(len(matched)), nil
}

func (r *NotificationStore) CountUnread(_ context.Context, recipient primitive.ObjectID, now time.Time) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var count int64
	for _, n := range r.s.notifications {
		if n.Recipient == recipient && !n.Read && visible(n, now) {
			count++
		}
	}
	return count, nil
}

func (r *NotificationStore) SetRead(_ context.Context, id primitive.ObjectID, read bool, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok {
		return apperrors.NewNotFoundError("notification")
	}
	n.Read = read
	n.UpdatedAt = at
	if read {
		readAt := at
		n.ReadAt = &readAt
	} else {
		n.ReadAt = nil
	}
	r.s.notifications[id] = n
	return nil
}

func (r *NotificationStore) MarkAllRead(_ context.Context, recipient primitive.ObjectID, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var modified int64
	for id, n := range r.s.notifications {
		if n.Recipient != recipient || n.Read {
			continue
		}
		readAt := at
		n.Read, n.ReadAt, n.UpdatedAt = true, &readAt, at
		r.s.notifications[id] = n
		modified++
	}
	return modified, nil
}

func (r *NotificationStore) Delete(_ context.Context, id primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.notifications[id]; !ok {
		return apperrors.NewNotFoundError("notification")
	}
	delete(r.s.notifications, id)
	return nil
}

func (r *NotificationStore) DeleteRead(_ context.Context, recipient primitive.ObjectID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var deleted int64
	for id, n := range r.s.notifications {
		if n.Recipient == recipient && n.Read {
			delete(r.s.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *NotificationStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var deleted int64
	for id, n := range r.s.notifications {
		if !n.ExpiresAt.IsZero() && n.ExpiresAt.Before(now) {
			delete(r.s.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *NotificationStore) DistinctTypes(_ context.Context, recipient primitive.ObjectID) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seen := map[string]bool{}
	types := []string{}
	for _, n := range r.s.notifications {
		t := string(n.Type)
		if n.Recipient == recipient && !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	sort.Strings(types)
	return types, nil
}

func (r *NotificationStore) Stats(_ context.Context, recipient primitive.ObjectID, now time.Time) (*models.NotificationStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stats := &models.NotificationStats{ByType: map[string]int64{}}
	weekAgo := now.Add(-7 * 24 * time.Hour)
	for _, n := range r.s.notifications {
		if n.Recipient != recipient {
			continue
		}
		stats.Total++
		if !n.Read && visible(n, now) {
			stats.Unread++
		}
		if !n.CreatedAt.Before(weekAgo) {
			stats.Recent++
		}
		stats.ByType[string(n.Type)]++
	}
	stats.Read = stats.Total - stats.Unread
	return stats, nil
}

type TaskStore struct{ s *Store }

func copyTask(t models.Task) models.Task {
	t.Feedback = append([]models.Feedback(nil), t.Feedback...)
	t.ActivityLog = append([]models.ActivityEntry(nil), t.ActivityLog...)
	t.Tags = append([]string(nil), t.Tags...)
	return t
}

func (r *TaskStore) Create(_ context.Context, task *models.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.ID.IsZero() {
		task.ID = primitive.NewObjectID()
	}
	r.s.tasks[task.ID] = copyTask(*task)
	return nil
}

func (r *TaskStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("task")
	}
	t = copyTask(t)
	return &t, nil
}

func (r *TaskStore) List(_ context.Context, filter models.TaskFilter) ([]models.Task, int64, error) {
	tasks := r.filter(func(t models.Task) bool {
		if filter.Status != "" && t.Status != filter.Status {
			return false
		}
		if filter.Priority != "" && t.Priority != filter.Priority {
			return false
		}
		if filter.Assignee != nil && (t.Assignee == nil || *t.Assignee != *filter.Assignee) {
			return false
		}
		if filter.Search != "" {
			q := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(t.Title), q) && !strings.Contains(strings.ToLower(t.Description), q) {
				return false
			}
		}
		return true
	})
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	start, end := paginate(len(tasks), filter.Page, filter.Limit)
	return tasks[start:end], int64(len(tasks)), nil
}

func (r *TaskStore) Update(_ context.Context, task *models.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[task.ID]; !ok {
		return apperrors.NewNotFoundError("task")
	}
	task.UpdatedAt = r.s.now()
	r.s.tasks[task.ID] = copyTask(*task)
	return nil
}

func (r *TaskStore) Delete(_ context.Context, id primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[id]; !ok {
		return apperrors.NewNotFoundError("task")
	}
	delete(r.s.tasks, id)
	return nil
}

func (r *TaskStore) AddFeedback(_ context.Context, id primitive.ObjectID, fb models.Feedback, entry models.ActivityEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return apperrors.NewNotFoundError("task")
	}
	t = copyTask(t)
	t.Feedback = append(t.Feedback, fb)
	t.ActivityLog = append(t.ActivityLog, entry)
	t.UpdatedAt = r.s.now()
	r.s.tasks[id] = t
	return nil
}

func (r *TaskStore) FindCompletedSince(_ context.Context, since time.Time) ([]models.Task, error) {
	tasks := r.filter(func(t models.Task) bool {
		return t.Status == models.TaskDone && t.CompletedAt != nil && !t.CompletedAt.Before(since)
	})
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CompletedAt.After(*tasks[j].CompletedAt)
	})
	return tasks, nil
}

func (r *TaskStore) FindWithFeedbackSince(_ context.Context, since time.Time) ([]models.Task, error) {
	return r.filter(func(t models.Task) bool {
		for _, fb := range t.Feedback {
			if !fb.CreatedAt.Before(since) {
				return true
			}
		}
		return false
	}), nil
}

func (r *TaskStore) FindOverdue(_ context.Context, now time.Time) ([]models.Task, error) {
	return r.filter(func(t models.Task) bool { return t.IsOverdue(now) }), nil
}

func (r *TaskStore) FindByGitHubIssue(_ context.Context, repository string, issueID int64) (*models.Task, error) {
	tasks := r.filter(func(t models.Task) bool {
		return t.GitHubRepository == repository && t.GitHubIssueID != nil && *t.GitHubIssueID == issueID
	})
	if len(tasks) == 0 {
		return nil, apperrors.NewNotFoundError("task")
	}
	return &tasks[0], nil
}

func (r *TaskStore) filter(keep func(models.Task) bool) []models.Task {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []models.Task{}
	for _, t := range r.s.tasks {
		if keep(t) {
			out = append(out, copyTask(t))
		}
	}
	return out
}

type MeetingStore struct{ s *Store }

func copyMeeting(m models.Meeting) models.Meeting {
	m.Attendees = append([]models.Attendee(nil), m.Attendees...)
	return m
}

func (r *MeetingStore) Create(_ context.Context, meeting *models.Meeting) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	meeting.CreatedAt = now
	meeting.UpdatedAt = now
	if meeting.ID.IsZero() {
		meeting.ID = primitive.NewObjectID()
	}
	r.s.meetings[meeting.ID] = copyMeeting(*meeting)
	return nil
}

func (r *MeetingStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.Meeting, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.meetings[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("meeting")
	}
	m = copyMeeting(m)
	return &m, nil
}

func (r *MeetingStore) Update(_ context.Context, meeting *models.Meeting) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.meetings[meeting.ID]; !ok {
		return apperrors.NewNotFoundError("meeting")
	}
	meeting.UpdatedAt = r.s.now()
	r.s.meetings[meeting.ID] = copyMeeting(*meeting)
	return nil
}

func (r *MeetingStore) Delete(_ context.Context, id primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.meetings[id]; !ok {
		return apperrors.NewNotFoundError("meeting")
	}
	delete(r.s.meetings, id)
	return nil
}

func (r *MeetingStore) ListForUser(_ context.Context, user primitive.ObjectID) ([]models.Meeting, error) {
	return r.filter(func(m models.Meeting) bool { return m.Involves(user) }), nil
}

func (r *MeetingStore) FindStartingBetween(_ context.Context, from, to time.Time, status models.MeetingStatus) ([]models.Meeting, error) {
	return r.filter(func(m models.Meeting) bool {
		return m.Status == status && !m.StartTime.Before(from) && !m.StartTime.After(to)
	}), nil
}

func (r *MeetingStore) filter(keep func(models.Meeting) bool) []models.Meeting {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []models.Meeting{}
	for _, m := range r.s.meetings {
		if keep(m) {
			out = append(out, copyMeeting(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

type UserStore struct{ s *Store }

func (r *UserStore) Create(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return apperrors.NewValidationError("email already in use").WithField("email", "is already registered")
		}
	}
	now := r.s.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r *UserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperrors.NewNotFoundError("user")
}

func (r *UserStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("user")
	}
	return &u, nil
}

func (r *UserStore) FindAll(_ context.Context) ([]models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	users := make([]models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (r *UserStore) UpdateLastActive(_ context.Context, id primitive.ObjectID, at time.Time) error {
	return r.update(id, func(u *models.User) { u.LastActiveAt = at })
}

func (r *UserStore) UpdatePreferences(_ context.Context, id primitive.ObjectID, prefs models.NotificationPrefs) error {
	return r.update(id, func(u *models.User) { u.NotificationPrefs = prefs })
}

func (r *UserStore) update(id primitive.ObjectID, fn func(*models.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return apperrors.NewNotFoundError("user")
	}
	fn(&u)
	u.UpdatedAt = r.s.now()
	r.s.users[id] = u
	return nil
}

type JobRunStore struct{ s *Store }

// Acquire claims key until ttl elapses.
func (r *JobRunStore) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	if expires, ok := r.s.jobRuns[key]; ok && expires.After(now) {
		return false, nil
	}
	r.s.jobRuns[key] = now.Add(ttl)
	return true, nil
}
