package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/credentials"
	"github.com/synergysphere/server/internal/events"
	"github.com/synergysphere/server/internal/integrations/github"
	"github.com/synergysphere/server/internal/models"
	"github.com/synergysphere/server/internal/realtime"
	"github.com/synergysphere/server/internal/validation"
	"github.com/synergysphere/server/pkg/logger"
)

const githubProvider = "github"

// IssueLister is implemented by *github.IssueClient.
type IssueLister interface {
	ListOpenIssues(ctx context.Context, token, owner, repo string) ([]github.Issue, error)
}

type GitHubTokenInput struct {
	AccessToken string `json:"accessToken" validate:"required,max=255"`
	Login       string `json:"login" validate:"max=100"`
	Scope       string `json:"scope" validate:"max=255"`
}

type ImportIssuesInput struct {
	Owner string `json:"owner" validate:"required,max=100"`
	Repo  string `json:"repo" validate:"required,max=100"`
}

type ImportResult struct {
	Repository string        `json:"repository"`
	Imported   []models.Task `json:"imported"`
	Skipped    int           `json:"skipped"`
	Mock       bool          `json:"mock,omitempty"`
}

type GitHubStatus struct {
	Connected   bool       `json:"connected"`
	Login       string     `json:"login,omitempty"`
	ConnectedAt *time.Time `json:"connectedAt,omitempty"`
}

// GitHubService imports repository issues as tasks and keeps them in step through webhooks.
type GitHubService struct {
	issues        IssueLister
	creds         credentials.Store
	tasks         TaskStore
	notifications *NotificationService
	announce      announcer
	mockMode      bool
	now           func() time.Time
}

func NewGitHubService(issues IssueLister, creds credentials.Store, tasks TaskStore, notifications *NotificationService, hub realtime.Broadcaster, publisher events.Publisher, mockMode bool) *GitHubService {
	return &GitHubService{
		issues:        issues,
		creds:         creds,
		tasks:         tasks,
		notifications: notifications,
		announce:      newAnnouncer(hub, publisher),
		mockMode:      mockMode,
		now:           time.Now,
	}
}

func (s *GitHubService) SaveToken(ctx context.Context, actor Actor, input GitHubTokenInput) (*GitHubStatus, error) {
	input.AccessToken = strings.TrimSpace(input.AccessToken)
	if err := validation.Struct("invalid token", input); err != nil {
		return nil, err
	}
	token := credentials.Token{
		AccessToken: input.AccessToken,
		TokenType:   "bearer",
		Scope:       input.Scope,
		Login:       input.Login,
		CreatedAt:   s.now(),
	}
	if err := s.creds.Put(githubProvider, actor.ID.Hex(), token); err != nil {
		return nil, err
	}
	logger.Log.WithField("user_id", actor.ID.Hex()).Info("GitHub token stored")
	return s.Status(ctx, actor)
}

func (s *GitHubService) Disconnect(ctx context.Context, actor Actor) error {
	if err := s.creds.Delete(githubProvider, actor.ID.Hex()); err != nil {
		return err
	}
	logger.Log.WithField("user_id", actor.ID.Hex()).Info("GitHub disconnected")
	return nil
}

func (s *GitHubService) Status(_ context.Context, actor Actor) (*GitHubStatus, error) {
	token, err := s.creds.Get(githubProvider, actor.ID.Hex())
	if errors.Is(err, credentials.ErrNotFound) {
		return &GitHubStatus{Connected: false}, nil
	}
	if err != nil {
		return nil, err
	}
	connectedAt := token.CreatedAt
	return &GitHubStatus{Connected: true, Login: token.Login, ConnectedAt: &connectedAt}, nil
}

// ImportIssues creates a task for every open issue of owner/repo not imported before.
func (s *GitHubService) ImportIssues(ctx context.Context, actor Actor, input ImportIssuesInput) (*ImportResult, error) {
	if err := validation.Struct("invalid repository", input); err != nil {
		return nil, err
	}
	token, err := s.creds.Get(githubProvider, actor.ID.Hex())
	if errors.Is(err, credentials.ErrNotFound) {
		return nil, apperrors.NewValidationError("GitHub account not connected")
	}
	if err != nil {
		return nil, err
	}

	repository := input.Owner + "/" + input.Repo
	result := &ImportResult{Repository: repository, Imported: []models.Task{}}

	issues, err := s.issues.ListOpenIssues(ctx, token.AccessToken, input.Owner, input.Repo)
	if err != nil {
		if s.mockMode {
			logger.Log.WithFields(logrus.Fields{"repository": repository, "error": err}).Warn("GitHub unavailable, returning mock import result")
			result.Mock = true
			return result, nil
		}
		return nil, apperrors.NewUpstreamError("github", err)
	}

	for _, issue := range issues {
		_, err := s.tasks.FindByGitHubIssue(ctx, repository, issue.ID)
		if err == nil {
			result.Skipped++
			continue
		}
		if !apperrors.IsNotFound(err) {
			return nil, err
		}

		task := s.taskFromIssue(actor, repository, issue)
		if err := s.tasks.Create(ctx, task); err != nil {
			return nil, err
		}
		result.Imported = append(result.Imported, *task)

		ref := GitHubIssueRef{Title: task.Title, URL: issue.URL, Number: issue.Number, Repository: repository, TaskID: &task.ID}
		if _, err := s.notifications.NotifyGitHub(ctx, GitHubIssueImported, ref, actor.ID); err != nil {
			logger.Log.WithError(err).WithField("task_id", task.ID.Hex()).Warn("GitHub import notification failed")
		}
	}

	logger.Log.WithFields(logrus.Fields{
		"repository": repository,
		"imported":   len(result.Imported),
		"skipped":    result.Skipped,
	}).Info("GitHub issues imported")

	s.announce.broadcast("github-sync", repository, map[string]interface{}{
		"action":     "issues-imported",
		"repository": repository,
		"count":      len(result.Imported),
	})
	return result, nil
}

func (s *GitHubService) taskFromIssue(actor Actor, repository string, issue github.Issue) *models.Task {
	now := s.now()
	id, number := issue.ID, issue.Number
	task := &models.Task{
		Title:             truncateTitle(issue.Title),
		Description:       issue.Body,
		Status:            models.TaskTodo,
		Priority:          models.Priority(github.PriorityFromLabels(issue.Labels)),
		Creator:           actor.ID,
		DueDate:           issue.DueDate,
		GitHubIssueID:     &id,
		GitHubIssueNumber: &number,
		GitHubRepository:  repository,
		Tags:              issue.Labels,
	}
	task.Log("created", actor.ID, "imported from GitHub issue #"+strconv.Itoa(number), now)
	return task
}

// maxTaskTitle is the task title limit in runes.
const maxTaskTitle = 200

func truncateTitle(title string) string {
	if r := []rune(title); len(r) > maxTaskTitle {
		return string(r[:maxTaskTitle])
	}
	return title
}

// HandleIssueEvent applies a webhook delivery to the linked task. Issues with no
// linked task and actions other than closed, reopened and edited are ignored.
func (s *GitHubService) HandleIssueEvent(ctx context.Context, ev *github.IssueEvent) (*models.Task, error) {
	task, err := s.tasks.FindByGitHubIssue(ctx, ev.Repo, ev.Issue.ID)
	if apperrors.IsNotFound(err) {
		logger.Log.WithFields(logrus.Fields{"repository": ev.Repo, "issue_id": ev.Issue.ID}).Debug("Webhook for untracked issue")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	action := GitHubIssueSynced
	switch ev.Action {
	case "closed":
		task.SetStatus(models.TaskDone, now)
		action = GitHubIssueClosed
	case "reopened":
		task.SetStatus(models.TaskTodo, now)
	case "edited":
		if ev.Issue.Title != "" {
			task.Title = truncateTitle(ev.Issue.Title)
		}
		task.Description = ev.Issue.Body
	default:
		return task, nil
	}
	task.Log("updated", task.Creator, "GitHub issue "+ev.Action, now)

	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}

	ref := GitHubIssueRef{Title: task.Title, URL: ev.Issue.URL, Number: ev.Issue.Number, Repository: ev.Repo, TaskID: &task.ID}
	if _, err := s.notifications.NotifyGitHub(ctx, action, ref, task.Creator); err != nil {
		logger.Log.WithError(err).WithField("task_id", task.ID.Hex()).Warn("GitHub sync notification failed")
	}
	s.announce.broadcast("github-sync", ev.Repo, map[string]interface{}{
		"action":     "webhook-received",
		"repository": ev.Repo,
		"issue":      ev.Issue.Number,
		"event":      ev.Action,
		"taskId":     task.ID.Hex(),
	})
	s.announce.broadcast("task-updated", task.ID.Hex(), task)
	return task, nil
}
