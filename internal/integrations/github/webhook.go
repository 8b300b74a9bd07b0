package github

import (
	"net/http"
	"strings"

	gh "github.com/google/go-github/v60/github"
	"github.com/synergysphere/server/internal/apperrors"
)

// IssueEvent is an "issues" webhook delivery reduced to what task sync needs.
type IssueEvent struct {
	Action string
	Repo   string
	Issue  Issue
	Sender string
}

// ParseWebhook validates the delivery signature and decodes it.
// Deliveries other than "issues" return a nil event and no error.
func ParseWebhook(r *http.Request, secret string) (*IssueEvent, error) {
	payload, err := gh.ValidatePayload(r, []byte(secret))
	if err != nil {
		return nil, apperrors.NewUnauthorizedError("invalid webhook signature")
	}

	event, err := gh.ParseWebHook(gh.WebHookType(r), payload)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid webhook payload")
	}

	issues, ok := event.(*gh.IssuesEvent)
	if !ok {
		return nil, nil
	}
	return &IssueEvent{
		Action: strings.ToLower(issues.GetAction()),
		Repo:   issues.GetRepo().GetFullName(),
		Issue:  convertIssue(issues.GetIssue()),
		Sender: issues.GetSender().GetLogin(),
	}, nil
}
