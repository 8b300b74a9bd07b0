// Package github wraps the GitHub REST API and webhook parsing used for issue sync.
package github

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	gh "github.com/google/go-github/v60/github"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/synergysphere/server/pkg/logger"
)

// Issue is the subset of a GitHub issue that becomes a task.
type Issue struct {
	ID      int64
	Number  int
	Title   string
	Body    string
	URL     string
	Labels  []string
	DueDate *time.Time
}

// IssueClient lists repository issues with a user's token.
type IssueClient struct {
	httpClient *http.Client
	baseURL    *url.URL
	maxPages   int
	newBackOff func() backoff.BackOff
}

func NewIssueClient(httpClient *http.Client) *IssueClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &IssueClient{
		httpClient: httpClient,
		maxPages:   5,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxElapsedTime = 5 * time.Second
			return b
		},
	}
}

// WithBaseURL points the client at another API root, e.g. GitHub Enterprise.
func (c *IssueClient) WithBaseURL(raw string) (*IssueClient, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "invalid GitHub base URL")
	}
	c.baseURL = u
	return c, nil
}

func (c *IssueClient) client(token string) *gh.Client {
	client := gh.NewClient(c.httpClient).WithAuthToken(token)
	if c.baseURL != nil {
		client.BaseURL = c.baseURL
	}
	return client
}

// ListOpenIssues returns open issues of owner/repo, skipping pull requests.
func (c *IssueClient) ListOpenIssues(ctx context.Context, token, owner, repo string) ([]Issue, error) {
	client := c.client(token)
	opts := &gh.IssueListByRepoOptions{
		State:       "open",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var issues []Issue
	for page := 0; page < c.maxPages; page++ {
		var (
			batch []*gh.Issue
			resp  *gh.Response
		)
		op := func() error {
			var err error
			batch, resp, err = client.Issues.ListByRepo(ctx, owner, repo, opts)
			if err != nil && resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		notify := func(err error, wait time.Duration) {
			logger.Log.WithFields(logrus.Fields{"repo": owner + "/" + repo, "retry_in": wait, "error": err}).Warn("GitHub request failed, retrying")
		}
		if err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
			return nil, errors.Wrap(err, "failed to list GitHub issues")
		}

		for _, is := range batch {
			if is.IsPullRequest() {
				continue
			}
			issues = append(issues, convertIssue(is))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return issues, nil
}

func convertIssue(is *gh.Issue) Issue {
	out := Issue{
		ID:     is.GetID(),
		Number: is.GetNumber(),
		Title:  is.GetTitle(),
		Body:   is.GetBody(),
		URL:    is.GetHTMLURL(),
	}
	for _, l := range is.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	if m := is.GetMilestone(); m != nil && m.DueOn != nil {
		due := m.GetDueOn().Time
		out.DueDate = &due
	}
	return out
}

// PriorityFromLabels maps issue labels onto a task priority.
func PriorityFromLabels(labels []string) string {
	priority := "medium"
	for _, l := range labels {
		switch strings.ToLower(l) {
		case "urgent", "critical", "p0":
			return "urgent"
		case "high", "priority: high", "p1":
			priority = "high"
		case "low", "priority: low", "p3":
			if priority == "medium" {
				priority = "low"
			}
		}
	}
	return priority
}
