// Package reports builds the weekly team report and renders it as PDF.
package reports

import (
	"math"
	"sort"
	"time"

	"github.com/synergysphere/server/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	Window          = 7 * 24 * time.Hour
	maxFeedbackRows = 10
)

var Recommendations = []string{
	"Continue the momentum on high-priority tasks",
	"Schedule team retrospectives to discuss process improvements",
	"Review and update task estimates based on actual completion times",
	"Ensure all team members have balanced workloads",
}

type UserCount struct {
	Username string `json:"username"`
	Count    int    `json:"count"`
}

type FeedbackHighlight struct {
	Task    string    `json:"task"`
	User    string    `json:"user"`
	Content string    `json:"content"`
	Date    time.Time `json:"date"`
}

type PriorityCount struct {
	Priority string `json:"priority"`
	Count    int    `json:"count"`
}

// WeeklyReport is the content of one report, independent of its rendering.
type WeeklyReport struct {
	GeneratedAt       time.Time           `json:"generatedAt"`
	WindowStart       time.Time           `json:"windowStart"`
	TotalCompleted    int                 `json:"totalCompleted"`
	TotalFeedback     int                 `json:"totalFeedback"`
	ActiveMembers     int                 `json:"activeMembers"`
	CompletedByUser   []UserCount         `json:"completedByUser"`
	RecentFeedback    []FeedbackHighlight `json:"recentFeedback"`
	AvgCompletionDays int                 `json:"avgCompletionDays"`
	ByPriority        []PriorityCount     `json:"byPriority"`
	Recommendations   []string            `json:"recommendations"`
}

// Build aggregates the tasks of the week ending at now.
func Build(now time.Time, completed, withFeedback []models.Task, users []models.User) WeeklyReport {
	since := now.Add(-Window)
	names := make(map[primitive.ObjectID]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}

	report := WeeklyReport{
		GeneratedAt:     now,
		WindowStart:     since,
		TotalCompleted:  len(completed),
		ActiveMembers:   len(users),
		Recommendations: Recommendations,
	}

	byUser := map[string]int{}
	byPriority := map[string]int{}
	var totalDuration time.Duration
	timed := 0
	for _, task := range completed {
		byUser[ownerName(task, names)]++
		byPriority[string(task.Priority)]++
		if task.CompletedAt != nil && !task.CreatedAt.IsZero() {
			totalDuration += task.CompletedAt.Sub(task.CreatedAt)
			timed++
		}
	}
	if timed > 0 {
		avg := totalDuration / time.Duration(timed)
		report.AvgCompletionDays = int(math.Round(avg.Hours() / 24))
	}

	report.CompletedByUser = sortedCounts(byUser, func(name string, count int) UserCount {
		return UserCount{Username: name, Count: count}
	})
	report.ByPriority = sortedCounts(byPriority, func(p string, count int) PriorityCount {
		return PriorityCount{Priority: p, Count: count}
	})

	for _, task := range withFeedback {
		for _, fb := range task.Feedback {
			if fb.CreatedAt.Before(since) {
				continue
			}
			report.TotalFeedback++
			user := names[fb.User]
			if user == "" {
				user = "Unknown"
			}
			report.RecentFeedback = append(report.RecentFeedback, FeedbackHighlight{
				Task:    task.Title,
				User:    user,
				Content: fb.Content,
				Date:    fb.CreatedAt,
			})
		}
	}
	sort.SliceStable(report.RecentFeedback, func(i, j int) bool {
		return report.RecentFeedback[i].Date.After(report.RecentFeedback[j].Date)
	})
	if len(report.RecentFeedback) > maxFeedbackRows {
		report.RecentFeedback = report.RecentFeedback[:maxFeedbackRows]
	}

	return report
}

func ownerName(task models.Task, names map[primitive.ObjectID]string) string {
	if task.Assignee != nil {
		if name := names[*task.Assignee]; name != "" {
			return name
		}
	}
	if name := names[task.Creator]; name != "" {
		return name
	}
	return "Unassigned"
}

// sortedCounts orders by count desc, then key, so output is stable.
func sortedCounts[T any](counts map[string]int, mk func(string, int) T) []T {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, mk(k, counts[k]))
	}
	return out
}
