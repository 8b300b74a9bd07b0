package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/events"
	"github.com/synergysphere/server/internal/models"
	"github.com/synergysphere/server/internal/realtime"
	"github.com/synergysphere/server/internal/reports"
	"github.com/synergysphere/server/internal/storage"
	"github.com/synergysphere/server/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Mailer sends plain text email. *email.Mailer implements it.
type Mailer interface {
	Enabled() bool
	Send(to, subject, body string) error
}

// ReportResult describes one generated weekly report.
type ReportResult struct {
	Artifact *storage.Artifact    `json:"artifact"`
	Report   reports.WeeklyReport `json:"report"`
	Notified int                  `json:"notified"`
	Emailed  int                  `json:"emailed"`
}

type ReportService struct {
	tasks         TaskStore
	users         UserStore
	storage       storage.Storage
	notifications *NotificationService
	mailer        Mailer
	hub           realtime.Broadcaster
	announce      announcer
}

func NewReportService(tasks TaskStore, users UserStore, store storage.Storage, notifications *NotificationService, mailer Mailer, hub realtime.Broadcaster, publisher events.Publisher) *ReportService {
	return &ReportService{
		tasks:         tasks,
		users:         users,
		storage:       store,
		notifications: notifications,
		mailer:        mailer,
		hub:           hub,
		announce:      newAnnouncer(hub, publisher),
	}
}

// ReportFilename names the artifact for a report generated at now. The random
// suffix keeps two reports from the same second apart.
func ReportFilename(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("weekly-report-%s-%s.pdf", now.Format("2006-01-02-150405"), suffix)
}

// Generate builds the report for the week ending at now, stores it and tells every user.
// Every call produces a new artifact.
func (s *ReportService) Generate(ctx context.Context, now time.Time) (*ReportResult, error) {
	since := now.Add(-reports.Window)

	completed, err := s.tasks.FindCompletedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	withFeedback, err := s.tasks.FindWithFeedbackSince(ctx, since)
	if err != nil {
		return nil, err
	}
	users, err := s.users.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	report := reports.Build(now, completed, withFeedback, users)
	data, err := reports.RenderPDF(report)
	if err != nil {
		return nil, err
	}

	artifact, err := s.storage.Save(ctx, ReportFilename(now), "application/pdf", data)
	if err != nil {
		return nil, err
	}
	logger.Log.WithFields(logrus.Fields{
		"filename":  artifact.Name,
		"size":      artifact.Size,
		"completed": report.TotalCompleted,
	}).Info("Weekly report generated")

	recipients := make([]primitive.ObjectID, 0, len(users))
	for _, u := range users {
		recipients = append(recipients, u.ID)
	}
	notified, err := s.notifications.SendBulk(ctx, WeeklyReportSpec(artifact.DownloadURL, artifact.Name), recipients)
	if err != nil {
		logger.Log.WithError(err).WithField("notified", len(notified)).Warn("Some weekly report notifications failed")
	}

	emailed := s.email(users, artifact, report)

	if s.hub != nil {
		s.hub.Broadcast("weekly-report-ready", map[string]interface{}{
			"message":     "Weekly report is ready for download",
			"downloadUrl": artifact.DownloadURL,
			"timestamp":   now,
		})
	}
	s.announce.publish("report.generated", artifact.Name, artifact)

	return &ReportResult{Artifact: artifact, Report: report, Notified: len(notified), Emailed: emailed}, nil
}

func (s *ReportService) email(users []models.User, artifact *storage.Artifact, report reports.WeeklyReport) int {
	if s.mailer == nil || !s.mailer.Enabled() {
		return 0
	}
	body := fmt.Sprintf("Your SynergySphere weekly report is ready.\n\n"+
		"Tasks completed: %d\nFeedback items: %d\n\nDownload: %s\n",
		report.TotalCompleted, report.TotalFeedback, artifact.DownloadURL)

	sent := 0
	for _, u := range users {
		if !u.NotificationPrefs.Email || u.Email == "" {
			continue
		}
		if err := s.mailer.Send(u.Email, "SynergySphere Weekly Report", body); err != nil {
			logger.Log.WithFields(logrus.Fields{"user_id": u.ID.Hex(), "error": err}).Warn("Failed to email weekly report")
			continue
		}
		sent++
	}
	return sent
}

func (s *ReportService) List(ctx context.Context) ([]storage.Artifact, error) {
	return s.storage.List(ctx)
}

// Open returns the stored document. The caller closes the reader.
func (s *ReportService) Open(ctx context.Context, name string) (io.ReadCloser, *storage.Artifact, error) {
	return s.storage.Open(ctx, name)
}

func (s *ReportService) Delete(ctx context.Context, actor Actor, name string) error {
	if !actor.IsAdmin() {
		return apperrors.NewForbiddenError("only admins can delete reports")
	}
	if err := s.storage.Delete(ctx, name); err != nil {
		return err
	}
	logger.Log.WithField("filename", name).Info("Weekly report deleted")
	return nil
}
