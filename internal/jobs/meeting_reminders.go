package jobs

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/synergysphere/server/internal/models"
	"github.com/synergysphere/server/internal/realtime"
	"github.com/synergysphere/server/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	reminderLead   = 15 * time.Minute
	reminderWindow = 30 * time.Minute
)

// MeetingFinder is the part of the meeting store the reminder job reads.
type MeetingFinder interface {
	FindStartingBetween(ctx context.Context, from, to time.Time, status models.MeetingStatus) ([]models.Meeting, error)
}

// MeetingNotifier is implemented by *services.NotificationService.
type MeetingNotifier interface {
	NotifyMeeting(ctx context.Context, kind string, meeting *models.Meeting, recipient primitive.ObjectID, sender *primitive.ObjectID, meta map[string]interface{}) (*models.Notification, error)
}

// MeetingReminderJob reminds attendees of scheduled meetings starting 15 to 30 minutes from now.
// A meeting stays in that range for several ticks, so attendees can be reminded more than once.
type MeetingReminderJob struct {
	meetings      MeetingFinder
	notifications MeetingNotifier
	hub           realtime.Broadcaster
}

func NewMeetingReminderJob(meetings MeetingFinder, notifications MeetingNotifier, hub realtime.Broadcaster) *MeetingReminderJob {
	return &MeetingReminderJob{meetings: meetings, notifications: notifications, hub: hub}
}

func (j *MeetingReminderJob) Name() string { return "meeting-reminders" }

func (j *MeetingReminderJob) Run(ctx context.Context, now time.Time) error {
	upcoming, err := j.meetings.FindStartingBetween(ctx, now.Add(reminderLead), now.Add(reminderWindow), models.MeetingScheduled)
	if err != nil {
		return err
	}

	sent := 0
	for i := range upcoming {
		meeting := &upcoming[i]
		minutes := int(math.Round(meeting.StartTime.Sub(now).Minutes()))
		for _, attendee := range meeting.Attendees {
			if _, err := j.notifications.NotifyMeeting(ctx, string(models.NotificationMeetingReminder), meeting, attendee.User, nil, map[string]interface{}{
				"minutesUntil": minutes,
			}); err != nil {
				logger.Log.WithFields(logrus.Fields{
					"meeting_id": meeting.ID.Hex(),
					"user_id":    attendee.User.Hex(),
					"error":      err,
				}).Warn("Meeting reminder failed")
				continue
			}
			if j.hub != nil {
				j.hub.EmitToUser(attendee.User.Hex(), "meeting-reminder", map[string]interface{}{
					"meetingId":    meeting.ID.Hex(),
					"title":        meeting.Title,
					"startTime":    meeting.StartTime,
					"minutesUntil": minutes,
				})
			}
			sent++
		}
	}

	logger.Log.WithFields(logrus.Fields{"meetings": len(upcoming), "reminders": sent}).Info("Meeting reminders sent")
	return nil
}
