package services

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/events"
	"github.com/synergysphere/server/internal/models"
	"github.com/synergysphere/server/internal/realtime"
	"github.com/synergysphere/server/internal/validation"
	"github.com/synergysphere/server/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CreateMeetingInput struct {
	Title       string               `json:"title" validate:"required,max=200"`
	Description string               `json:"description" validate:"max=2000"`
	StartTime   time.Time            `json:"startTime" validate:"required"`
	EndTime     time.Time            `json:"endTime" validate:"required"`
	Type        string               `json:"type" validate:"omitempty,oneof=general standup review planning retrospective"`
	Location    string               `json:"location" validate:"max=500"`
	Attendees   []primitive.ObjectID `json:"attendees"`
}

type UpdateMeetingInput struct {
	Title       *string               `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string               `json:"description" validate:"omitempty,max=2000"`
	StartTime   *time.Time            `json:"startTime"`
	EndTime     *time.Time            `json:"endTime"`
	Type        *string               `json:"type" validate:"omitempty,oneof=general standup review planning retrospective"`
	Location    *string               `json:"location" validate:"omitempty,max=500"`
	Status      *models.MeetingStatus `json:"status" validate:"omitempty,oneof=scheduled in-progress completed cancelled"`
	Attendees   []primitive.ObjectID  `json:"attendees"`
}

type MeetingService struct {
	repo          MeetingStore
	notifications *NotificationService
	announce      announcer
	now           func() time.Time
}

func NewMeetingService(repo MeetingStore, notifications *NotificationService, hub realtime.Broadcaster, publisher events.Publisher) *MeetingService {
	return &MeetingService{
		repo:          repo,
		notifications: notifications,
		announce:      newAnnouncer(hub, publisher),
		now:           time.Now,
	}
}

func timeRangeError() error {
	return apperrors.NewValidationError("invalid meeting").WithField("endTime", "must be after start time")
}

// Create stores the meeting with the organizer as an accepted attendee and invites the rest.
func (s *MeetingService) Create(ctx context.Context, actor Actor, input CreateMeetingInput) (*models.Meeting, error) {
	input.Title = strings.TrimSpace(input.Title)
	if err := validation.Struct("invalid meeting", input); err != nil {
		return nil, err
	}
	if !input.StartTime.Before(input.EndTime) {
		return nil, timeRangeError()
	}

	now := s.now()
	meeting := &models.Meeting{
		Title:       input.Title,
		Description: input.Description,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		Type:        input.Type,
		Location:    input.Location,
		Organizer:   actor.ID,
		Status:      models.MeetingScheduled,
		Attendees:   []models.Attendee{{User: actor.ID, Status: models.AttendeeAccepted, ResponseTime: &now}},
	}
	if meeting.Type == "" {
		meeting.Type = "general"
	}
	invited := addAttendees(meeting, input.Attendees)

	if err := s.repo.Create(ctx, meeting); err != nil {
		return nil, err
	}

	s.invite(ctx, meeting, invited, actor.ID)
	s.announce.broadcast("meeting-created", meeting.ID.Hex(), meeting)
	return meeting, nil
}

// addAttendees appends users not yet on the meeting as invited and returns them.
func addAttendees(meeting *models.Meeting, users []primitive.ObjectID) []primitive.ObjectID {
	var added []primitive.ObjectID
	for _, user := range users {
		if user.IsZero() || meeting.Attendee(user) != nil {
			continue
		}
		meeting.Attendees = append(meeting.Attendees, models.Attendee{User: user, Status: models.AttendeeInvited})
		added = append(added, user)
	}
	return added
}

func (s *MeetingService) invite(ctx context.Context, meeting *models.Meeting, users []primitive.ObjectID, sender primitive.ObjectID) {
	for _, user := range users {
		if user == sender {
			continue
		}
		s.notify(ctx, string(models.NotificationMeetingInvite), meeting, user, sender)
	}
}

func (s *MeetingService) notify(ctx context.Context, kind string, meeting *models.Meeting, recipient, sender primitive.ObjectID) {
	if _, err := s.notifications.NotifyMeeting(ctx, kind, meeting, recipient, &sender, nil); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"meeting_id": meeting.ID.Hex(),
			"recipient":  recipient.Hex(),
			"kind":       kind,
			"error":      err,
		}).Warn("Meeting notification failed")
	}
}

// Get returns the meeting if the actor organizes or attends it.
func (s *MeetingService) Get(ctx context.Context, actor Actor, id primitive.ObjectID) (*models.Meeting, error) {
	meeting, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !meeting.Involves(actor.ID) && !actor.IsAdmin() {
		return nil, apperrors.NewForbiddenError("not authorized to view this meeting")
	}
	return meeting, nil
}

func (s *MeetingService) List(ctx context.Context, actor Actor) ([]models.Meeting, error) {
	return s.repo.ListForUser(ctx, actor.ID)
}

func (s *MeetingService) Update(ctx context.Context, actor Actor, id primitive.ObjectID, input UpdateMeetingInput) (*models.Meeting, error) {
	if err := validation.Struct("invalid meeting", input); err != nil {
		return nil, err
	}
	meeting, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if meeting.Organizer != actor.ID {
		return nil, apperrors.NewForbiddenError("only the organizer can update this meeting")
	}

	wasCancelled := meeting.Status == models.MeetingCancelled
	if input.Title != nil {
		meeting.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		meeting.Description = *input.Description
	}
	if input.StartTime != nil {
		meeting.StartTime = *input.StartTime
	}
	if input.EndTime != nil {
		meeting.EndTime = *input.EndTime
	}
	if !meeting.StartTime.Before(meeting.EndTime) {
		return nil, timeRangeError()
	}
	if input.Type != nil {
		meeting.Type = *input.Type
	}
	if input.Location != nil {
		meeting.Location = *input.Location
	}
	if input.Status != nil {
		meeting.Status = *input.Status
	}

	var invited []primitive.ObjectID
	if input.Attendees != nil {
		keep := map[primitive.ObjectID]bool{meeting.Organizer: true}
		for _, user := range input.Attendees {
			keep[user] = true
		}
		kept := meeting.Attendees[:0]
		for _, a := range meeting.Attendees {
			if keep[a.User] {
				kept = append(kept, a)
			}
		}
		meeting.Attendees = kept
		invited = addAttendees(meeting, input.Attendees)
	}

	if err := s.repo.Update(ctx, meeting); err != nil {
		return nil, err
	}

	if meeting.Status == models.MeetingCancelled && !wasCancelled {
		for _, a := range meeting.Attendees {
			if a.User != actor.ID {
				s.notify(ctx, MeetingCancelled, meeting, a.User, actor.ID)
			}
		}
	} else {
		s.invite(ctx, meeting, invited, actor.ID)
	}
	s.announce.broadcast("meeting-updated", meeting.ID.Hex(), meeting)
	return meeting, nil
}

func (s *MeetingService) Delete(ctx context.Context, actor Actor, id primitive.ObjectID) error {
	meeting, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if meeting.Organizer != actor.ID {
		return apperrors.NewForbiddenError("only the organizer can delete this meeting")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.announce.broadcast("meeting-deleted", id.Hex(), map[string]string{"id": id.Hex()})
	return nil
}

// Respond records the actor's answer to an invitation.
func (s *MeetingService) Respond(ctx context.Context, actor Actor, id primitive.ObjectID, status models.AttendeeStatus) (*models.Meeting, error) {
	if status != models.AttendeeAccepted && status != models.AttendeeDeclined {
		return nil, apperrors.NewValidationError("invalid response").WithField("status", "must be one of: accepted declined")
	}
	meeting, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	attendee := meeting.Attendee(actor.ID)
	if attendee == nil {
		return nil, apperrors.NewForbiddenError("you are not an attendee of this meeting")
	}

	now := s.now()
	attendee.Status = status
	attendee.ResponseTime = &now
	if err := s.repo.Update(ctx, meeting); err != nil {
		return nil, err
	}
	s.announce.broadcast("meeting-updated", meeting.ID.Hex(), meeting)
	return meeting, nil
}
