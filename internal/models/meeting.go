package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AttendeeStatus string

const (
	AttendeeInvited  AttendeeStatus = "invited"
	AttendeeAccepted AttendeeStatus = "accepted"
	AttendeeDeclined AttendeeStatus = "declined"
	AttendeeAttended AttendeeStatus = "attended"
	AttendeeNoShow   AttendeeStatus = "no-show"
)

type MeetingStatus string

const (
	MeetingScheduled  MeetingStatus = "scheduled"
	MeetingInProgress MeetingStatus = "in-progress"
	MeetingCompleted  MeetingStatus = "completed"
	MeetingCancelled  MeetingStatus = "cancelled"
)

type Attendee struct {
	User         primitive.ObjectID `bson:"user" json:"user"`
	Status       AttendeeStatus     `bson:"status" json:"status"`
	ResponseTime *time.Time         `bson:"response_time,omitempty" json:"responseTime,omitempty"`
}

type Meeting struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	StartTime   time.Time          `bson:"start_time" json:"startTime"`
	EndTime     time.Time          `bson:"end_time" json:"endTime"`
	Organizer   primitive.ObjectID `bson:"organizer" json:"organizer"`
	Attendees   []Attendee         `bson:"attendees" json:"attendees"`
	Type        string             `bson:"type" json:"type"`
	Location    string             `bson:"location,omitempty" json:"location,omitempty"`
	Status      MeetingStatus      `bson:"status" json:"status"`
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updatedAt"`
}

// Attendee returns the attendee entry for user, or nil.
func (m *Meeting) Attendee(user primitive.ObjectID) *Attendee {
	for i := range m.Attendees {
		if m.Attendees[i].User == user {
			return &m.Attendees[i]
		}
	}
	return nil
}

// Involves reports whether user organizes or attends the meeting.
func (m *Meeting) Involves(user primitive.ObjectID) bool {
	return m.Organizer == user || m.Attendee(user) != nil
}
