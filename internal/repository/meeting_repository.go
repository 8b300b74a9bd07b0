package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MeetingRepository struct {
	collection *mongo.Collection
}

func NewMeetingRepository(db *mongo.Database) *MeetingRepository {
	return &MeetingRepository{
		collection: db.Collection("meetings"),
	}
}

func (r *MeetingRepository) Create(ctx context.Context, meeting *models.Meeting) error {
	now := time.Now()
	meeting.CreatedAt = now
	meeting.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, meeting)
	if err != nil {
		logrus.WithError(err).Error("Failed to insert meeting")
		return errors.Wrap(err, "failed to create meeting")
	}
	if id, ok := result.InsertedID.(primitive.ObjectID); ok {
		meeting.ID = id
	}
	return nil
}

func (r *MeetingRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Meeting, error) {
	var meeting models.Meeting
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&meeting)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.NewNotFoundError("meeting")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch meeting")
	}
	return &meeting, nil
}

func (r *MeetingRepository) Update(ctx context.Context, meeting *models.Meeting) error {
	meeting.UpdatedAt = time.Now()
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": meeting.ID}, meeting)
	if err != nil {
		return errors.Wrap(err, "failed to update meeting")
	}
	if result.MatchedCount == 0 {
		return apperrors.NewNotFoundError("meeting")
	}
	return nil
}

func (r *MeetingRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "failed to delete meeting")
	}
	if result.DeletedCount == 0 {
		return apperrors.NewNotFoundError("meeting")
	}
	return nil
}

// ListForUser returns meetings the user organizes or attends, soonest first.
func (r *MeetingRepository) ListForUser(ctx context.Context, user primitive.ObjectID) ([]models.Meeting, error) {
	return r.find(ctx, bson.M{"$or": bson.A{
		bson.M{"organizer": user},
		bson.M{"attendees.user": user},
	}})
}

// FindStartingBetween returns meetings in status whose start time lies in [from, to].
func (r *MeetingRepository) FindStartingBetween(ctx context.Context, from, to time.Time, status models.MeetingStatus) ([]models.Meeting, error) {
	return r.find(ctx, bson.M{
		"status":     status,
		"start_time": bson.M{"$gte": from, "$lte": to},
	})
}

func (r *MeetingRepository) find(ctx context.Context, query bson.M) ([]models.Meeting, error) {
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch meetings")
	}
	defer cursor.Close(ctx)

	meetings := []models.Meeting{}
	if err := cursor.All(ctx, &meetings); err != nil {
		return nil, errors.Wrap(err, "failed to decode meetings")
	}
	return meetings, nil
}
