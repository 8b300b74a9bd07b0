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

type NotificationRepository struct {
	collection *mongo.Collection
}

func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{
		collection: db.Collection("notifications"),
	}
}

// notExpired matches notifications still visible at now.
func notExpired(now time.Time) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"expires_at": nil},
		bson.M{"expires_at": bson.M{"$gt": now}},
	}}
}

// Create inserts a new notification
func (r *NotificationRepository) Create(ctx context.Context, notif *models.Notification) error {
	now := time.Now()
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = now
	}
	notif.UpdatedAt = notif.CreatedAt
	if notif.ExpiresAt.IsZero() {
		notif.ExpiresAt = notif.CreatedAt.Add(models.NotificationTTL)
	}

	result, err := r.collection.InsertOne(ctx, notif)
	if err != nil {
		logrus.WithError(err).Error("Failed to insert notification")
		return errors.Wrap(err, "failed to create notification")
	}
	if id, ok := result.InsertedID.(primitive.ObjectID); ok {
		notif.ID = id
	}
	return nil
}

func (r *NotificationRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Notification, error) {
	var notif models.Notification
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&notif)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.NewNotFoundError("notification")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch notification")
	}
	return &notif, nil
}

// List returns a page of a recipient's unexpired notifications, newest first, and the total count.
func (r *NotificationRepository) List(ctx context.Context, recipient primitive.ObjectID, filter models.NotificationFilter, now time.Time) ([]models.Notification, int64, error) {
	query := bson.M{"recipient": recipient}
	for k, v := range notExpired(now) {
		query[k] = v
	}
	if filter.Read != nil {
		query["read"] = *filter.Read
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to count notifications")
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		opts.SetSkip(int64((page - 1) * filter.Limit)).SetLimit(int64(filter.Limit))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to fetch notifications")
	}
	defer cursor.Close(ctx)

	notifications := []models.Notification{}
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, 0, errors.Wrap(err, "failed to decode notifications")
	}
	return notifications, total, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, recipient primitive.ObjectID, now time.Time) (int64, error) {
	query := bson.M{"recipient": recipient, "read": false}
	for k, v := range notExpired(now) {
		query[k] = v
	}
	count, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count unread notifications")
	}
	return count, nil
}

// SetRead flips the read flag, keeping read_at in step with it.
func (r *NotificationRepository) SetRead(ctx context.Context, id primitive.ObjectID, read bool, at time.Time) error {
	var update bson.M
	if read {
		update = bson.M{"$set": bson.M{"read": true, "read_at": at, "updated_at": at}}
	} else {
		update = bson.M{
			"$set":   bson.M{"read": false, "updated_at": at},
			"$unset": bson.M{"read_at": ""},
		}
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return errors.Wrap(err, "failed to update notification")
	}
	if result.MatchedCount == 0 {
		return apperrors.NewNotFoundError("notification")
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipient primitive.ObjectID, at time.Time) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{"recipient": recipient, "read": false},
		bson.M{"$set": bson.M{"read": true, "read_at": at, "updated_at": at}},
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to mark notifications as read")
	}
	return result.ModifiedCount, nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "failed to delete notification")
	}
	if result.DeletedCount == 0 {
		return apperrors.NewNotFoundError("notification")
	}
	return nil
}

func (r *NotificationRepository) DeleteRead(ctx context.Context, recipient primitive.ObjectID) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"recipient": recipient, "read": true})
	if err != nil {
		return 0, errors.Wrap(err, "failed to clear read notifications")
	}
	return result.DeletedCount, nil
}

// DeleteExpired removes notifications whose expiry is strictly before now.
func (r *NotificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": now}})
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete expired notifications")
	}
	logrus.WithField("deleted", result.DeletedCount).Info("Deleted expired notifications")
	return result.DeletedCount, nil
}

func (r *NotificationRepository) DistinctTypes(ctx context.Context, recipient primitive.ObjectID) ([]string, error) {
	values, err := r.collection.Distinct(ctx, "type", bson.M{"recipient": recipient})
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch notification types")
	}
	types := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			types = append(types, s)
		}
	}
	return types, nil
}

func (r *NotificationRepository) Stats(ctx context.Context, recipient primitive.ObjectID, now time.Time) (*models.NotificationStats, error) {
	base := bson.M{"recipient": recipient}

	total, err := r.collection.CountDocuments(ctx, base)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count notifications")
	}
	unread, err := r.CountUnread(ctx, recipient, now)
	if err != nil {
		return nil, err
	}
	recent, err := r.collection.CountDocuments(ctx, bson.M{
		"recipient":  recipient,
		"created_at": bson.M{"$gte": now.Add(-7 * 24 * time.Hour)},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to count recent notifications")
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: base}},
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$type"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate notification types")
	}
	defer cursor.Close(ctx)

	var groups []struct {
		Type  string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, errors.Wrap(err, "failed to decode notification types")
	}

	stats := &models.NotificationStats{
		Total:  total,
		Unread: unread,
		Read:   total - unread,
		Recent: recent,
		ByType: make(map[string]int64, len(groups)),
	}
	for _, g := range groups {
		stats.ByType[g.Type] = g.Count
	}
	return stats, nil
}
