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
)

// UserRepository handles database operations related to users.
type UserRepository struct {
	collection *mongo.Collection
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		collection: db.Collection("users"),
	}
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return apperrors.NewValidationError("email already in use").WithField("email", "is already registered")
	}
	if err != nil {
		logrus.WithError(err).Error("Failed to insert user into database")
		return errors.Wrap(err, "failed to insert user")
	}

	if id, ok := result.InsertedID.(primitive.ObjectID); ok {
		user.ID = id
	}

	logrus.WithField("user_id", user.ID.Hex()).Info("User inserted successfully")
	return nil
}

// FindByEmail retrieves a user by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

// FindByID retrieves a user by their ID.
func (r *UserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) FindAll(ctx context.Context) ([]models.User, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch users")
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, errors.Wrap(err, "failed to decode users")
	}
	return users, nil
}

func (r *UserRepository) UpdateLastActive(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"last_active_at": at}})
	if err != nil {
		return errors.Wrap(err, "failed to update last active")
	}
	return nil
}

func (r *UserRepository) UpdatePreferences(ctx context.Context, id primitive.ObjectID, prefs models.NotificationPrefs) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"notification_prefs": prefs,
		"updated_at":         time.Now(),
	}})
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": id.Hex(), "error": err}).Error("Failed to update user")
		return errors.Wrap(err, "failed to update preferences")
	}
	if result.MatchedCount == 0 {
		return apperrors.NewNotFoundError("user")
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, query bson.M) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, query).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.NewNotFoundError("user")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find user")
	}
	return &user, nil
}
