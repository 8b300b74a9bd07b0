package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/synergysphere/server/internal/config"
	"github.com/synergysphere/server/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectDB opens the client and verifies the connection with a ping.
func ConnectDB(ctx context.Context, cfg *config.Config) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to MongoDB")
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "failed to ping MongoDB")
	}

	logger.Log.WithField("db", cfg.DBName).Info("Connected to MongoDB")
	return client.Database(cfg.DBName), nil
}

// EnsureIndexes creates the indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		"notifications": {
			{Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "read", Value: 1}}},
			{Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "type", Value: 1}}},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
		"tasks": {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "due_date", Value: 1}}},
			{Keys: bson.D{{Key: "assignee", Value: 1}}},
			{Keys: bson.D{{Key: "completed_at", Value: -1}}},
			{Keys: bson.D{{Key: "github_repository", Value: 1}, {Key: "github_issue_id", Value: 1}}},
		},
		"meetings": {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "start_time", Value: 1}}},
			{Keys: bson.D{{Key: "attendees.user", Value: 1}}},
		},
		"users": {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"job_runs": {
			{Keys: bson.D{{Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
	}

	for collection, models := range indexes {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "failed to create indexes on %s", collection)
		}
	}
	return nil
}
