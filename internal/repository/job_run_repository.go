package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/synergysphere/server/internal/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// JobRunRepository claims job invocation windows through a unique index on key.
type JobRunRepository struct {
	collection *mongo.Collection
}

func NewJobRunRepository(db *mongo.Database) *JobRunRepository {
	return &JobRunRepository{
		collection: db.Collection("job_runs"),
	}
}

// Acquire returns true if key was not yet claimed. The record expires after ttl.
func (r *JobRunRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	_, err := r.collection.InsertOne(ctx, models.JobRun{
		Key:       key,
		StartedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to record job run")
	}
	return true, nil
}
