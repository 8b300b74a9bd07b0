package repository

import (
	"context"
	"regexp"
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

type TaskRepository struct {
	collection *mongo.Collection
}

func NewTaskRepository(db *mongo.Database) *TaskRepository {
	return &TaskRepository{
		collection: db.Collection("tasks"),
	}
}

func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, task)
	if err != nil {
		logrus.WithError(err).Error("Failed to insert task")
		return errors.Wrap(err, "failed to create task")
	}
	if id, ok := result.InsertedID.(primitive.ObjectID); ok {
		task.ID = id
	}

	logrus.WithField("task_id", task.ID.Hex()).Info("Task created")
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Task, error) {
	var task models.Task
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&task)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.NewNotFoundError("task")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch task")
	}
	return &task, nil
}

func (r *TaskRepository) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Priority != "" {
		query["priority"] = filter.Priority
	}
	if filter.Assignee != nil {
		query["assignee"] = *filter.Assignee
	}
	if filter.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
		}
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to count tasks")
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		opts.SetSkip(int64((page - 1) * filter.Limit)).SetLimit(int64(filter.Limit))
	}

	tasks, err := r.find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// Update replaces the stored task with task.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	task.UpdatedAt = time.Now()
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": task.ID}, task)
	if err != nil {
		logrus.WithFields(logrus.Fields{"task_id": task.ID.Hex(), "error": err}).Error("Failed to update task")
		return errors.Wrap(err, "failed to update task")
	}
	if result.MatchedCount == 0 {
		return apperrors.NewNotFoundError("task")
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "failed to delete task")
	}
	if result.DeletedCount == 0 {
		return apperrors.NewNotFoundError("task")
	}
	logrus.WithField("task_id", id.Hex()).Info("Task deleted")
	return nil
}

func (r *TaskRepository) AddFeedback(ctx context.Context, id primitive.ObjectID, fb models.Feedback, entry models.ActivityEntry) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$push": bson.M{"feedback": fb, "activity_log": entry},
		"$set":  bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return errors.Wrap(err, "failed to add feedback")
	}
	if result.MatchedCount == 0 {
		return apperrors.NewNotFoundError("task")
	}
	return nil
}

// FindCompletedSince returns done tasks completed at or after since.
func (r *TaskRepository) FindCompletedSince(ctx context.Context, since time.Time) ([]models.Task, error) {
	return r.find(ctx, bson.M{
		"status":       models.TaskDone,
		"completed_at": bson.M{"$gte": since},
	}, options.Find().SetSort(bson.D{{Key: "completed_at", Value: -1}}))
}

// FindWithFeedbackSince returns tasks with at least one feedback entry at or after since.
func (r *TaskRepository) FindWithFeedbackSince(ctx context.Context, since time.Time) ([]models.Task, error) {
	return r.find(ctx, bson.M{"feedback.created_at": bson.M{"$gte": since}}, nil)
}

// FindOverdue returns open tasks whose due date is before now.
func (r *TaskRepository) FindOverdue(ctx context.Context, now time.Time) ([]models.Task, error) {
	return r.find(ctx, bson.M{
		"due_date": bson.M{"$lt": now},
		"status":   bson.M{"$ne": models.TaskDone},
	}, nil)
}

func (r *TaskRepository) FindByGitHubIssue(ctx context.Context, repository string, issueID int64) (*models.Task, error) {
	var task models.Task
	err := r.collection.FindOne(ctx, bson.M{
		"github_repository": repository,
		"github_issue_id":   issueID,
	}).Decode(&task)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.NewNotFoundError("task")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch task by issue")
	}
	return &task, nil
}

func (r *TaskRepository) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]models.Task, error) {
	if opts == nil {
		opts = options.Find()
	}
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch tasks")
	}
	defer cursor.Close(ctx)

	tasks := []models.Task{}
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, errors.Wrap(err, "failed to decode tasks")
	}
	return tasks, nil
}
