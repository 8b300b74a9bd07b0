package models

import "time"

// JobRun marks that a scheduled job has claimed one invocation window.
type JobRun struct {
	Key       string    `bson:"key" json:"key"`
	StartedAt time.Time `bson:"started_at" json:"startedAt"`
	ExpiresAt time.Time `bson:"expires_at" json:"expiresAt"`
}
