// Package jobs holds the scheduled background jobs.
package jobs

import (
	"context"
	"time"
)

// Job is one unit of scheduled work. Run may be called directly; the scheduler
// adds the once-per-window guard.
type Job interface {
	Name() string
	Run(ctx context.Context, now time.Time) error
}
