package scheduler

import (
	"fmt"
	"time"
)

// Window maps a tick time to the idempotency key of the job invocation it belongs to.
// Two ticks with the same key are the same invocation.
type Window struct {
	Key func(name string, t time.Time) string
	TTL time.Duration
}

var (
	Weekly = Window{
		Key: func(name string, t time.Time) string {
			year, week := t.ISOWeek()
			return fmt.Sprintf("%s:%d-W%02d", name, year, week)
		},
		TTL: 8 * 24 * time.Hour,
	}

	FiveMinutes = Window{
		Key: func(name string, t time.Time) string {
			return fmt.Sprintf("%s:%d", name, t.Unix()/300)
		},
		TTL: 10 * time.Minute,
	}

	Hourly = Window{
		Key: func(name string, t time.Time) string {
			return name + ":" + t.Format("2006-01-02T15")
		},
		TTL: 2 * time.Hour,
	}

	Daily = Window{
		Key: func(name string, t time.Time) string {
			return name + ":" + t.Format("2006-01-02")
		},
		TTL: 48 * time.Hour,
	}
)
