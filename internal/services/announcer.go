package services

import (
	"context"
	"strings"
	"time"

	"github.com/synergysphere/server/internal/events"
	"github.com/synergysphere/server/internal/realtime"
	"github.com/synergysphere/server/pkg/logger"
)

const publishTimeout = 10 * time.Second

// announcer fans a domain change out to connected clients and the event stream.
// Both are best effort: failures are logged and never returned.
type announcer struct {
	hub       realtime.Broadcaster
	publisher events.Publisher
}

func newAnnouncer(hub realtime.Broadcaster, publisher events.Publisher) announcer {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return announcer{hub: hub, publisher: publisher}
}

// broadcast emits a socket event to everyone and publishes it as a domain event.
func (a announcer) broadcast(event, key string, payload interface{}) {
	if a.hub != nil {
		a.hub.Broadcast(event, payload)
	}
	a.publish(eventType(event), key, payload)
}

// eventType turns a socket event name into a domain event type:
// "task-created" becomes "task.created", "weekly-report-ready" becomes "weekly-report.ready".
func eventType(event string) string {
	i := strings.LastIndex(event, "-")
	if i <= 0 {
		return event
	}
	return event[:i] + "." + event[i+1:]
}

func (a announcer) publish(eventType, key string, payload interface{}) {
	ev := events.NewEvent(eventType, key, payload)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := a.publisher.Publish(ctx, ev); err != nil {
			logger.Log.WithError(err).WithField("event", eventType).Warn("Domain event dropped")
		}
	}()
}
