// Package events publishes domain events to the event stream.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/synergysphere/server/pkg/logger"
)

// Event is one domain fact, e.g. "task.created".
type Event struct {
	Type       string      `json:"type"`
	Key        string      `json:"key"`
	Payload    interface{} `json:"payload"`
	OccurredAt time.Time   `json:"occurredAt"`
}

func NewEvent(eventType, key string, payload interface{}) Event {
	return Event{Type: eventType, Key: key, Payload: payload, OccurredAt: time.Now().UTC()}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func (NopPublisher) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON events keyed by entity id, retrying with exponential backoff.
type KafkaPublisher struct {
	writer     messageWriter
	topic      string
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

func NewKafkaPublisher(brokers []string, topic, clientID string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Transport: &kafka.Transport{
			ClientID: clientID,
		},
	}
	return newKafkaPublisher(writer, topic)
}

func newKafkaPublisher(writer messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer:     writer,
		topic:      topic,
		maxRetries: 3,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}

	attempt := 0
	op := func() error {
		attempt++
		return p.writer.WriteMessages(ctx, msg)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), p.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"topic":    p.topic,
			"event":    event.Type,
			"key":      event.Key,
			"attempts": attempt,
			"error":    err,
		}).Error("Failed to publish event")
		return errors.Wrap(err, "failed to publish event")
	}

	logger.Log.WithFields(logrus.Fields{"topic": p.topic, "event": event.Type, "key": event.Key}).Debug("Event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
