// Package bus carries domain events and notification requests between the
// API, the scheduler and the automation worker.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tahfidz-hub/mizan/internal/domain"
)

var (
	errSchoolRequired = errors.New("schoolID is required")
	errClosed         = errors.New("bus is closed")
)

// New creates the event bus the configuration asks for.
// Community tier: in-process channels. Pro tier: NATS.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// PublishEvent encodes ev and publishes it on the topic of its kind.
// A missing ID or timestamp is filled in.
func PublishEvent(ctx context.Context, b domain.EventBus, ev *domain.DomainEvent) error {
	topic := domain.TopicFor(ev.Kind)
	if topic == "" {
		return fmt.Errorf("no topic for event kind %q", ev.Kind)
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", ev.ID, err)
	}
	return b.Publish(ctx, ev.SchoolID, topic, payload)
}

// DecodeEvent unpacks the domain event carried by msg. The envelope's school
// wins over whatever the payload claims.
func DecodeEvent(msg *domain.Message) (*domain.DomainEvent, error) {
	var ev domain.DomainEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event on %s: %w", msg.Topic, err)
	}
	ev.SchoolID = msg.SchoolID
	return &ev, nil
}

func newMessage(schoolID, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		SchoolID:  schoolID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
}
