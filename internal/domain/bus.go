package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// All methods require schoolID for strict multi-school isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, schoolID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, schoolID string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	SchoolID  string            `json:"schoolId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds

	// QueueGroup load-balances each subject across worker replicas so an
	// event is handled once per deployment. Empty means fan-out.
	QueueGroup string
}

// Topic names. Domain events carry a DomainEvent payload; the notification
// topic carries NotificationRequest payloads for the delivery service.
const (
	TopicMemorizationApproved  = "mizan.memorization.approved"
	TopicAbsenceRecorded       = "mizan.attendance.absent"
	TopicBehaviorRecorded      = "mizan.behavior.recorded"
	TopicPaymentDue            = "mizan.payment.due"
	TopicMonthlyTick           = "mizan.schedule.monthly"
	TopicNotificationRequested = "mizan.notification.requested"
)

// TopicFor returns the bus topic domain events of the given kind travel on.
func TopicFor(kind EventKind) string {
	switch kind {
	case EventMemorizationApproved:
		return TopicMemorizationApproved
	case EventAbsenceRecorded:
		return TopicAbsenceRecorded
	case EventBehaviorRecorded:
		return TopicBehaviorRecorded
	case EventPaymentDue:
		return TopicPaymentDue
	case EventMonthlyTick:
		return TopicMonthlyTick
	default:
		return ""
	}
}

// EventTopics lists every domain event topic the worker subscribes to.
func EventTopics() []string {
	return []string{
		TopicMemorizationApproved,
		TopicAbsenceRecorded,
		TopicBehaviorRecorded,
		TopicPaymentDue,
		TopicMonthlyTick,
	}
}
