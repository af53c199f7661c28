// Package notify adapts the delivery collaborator. The engine never talks to
// a gateway itself; it hands requests to one of these.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

// BusNotifier publishes each request on the notification topic for an
// external delivery service to consume.
type BusNotifier struct {
	bus domain.EventBus
}

// NewBusNotifier creates a notifier backed by bus.
func NewBusNotifier(bus domain.EventBus) *BusNotifier {
	return &BusNotifier{bus: bus}
}

// Deliver publishes req. A publish error reports the request as undelivered.
func (n *BusNotifier) Deliver(ctx context.Context, req *domain.NotificationRequest) (bool, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("failed to marshal request %s: %w", req.ID, err)
	}
	if err := n.bus.Publish(ctx, req.SchoolID, domain.TopicNotificationRequested, payload); err != nil {
		return false, err
	}
	return true, nil
}

// LogNotifier writes requests to the log instead of delivering them. Used in
// development and when no delivery service is attached.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs through logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Deliver logs req and reports success.
func (n *LogNotifier) Deliver(_ context.Context, req *domain.NotificationRequest) (bool, error) {
	n.logger.Info("notification",
		"school_id", req.SchoolID,
		"rule_id", req.RuleID,
		"student_id", req.StudentID,
		"role", req.Role,
		"recipient", req.Recipient.Name,
		"template_id", req.TemplateID,
		"params", strings.Join(req.Params, "|"),
	)
	return true, nil
}

// New returns the notifier for the named mode: "bus" or "log".
func New(mode string, bus domain.EventBus, logger *slog.Logger) (domain.Notifier, error) {
	switch mode {
	case "bus":
		if bus == nil {
			return nil, fmt.Errorf("bus notifier requires an event bus")
		}
		return NewBusNotifier(bus), nil
	case "log", "":
		return NewLogNotifier(logger), nil
	default:
		return nil, fmt.Errorf("unsupported notifier: %s", mode)
	}
}
