package domain

import "context"

// Notifier is the delivery collaborator. The boolean reports success and is
// used only for logging; transport, retries and backoff live behind it.
type Notifier interface {
	Deliver(ctx context.Context, req *NotificationRequest) (bool, error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, req *NotificationRequest) (bool, error)

// Deliver calls f.
func (f NotifierFunc) Deliver(ctx context.Context, req *NotificationRequest) (bool, error) {
	return f(ctx, req)
}
