// Package live delivers "refresh now" signals to open session views.
//
// A signal carries no payload beyond its event name and the user it
// concerns. Delivery is fire-and-forget: a lost signal only delays a
// refresh until the view is next loaded.
package live

import "context"

// EventSessionUpdated tells a session list to reload.
const EventSessionUpdated = "session-updated"

// Event is a signal received by a subscriber.
type Event struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// Notifier publishes signals for a user.
// Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, userID, event string) error
	Close() error
}

// Nop discards every signal.
type Nop struct{}

// Notify drops the event.
func (Nop) Notify(context.Context, string, string) error { return nil }

// Close is a no-op.
func (Nop) Close() error { return nil }
