// Package notify is the user-facing notification side channel. Every
// mutation reports exactly one success or error message here; subscribers
// (the websocket feed, tests) receive them fire-and-forget.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/asaidimu/go-events"
	"go.uber.org/zap"
)

// Kind classifies a notification for presentation.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// DefaultDismissAfter is the auto-dismiss timeout presentation layers apply
// when the caller does not override it.
const DefaultDismissAfter = 3 * time.Second

const topic = "notification"

// Notification is one message on the side channel.
type Notification struct {
	Message string    `json:"message"`
	Kind    Kind      `json:"kind"`
	At      time.Time `json:"at"`
}

// Notifier fans notifications out to any number of subscribers over a typed
// event bus. Publishing never blocks the caller and has no return value.
type Notifier struct {
	bus    *events.TypedEventBus[Notification]
	logger *zap.Logger
}

// NewNotifier creates a Notifier. A nil logger falls back to a no-op logger.
func NewNotifier(logger *zap.Logger) (*Notifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus, err := events.NewTypedEventBus[Notification](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize notification bus: %w", err)
	}
	return &Notifier{bus: bus, logger: logger}, nil
}

// Notify publishes a notification of the given kind.
func (n *Notifier) Notify(message string, kind Kind) {
	note := Notification{Message: message, Kind: kind, At: time.Now()}
	n.logger.Debug("notification", zap.String("message", message), zap.String("kind", string(kind)))
	n.bus.Emit(topic, note)
}

// Success publishes a success-kind notification.
func (n *Notifier) Success(message string) { n.Notify(message, KindSuccess) }

// Error publishes an error-kind notification.
func (n *Notifier) Error(message string) { n.Notify(message, KindError) }

// Subscribe registers a callback for every subsequent notification and
// returns its unsubscribe function.
func (n *Notifier) Subscribe(fn func(Notification)) func() {
	return n.bus.Subscribe(topic, func(ctx context.Context, note Notification) error {
		fn(note)
		return nil
	})
}
