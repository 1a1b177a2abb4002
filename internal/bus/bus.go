// Package bus carries command messages between the power bridge, external
// publishers and the dispatcher.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus closed")

// Message is one delivery on a channel.
type Message struct {
	Channel string
	Payload json.RawMessage
}

// Ack acknowledges a publish. It is returned verbatim to HTTP callers.
type Ack struct {
	Channel   string `json:"channel"`
	Receivers int64  `json:"receivers"`
	Timetoken int64  `json:"timetoken"`
}

// Publisher publishes JSON-encodable messages.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg any) (Ack, error)
}

// Subscriber opens subscriptions on named channels.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (*Subscription, error)
}

// Bus is a publisher and subscriber pair.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// Subscription delivers messages on C until Close is called or the
// subscribing context ends.
type Subscription struct {
	C <-chan Message

	closeOnce sync.Once
	closeFn   func() error
	err       error
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		if s.closeFn != nil {
			s.err = s.closeFn()
		}
	})
	return s.err
}
