package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
)

// Memory is an in-process Bus for local runs without a broker.
type Memory struct {
	clock clockwork.Clock

	mu     sync.Mutex
	subs   map[string][]*memorySub
	all    map[*memorySub]struct{}
	closed bool
}

type memorySub struct {
	ch     chan Message
	done   chan struct{} // closed by detach
	closed bool
}

var _ Bus = (*Memory)(nil)

func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		clock: clock,
		subs:  make(map[string][]*memorySub),
		all:   make(map[*memorySub]struct{}),
	}
}

// Publish delivers msg to every current subscriber of channel. Subscribers
// whose buffer is full miss the message.
func (m *Memory) Publish(_ context.Context, channel string, msg any) (Ack, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return Ack{}, fmt.Errorf("marshal message for %s: %w", channel, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Ack{}, ErrClosed
	}
	var delivered int64
	for _, s := range m.subs[channel] {
		select {
		case s.ch <- Message{Channel: channel, Payload: data}:
			delivered++
		default:
		}
	}
	return Ack{Channel: channel, Receivers: delivered, Timetoken: m.clock.Now().UnixNano()}, nil
}

func (m *Memory) Subscribe(ctx context.Context, channels ...string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	s := &memorySub{ch: make(chan Message, subscriptionBuffer), done: make(chan struct{})}
	for _, c := range channels {
		m.subs[c] = append(m.subs[c], s)
	}
	m.all[s] = struct{}{}

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.detach(s)
	}
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-s.done:
		}
	}()
	return &Subscription{
		C: s.ch,
		closeFn: func() error {
			unsubscribe()
			return nil
		},
	}, nil
}

// detach removes s from every channel and closes it. Caller holds m.mu.
func (m *Memory) detach(s *memorySub) {
	if s.closed {
		return
	}
	s.closed = true
	for name, list := range m.subs {
		kept := list[:0]
		for _, other := range list {
			if other != s {
				kept = append(kept, other)
			}
		}
		if len(kept) == 0 {
			delete(m.subs, name)
		} else {
			m.subs[name] = kept
		}
	}
	delete(m.all, s)
	close(s.ch)
	close(s.done)
}

// Close closes every open subscription.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for s := range m.all {
		m.detach(s)
	}
	return nil
}
