package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"tv_bridge/internal/logger"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const subscriptionBuffer = 64

// RedisOptions configures the Redis pub/sub bus.
type RedisOptions struct {
	URL        string // e.g. redis://localhost:6379/0
	ClientName string
	Username   string // ACL user allowed to publish and subscribe
	Password   string
	Clock      clockwork.Clock
}

// Redis is a Bus backed by Redis Pub/Sub.
type Redis struct {
	rdb   *goredis.Client
	clock clockwork.Clock
	log   *logger.Logger
}

var _ Bus = (*Redis)(nil)

// NewRedis creates a Redis bus. It does not connect until first use.
func NewRedis(opts RedisOptions, log *logger.Logger) (*Redis, error) {
	ro, err := goredis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if opts.ClientName != "" {
		ro.ClientName = opts.ClientName
	}
	if opts.Username != "" {
		ro.Username = opts.Username
	}
	if opts.Password != "" {
		ro.Password = opts.Password
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Redis{rdb: goredis.NewClient(ro), clock: opts.Clock, log: log}, nil
}

// Ping verifies the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Publish encodes msg as JSON and publishes it.
func (r *Redis) Publish(ctx context.Context, channel string, msg any) (Ack, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return Ack{}, fmt.Errorf("marshal message for %s: %w", channel, err)
	}
	n, err := r.rdb.Publish(ctx, channel, data).Result()
	if err != nil {
		return Ack{}, fmt.Errorf("publish to %s: %w", channel, err)
	}
	return Ack{Channel: channel, Receivers: n, Timetoken: r.clock.Now().UnixNano()}, nil
}

// Subscribe waits for the subscription to be confirmed, then forwards
// messages until ctx ends or the subscription is closed.
func (r *Redis) Subscribe(ctx context.Context, channels ...string) (*Subscription, error) {
	ps := r.rdb.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan Message, subscriptionBuffer)

	go func() {
		defer close(out)
		in := ps.Channel()
		for {
			select {
			case msg, ok := <-in:
				if !ok {
					return
				}
				r.log.Debugw("bus_message_received", "channel", msg.Channel)
				select {
				case out <- Message{Channel: msg.Channel, Payload: json.RawMessage(msg.Payload)}:
				case <-subCtx.Done():
					return
				}
			case <-subCtx.Done():
				return
			}
		}
	}()

	return &Subscription{
		C: out,
		closeFn: func() error {
			cancel()
			return ps.Close()
		},
	}, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
