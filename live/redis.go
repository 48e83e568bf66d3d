package live

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes signals on a per-user Redis channel so every
// instance behind a load balancer can refresh its open views.
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

// NewRedisNotifier creates a notifier from a Redis client and a channel prefix.
// prefix typically ends with a colon.
func NewRedisNotifier(client *redis.Client, channelPrefix string) *RedisNotifier {
	if channelPrefix == "" {
		channelPrefix = "sessiondedup:live:"
	}
	return &RedisNotifier{client: client, prefix: channelPrefix}
}

// Notify publishes the event name on the user's channel.
func (n *RedisNotifier) Notify(ctx context.Context, userID, event string) error {
	if err := n.client.Publish(ctx, n.prefix+userID, event).Err(); err != nil {
		return fmt.Errorf("redis: failed to publish %s: %w", event, err)
	}
	return nil
}

// Subscribe streams signals for userID until ctx is done.
// The channel is closed when the subscription ends.
func (n *RedisNotifier) Subscribe(ctx context.Context, userID string) (<-chan Event, error) {
	pubsub := n.client.Subscribe(ctx, n.prefix+userID)

	// Wait for the subscription to be confirmed before returning, so a
	// Notify issued right after Subscribe is not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: failed to subscribe: %w", err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- Event{UserID: strings.TrimPrefix(msg.Channel, n.prefix), Name: msg.Payload}:
				default:
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis connection.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
