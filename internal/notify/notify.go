// Package notify tells subscribed clients that a stored entity changed.
// Delivery is best-effort fan-out over Redis pub/sub; readers re-fetch the
// entity on receipt, so a lost event costs freshness, never correctness.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	usersChannel       = "entity:users"
	conversationPrefix = "entity:conversation:"
)

// Event is the payload published on entity channels.
type Event struct {
	Entity    string `json:"entity"`         // "conversation" or "users"
	ID        string `json:"id,omitempty"`   // conversation ID when applicable
	Kind      string `json:"kind"`           // "message", "read", "typing", "reaction", "presence", "membership"
	Timestamp int64  `json:"ts"`             // unix ms
}

// Notifier announces entity changes to whatever delivery layer is attached.
// Implementations must never fail the calling request.
type Notifier interface {
	ConversationChanged(ctx context.Context, conversationID uuid.UUID, kind string)
	UsersChanged(ctx context.Context, kind string)
	Close() error
}

// RedisNotifier publishes change events over Redis pub/sub.
type RedisNotifier struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisNotifier creates a notifier on an existing Redis connection.
func NewRedisNotifier(ctx context.Context, redisURL string, logger zerolog.Logger) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisNotifier{client: client, logger: logger}, nil
}

// Ping checks the Redis connection.
func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

// Client exposes the underlying Redis connection so other components can
// share it.
func (n *RedisNotifier) Client() *redis.Client {
	return n.client
}

// Close closes the Redis connection.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// ConversationChanged announces that a conversation's stored state moved:
// a new message, a read acknowledgement, a typing change, or a reaction.
func (n *RedisNotifier) ConversationChanged(ctx context.Context, conversationID uuid.UUID, kind string) {
	n.publish(ctx, conversationPrefix+conversationID.String(), Event{
		Entity:    "conversation",
		ID:        conversationID.String(),
		Kind:      kind,
		Timestamp: time.Now().UnixMilli(),
	})
}

// UsersChanged announces a change to the user roster or presence flags.
func (n *RedisNotifier) UsersChanged(ctx context.Context, kind string) {
	n.publish(ctx, usersChannel, Event{
		Entity:    "users",
		Kind:      kind,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (n *RedisNotifier) publish(ctx context.Context, channel string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := n.client.Publish(ctx, channel, payload).Err(); err != nil {
		n.logger.Warn().Err(err).Str("channel", channel).Msg("notify publish failed")
	}
}

// Nop is the notifier used when no delivery layer is configured.
type Nop struct{}

func (Nop) ConversationChanged(context.Context, uuid.UUID, string) {}
func (Nop) UsersChanged(context.Context, string)                   {}
func (Nop) Close() error                                           { return nil }
