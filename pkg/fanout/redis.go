package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultBusChannel is the redis pub/sub channel carrying broadcast
// envelopes between processes.
const DefaultBusChannel = "notify:fanout"

// RedisBridge routes envelopes through redis pub/sub so broadcasts reach
// connections held by any process in the deployment.
type RedisBridge struct {
	client  redis.UniversalClient
	channel string
	log     *slog.Logger
}

// RedisBridgeOption configures a RedisBridge.
type RedisBridgeOption func(*RedisBridge)

// WithBusChannel overrides the pub/sub channel name.
func WithBusChannel(channel string) RedisBridgeOption {
	return func(b *RedisBridge) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// WithBridgeLogger sets the logger for subscription-side failures.
func WithBridgeLogger(log *slog.Logger) RedisBridgeOption {
	return func(b *RedisBridge) {
		if log != nil {
			b.log = log
		}
	}
}

// NewRedisBridge creates a bridge over an established redis client.
func NewRedisBridge(client redis.UniversalClient, opts ...RedisBridgeOption) *RedisBridge {
	b := &RedisBridge{
		client:  client,
		channel: DefaultBusChannel,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RedisBridge) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal bus envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrBridgeUnavailable, err)
	}
	return nil
}

// Subscribe consumes the pub/sub channel until ctx is cancelled.
// Envelopes that fail to decode are logged and skipped.
func (b *RedisBridge) Subscribe(ctx context.Context, handler func(Envelope)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()

	// Force the subscription to be established before consuming so
	// startup failures surface immediately.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrBridgeUnavailable, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ErrBridgeUnavailable
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.ErrorContext(ctx, "failed to decode bus envelope",
					slog.Any("error", err))
				continue
			}
			handler(env)
		}
	}
}

func (b *RedisBridge) Close() error {
	return nil
}
