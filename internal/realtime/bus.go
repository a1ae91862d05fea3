package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anonto42/reelshelf/backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Bus moves change events between server processes. Publish sends an event
// to every process; Start feeds events published anywhere into the local hub.
type Bus interface {
	Publisher
	Start(ctx context.Context) error
	Close() error
}

// LocalBus is the single-process bus: publishing delivers straight to the hub.
type LocalBus struct {
	hub *Hub
}

// NewLocalBus creates a bus bound to one hub
func NewLocalBus(hub *Hub) *LocalBus {
	return &LocalBus{hub: hub}
}

func (b *LocalBus) Publish(ctx context.Context, ev Event) error { return b.hub.Publish(ctx, ev) }
func (b *LocalBus) Start(context.Context) error                 { return nil }
func (b *LocalBus) Close() error                                { return nil }

// RedisBus fans events out through a Redis pub/sub channel so that a write
// handled by one instance reaches subscribers connected to any instance.
type RedisBus struct {
	log     *logger.Logger
	rdb     *redis.Client
	channel string
	hub     *Hub
}

// NewRedisBus creates a bus over an already connected client
func NewRedisBus(rdb *redis.Client, channel string, hub *Hub, log *logger.Logger) (*RedisBus, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if channel == "" {
		channel = "saved_item_changes"
	}
	return &RedisBus{
		log:     log.With("service", "RedisBus"),
		rdb:     rdb,
		channel: channel,
		hub:     hub,
	}, nil
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// Start subscribes to the channel and forwards every message to the hub
// until ctx is cancelled.
func (b *RedisBus) Start(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad redis change payload", "error", err)
					continue
				}
				b.hub.Deliver(ev)
			}
		}
	}()

	b.log.Info("forwarding change events", "channel", b.channel)
	return nil
}

// Close is a no-op; the client is owned by the connection set in pkg/config.
func (b *RedisBus) Close() error { return nil }
