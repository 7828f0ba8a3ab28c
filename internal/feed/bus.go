package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const defaultChannel = "feed:script_ideas"

// Bus publishes and delivers script idea change events over a Redis
// pub/sub channel. Delivery is fan-out: every open subscription sees
// every event in publish order.
type Bus struct {
	rdb     *redis.Client
	channel string
	logger  *log.Logger
}

func NewBus(rdb *redis.Client, logger *log.Logger) *Bus {
	return &Bus{rdb: rdb, channel: defaultChannel, logger: logger}
}

func (b *Bus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode feed event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish feed event: %w", err)
	}
	return nil
}

// Subscribe opens a subscription and returns a channel of decoded
// events plus a stop function. Malformed messages are logged and
// skipped. The event channel is closed after stop is called.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, func()) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	events := make(chan Event, 64)
	go func() {
		defer close(events)
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("drop malformed feed event", "error", err)
				continue
			}
			events <- event
		}
	}()
	stop := func() { _ = pubsub.Close() }
	return events, stop
}
