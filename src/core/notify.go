package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"gbs/src/types"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes drop change payloads to the realtime channel the client
// apps subscribe to. Fire-and-forget.
type Notifier interface {
	DropChanged(change types.DropChange)
}

func DropChannel(dropID uint) string {
	return fmt.Sprintf("drops:%d", dropID)
}

func PickupChannel(pickupPointID uint) string {
	return fmt.Sprintf("pickup:%d", pickupPointID)
}

// RedisNotifier publishes every change on the drop's own channel and, when
// the drop is tied to a pickup point, on that pickup point's channel too.
type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func (n *RedisNotifier) DropChanged(change types.DropChange) {
	b, err := json.Marshal(change)
	if err != nil {
		log.Printf("Failed to marshal drop change: %s\n", err.Error())
		return
	}
	go func() {
		ctx := context.Background()
		if err := n.rdb.Publish(ctx, DropChannel(change.ID), b).Err(); err != nil {
			log.Printf("Failed to publish drop change for drop %d: %s\n", change.ID, err.Error())
		}
		if change.PickupPointID > 0 {
			if err := n.rdb.Publish(ctx, PickupChannel(change.PickupPointID), b).Err(); err != nil {
				log.Printf("Failed to publish drop change for pickup %d: %s\n", change.PickupPointID, err.Error())
			}
		}
	}()
}

type nopNotifier struct{}

func (nopNotifier) DropChanged(types.DropChange) {}

// DropEventConsumer feeds deduplicated drop changes to a handler. The
// realtime channel is at-least-once and republishes the full snapshot, so
// consumers drop anything they have already seen, keyed on the composite of
// id, updated_at, value and discount.
type DropEventConsumer struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	handler func(types.DropChange)
}

func NewDropEventConsumer(handler func(types.DropChange)) *DropEventConsumer {
	return &DropEventConsumer{
		seen:    make(map[string]struct{}),
		handler: handler,
	}
}

func changeKey(c types.DropChange) string {
	return fmt.Sprintf("%d|%d|%.4f|%.2f", c.ID, c.UpdatedAt.UnixNano(), c.CurrentValue, c.CurrentDiscount)
}

// Consume reports whether the change was new. Duplicates never reach the
// handler.
func (c *DropEventConsumer) Consume(change types.DropChange) bool {
	key := changeKey(change)
	c.mu.Lock()
	if _, ok := c.seen[key]; ok {
		c.mu.Unlock()
		return false
	}
	c.seen[key] = struct{}{}
	c.mu.Unlock()
	if c.handler != nil {
		c.handler(change)
	}
	return true
}

// Run pumps a redis subscription into the consumer until the context ends.
func (c *DropEventConsumer) Run(ctx context.Context, sub *redis.PubSub) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var change types.DropChange
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				log.Printf("Skipping malformed drop change: %s\n", err.Error())
				continue
			}
			c.Consume(change)
		}
	}
}
