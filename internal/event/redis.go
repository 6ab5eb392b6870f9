package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher pushes events onto per-auction pub/sub channels for live viewers.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev *AuctionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.client.Publish(ctx, Channel(ev.AuctionID), data).Err()
}

// Close is a no-op; the client is shared with the stream subscriber and closed by its owner.
func (p *RedisPublisher) Close() error {
	return nil
}
