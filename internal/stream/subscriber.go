package stream

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/shinyyama/auction-backend/internal/event"
)

// Subscriber relays auction events published to Redis into the local hub, so every API
// instance can serve websocket clients regardless of which instance accepted the bid.
type Subscriber struct {
	client *redis.Client
	hub    *Hub
}

func NewSubscriber(client *redis.Client, hub *Hub) *Subscriber {
	return &Subscriber{client: client, hub: hub}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (s *Subscriber) Run(ctx context.Context) error {
	ps := s.client.PSubscribe(ctx, event.ChannelPattern)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", event.ChannelPattern, err)
	}
	log.Printf("stream: subscribed to %s", event.ChannelPattern)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			id, ok := event.AuctionIDFromChannel(msg.Channel)
			if !ok {
				log.Printf("stream: ignoring message on %s", msg.Channel)
				continue
			}
			s.hub.Broadcast(id, []byte(msg.Payload))
		}
	}
}
