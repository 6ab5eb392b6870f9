package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const StreamName = "AUCTION_EVENTS"

// NATSPublisher writes events to a JetStream stream so the archiver can consume them at least once.
type NATSPublisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewNATSPublisher(ctx context.Context, nc *nats.Conn) (*NATSPublisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	if _, err := EnsureStream(ctx, js); err != nil {
		return nil, err
	}
	return &NATSPublisher{nc: nc, js: js}, nil
}

// EnsureStream creates or updates the auction events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Committed auction ledger events",
		Subjects:    []string{SubjectWildcard},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("create/update stream %s: %w", StreamName, err)
	}
	return stream, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, ev *AuctionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	// Msg id lets the server drop duplicates if a publish is retried.
	if _, err := p.js.Publish(ctx, Subject(ev.AuctionID), data, jetstream.WithMsgID(ev.EventID)); err != nil {
		return fmt.Errorf("publish to %s: %w", Subject(ev.AuctionID), err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
