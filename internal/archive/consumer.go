package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/shinyyama/auction-backend/internal/event"
)

const (
	ConsumerName  = "auction-archiver"
	handleTimeout = 30 * time.Second
)

// Consume feeds auction events from JetStream into the archiver until ctx is cancelled.
// Failed messages are redelivered; malformed ones and events for missing auctions are terminated.
func Consume(ctx context.Context, js jetstream.JetStream, a *Archiver) error {
	if _, err := event.EnsureStream(ctx, js); err != nil {
		return err
	}
	cons, err := js.CreateOrUpdateConsumer(ctx, event.StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		FilterSubject: event.SubjectWildcard,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       time.Minute,
		MaxDeliver:    10,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", ConsumerName, err)
	}
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		handleMsg(ctx, a, msg)
	})
	if err != nil {
		return fmt.Errorf("start consumer %s: %w", ConsumerName, err)
	}
	log.Printf("archive: consuming %s from %s", event.SubjectWildcard, event.StreamName)
	<-ctx.Done()
	cc.Stop()
	return nil
}

func handleMsg(ctx context.Context, a *Archiver, msg jetstream.Msg) {
	var ev event.AuctionEvent
	if err := json.Unmarshal(msg.Data(), &ev); err != nil {
		log.Printf("archive: malformed message on %s: %v", msg.Subject(), err)
		_ = msg.Term()
		return
	}
	hctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()
	if err := a.Handle(hctx, &ev); err != nil {
		log.Printf("archive: event %s auction=%d: %v", ev.EventID, ev.AuctionID, err)
		if errors.Is(err, ErrAuctionMissing) {
			_ = msg.Term()
			return
		}
		_ = msg.NakWithDelay(5 * time.Second)
		return
	}
	_ = msg.Ack()
}
