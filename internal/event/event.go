package event

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeBidPlaced     Type = "bid_placed"
	TypeAuctionClosed Type = "auction_closed"
)

const (
	CloseReasonOwner   = "owner"
	CloseReasonExpired = "expired"
)

// AuctionEvent is published once a ledger change has committed. Amounts are formatted decimals.
type AuctionEvent struct {
	EventID       string    `json:"event_id"`
	Type          Type      `json:"type"`
	AuctionID     uint64    `json:"auction_id"`
	BidID         uint64    `json:"bid_id,omitempty"`
	BidderUID     string    `json:"bidder_uid,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	PreviousPrice string    `json:"previous_price,omitempty"`
	WinnerUID     string    `json:"winner_uid,omitempty"`
	FinalPrice    string    `json:"final_price,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func New(typ Type, auctionID uint64) *AuctionEvent {
	return &AuctionEvent{
		EventID:   uuid.NewString(),
		Type:      typ,
		AuctionID: auctionID,
		Timestamp: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev *AuctionEvent) error
	Close() error
}

// Subject is the JetStream subject for an auction's events.
func Subject(auctionID uint64) string {
	return fmt.Sprintf("auction.events.%d", auctionID)
}

const (
	SubjectWildcard = "auction.events.*"
	channelPrefix   = "auction_events:"
	ChannelPattern  = channelPrefix + "*"
)

// Channel is the Redis pub/sub channel for an auction's events.
func Channel(auctionID uint64) string {
	return channelPrefix + strconv.FormatUint(auctionID, 10)
}

// AuctionIDFromChannel extracts the auction id from a channel name produced by Channel.
func AuctionIDFromChannel(channel string) (uint64, bool) {
	if !strings.HasPrefix(channel, channelPrefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(channel, channelPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, *AuctionEvent) error { return nil }
func (nopPublisher) Close() error                                 { return nil }

// Nop discards every event.
func Nop() Publisher {
	return nopPublisher{}
}

type multiPublisher []Publisher

// Multi fans an event out to every publisher; all are attempted and their errors joined.
func Multi(pubs ...Publisher) Publisher {
	var out multiPublisher
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return Nop()
	}
	return out
}

func (m multiPublisher) Publish(ctx context.Context, ev *AuctionEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
