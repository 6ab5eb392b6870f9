package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shinyyama/auction-backend/internal/event"
	"github.com/shinyyama/auction-backend/internal/model"
	"github.com/shinyyama/auction-backend/internal/money"
	"github.com/shinyyama/auction-backend/internal/repository"
	"gorm.io/gorm"
)

// ErrAuctionMissing marks events whose auction no longer exists; retrying them cannot succeed.
var ErrAuctionMissing = errors.New("auction missing")

type Bid struct {
	ID        uint64    `json:"id"`
	BidderUID string    `json:"bidder_uid"`
	Amount    string    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger is the archived record of a closed auction: final state plus every bid, oldest first.
type Ledger struct {
	AuctionID     uint64     `json:"auction_id"`
	Title         string     `json:"title"`
	OwnerUID      string     `json:"owner_uid"`
	StartingPrice string     `json:"starting_price"`
	FinalPrice    string     `json:"final_price"`
	WinnerUID     *string    `json:"winner_uid,omitempty"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	CloseReason   string     `json:"close_reason"`
	Bids          []Bid      `json:"bids"`
	ArchivedAt    time.Time  `json:"archived_at"`
}

type Archiver struct {
	auctions repository.AuctionRepository
	store    Store
	now      func() time.Time
}

func NewArchiver(auctions repository.AuctionRepository, store Store) *Archiver {
	return &Archiver{auctions: auctions, store: store, now: func() time.Time { return time.Now().UTC() }}
}

func EventKey(ev *event.AuctionEvent) string {
	return fmt.Sprintf("auctions/%d/events/%s.json", ev.AuctionID, ev.EventID)
}

func LedgerKey(auctionID uint64) string {
	return fmt.Sprintf("auctions/%d/ledger.json", auctionID)
}

// Handle stores the raw event and, for auction_closed, the full ledger. Writes are keyed by
// event id and auction id, so redelivery overwrites instead of duplicating.
func (a *Archiver) Handle(ctx context.Context, ev *event.AuctionEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := a.store.Put(ctx, EventKey(ev), raw); err != nil {
		return err
	}
	if ev.Type != event.TypeAuctionClosed {
		return nil
	}
	ledger, err := a.buildLedger(ctx, ev)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return err
	}
	if err := a.store.Put(ctx, LedgerKey(ev.AuctionID), data); err != nil {
		return err
	}
	log.Printf("archive: auction=%d bids=%d final=%s", ledger.AuctionID, len(ledger.Bids), ledger.FinalPrice)
	return nil
}

func (a *Archiver) buildLedger(ctx context.Context, ev *event.AuctionEvent) (*Ledger, error) {
	auc, err := a.auctions.FindByID(ctx, ev.AuctionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrAuctionMissing, ev.AuctionID)
		}
		return nil, err
	}
	bids, err := a.auctions.ListBids(ctx, ev.AuctionID)
	if err != nil {
		return nil, err
	}
	return newLedger(auc, bids, ev.Reason, a.now()), nil
}

func newLedger(a *model.Auction, newestFirst []model.Bid, reason string, now time.Time) *Ledger {
	l := &Ledger{
		AuctionID:     a.ID,
		Title:         a.Title,
		OwnerUID:      a.OwnerUID,
		StartingPrice: money.Format(a.StartingPrice),
		FinalPrice:    money.Format(a.EffectivePrice()),
		WinnerUID:     a.WinnerUID,
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		ClosedAt:      a.ClosedAt,
		CloseReason:   reason,
		Bids:          make([]Bid, 0, len(newestFirst)),
		ArchivedAt:    now,
	}
	for i := len(newestFirst) - 1; i >= 0; i-- {
		b := newestFirst[i]
		l.Bids = append(l.Bids, Bid{
			ID:        b.ID,
			BidderUID: b.BidderUID,
			Amount:    money.Format(b.Amount),
			CreatedAt: b.CreatedAt,
		})
	}
	return l
}
