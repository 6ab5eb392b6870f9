package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shinyyama/auction-backend/internal/event"
	"github.com/shinyyama/auction-backend/internal/model"
	"github.com/shinyyama/auction-backend/internal/money"
	"github.com/shinyyama/auction-backend/internal/reqctx"
	"github.com/shinyyama/auction-backend/internal/repository"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	MinDurationDays     = 1
	MaxDurationDays     = 7
	DefaultDurationDays = 7

	sweepBatchSize = 500
)

var errNotExpired = errors.New("not expired")

type CreateAuctionRequest struct {
	OwnerUID      string
	Title         string
	Description   string
	StartingPrice string
	CategoryID    *uint64
	DurationDays  int
	ImageURL      *string
}

type PlaceBidRequest struct {
	AuctionID uint64
	BidderUID string
	Amount    string
}

// BidResult is the committed state after an accepted bid.
type BidResult struct {
	Auction        *model.Auction
	Bid            *model.Bid
	PreviousPrice  decimal.Decimal
	PreviousLeader string
}

type AuctionDetail struct {
	Auction      *model.Auction
	Category     *model.Category
	CurrentPrice decimal.Decimal
	MinimumBid   decimal.Decimal
	BidCount     int64
	HighestBid   *model.Bid
	Bids         []model.Bid
	Comments     []model.Comment
	IsOwner      bool
	IsWinner     bool
	Watched      bool
}

type AuctionService interface {
	Create(ctx context.Context, req CreateAuctionRequest) (*model.Auction, error)
	Get(ctx context.Context, id uint64) (*model.Auction, error)
	Detail(ctx context.Context, id uint64, viewerUID string) (*AuctionDetail, error)
	ListActive(ctx context.Context, categoryID *uint64, limit, offset int) ([]model.Auction, int64, error)
	ListByOwner(ctx context.Context, ownerUID string) ([]model.Auction, error)
	ListWon(ctx context.Context, uid string) ([]model.Auction, error)
	ListBids(ctx context.Context, id uint64) ([]model.Bid, error)
	PlaceBid(ctx context.Context, req PlaceBidRequest) (*BidResult, error)
	Close(ctx context.Context, id uint64, requesterUID string) (*model.Auction, error)
	CloseExpired(ctx context.Context, now time.Time) (int, error)
	CurrentPrice(ctx context.Context, id uint64) (decimal.Decimal, error)
	MinimumBid(ctx context.Context, id uint64) (decimal.Decimal, error)
	BidCount(ctx context.Context, id uint64) (int64, error)
	HighestBid(ctx context.Context, id uint64) (*model.Bid, error)
}

type auctionService struct {
	auctions    repository.AuctionRepository
	categories  repository.CategoryRepository
	comments    repository.CommentRepository
	watchlist   repository.WatchlistRepository
	notify      NotificationService
	publisher   event.Publisher
	defaultDays int
	now         func() time.Time
}

type AuctionOption func(*auctionService)

// WithDefaultDuration sets the duration used when a create request leaves it at zero.
// Values outside the allowed range are ignored.
func WithDefaultDuration(days int) AuctionOption {
	return func(s *auctionService) {
		if days >= MinDurationDays && days <= MaxDurationDays {
			s.defaultDays = days
		}
	}
}

func NewAuctionService(
	auctions repository.AuctionRepository,
	categories repository.CategoryRepository,
	comments repository.CommentRepository,
	watchlist repository.WatchlistRepository,
	notify NotificationService,
	publisher event.Publisher,
	opts ...AuctionOption,
) AuctionService {
	if publisher == nil {
		publisher = event.Nop()
	}
	s := &auctionService{
		auctions:    auctions,
		categories:  categories,
		comments:    comments,
		watchlist:   watchlist,
		notify:      notify,
		publisher:   publisher,
		defaultDays: DefaultDurationDays,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *auctionService) Create(ctx context.Context, req CreateAuctionRequest) (*model.Auction, error) {
	if req.OwnerUID == "" {
		return nil, ErrUnauthorized
	}
	title := strings.TrimSpace(req.Title)
	description := strings.TrimSpace(req.Description)
	if title == "" || len(title) > 255 {
		return nil, fmt.Errorf("%w: invalid title", ErrInvalidInput)
	}
	if description == "" {
		return nil, fmt.Errorf("%w: invalid description", ErrInvalidInput)
	}
	price, err := money.Parse(req.StartingPrice)
	if err != nil {
		return nil, err
	}
	days := req.DurationDays
	if days == 0 {
		days = s.defaultDays
	}
	if days < MinDurationDays || days > MaxDurationDays {
		return nil, fmt.Errorf("%w: duration must be %d to %d days", ErrInvalidInput, MinDurationDays, MaxDurationDays)
	}
	var imageURL *string
	if req.ImageURL != nil {
		u := strings.TrimSpace(*req.ImageURL)
		if strings.HasPrefix(u, "data:") {
			return nil, fmt.Errorf("%w: imageUrl must be a URL, not data URI", ErrInvalidInput)
		}
		if u != "" {
			imageURL = &u
		}
	}
	if req.CategoryID != nil {
		if _, err := s.categories.FindByID(ctx, *req.CategoryID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: unknown category", ErrInvalidInput)
			}
			return nil, err
		}
	}

	now := s.now()
	end := now.Add(time.Duration(days) * 24 * time.Hour)
	a := &model.Auction{
		Title:         title,
		Description:   description,
		OwnerUID:      req.OwnerUID,
		StartingPrice: price,
		CurrentPrice:  price,
		IsActive:      true,
		ImageURL:      imageURL,
		CategoryID:    req.CategoryID,
		StartTime:     now,
		EndTime:       &end,
	}
	if err := s.auctions.Create(ctx, a); err != nil {
		return nil, err
	}
	log.Printf("%s auction created id=%d starting=%s end=%s", reqctx.Tag(ctx), a.ID, money.Format(price), end.Format(time.RFC3339))
	return a, nil
}

func (s *auctionService) Get(ctx context.Context, id uint64) (*model.Auction, error) {
	a, err := s.auctions.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (s *auctionService) Detail(ctx context.Context, id uint64, viewerUID string) (*AuctionDetail, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	bids, err := s.auctions.ListBids(ctx, id)
	if err != nil {
		return nil, err
	}
	top, err := s.auctions.HighestBid(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &AuctionDetail{
		Auction:      a,
		CurrentPrice: a.EffectivePrice(),
		MinimumBid:   a.MinimumBid(),
		BidCount:     int64(len(bids)),
		HighestBid:   top,
		Bids:         bids,
		Comments:     comments,
		IsOwner:      a.IsOwner(viewerUID),
		IsWinner:     a.IsWinner(viewerUID),
	}
	if a.CategoryID != nil {
		// a dangling category reference only hides the label
		if c, err := s.categories.FindByID(ctx, *a.CategoryID); err == nil {
			d.Category = c
		}
	}
	if viewerUID != "" {
		watched, err := s.watchlist.Exists(ctx, viewerUID, id)
		if err != nil {
			return nil, err
		}
		d.Watched = watched
	}
	return d, nil
}

func (s *auctionService) ListActive(ctx context.Context, categoryID *uint64, limit, offset int) ([]model.Auction, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.auctions.ListActive(ctx, categoryID, limit, offset)
}

func (s *auctionService) ListByOwner(ctx context.Context, ownerUID string) ([]model.Auction, error) {
	if ownerUID == "" {
		return nil, ErrUnauthorized
	}
	return s.auctions.ListByOwner(ctx, ownerUID)
}

func (s *auctionService) ListWon(ctx context.Context, uid string) ([]model.Auction, error) {
	if uid == "" {
		return nil, ErrUnauthorized
	}
	return s.auctions.ListWonBy(ctx, uid)
}

func (s *auctionService) ListBids(ctx context.Context, id uint64) ([]model.Bid, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.auctions.ListBids(ctx, id)
}

// PlaceBid validates and records a bid. The price read, the rule check, the bid insert and the price
// update all happen while the auction row is locked, so concurrent bids on one auction serialize.
func (s *auctionService) PlaceBid(ctx context.Context, req PlaceBidRequest) (*BidResult, error) {
	if req.BidderUID == "" {
		return nil, ErrUnauthorized
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		return nil, err
	}

	var res BidResult
	err = s.auctions.WithLock(ctx, req.AuctionID, func(tx repository.AuctionTx, a *model.Auction) error {
		if !a.IsActive || a.Expired(s.now()) {
			return ErrAuctionClosed
		}
		if a.IsOwner(req.BidderUID) {
			return ErrSelfBid
		}
		minimum := a.MinimumBid()
		if amount.LessThan(minimum) || !amount.GreaterThan(a.StartingPrice) {
			return fmt.Errorf("%w: minimum bid is %s", ErrBidTooLow, money.Format(minimum))
		}
		leader, err := tx.HighestBid(ctx, a.ID)
		if err != nil {
			return err
		}
		bid := &model.Bid{AuctionID: a.ID, BidderUID: req.BidderUID, Amount: amount}
		if err := tx.CreateBid(ctx, bid); err != nil {
			return err
		}
		res.PreviousPrice = a.EffectivePrice()
		a.CurrentPrice = amount
		if err := tx.UpdateAuction(ctx, a, "current_price"); err != nil {
			return err
		}
		if leader != nil {
			res.PreviousLeader = leader.BidderUID
		}
		res.Auction = a
		res.Bid = bid
		return nil
	})
	if err != nil {
		err = notFound(err)
		log.Printf("%s bid rejected auction=%d amount=%s: %v", reqctx.Tag(ctx), req.AuctionID, money.Format(amount), err)
		return nil, err
	}
	log.Printf("%s bid accepted auction=%d bid=%d amount=%s previous=%s", reqctx.Tag(ctx), res.Auction.ID, res.Bid.ID, money.Format(amount), money.Format(res.PreviousPrice))
	s.afterBid(ctx, &res)
	return &res, nil
}

// Close ends an auction on its owner's request and fixes the winner from the highest bid.
func (s *auctionService) Close(ctx context.Context, id uint64, requesterUID string) (*model.Auction, error) {
	if requesterUID == "" {
		return nil, ErrUnauthorized
	}
	return s.closeLocked(ctx, id, event.CloseReasonOwner, func(a *model.Auction) error {
		if !a.IsOwner(requesterUID) {
			return ErrForbidden
		}
		return nil
	})
}

// CloseExpired closes active auctions whose end time is at or before now and returns how many it closed.
// It scans in batches until no expired auction is left or a batch makes no progress.
func (s *auctionService) CloseExpired(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		ids, err := s.auctions.ListExpiredIDs(ctx, now, sweepBatchSize)
		if err != nil {
			return total, err
		}
		closed, err := s.closeExpiredBatch(ctx, now, ids)
		total += closed
		if err != nil {
			return total, err
		}
		if len(ids) < sweepBatchSize || closed == 0 {
			return total, nil
		}
	}
}

func (s *auctionService) closeExpiredBatch(ctx context.Context, now time.Time, ids []uint64) (int, error) {
	closed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return closed, err
		}
		_, err := s.closeLocked(ctx, id, event.CloseReasonExpired, func(a *model.Auction) error {
			if !a.Expired(now) {
				return errNotExpired
			}
			return nil
		})
		switch {
		case err == nil:
			closed++
		case errors.Is(err, ErrAlreadyClosed), errors.Is(err, errNotExpired), errors.Is(err, ErrNotFound):
			// changed since the scan
		default:
			return closed, fmt.Errorf("close expired auction %d: %w", id, err)
		}
	}
	return closed, nil
}

func (s *auctionService) closeLocked(ctx context.Context, id uint64, reason string, authorize func(a *model.Auction) error) (*model.Auction, error) {
	var (
		closed  *model.Auction
		winning *model.Bid
	)
	err := s.auctions.WithLock(ctx, id, func(tx repository.AuctionTx, a *model.Auction) error {
		if err := authorize(a); err != nil {
			return err
		}
		if !a.IsActive {
			return ErrAlreadyClosed
		}
		top, err := tx.HighestBid(ctx, a.ID)
		if err != nil {
			return err
		}
		now := s.now()
		a.IsActive = false
		a.ClosedAt = &now
		if top != nil {
			winner := top.BidderUID
			a.WinnerUID = &winner
		}
		if err := tx.UpdateAuction(ctx, a, "is_active", "winner_uid", "closed_at"); err != nil {
			return err
		}
		closed, winning = a, top
		return nil
	})
	if err != nil {
		return nil, notFound(err)
	}
	winner := "-"
	if closed.WinnerUID != nil {
		winner = *closed.WinnerUID
	}
	log.Printf("%s auction closed id=%d reason=%s winner=%s price=%s", reqctx.Tag(ctx), closed.ID, reason, winner, money.Format(closed.EffectivePrice()))
	s.afterClose(ctx, closed, winning, reason)
	return closed, nil
}

func (s *auctionService) CurrentPrice(ctx context.Context, id uint64) (decimal.Decimal, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return a.EffectivePrice(), nil
}

func (s *auctionService) MinimumBid(ctx context.Context, id uint64) (decimal.Decimal, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return a.MinimumBid(), nil
}

func (s *auctionService) BidCount(ctx context.Context, id uint64) (int64, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return 0, err
	}
	return s.auctions.CountBids(ctx, id)
}

func (s *auctionService) HighestBid(ctx context.Context, id uint64) (*model.Bid, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.auctions.HighestBid(ctx, id)
}

// afterBid runs once the bid is committed; failures are logged and never undo the bid.
func (s *auctionService) afterBid(ctx context.Context, res *BidResult) {
	a, bid := res.Auction, res.Bid
	ev := event.New(event.TypeBidPlaced, a.ID)
	ev.BidID = bid.ID
	ev.BidderUID = bid.BidderUID
	ev.Amount = money.Format(bid.Amount)
	ev.PreviousPrice = money.Format(res.PreviousPrice)
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("%s publish %s auction=%d: %v", reqctx.Tag(ctx), ev.Type, a.ID, err)
	}
	if s.notify == nil {
		return
	}
	auctionID, bidID := a.ID, bid.ID
	if res.PreviousLeader != "" && res.PreviousLeader != bid.BidderUID {
		s.notify.Notify(ctx, res.PreviousLeader, model.NotificationOutbid,
			"You have been outbid",
			fmt.Sprintf("%q now has a bid of %s.", a.Title, money.Format(bid.Amount)),
			&auctionID, &bidID)
	}
	s.notify.Notify(ctx, a.OwnerUID, model.NotificationBidReceived,
		"New bid on your auction",
		fmt.Sprintf("%q received a bid of %s.", a.Title, money.Format(bid.Amount)),
		&auctionID, &bidID)
}

func (s *auctionService) afterClose(ctx context.Context, a *model.Auction, winning *model.Bid, reason string) {
	ev := event.New(event.TypeAuctionClosed, a.ID)
	ev.Reason = reason
	ev.FinalPrice = money.Format(a.EffectivePrice())
	if winning != nil {
		ev.WinnerUID = winning.BidderUID
		ev.BidID = winning.ID
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("%s publish %s auction=%d: %v", reqctx.Tag(ctx), ev.Type, a.ID, err)
	}
	if s.notify == nil {
		return
	}
	auctionID := a.ID
	if winning != nil {
		bidID := winning.ID
		s.notify.Notify(ctx, winning.BidderUID, model.NotificationAuctionWon,
			"You won an auction",
			fmt.Sprintf("You won %q for %s.", a.Title, money.Format(winning.Amount)),
			&auctionID, &bidID)
	}
	if reason == event.CloseReasonExpired {
		s.notify.Notify(ctx, a.OwnerUID, model.NotificationAuctionClosed,
			"Your auction has ended",
			fmt.Sprintf("%q ended at %s.", a.Title, money.Format(a.EffectivePrice())),
			&auctionID, nil)
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
