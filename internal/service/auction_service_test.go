package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shinyyama/auction-backend/internal/event"
	"github.com/shinyyama/auction-backend/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) createAuction(t *testing.T, owner, price string) *model.Auction {
	t.Helper()
	a, err := f.svc.Create(context.Background(), CreateAuctionRequest{
		OwnerUID:      owner,
		Title:         "Vintage camera",
		Description:   "Works fine",
		StartingPrice: price,
		DurationDays:  3,
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) bid(id uint64, bidder, amount string) (*BidResult, error) {
	return f.svc.PlaceBid(context.Background(), PlaceBidRequest{AuctionID: id, BidderUID: bidder, Amount: amount})
}

func TestCreateAuction(t *testing.T) {
	f := newFixture()
	a := f.createAuction(t, "alice", "10.00")

	assert.True(t, a.IsActive)
	assert.True(t, a.CurrentPrice.Equal(dec("10")))
	require.NotNil(t, a.EndTime)
	assert.Equal(t, f.now.Add(72*time.Hour), *a.EndTime)
	assert.Nil(t, a.WinnerUID)
}

func TestCreateAuctionDefaultDuration(t *testing.T) {
	f := newFixture()
	req := CreateAuctionRequest{OwnerUID: "alice", Title: "Lamp", Description: "Brass", StartingPrice: "5"}

	a, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, f.now.AddDate(0, 0, DefaultDurationDays), *a.EndTime)

	WithDefaultDuration(2)(f.svc)
	a, err = f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, f.now.AddDate(0, 0, 2), *a.EndTime)

	WithDefaultDuration(30)(f.svc)
	a, err = f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, f.now.AddDate(0, 0, 2), *a.EndTime, "out-of-range default is ignored")
}

func TestCreateAuctionValidation(t *testing.T) {
	f := newFixture()
	cat, _ := f.categories.FindOrCreate(context.Background(), "Cameras")
	missing := cat.ID + 10
	dataURI := "data:image/png;base64,AAAA"

	tests := []struct {
		name string
		req  CreateAuctionRequest
		want error
	}{
		{"no owner", CreateAuctionRequest{Title: "t", Description: "d", StartingPrice: "1"}, ErrUnauthorized},
		{"blank title", CreateAuctionRequest{OwnerUID: "a", Title: " ", Description: "d", StartingPrice: "1"}, ErrInvalidInput},
		{"blank description", CreateAuctionRequest{OwnerUID: "a", Title: "t", StartingPrice: "1"}, ErrInvalidInput},
		{"zero price", CreateAuctionRequest{OwnerUID: "a", Title: "t", Description: "d", StartingPrice: "0"}, ErrInvalidAmount},
		{"three decimals", CreateAuctionRequest{OwnerUID: "a", Title: "t", Description: "d", StartingPrice: "1.005"}, ErrInvalidAmount},
		{"duration too long", CreateAuctionRequest{OwnerUID: "a", Title: "t", Description: "d", StartingPrice: "1", DurationDays: 8}, ErrInvalidInput},
		{"negative duration", CreateAuctionRequest{OwnerUID: "a", Title: "t", Description: "d", StartingPrice: "1", DurationDays: -1}, ErrInvalidInput},
		{"unknown category", CreateAuctionRequest{OwnerUID: "a", Title: "t", Description: "d", StartingPrice: "1", CategoryID: &missing}, ErrInvalidInput},
		{"data uri image", CreateAuctionRequest{OwnerUID: "a", Title: "t", Description: "d", StartingPrice: "1", ImageURL: &dataURI}, ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	a, err := f.svc.Create(context.Background(), CreateAuctionRequest{
		OwnerUID: "a", Title: "t", Description: "d", StartingPrice: "1", CategoryID: &cat.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(7*24*time.Hour), *a.EndTime)
}

func TestPlaceBidMinimumIncrement(t *testing.T) {
	f := newFixture()
	a := f.createAuction(t, "alice", "10.00")

	_, err := f.bid(a.ID, "bob", "10.00")
	assert.ErrorIs(t, err, ErrBidTooLow)

	res, err := f.bid(a.ID, "bob", "10.01")
	require.NoError(t, err)
	assert.True(t, res.Auction.CurrentPrice.Equal(dec("10.01")))
	assert.True(t, res.PreviousPrice.Equal(dec("10.00")))

	_, err = f.bid(a.ID, "carol", "10.01")
	assert.ErrorIs(t, err, ErrBidTooLow)

	res, err = f.bid(a.ID, "carol", "15")
	require.NoError(t, err)
	assert.Equal(t, "bob", res.PreviousLeader)

	ctx := context.Background()
	price, err := f.svc.CurrentPrice(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, price.Equal(dec("15.00")))

	minimum, err := f.svc.MinimumBid(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, minimum.Equal(dec("15.01")))

	count, err := f.svc.BidCount(ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	top, err := f.svc.HighestBid(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "carol", top.BidderUID)
}

func TestPlaceBidRejections(t *testing.T) {
	f := newFixture()
	a := f.createAuction(t, "alice", "10.00")

	tests := []struct {
		name   string
		id     uint64
		bidder string
		amount string
		want   error
	}{
		{"unknown auction", a.ID + 100, "bob", "20", ErrNotFound},
		{"owner bids", a.ID, "alice", "20", ErrSelfBid},
		{"too many decimals", a.ID, "bob", "10.001", ErrInvalidAmount},
		{"negative", a.ID, "bob", "-5", ErrInvalidAmount},
		{"zero", a.ID, "bob", "0", ErrInvalidAmount},
		{"not a number", a.ID, "bob", "ten", ErrInvalidAmount},
		{"anonymous", a.ID, "", "20", ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.bid(tt.id, tt.bidder, tt.amount)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	count, err := f.svc.BidCount(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, f.publisher.events)
}

func TestPlaceBidAcceptsTrailingZero(t *testing.T) {
	f := newFixture()
	a := f.createAuction(t, "alice", "10.00")

	res, err := f.bid(a.ID, "bob", "10.010")
	require.NoError(t, err)
	assert.Equal(t, "10.01", res.Bid.Amount.StringFixed(2))
}

func TestPlaceBidFailedWriteLeavesNoTrace(t *testing.T) {
	f := newFixture()
	a := f.createAuction(t, "alice", "10.00")
	f.auctions.failUpdate = errors.New("disk full")

	_, err := f.bid(a.ID, "bob", "12")
	require.Error(t, err)

	f.auctions.failUpdate = nil
	count, err := f.svc.BidCount(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	price, err := f.svc.CurrentPrice(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, price.Equal(dec("10")))
}

func TestPlaceBidEmitsEventAndNotifications(t *testing.T) {
	f := newFixture()
	a := f.createAuction(t, "alice", "10.00")

	first, err := f.bid(a.ID, "bob", "11")
	require.NoError(t, err)
	_, err = f.bid(a.ID, "carol", "12")
	require.NoError(t, err)

	events := f.publisher.ofType(event.TypeBidPlaced)
	require.Len(t, events, 2)
	assert.Equal(t, "11.00", events[0].Amount)
	assert.Equal(t, "10.00", events[0].PreviousPrice)
	assert.Equal(t, "12.00", events[1].Amount)
	assert.Equal(t, "11.00", events[1].PreviousPrice)

	outbid := f.notifications.byType("bob", model.NotificationOutbid)
	require.Len(t, outbid, 1)
	assert.Equal(t, a.ID, *outbid[0].AuctionID)
	assert.Len(t, f.notifications.byType("alice", model.NotificationBidReceived), 2)
	assert.Empty(t, f.notifications.byType("carol", model.NotificationOutbid))

	// raising your own bid is not an outbid
	_, err = f.bid(a.ID, "carol", "13")
	require.NoError(t, err)
	assert.Empty(t, f.notifications.byType("carol", model.NotificationOutbid))
	assert.NotZero(t, first.Bid.ID)
}

func TestPlaceBidSurvivesPublishFailure(t *testing.T) {
	f := newFixture()
	f.publisher.err = errors.New("nats down")
	a := f.createAuction(t, "alice", "10.00")

	_, err := f.bid(a.ID, "bob", "11")
	require.NoError(t, err)
	count, _ := f.svc.BidCount(context.Background(), a.ID)
	assert.EqualValues(t, 1, count)
}

func TestCloseAuction(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.createAuction(t, "alice", "10.00")
	_, err := f.bid(a.ID, "bob", "10.01")
	require.NoError(t, err)
	_, err = f.bid(a.ID, "carol", "15")
	require.NoError(t, err)

	_, err = f.svc.Close(ctx, a.ID, "bob")
	assert.ErrorIs(t, err, ErrForbidden)

	closed, err := f.svc.Close(ctx, a.ID, "alice")
	require.NoError(t, err)
	assert.False(t, closed.IsActive)
	require.NotNil(t, closed.WinnerUID)
	assert.Equal(t, "carol", *closed.WinnerUID)
	require.NotNil(t, closed.ClosedAt)

	_, err = f.svc.Close(ctx, a.ID, "alice")
	assert.ErrorIs(t, err, ErrAlreadyClosed)
	_, err = f.svc.Close(ctx, a.ID, "bob")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.bid(a.ID, "bob", "100")
	assert.ErrorIs(t, err, ErrAuctionClosed)

	_, err = f.svc.Close(ctx, a.ID+5, "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	closedEvents := f.publisher.ofType(event.TypeAuctionClosed)
	require.Len(t, closedEvents, 1)
	assert.Equal(t, "carol", closedEvents[0].WinnerUID)
	assert.Equal(t, "15.00", closedEvents[0].FinalPrice)
	assert.Equal(t, event.CloseReasonOwner, closedEvents[0].Reason)
	assert.Len(t, f.notifications.byType("carol", model.NotificationAuctionWon), 1)

	won, err := f.svc.ListWon(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, won, 1)
	assert.Equal(t, a.ID, won[0].ID)
}

func TestCloseWithoutBidsHasNoWinner(t *testing.T) {
	f := newFixture()
	a := f.createAuction(t, "alice", "10.00")

	closed, err := f.svc.Close(context.Background(), a.ID, "alice")
	require.NoError(t, err)
	assert.Nil(t, closed.WinnerUID)
	assert.True(t, closed.EffectivePrice().Equal(dec("10")))

	events := f.publisher.ofType(event.TypeAuctionClosed)
	require.Len(t, events, 1)
	assert.Empty(t, events[0].WinnerUID)
}

func TestCloseExpired(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	expiring := f.createAuction(t, "alice", "5")
	_, err := f.bid(expiring.ID, "bob", "6")
	require.NoError(t, err)

	f.now = f.now.Add(48 * time.Hour)
	later, err := f.svc.Create(ctx, CreateAuctionRequest{
		OwnerUID: "dave", Title: "Lamp", Description: "Brass", StartingPrice: "20", DurationDays: 7,
	})
	require.NoError(t, err)

	f.now = f.now.Add(24 * time.Hour)
	_, err = f.bid(expiring.ID, "carol", "50")
	assert.ErrorIs(t, err, ErrAuctionClosed)

	n, err := f.svc.CloseExpired(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, expiring.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.True(t, got.IsWinner("bob"))
	assert.True(t, got.CurrentPrice.Equal(dec("6")))

	still, err := f.svc.Get(ctx, later.ID)
	require.NoError(t, err)
	assert.True(t, still.IsActive)

	n, err = f.svc.CloseExpired(ctx, f.now)
	require.NoError(t, err)
	assert.Zero(t, n)

	events := f.publisher.ofType(event.TypeAuctionClosed)
	require.Len(t, events, 1)
	assert.Equal(t, event.CloseReasonExpired, events[0].Reason)
	assert.Len(t, f.notifications.byType("alice", model.NotificationAuctionClosed), 1)
}

func TestCloseExpiredDrainsEveryBatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	n := 2*sweepBatchSize + 100
	for i := 0; i < n; i++ {
		f.createAuction(t, "alice", "5")
	}
	f.now = f.now.Add(4 * 24 * time.Hour)

	closed, err := f.svc.CloseExpired(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, n, closed)
	assert.Empty(t, f.auctions.filter(func(a model.Auction) bool { return a.IsActive }))
}

// staleScan reports a full batch of ids whose auctions are no longer expired.
type staleScan struct {
	*memAuctions
	calls int
}

func (s *staleScan) ListExpiredIDs(_ context.Context, _ time.Time, limit int) ([]uint64, error) {
	s.calls++
	list := s.filter(func(a model.Auction) bool { return a.IsActive })
	ids := make([]uint64, 0, limit)
	for i := 0; len(ids) < limit; i++ {
		ids = append(ids, list[i%len(list)].ID)
	}
	return ids, nil
}

func TestCloseExpiredStopsWithoutProgress(t *testing.T) {
	f := newFixture()
	f.createAuction(t, "alice", "5")
	scan := &staleScan{memAuctions: f.auctions}
	svc := NewAuctionService(scan, f.categories, f.comments, f.watchlist, nil, f.publisher)

	closed, err := svc.CloseExpired(context.Background(), f.now)
	require.NoError(t, err)
	assert.Zero(t, closed)
	assert.Equal(t, 1, scan.calls)
}

func TestDetail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	cat, _ := f.categories.FindOrCreate(ctx, "Cameras")
	a, err := f.svc.Create(ctx, CreateAuctionRequest{
		OwnerUID: "alice", Title: "Leica", Description: "M6", StartingPrice: "100", CategoryID: &cat.ID,
	})
	require.NoError(t, err)
	_, err = f.bid(a.ID, "bob", "101")
	require.NoError(t, err)
	_, err = f.bid(a.ID, "carol", "120.50")
	require.NoError(t, err)
	_, err = f.watchlist.Toggle(ctx, "bob", a.ID)
	require.NoError(t, err)
	_, err = NewCommentService(f.comments, f.auctions).Add(ctx, a.ID, "bob", "Is the shutter accurate?")
	require.NoError(t, err)

	d, err := f.svc.Detail(ctx, a.ID, "bob")
	require.NoError(t, err)
	assert.True(t, d.CurrentPrice.Equal(dec("120.50")))
	assert.True(t, d.MinimumBid.Equal(dec("120.51")))
	assert.EqualValues(t, 2, d.BidCount)
	require.Len(t, d.Bids, 2)
	assert.Equal(t, "carol", d.Bids[0].BidderUID)
	assert.Equal(t, "carol", d.HighestBid.BidderUID)
	assert.Equal(t, "Cameras", d.Category.Name)
	require.Len(t, d.Comments, 1)
	assert.False(t, d.IsOwner)
	assert.False(t, d.IsWinner)
	assert.True(t, d.Watched)

	d, err = f.svc.Detail(ctx, a.ID, "alice")
	require.NoError(t, err)
	assert.True(t, d.IsOwner)
	assert.False(t, d.Watched)

	_, err = f.svc.Detail(ctx, a.ID+1, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListActive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.createAuction(t, "alice", "1")
	}
	closing := f.createAuction(t, "alice", "1")
	_, err := f.svc.Close(ctx, closing.ID, "alice")
	require.NoError(t, err)

	list, total, err := f.svc.ListActive(ctx, nil, 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, list, 2)

	mine, err := f.svc.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, mine, 4)
}

func TestConcurrentBidsSerialize(t *testing.T) {
	f := newFixture()
	a := f.createAuction(t, "alice", "10.00")

	const n = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []decimal.Decimal
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := fmt.Sprintf("%d.%02d", 11+(i*37)%n, i)
			res, err := f.bid(a.ID, fmt.Sprintf("bidder-%d", i), amount)
			if err != nil {
				assert.ErrorIs(t, err, ErrBidTooLow)
				return
			}
			mu.Lock()
			accepted = append(accepted, res.Bid.Amount)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	bids, err := f.svc.ListBids(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Len(t, bids, len(accepted))
	require.NotEmpty(t, bids)

	// newest first, so amounts strictly decrease down the list
	for i := 1; i < len(bids); i++ {
		assert.True(t, bids[i-1].Amount.GreaterThan(bids[i].Amount), "bid %d not above %d", i-1, i)
	}
	top := decimal.Max(accepted[0], accepted[1:]...)
	price, err := f.svc.CurrentPrice(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, price.Equal(top))
	assert.True(t, bids[0].Amount.Equal(top))
	assert.Len(t, f.publisher.ofType(event.TypeBidPlaced), len(accepted))
}

func TestCloseRacesWithBids(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.createAuction(t, "alice", "1.00")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = f.bid(a.ID, fmt.Sprintf("u%d", i), fmt.Sprintf("%d.00", 2+i))
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.svc.Close(ctx, a.ID, "alice")
		assert.NoError(t, err)
	}()
	wg.Wait()

	got, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	top, err := f.svc.HighestBid(ctx, a.ID)
	require.NoError(t, err)
	if top == nil {
		assert.Nil(t, got.WinnerUID)
		return
	}
	require.NotNil(t, got.WinnerUID)
	assert.Equal(t, top.BidderUID, *got.WinnerUID)
	assert.True(t, got.CurrentPrice.Equal(top.Amount))
}
