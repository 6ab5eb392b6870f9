package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shinyyama/auction-backend/internal/event"
	"github.com/shinyyama/auction-backend/internal/model"
	"github.com/shinyyama/auction-backend/internal/repository"
	"gorm.io/gorm"
)

// memAuctions mirrors the gorm repository: WithLock serializes per auction and only
// commits staged writes when fn succeeds.
type memAuctions struct {
	mu       sync.Mutex
	locks    map[uint64]*sync.Mutex
	auctions map[uint64]model.Auction
	bids     []model.Bid
	nextID   uint64
	nextBid  uint64
	// failUpdate makes UpdateAuction fail after the bid was staged.
	failUpdate error
}

func newMemAuctions() *memAuctions {
	return &memAuctions{
		locks:    map[uint64]*sync.Mutex{},
		auctions: map[uint64]model.Auction{},
	}
}

func (m *memAuctions) SetDB(*gorm.DB) {}

func (m *memAuctions) Create(_ context.Context, a *model.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	m.auctions[a.ID] = *a
	return nil
}

func (m *memAuctions) FindByID(_ context.Context, id uint64) (*model.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (m *memAuctions) filter(keep func(a model.Auction) bool) []model.Auction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Auction
	for _, a := range m.auctions {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *memAuctions) ListActive(_ context.Context, categoryID *uint64, limit, offset int) ([]model.Auction, int64, error) {
	all := m.filter(func(a model.Auction) bool {
		if !a.IsActive {
			return false
		}
		return categoryID == nil || (a.CategoryID != nil && *a.CategoryID == *categoryID)
	})
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *memAuctions) ListByOwner(_ context.Context, ownerUID string) ([]model.Auction, error) {
	return m.filter(func(a model.Auction) bool { return a.OwnerUID == ownerUID }), nil
}

func (m *memAuctions) ListWonBy(_ context.Context, uid string) ([]model.Auction, error) {
	return m.filter(func(a model.Auction) bool { return !a.IsActive && a.IsWinner(uid) }), nil
}

func (m *memAuctions) ListExpiredIDs(_ context.Context, now time.Time, limit int) ([]uint64, error) {
	list := m.filter(func(a model.Auction) bool { return a.IsActive && a.Expired(now) })
	var ids []uint64
	for i := len(list) - 1; i >= 0 && len(ids) < limit; i-- {
		ids = append(ids, list[i].ID)
	}
	return ids, nil
}

func (m *memAuctions) ListBids(_ context.Context, auctionID uint64) ([]model.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Bid
	for i := len(m.bids) - 1; i >= 0; i-- {
		if m.bids[i].AuctionID == auctionID {
			out = append(out, m.bids[i])
		}
	}
	return out, nil
}

func (m *memAuctions) CountBids(ctx context.Context, auctionID uint64) (int64, error) {
	bids, _ := m.ListBids(ctx, auctionID)
	return int64(len(bids)), nil
}

func (m *memAuctions) HighestBid(_ context.Context, auctionID uint64) (*model.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return highest(m.bids, nil, auctionID), nil
}

func highest(committed, staged []model.Bid, auctionID uint64) *model.Bid {
	var top *model.Bid
	for _, list := range [][]model.Bid{committed, staged} {
		for i := range list {
			b := list[i]
			if b.AuctionID != auctionID {
				continue
			}
			if top == nil || b.Amount.GreaterThan(top.Amount) {
				top = &b
			}
		}
	}
	return top
}

func (m *memAuctions) lockFor(id uint64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *memAuctions) WithLock(ctx context.Context, id uint64, fn func(tx repository.AuctionTx, a *model.Auction) error) error {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()

	a, err := m.FindByID(ctx, id)
	if err != nil {
		return err
	}
	tx := &memTx{repo: m}
	if err := fn(tx, a); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bids = append(m.bids, tx.bids...)
	if tx.auction != nil {
		m.auctions[id] = *tx.auction
	}
	return nil
}

type memTx struct {
	repo    *memAuctions
	bids    []model.Bid
	auction *model.Auction
}

func (t *memTx) CreateBid(_ context.Context, bid *model.Bid) error {
	t.repo.mu.Lock()
	t.repo.nextBid++
	bid.ID = t.repo.nextBid
	t.repo.mu.Unlock()
	bid.CreatedAt = time.Now().UTC()
	t.bids = append(t.bids, *bid)
	return nil
}

func (t *memTx) UpdateAuction(_ context.Context, a *model.Auction, columns ...string) error {
	if t.repo.failUpdate != nil {
		return t.repo.failUpdate
	}
	if len(columns) == 0 {
		return errors.New("no columns to update")
	}
	cp := *a
	cp.UpdatedAt = time.Now().UTC()
	t.auction = &cp
	return nil
}

func (t *memTx) HighestBid(_ context.Context, auctionID uint64) (*model.Bid, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	return highest(t.repo.bids, t.bids, auctionID), nil
}

type memWatchlist struct {
	mu       sync.Mutex
	entries  map[string]map[uint64]bool
	auctions *memAuctions
}

func newMemWatchlist(auctions *memAuctions) *memWatchlist {
	return &memWatchlist{entries: map[string]map[uint64]bool{}, auctions: auctions}
}

func (w *memWatchlist) SetDB(*gorm.DB) {}

func (w *memWatchlist) Toggle(_ context.Context, userUID string, auctionID uint64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.entries[userUID] == nil {
		w.entries[userUID] = map[uint64]bool{}
	}
	if w.entries[userUID][auctionID] {
		delete(w.entries[userUID], auctionID)
		return false, nil
	}
	w.entries[userUID][auctionID] = true
	return true, nil
}

func (w *memWatchlist) Exists(_ context.Context, userUID string, auctionID uint64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entries[userUID][auctionID], nil
}

func (w *memWatchlist) ListAuctions(ctx context.Context, userUID string) ([]model.Auction, error) {
	w.mu.Lock()
	ids := make([]uint64, 0, len(w.entries[userUID]))
	for id := range w.entries[userUID] {
		ids = append(ids, id)
	}
	w.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []model.Auction
	for _, id := range ids {
		a, err := w.auctions.FindByID(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

type memComments struct {
	mu   sync.Mutex
	list []model.Comment
}

func (c *memComments) SetDB(*gorm.DB) {}

func (c *memComments) Create(_ context.Context, cm *model.Comment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cm.ID = uint64(len(c.list) + 1)
	cm.CreatedAt = time.Now().UTC()
	c.list = append(c.list, *cm)
	return nil
}

func (c *memComments) ListByAuction(_ context.Context, auctionID uint64) ([]model.Comment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Comment
	for _, cm := range c.list {
		if cm.AuctionID == auctionID {
			out = append(out, cm)
		}
	}
	return out, nil
}

type memCategories struct {
	mu   sync.Mutex
	list []model.Category
}

func (c *memCategories) SetDB(*gorm.DB) {}

func (c *memCategories) List(context.Context) ([]model.Category, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]model.Category(nil), c.list...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *memCategories) FindByID(_ context.Context, id uint64) (*model.Category, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cat := range c.list {
		if cat.ID == id {
			return &cat, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (c *memCategories) FindOrCreate(_ context.Context, name string) (*model.Category, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cat := range c.list {
		if cat.Name == name {
			return &cat, nil
		}
	}
	cat := model.Category{ID: uint64(len(c.list) + 1), Name: name}
	c.list = append(c.list, cat)
	return &cat, nil
}

type memNotifications struct {
	mu   sync.Mutex
	list []model.Notification
}

func (n *memNotifications) SetDB(*gorm.DB) {}

func (n *memNotifications) Create(_ context.Context, x *model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	x.ID = uint64(len(n.list) + 1)
	n.list = append(n.list, *x)
	return nil
}

func (n *memNotifications) ListByUser(_ context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []model.Notification
	for i := len(n.list) - 1; i >= 0; i-- {
		x := n.list[i]
		if x.UserUID != userUID || (unreadOnly && x.ReadAt != nil) {
			continue
		}
		out = append(out, x)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (n *memNotifications) mark(userUID string, match func(x model.Notification) bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now().UTC()
	for i := range n.list {
		if n.list[i].UserUID == userUID && n.list[i].ReadAt == nil && match(n.list[i]) {
			n.list[i].ReadAt = &now
		}
	}
}

func (n *memNotifications) MarkAllRead(_ context.Context, userUID string) error {
	n.mark(userUID, func(model.Notification) bool { return true })
	return nil
}

func (n *memNotifications) MarkByAuction(_ context.Context, userUID string, auctionID uint64) error {
	n.mark(userUID, func(x model.Notification) bool { return x.AuctionID != nil && *x.AuctionID == auctionID })
	return nil
}

func (n *memNotifications) CountUnread(_ context.Context, userUID string) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var cnt int64
	for _, x := range n.list {
		if x.UserUID == userUID && x.ReadAt == nil {
			cnt++
		}
	}
	return cnt, nil
}

func (n *memNotifications) byType(userUID, typ string) []model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []model.Notification
	for _, x := range n.list {
		if x.UserUID == userUID && x.Type == typ {
			out = append(out, x)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.AuctionEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev *event.AuctionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) ofType(typ event.Type) []event.AuctionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []event.AuctionEvent
	for _, ev := range p.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	svc           *auctionService
	auctions      *memAuctions
	watchlist     *memWatchlist
	comments      *memComments
	categories    *memCategories
	notifications *memNotifications
	publisher     *recordingPublisher
	now           time.Time
}

func newFixture() *fixture {
	f := &fixture{
		auctions:      newMemAuctions(),
		comments:      &memComments{},
		categories:    &memCategories{},
		notifications: &memNotifications{},
		publisher:     &recordingPublisher{},
		now:           time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.watchlist = newMemWatchlist(f.auctions)
	svc := NewAuctionService(f.auctions, f.categories, f.comments, f.watchlist,
		NewNotificationService(f.notifications), f.publisher).(*auctionService)
	svc.now = func() time.Time { return f.now }
	f.svc = svc
	return f
}
