package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shinyyama/auction-backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AuctionTx is the write surface available while an auction row is locked.
type AuctionTx interface {
	CreateBid(ctx context.Context, bid *model.Bid) error
	UpdateAuction(ctx context.Context, a *model.Auction, columns ...string) error
	HighestBid(ctx context.Context, auctionID uint64) (*model.Bid, error)
}

type AuctionRepository interface {
	Create(ctx context.Context, a *model.Auction) error
	FindByID(ctx context.Context, id uint64) (*model.Auction, error)
	ListActive(ctx context.Context, categoryID *uint64, limit, offset int) ([]model.Auction, int64, error)
	ListByOwner(ctx context.Context, ownerUID string) ([]model.Auction, error)
	ListWonBy(ctx context.Context, uid string) ([]model.Auction, error)
	ListExpiredIDs(ctx context.Context, now time.Time, limit int) ([]uint64, error)
	ListBids(ctx context.Context, auctionID uint64) ([]model.Bid, error)
	CountBids(ctx context.Context, auctionID uint64) (int64, error)
	HighestBid(ctx context.Context, auctionID uint64) (*model.Bid, error)
	// WithLock runs fn in a transaction holding a row lock on the auction. fn's error rolls back
	// everything written through tx and is returned unchanged.
	WithLock(ctx context.Context, id uint64, fn func(tx AuctionTx, a *model.Auction) error) error
	SetDB(db *gorm.DB)
}

type auctionRepository struct {
	conn dbConn
}

func NewAuctionRepository(db *gorm.DB) AuctionRepository {
	r := &auctionRepository{}
	r.conn.set(db)
	return r
}

func (r *auctionRepository) SetDB(db *gorm.DB) {
	r.conn.set(db)
}

func (r *auctionRepository) Create(ctx context.Context, a *model.Auction) error {
	db := r.conn.get()
	if db == nil {
		return ErrDBNotReady
	}
	return db.WithContext(ctx).Create(a).Error
}

func (r *auctionRepository) FindByID(ctx context.Context, id uint64) (*model.Auction, error) {
	db := r.conn.get()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var a model.Auction
	if err := db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *auctionRepository) ListActive(ctx context.Context, categoryID *uint64, limit, offset int) ([]model.Auction, int64, error) {
	db := r.conn.get()
	if db == nil {
		return nil, 0, ErrDBNotReady
	}
	var (
		list  []model.Auction
		total int64
	)
	q := db.WithContext(ctx).Model(&model.Auction{}).Where("is_active = ?", true)
	if categoryID != nil {
		q = q.Where("category_id = ?", *categoryID)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := q.Order("created_at desc").Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *auctionRepository) ListByOwner(ctx context.Context, ownerUID string) ([]model.Auction, error) {
	db := r.conn.get()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Auction
	if err := db.WithContext(ctx).
		Where("owner_uid = ?", ownerUID).
		Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *auctionRepository) ListWonBy(ctx context.Context, uid string) ([]model.Auction, error) {
	db := r.conn.get()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Auction
	if err := db.WithContext(ctx).
		Where("winner_uid = ? AND is_active = ?", uid, false).
		Order("closed_at DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *auctionRepository) ListExpiredIDs(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	db := r.conn.get()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var ids []uint64
	if err := db.WithContext(ctx).
		Model(&model.Auction{}).
		Where("is_active = ? AND end_time IS NOT NULL AND end_time <= ?", true, now).
		Order("end_time ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *auctionRepository) ListBids(ctx context.Context, auctionID uint64) ([]model.Bid, error) {
	db := r.conn.get()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var bids []model.Bid
	if err := db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("created_at DESC").Order("id DESC").
		Find(&bids).Error; err != nil {
		return nil, err
	}
	return bids, nil
}

func (r *auctionRepository) CountBids(ctx context.Context, auctionID uint64) (int64, error) {
	db := r.conn.get()
	if db == nil {
		return 0, ErrDBNotReady
	}
	var cnt int64
	if err := db.WithContext(ctx).
		Model(&model.Bid{}).
		Where("auction_id = ?", auctionID).
		Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}

func (r *auctionRepository) HighestBid(ctx context.Context, auctionID uint64) (*model.Bid, error) {
	db := r.conn.get()
	if db == nil {
		return nil, ErrDBNotReady
	}
	return highestBid(db.WithContext(ctx), auctionID)
}

func (r *auctionRepository) WithLock(ctx context.Context, id uint64, fn func(tx AuctionTx, a *model.Auction) error) error {
	db := r.conn.get()
	if db == nil {
		return ErrDBNotReady
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a model.Auction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, id).Error; err != nil {
			return err
		}
		return fn(&auctionTx{db: tx}, &a)
	})
}

type auctionTx struct {
	db *gorm.DB
}

func (t *auctionTx) CreateBid(ctx context.Context, bid *model.Bid) error {
	return t.db.WithContext(ctx).Create(bid).Error
}

func (t *auctionTx) UpdateAuction(ctx context.Context, a *model.Auction, columns ...string) error {
	if len(columns) == 0 {
		return errors.New("no columns to update")
	}
	cols := append(append([]string{}, columns...), "updated_at")
	return t.db.WithContext(ctx).Model(a).Select(cols).Updates(a).Error
}

func (t *auctionTx) HighestBid(ctx context.Context, auctionID uint64) (*model.Bid, error) {
	return highestBid(t.db.WithContext(ctx), auctionID)
}

// highestBid returns nil when the auction has no bids. Ties go to the earliest bid.
func highestBid(db *gorm.DB, auctionID uint64) (*model.Bid, error) {
	var b model.Bid
	if err := db.
		Where("auction_id = ?", auctionID).
		Order("amount DESC").Order("created_at ASC").Order("id ASC").
		First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}
