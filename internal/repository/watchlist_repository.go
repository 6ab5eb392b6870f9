package repository

import (
	"context"
	"errors"

	"github.com/shinyyama/auction-backend/internal/model"
	"gorm.io/gorm"
)

type WatchlistRepository interface {
	// Toggle deletes the (user, auction) entry if present, otherwise creates it, and reports
	// whether the entry exists afterwards.
	Toggle(ctx context.Context, userUID string, auctionID uint64) (bool, error)
	Exists(ctx context.Context, userUID string, auctionID uint64) (bool, error)
	ListAuctions(ctx context.Context, userUID string) ([]model.Auction, error)
	SetDB(db *gorm.DB)
}

type watchlistRepository struct {
	conn dbConn
}

func NewWatchlistRepository(db *gorm.DB) WatchlistRepository {
	r := &watchlistRepository{}
	r.conn.set(db)
	return r
}

func (r *watchlistRepository) SetDB(db *gorm.DB) {
	r.conn.set(db)
}

func (r *watchlistRepository) Toggle(ctx context.Context, userUID string, auctionID uint64) (bool, error) {
	db := r.conn.get()
	if db == nil {
		return false, ErrDBNotReady
	}
	watched := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_uid = ? AND auction_id = ?", userUID, auctionID).
			Delete(&model.WatchlistEntry{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		watched = true
		return tx.Create(&model.WatchlistEntry{UserUID: userUID, AuctionID: auctionID}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// a concurrent toggle created the entry first
			return true, nil
		}
		return false, err
	}
	return watched, nil
}

func (r *watchlistRepository) Exists(ctx context.Context, userUID string, auctionID uint64) (bool, error) {
	db := r.conn.get()
	if db == nil {
		return false, ErrDBNotReady
	}
	var cnt int64
	if err := db.WithContext(ctx).
		Model(&model.WatchlistEntry{}).
		Where("user_uid = ? AND auction_id = ?", userUID, auctionID).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *watchlistRepository) ListAuctions(ctx context.Context, userUID string) ([]model.Auction, error) {
	db := r.conn.get()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Auction
	if err := db.WithContext(ctx).
		Joins("JOIN watchlist_entries w ON w.auction_id = auctions.id").
		Where("w.user_uid = ?", userUID).
		Order("w.id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
