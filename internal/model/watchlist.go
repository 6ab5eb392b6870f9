package model

import "time"

type WatchlistEntry struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserUID   string    `gorm:"column:user_uid;size:128;not null;uniqueIndex:uk_watchlist_user_auction"`
	AuctionID uint64    `gorm:"column:auction_id;not null;uniqueIndex:uk_watchlist_user_auction;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (WatchlistEntry) TableName() string {
	return "watchlist_entries"
}
