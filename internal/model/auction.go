package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MinIncrement is the smallest step a new bid must clear the effective price by.
var MinIncrement = decimal.New(1, -2)

type Auction struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement"`
	Title         string          `gorm:"size:255;not null"`
	Description   string          `gorm:"type:text;not null"`
	OwnerUID      string          `gorm:"column:owner_uid;size:128;index;not null"`
	StartingPrice decimal.Decimal `gorm:"column:starting_price;type:decimal(10,2);not null"`
	CurrentPrice  decimal.Decimal `gorm:"column:current_price;type:decimal(10,2);not null;default:0"`
	IsActive      bool            `gorm:"column:is_active;not null;default:true;index:idx_auctions_active_end"`
	WinnerUID     *string         `gorm:"column:winner_uid;size:128;index"`
	ImageURL      *string         `gorm:"column:image_url;size:512"`
	CategoryID    *uint64         `gorm:"column:category_id;index"`
	StartTime     time.Time       `gorm:"column:start_time;autoCreateTime"`
	EndTime       *time.Time      `gorm:"column:end_time;index:idx_auctions_active_end"`
	ClosedAt      *time.Time      `gorm:"column:closed_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime"`
}

func (Auction) TableName() string {
	return "auctions"
}

// EffectivePrice is the current price when one has been set, otherwise the starting price.
func (a *Auction) EffectivePrice() decimal.Decimal {
	if a.CurrentPrice.IsPositive() {
		return a.CurrentPrice
	}
	return a.StartingPrice
}

func (a *Auction) MinimumBid() decimal.Decimal {
	return a.EffectivePrice().Add(MinIncrement)
}

func (a *Auction) IsOwner(uid string) bool {
	return uid != "" && uid == a.OwnerUID
}

func (a *Auction) IsWinner(uid string) bool {
	return uid != "" && a.WinnerUID != nil && *a.WinnerUID == uid
}

// Expired reports whether the auction's end time has passed. Auctions without an end time never expire.
func (a *Auction) Expired(now time.Time) bool {
	return a.EndTime != nil && !now.Before(*a.EndTime)
}
