package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bid rows are append-only.
type Bid struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement;<-:create"`
	AuctionID uint64          `gorm:"column:auction_id;not null;index:idx_bids_auction_amount;<-:create"`
	BidderUID string          `gorm:"column:bidder_uid;size:128;not null;index;<-:create"`
	Amount    decimal.Decimal `gorm:"column:amount;type:decimal(10,2);not null;index:idx_bids_auction_amount;<-:create"`
	CreatedAt time.Time       `gorm:"autoCreateTime;<-:create"`
}

func (Bid) TableName() string {
	return "bids"
}
