package model

import "time"

const (
	NotificationOutbid        = "outbid"
	NotificationBidReceived   = "bid_received"
	NotificationAuctionWon    = "auction_won"
	NotificationAuctionClosed = "auction_closed"
)

type Notification struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement"`
	UserUID   string     `gorm:"column:user_uid;size:128;index;not null"`
	Type      string     `gorm:"column:type;size:64;not null"`
	Title     string     `gorm:"column:title;size:255"`
	Body      string     `gorm:"column:body;type:text"`
	AuctionID *uint64    `gorm:"column:auction_id;index"`
	BidID     *uint64    `gorm:"column:bid_id;index"`
	ReadAt    *time.Time `gorm:"column:read_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
}

func (Notification) TableName() string {
	return "notifications"
}
