package model

import "time"

type Comment struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement;<-:create"`
	AuctionID uint64    `gorm:"column:auction_id;not null;index;<-:create"`
	AuthorUID string    `gorm:"column:author_uid;size:128;not null;index;<-:create"`
	Content   string    `gorm:"type:text;not null;<-:create"`
	CreatedAt time.Time `gorm:"autoCreateTime;<-:create"`
}

func (Comment) TableName() string {
	return "comments"
}
