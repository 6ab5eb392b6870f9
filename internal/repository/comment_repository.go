package repository

import (
	"context"

	"github.com/shinyyama/auction-backend/internal/model"
	"gorm.io/gorm"
)

type CommentRepository interface {
	Create(ctx context.Context, c *model.Comment) error
	ListByAuction(ctx context.Context, auctionID uint64) ([]model.Comment, error)
	SetDB(db *gorm.DB)
}

type commentRepository struct {
	conn dbConn
}

func NewCommentRepository(db *gorm.DB) CommentRepository {
	r := &commentRepository{}
	r.conn.set(db)
	return r
}

func (r *commentRepository) SetDB(db *gorm.DB) {
	r.conn.set(db)
}

func (r *commentRepository) Create(ctx context.Context, c *model.Comment) error {
	db := r.conn.get()
	if db == nil {
		return ErrDBNotReady
	}
	return db.WithContext(ctx).Create(c).Error
}

func (r *commentRepository) ListByAuction(ctx context.Context, auctionID uint64) ([]model.Comment, error) {
	db := r.conn.get()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Comment
	if err := db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
