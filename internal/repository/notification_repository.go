package repository

import (
	"context"

	"github.com/shinyyama/auction-backend/internal/model"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkAllRead(ctx context.Context, userUID string) error
	MarkByAuction(ctx context.Context, userUID string, auctionID uint64) error
	CountUnread(ctx context.Context, userUID string) (int64, error)
	SetDB(db *gorm.DB)
}

type notificationRepository struct {
	conn dbConn
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	r := &notificationRepository{}
	r.conn.set(db)
	return r
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	db := r.conn.get()
	if db == nil {
		return ErrDBNotReady
	}
	return db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepository) ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	db := r.conn.get()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Notification
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	q := db.WithContext(ctx).Model(&model.Notification{}).Where("user_uid = ?", userUID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userUID string) error {
	db := r.conn.get()
	if db == nil {
		return ErrDBNotReady
	}
	now := db.NowFunc()
	return db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_uid = ? AND read_at IS NULL", userUID).
		Update("read_at", now).Error
}

func (r *notificationRepository) MarkByAuction(ctx context.Context, userUID string, auctionID uint64) error {
	db := r.conn.get()
	if db == nil {
		return ErrDBNotReady
	}
	now := db.NowFunc()
	return db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_uid = ? AND auction_id = ? AND read_at IS NULL", userUID, auctionID).
		Update("read_at", now).Error
}

func (r *notificationRepository) CountUnread(ctx context.Context, userUID string) (int64, error) {
	db := r.conn.get()
	if db == nil {
		return 0, ErrDBNotReady
	}
	var cnt int64
	if err := db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_uid = ? AND read_at IS NULL", userUID).
		Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}

func (r *notificationRepository) SetDB(db *gorm.DB) {
	r.conn.set(db)
}
