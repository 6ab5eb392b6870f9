package service

import (
	"context"
	"log"

	"github.com/shinyyama/auction-backend/internal/model"
	"github.com/shinyyama/auction-backend/internal/reqctx"
	"github.com/shinyyama/auction-backend/internal/repository"
)

type NotificationService interface {
	Notify(ctx context.Context, userUID, typ, title, body string, auctionID, bidID *uint64)
	List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error)
	MarkAllRead(ctx context.Context, userUID string) error
	MarkByAuction(ctx context.Context, userUID string, auctionID uint64) error
}

type notificationService struct {
	repo repository.NotificationRepository
}

func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationService{repo: repo}
}

// Notify is best-effort; it logs errors but does not return them to avoid breaking main flows.
func (s *notificationService) Notify(ctx context.Context, userUID, typ, title, body string, auctionID, bidID *uint64) {
	if userUID == "" || typ == "" {
		return
	}
	n := &model.Notification{
		UserUID:   userUID,
		Type:      typ,
		Title:     title,
		Body:      body,
		AuctionID: auctionID,
		BidID:     bidID,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		log.Printf("%s notify %s user=%s: %v", reqctx.Tag(ctx), typ, userUID, err)
	}
}

func (s *notificationService) List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error) {
	if userUID == "" {
		return nil, 0, nil
	}
	list, err := s.repo.ListByUser(ctx, userUID, unreadOnly, limit)
	if err != nil {
		return nil, 0, err
	}
	cnt, err := s.repo.CountUnread(ctx, userUID)
	if err != nil {
		return list, 0, err
	}
	return list, cnt, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userUID string) error {
	if userUID == "" {
		return nil
	}
	return s.repo.MarkAllRead(ctx, userUID)
}

func (s *notificationService) MarkByAuction(ctx context.Context, userUID string, auctionID uint64) error {
	if userUID == "" || auctionID == 0 {
		return nil
	}
	return s.repo.MarkByAuction(ctx, userUID, auctionID)
}
