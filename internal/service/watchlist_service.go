package service

import (
	"context"
	"log"

	"github.com/shinyyama/auction-backend/internal/model"
	"github.com/shinyyama/auction-backend/internal/reqctx"
	"github.com/shinyyama/auction-backend/internal/repository"
)

type WatchlistService interface {
	// Toggle adds the auction to the user's watchlist, or removes it when already present,
	// and reports whether it is watched afterwards.
	Toggle(ctx context.Context, userUID string, auctionID uint64) (bool, error)
	List(ctx context.Context, userUID string) ([]model.Auction, error)
}

type watchlistService struct {
	watchlist repository.WatchlistRepository
	auctions  repository.AuctionRepository
}

func NewWatchlistService(watchlist repository.WatchlistRepository, auctions repository.AuctionRepository) WatchlistService {
	return &watchlistService{watchlist: watchlist, auctions: auctions}
}

func (s *watchlistService) Toggle(ctx context.Context, userUID string, auctionID uint64) (bool, error) {
	if userUID == "" {
		return false, ErrUnauthorized
	}
	if _, err := s.auctions.FindByID(ctx, auctionID); err != nil {
		return false, notFound(err)
	}
	watched, err := s.watchlist.Toggle(ctx, userUID, auctionID)
	if err != nil {
		return false, err
	}
	log.Printf("%s watchlist auction=%d watched=%t", reqctx.Tag(ctx), auctionID, watched)
	return watched, nil
}

func (s *watchlistService) List(ctx context.Context, userUID string) ([]model.Auction, error) {
	if userUID == "" {
		return nil, ErrUnauthorized
	}
	return s.watchlist.ListAuctions(ctx, userUID)
}
