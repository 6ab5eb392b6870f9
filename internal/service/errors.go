package service

import (
	"errors"

	"github.com/shinyyama/auction-backend/internal/money"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidInput  = errors.New("invalid_input")
	ErrInvalidAmount = money.ErrInvalidAmount
	ErrBidTooLow     = errors.New("bid_too_low")
	ErrAuctionClosed = errors.New("auction_closed")
	ErrSelfBid       = errors.New("self_bid_forbidden")
	ErrAlreadyClosed = errors.New("already_closed")
	ErrUnauthorized  = errors.New("unauthorized")
)
