package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shinyyama/auction-backend/internal/model"
	"github.com/shinyyama/auction-backend/internal/repository"
)

const maxCommentLength = 2000

type CommentService interface {
	Add(ctx context.Context, auctionID uint64, authorUID, content string) (*model.Comment, error)
	List(ctx context.Context, auctionID uint64) ([]model.Comment, error)
}

type commentService struct {
	comments repository.CommentRepository
	auctions repository.AuctionRepository
}

func NewCommentService(comments repository.CommentRepository, auctions repository.AuctionRepository) CommentService {
	return &commentService{comments: comments, auctions: auctions}
}

func (s *commentService) Add(ctx context.Context, auctionID uint64, authorUID, content string) (*model.Comment, error) {
	if authorUID == "" {
		return nil, ErrUnauthorized
	}
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > maxCommentLength {
		return nil, fmt.Errorf("%w: comment must be 1 to %d characters", ErrInvalidInput, maxCommentLength)
	}
	if _, err := s.auctions.FindByID(ctx, auctionID); err != nil {
		return nil, notFound(err)
	}
	c := &model.Comment{AuctionID: auctionID, AuthorUID: authorUID, Content: content}
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *commentService) List(ctx context.Context, auctionID uint64) ([]model.Comment, error) {
	if _, err := s.auctions.FindByID(ctx, auctionID); err != nil {
		return nil, notFound(err)
	}
	return s.comments.ListByAuction(ctx, auctionID)
}
