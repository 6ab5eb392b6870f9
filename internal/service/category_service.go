package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shinyyama/auction-backend/internal/model"
	"github.com/shinyyama/auction-backend/internal/repository"
)

type CategoryService interface {
	List(ctx context.Context) ([]model.Category, error)
	Create(ctx context.Context, name string) (*model.Category, error)
	ListAuctions(ctx context.Context, categoryID uint64, limit, offset int) (*model.Category, []model.Auction, int64, error)
}

type categoryService struct {
	categories repository.CategoryRepository
	auctions   repository.AuctionRepository
}

func NewCategoryService(categories repository.CategoryRepository, auctions repository.AuctionRepository) CategoryService {
	return &categoryService{categories: categories, auctions: auctions}
}

func (s *categoryService) List(ctx context.Context) ([]model.Category, error) {
	return s.categories.List(ctx)
}

// Create returns the existing category when the name is already taken.
func (s *categoryService) Create(ctx context.Context, name string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > 100 {
		return nil, fmt.Errorf("%w: invalid category name", ErrInvalidInput)
	}
	return s.categories.FindOrCreate(ctx, name)
}

func (s *categoryService) ListAuctions(ctx context.Context, categoryID uint64, limit, offset int) (*model.Category, []model.Auction, int64, error) {
	c, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return nil, nil, 0, notFound(err)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	list, total, err := s.auctions.ListActive(ctx, &categoryID, limit, offset)
	if err != nil {
		return nil, nil, 0, err
	}
	return c, list, total, nil
}
