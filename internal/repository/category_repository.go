package repository

import (
	"context"

	"github.com/shinyyama/auction-backend/internal/model"
	"gorm.io/gorm"
)

type CategoryRepository interface {
	List(ctx context.Context) ([]model.Category, error)
	FindByID(ctx context.Context, id uint64) (*model.Category, error)
	FindOrCreate(ctx context.Context, name string) (*model.Category, error)
	SetDB(db *gorm.DB)
}

type categoryRepository struct {
	conn dbConn
}

func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	r := &categoryRepository{}
	r.conn.set(db)
	return r
}

func (r *categoryRepository) SetDB(db *gorm.DB) {
	r.conn.set(db)
}

func (r *categoryRepository) List(ctx context.Context) ([]model.Category, error) {
	db := r.conn.get()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Category
	if err := db.WithContext(ctx).Order("name ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *categoryRepository) FindByID(ctx context.Context, id uint64) (*model.Category, error) {
	db := r.conn.get()
	if db == nil {
		return nil, ErrDBNotReady
	}
	var c model.Category
	if err := db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *categoryRepository) FindOrCreate(ctx context.Context, name string) (*model.Category, error) {
	db := r.conn.get()
	if db == nil {
		return nil, ErrDBNotReady
	}
	c := model.Category{Name: name}
	if err := db.WithContext(ctx).
		Where("name = ?", name).
		FirstOrCreate(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}
