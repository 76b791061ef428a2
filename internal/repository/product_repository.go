package repository

import (
	"context"
	"strings"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProductFilter struct {
	Query       string
	Category    string
	FarmerUID   string
	Organic     *bool
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	InStockOnly bool
	// IncludeHidden lists inactive and unapproved products too (farmer's own listing view).
	IncludeHidden bool
	Sort          string // newest | price_asc | price_desc
	Limit         int
	Offset        int
}

type ProductRepository interface {
	Create(ctx context.Context, p *model.Product) error
	FindByID(ctx context.Context, id uint64) (*model.Product, error)
	FindByIDForUpdate(ctx context.Context, id uint64) (*model.Product, error)
	Update(ctx context.Context, p *model.Product) error
	SetStock(ctx context.Context, id uint64, fromQty, toQty int, status model.ProductStatus) error
	SetImageURL(ctx context.Context, id uint64, url string) error
	List(ctx context.Context, f ProductFilter) ([]model.Product, int64, error)
	Delete(ctx context.Context, id uint64) error
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, p *model.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *productRepository) FindByID(ctx context.Context, id uint64) (*model.Product, error) {
	var p model.Product
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepository) FindByIDForUpdate(ctx context.Context, id uint64) (*model.Product, error) {
	var p model.Product
	if err := r.db.WithContext(ctx).Clauses(forUpdate()).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepository) Update(ctx context.Context, p *model.Product) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// SetStock moves quantity from fromQty to toQty only if the row still holds fromQty.
func (r *productRepository) SetStock(ctx context.Context, id uint64, fromQty, toQty int, status model.ProductStatus) error {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND quantity = ?", id, fromQty).
		Updates(map[string]interface{}{
			"quantity": toQty,
			"status":   status,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}

// SetImageURL writes only the image column so stock changes made meanwhile survive.
func (r *productRepository) SetImageURL(ctx context.Context, id uint64, url string) error {
	return r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", id).
		Update("image_url", url).Error
}

func (r *productRepository) List(ctx context.Context, f ProductFilter) ([]model.Product, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Product{})
	if !f.IncludeHidden {
		q = q.Where("approved = ? AND status <> ?", true, model.ProductStatusInactive)
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(name) LIKE ? OR LOWER(description) LIKE ?)", like, like)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.FarmerUID != "" {
		q = q.Where("farmer_uid = ?", f.FarmerUID)
	}
	if f.Organic != nil {
		q = q.Where("organic = ?", *f.Organic)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}
	if f.InStockOnly {
		q = q.Where("quantity > 0 AND status = ?", model.ProductStatusActive)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at DESC, id DESC"
	switch f.Sort {
	case "price_asc":
		order = "price ASC, id ASC"
	case "price_desc":
		order = "price DESC, id DESC"
	}
	var items []model.Product
	if err := q.Order(order).Limit(f.Limit).Offset(f.Offset).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *productRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&model.Product{}, id).Error
}
