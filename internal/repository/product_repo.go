package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"urbansprout/internal/model"
	"urbansprout/pkg/utils"
)

// ErrVersionConflict another writer updated the product since it was read
var ErrVersionConflict = errors.New("product version conflict")

// ProductRepository product repository interface
type ProductRepository interface {
	// Create product
	Create(ctx context.Context, product *model.Product) error

	// Get product by ID
	GetByID(ctx context.Context, id uint64) (*model.Product, error)

	// Update product
	Update(ctx context.Context, product *model.Product) error

	// List products
	List(ctx context.Context, page, pageSize int, category string) ([]*model.Product, int64, error)

	// FindPublished returns every published product
	FindPublished(ctx context.Context) ([]*model.Product, error)

	// FindPublishedByCategory returns published products in a category
	FindPublishedByCategory(ctx context.Context, category string) ([]*model.Product, error)

	// FindByIDs returns the products that still exist among the given ids
	FindByIDs(ctx context.Context, ids []uint64) ([]*model.Product, error)

	// FindWithDiscount returns products carrying an applied-discount
	// entry for the given discount id
	FindWithDiscount(ctx context.Context, discountID uint64) ([]*model.Product, error)

	// UpdatePricing persists applied discounts and effective price with a
	// version guard; returns ErrVersionConflict on a concurrent update
	UpdatePricing(ctx context.Context, product *model.Product) error
}

// productRepository product repository implementation
type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a product repository
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

// Create creates a product
func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	if product.EffectivePrice == 0 {
		product.EffectivePrice = product.RegularPrice
	}
	return r.db.WithContext(ctx).Create(product).Error
}

// GetByID gets a product by ID
func (r *productRepository) GetByID(ctx context.Context, id uint64) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

// Update updates a product
func (r *productRepository) Update(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

// List lists products
func (r *productRepository) List(ctx context.Context, page, pageSize int, category string) ([]*model.Product, int64, error) {
	var products []*model.Product
	var total int64

	query := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("status = ?", model.ProductStatusPublished)

	if category != "" {
		query = query.Where("category = ?", category)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Offset(offset).
		Limit(pageSize).
		Order("created_at DESC").
		Find(&products).Error

	return products, total, err
}

// FindPublished returns every published product
func (r *productRepository) FindPublished(ctx context.Context) ([]*model.Product, error) {
	var products []*model.Product
	err := r.db.WithContext(ctx).
		Where("status = ?", model.ProductStatusPublished).
		Find(&products).Error
	return products, err
}

// FindPublishedByCategory returns published products in a category
func (r *productRepository) FindPublishedByCategory(ctx context.Context, category string) ([]*model.Product, error) {
	var products []*model.Product
	err := r.db.WithContext(ctx).
		Where("status = ? AND category = ?", model.ProductStatusPublished, category).
		Find(&products).Error
	return products, err
}

// FindByIDs returns the products that still exist among the given ids
func (r *productRepository) FindByIDs(ctx context.Context, ids []uint64) ([]*model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []*model.Product
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&products).Error
	return products, err
}

// FindWithDiscount returns products carrying an entry for the discount
func (r *productRepository) FindWithDiscount(ctx context.Context, discountID uint64) ([]*model.Product, error) {
	var products []*model.Product
	err := r.db.WithContext(ctx).
		Where("JSON_CONTAINS(applied_discounts, JSON_OBJECT('discount_id', ?))", discountID).
		Find(&products).Error
	return products, err
}

// UpdatePricing persists pricing fields guarded by the version column
func (r *productRepository) UpdatePricing(ctx context.Context, product *model.Product) error {
	result := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND version = ?", product.ID, product.Version).
		Updates(map[string]interface{}{
			"applied_discounts": product.AppliedDiscounts,
			"effective_price":   product.EffectivePrice,
			"version":           gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}

	product.Version++
	return nil
}
