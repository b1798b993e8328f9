package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"urbansprout/internal/model"
	"urbansprout/pkg/utils"
)

// DiscountRepository discount repository interface
type DiscountRepository interface {
	// Create discount
	Create(ctx context.Context, discount *model.Discount) error

	// Get discount by ID
	GetByID(ctx context.Context, id uint64) (*model.Discount, error)

	// Update discount
	Update(ctx context.Context, discount *model.Discount) error

	// Delete discount
	Delete(ctx context.Context, id uint64) error

	// List discounts
	List(ctx context.Context, page, pageSize int) ([]*model.Discount, int64, error)

	// FindUpcoming returns scheduled discounts ordered by start time
	FindUpcoming(ctx context.Context, now time.Time) ([]*model.Discount, error)

	// FindDueForApply returns active-window discounts not yet materialized
	FindDueForApply(ctx context.Context, now time.Time) ([]*model.Discount, error)

	// FindDueForRevoke returns materialized discounts that have expired
	// or been deactivated
	FindDueForRevoke(ctx context.Context, now time.Time) ([]*model.Discount, error)

	// SetApplied updates the materialized bookkeeping flag
	SetApplied(ctx context.Context, id uint64, applied bool) error
}

// discountRepository discount repository implementation
type discountRepository struct {
	db *gorm.DB
}

// NewDiscountRepository creates a discount repository
func NewDiscountRepository(db *gorm.DB) DiscountRepository {
	return &discountRepository{db: db}
}

// Create creates a discount
func (r *discountRepository) Create(ctx context.Context, discount *model.Discount) error {
	if err := discount.Validate(); err != nil {
		return utils.WrapError(err, utils.CodeInvalidParam, err.Error())
	}
	return r.db.WithContext(ctx).Create(discount).Error
}

// GetByID gets a discount by ID
func (r *discountRepository) GetByID(ctx context.Context, id uint64) (*model.Discount, error) {
	var discount model.Discount
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&discount).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrDiscountNotFound
		}
		return nil, err
	}
	return &discount, nil
}

// Update updates a discount
func (r *discountRepository) Update(ctx context.Context, discount *model.Discount) error {
	if err := discount.Validate(); err != nil {
		return utils.WrapError(err, utils.CodeInvalidParam, err.Error())
	}
	return r.db.WithContext(ctx).Save(discount).Error
}

// Delete deletes a discount
func (r *discountRepository) Delete(ctx context.Context, id uint64) error {
	result := r.db.WithContext(ctx).Delete(&model.Discount{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrDiscountNotFound
	}
	return nil
}

// List lists discounts
func (r *discountRepository) List(ctx context.Context, page, pageSize int) ([]*model.Discount, int64, error) {
	var discounts []*model.Discount
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Discount{})

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := db.Offset(offset).
		Limit(pageSize).
		Order("starts_at DESC").
		Find(&discounts).Error

	return discounts, total, err
}

// FindUpcoming returns scheduled discounts ordered by start time
func (r *discountRepository) FindUpcoming(ctx context.Context, now time.Time) ([]*model.Discount, error) {
	var discounts []*model.Discount
	err := r.db.WithContext(ctx).
		Where("active = ? AND starts_at > ?", true, now).
		Order("starts_at ASC").
		Find(&discounts).Error
	return discounts, err
}

// FindDueForApply returns active-window discounts not yet materialized
func (r *discountRepository) FindDueForApply(ctx context.Context, now time.Time) ([]*model.Discount, error) {
	var discounts []*model.Discount
	err := r.db.WithContext(ctx).
		Where("active = ? AND applied = ? AND starts_at <= ? AND ends_at >= ?", true, false, now, now).
		Find(&discounts).Error
	return discounts, err
}

// FindDueForRevoke returns materialized discounts past their window or
// turned off by an administrator
func (r *discountRepository) FindDueForRevoke(ctx context.Context, now time.Time) ([]*model.Discount, error) {
	var discounts []*model.Discount
	err := r.db.WithContext(ctx).
		Where("applied = ? AND (ends_at < ? OR active = ?)", true, now, false).
		Find(&discounts).Error
	return discounts, err
}

// SetApplied updates the materialized bookkeeping flag
func (r *discountRepository) SetApplied(ctx context.Context, id uint64, applied bool) error {
	return r.db.WithContext(ctx).
		Model(&model.Discount{}).
		Where("id = ?", id).
		Update("applied", applied).Error
}
