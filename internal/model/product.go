package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Product product model. Prices are stored in cents.
type Product struct {
	ID               uint64               `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string               `gorm:"type:varchar(200);not null" json:"name"`
	Description      *string              `gorm:"type:text" json:"description,omitempty"`
	Category         string               `gorm:"type:varchar(50);index" json:"category"`
	RegularPrice     int64                `gorm:"type:bigint;not null" json:"regular_price"`
	EffectivePrice   int64                `gorm:"type:bigint;not null" json:"effective_price"`
	AppliedDiscounts AppliedDiscountList  `gorm:"type:json" json:"applied_discounts,omitempty"`
	Status           int8                 `gorm:"type:tinyint;not null;default:1;index" json:"status"`
	Version          int64                `gorm:"type:bigint;not null;default:0" json:"-"`
	CreatedAt        time.Time            `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt        time.Time            `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (Product) TableName() string {
	return "products"
}

// ProductStatus product status const
const (
	ProductStatusPublished   = 1
	ProductStatusUnpublished = 2
	ProductStatusDeleted     = 3
)

// IsPublished check if product is published
func (p *Product) IsPublished() bool {
	return p.Status == ProductStatusPublished
}

// HasDiscount check if an applied-discount entry exists for the id
func (p *Product) HasDiscount(discountID uint64) bool {
	for _, e := range p.AppliedDiscounts {
		if e.DiscountID == discountID {
			return true
		}
	}
	return false
}

// RecomputeEffectivePrice returns the displayed price: the minimum price
// across all applied-discount entries, each reducing independently from
// the regular price. Ties go to the most recently applied entry, which
// iteration order already yields since entries are appended in
// application order. Falls back to the regular price with no entries.
func (p *Product) RecomputeEffectivePrice() int64 {
	best := p.RegularPrice
	for _, e := range p.AppliedDiscounts {
		if price := e.PriceFor(p.RegularPrice); price <= best {
			best = price
		}
	}
	p.EffectivePrice = best
	return best
}

// AppliedDiscount snapshot of a discount at application time
type AppliedDiscount struct {
	DiscountID uint64    `json:"discount_id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Value      int64     `json:"value"`
	MaxAmount  int64     `json:"max_amount,omitempty"`
	AppliedAt  time.Time `json:"applied_at"`
}

// PriceFor computes the discounted price from the regular price for this
// entry alone: percentage reduces proportionally, fixed subtracts the
// amount; the reduction is capped by MaxAmount when set and the result
// is floored at zero.
func (e *AppliedDiscount) PriceFor(regular int64) int64 {
	var reduction int64
	switch e.Kind {
	case DiscountKindPercentage:
		reduction = regular * e.Value / 100
	case DiscountKindFixed:
		reduction = e.Value
	default:
		return regular
	}

	if e.MaxAmount > 0 && reduction > e.MaxAmount {
		reduction = e.MaxAmount
	}
	if reduction > regular {
		reduction = regular
	}
	return regular - reduction
}

// AppliedDiscountList custom json collection type
type AppliedDiscountList []AppliedDiscount

// Value implement driver.Valuer interface
func (l AppliedDiscountList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implement sql.Scanner interface
func (l *AppliedDiscountList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into AppliedDiscountList", value)
	}

	return json.Unmarshal(bytes, l)
}
