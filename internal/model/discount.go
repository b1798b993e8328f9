package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Discount time-windowed price reduction applied to a set of products.
// Prices and fixed amounts are stored in cents.
type Discount struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string    `gorm:"type:varchar(200);not null" json:"name"`
	Kind              string    `gorm:"type:varchar(20);not null" json:"kind"`
	Value             int64     `gorm:"type:bigint;not null" json:"value"`
	AppliesTo         string    `gorm:"type:varchar(20);not null" json:"applies_to"`
	Category          string    `gorm:"type:varchar(50);index" json:"category,omitempty"`
	ProductIDs        IDList    `gorm:"type:json" json:"product_ids,omitempty"`
	StartsAt          time.Time `gorm:"type:timestamp;not null;index" json:"starts_at"`
	EndsAt            time.Time `gorm:"type:timestamp;not null;index" json:"ends_at"`
	UsageLimit        *int      `gorm:"type:int" json:"usage_limit,omitempty"`
	UsedCount         int       `gorm:"type:int;not null;default:0" json:"used_count"`
	MinOrderValue     int64     `gorm:"type:bigint;not null;default:0" json:"min_order_value"`
	MaxDiscountAmount int64     `gorm:"type:bigint;not null;default:0" json:"max_discount_amount"`
	Active            bool      `gorm:"not null;default:true;index" json:"active"`
	Applied           bool      `gorm:"not null;default:false;index" json:"applied"`
	CreatedAt         time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (Discount) TableName() string {
	return "discounts"
}

// Discount kinds
const (
	DiscountKindPercentage = "percentage"
	DiscountKindFixed      = "fixed"
)

// Discount applicability rules
const (
	AppliesToAll      = "all"
	AppliesToCategory = "category"
	AppliesToProducts = "products"
)

// DiscountStatus derived discount status, computed from timestamps and
// the active flag. Never persisted as a source of truth.
type DiscountStatus string

// Derived statuses
const (
	DiscountStatusScheduled DiscountStatus = "scheduled"
	DiscountStatusActive    DiscountStatus = "active"
	DiscountStatusExpired   DiscountStatus = "expired"
	DiscountStatusInactive  DiscountStatus = "inactive"
)

// StatusAt computes the derived status at the given instant. This is the
// single status definition shared by the scheduler and price paths.
func (d *Discount) StatusAt(now time.Time) DiscountStatus {
	if now.After(d.EndsAt) {
		return DiscountStatusExpired
	}
	if now.Before(d.StartsAt) {
		return DiscountStatusScheduled
	}
	if !d.Active {
		return DiscountStatusInactive
	}
	return DiscountStatusActive
}

// Validate checks field invariants
func (d *Discount) Validate() error {
	switch d.Kind {
	case DiscountKindPercentage:
		if d.Value < 0 || d.Value > 100 {
			return fmt.Errorf("percentage value must be in [0,100], got %d", d.Value)
		}
	case DiscountKindFixed:
		if d.Value < 0 {
			return fmt.Errorf("fixed amount must be non-negative, got %d", d.Value)
		}
	default:
		return fmt.Errorf("unknown discount kind: %s", d.Kind)
	}

	switch d.AppliesTo {
	case AppliesToAll:
	case AppliesToCategory:
		if d.Category == "" {
			return fmt.Errorf("category is required for category discounts")
		}
	case AppliesToProducts:
		if len(d.ProductIDs) == 0 {
			return fmt.Errorf("product ids are required for product-set discounts")
		}
	default:
		return fmt.Errorf("unknown applicability rule: %s", d.AppliesTo)
	}

	if !d.EndsAt.After(d.StartsAt) {
		return fmt.Errorf("end time must be after start time")
	}

	return nil
}

// Snapshot builds the applied-discount entry recorded on a product
func (d *Discount) Snapshot(appliedAt time.Time) AppliedDiscount {
	return AppliedDiscount{
		DiscountID: d.ID,
		Name:       d.Name,
		Kind:       d.Kind,
		Value:      d.Value,
		MaxAmount:  d.MaxDiscountAmount,
		AppliedAt:  appliedAt,
	}
}

// IDList custom json array of ids
type IDList []uint64

// Value implement driver.Valuer interface
func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implement sql.Scanner interface
func (l *IDList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into IDList", value)
	}

	return json.Unmarshal(bytes, l)
}
