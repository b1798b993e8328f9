package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"urbansprout/internal/cache"
	"urbansprout/internal/model"
	"urbansprout/internal/monitor"
	"urbansprout/internal/repository"
	"urbansprout/internal/service/notify"
	"urbansprout/pkg/log"
	"urbansprout/pkg/utils"
)

// maxCASRetries attempts per product before giving up on a conflict
const maxCASRetries = 3

// Applicator materializes discount pricing onto products and strips it
// back off. All product pricing writes go through the version-guarded
// repository update.
type Applicator interface {
	// ResolveAffectedProducts returns the products a discount targets
	ResolveAffectedProducts(ctx context.Context, d *model.Discount) ([]*model.Product, error)

	// Apply materializes a discount onto every affected product
	Apply(ctx context.Context, d *model.Discount) error

	// Revoke strips a discount from every product carrying it
	Revoke(ctx context.Context, d *model.Discount) error

	// ApplyToCategory materializes a discount onto a category's products
	ApplyToCategory(ctx context.Context, discountID uint64, category string) (int, error)

	// ApplyToProduct materializes a discount onto one product
	ApplyToProduct(ctx context.Context, discountID, productID uint64) error

	// RemoveFromProduct strips a discount from one product
	RemoveFromProduct(ctx context.Context, productID, discountID uint64) error
}

// applicator applicator implementation
type applicator struct {
	discountRepo repository.DiscountRepository
	productRepo  repository.ProductRepository
	productCache *cache.ProductCache
	dispatcher   notify.Dispatcher
	metrics      *monitor.MetricsCollector
}

// NewApplicator creates an applicator
func NewApplicator(
	discountRepo repository.DiscountRepository,
	productRepo repository.ProductRepository,
	productCache *cache.ProductCache,
	dispatcher notify.Dispatcher,
	metrics *monitor.MetricsCollector,
) Applicator {
	return &applicator{
		discountRepo: discountRepo,
		productRepo:  productRepo,
		productCache: productCache,
		dispatcher:   dispatcher,
		metrics:      metrics,
	}
}

// ResolveAffectedProducts returns the products a discount targets.
// Explicit product ids are filtered to those that still exist.
func (a *applicator) ResolveAffectedProducts(ctx context.Context, d *model.Discount) ([]*model.Product, error) {
	switch d.AppliesTo {
	case model.AppliesToAll:
		return a.productRepo.FindPublished(ctx)
	case model.AppliesToCategory:
		return a.productRepo.FindPublishedByCategory(ctx, d.Category)
	case model.AppliesToProducts:
		return a.productRepo.FindByIDs(ctx, d.ProductIDs)
	default:
		return nil, fmt.Errorf("unknown discount target: %s", d.AppliesTo)
	}
}

// Apply materializes a discount onto every affected product. Kept
// idempotent so an interrupted run can be retried: products already
// carrying the discount are left alone.
func (a *applicator) Apply(ctx context.Context, d *model.Discount) error {
	if err := a.ensureApplicable(d); err != nil {
		return err
	}

	products, err := a.ResolveAffectedProducts(ctx, d)
	if err != nil {
		return fmt.Errorf("resolve affected products: %w", err)
	}

	var failed int
	for _, product := range products {
		if err := a.applyToProduct(ctx, product, d); err != nil {
			failed++
			log.WithFields(map[string]interface{}{
				"discount_id": d.ID,
				"product_id":  product.ID,
				"error":       err.Error(),
			}).Error("Failed to apply discount to product")
		}
	}

	if failed > 0 {
		// The applied flag stays unset so the next scan retries the
		// products that failed. The successful ones are idempotent.
		a.recordTransition("apply", "partial_failure")
		return fmt.Errorf("discount %d: %d of %d products failed", d.ID, failed, len(products))
	}

	if err := a.discountRepo.SetApplied(ctx, d.ID, true); err != nil {
		return fmt.Errorf("mark discount applied: %w", err)
	}
	d.Applied = true

	a.recordTransition("apply", "success")
	a.broadcastActivity("discount_activated", fmt.Sprintf("Discount %q is now active on %d products", d.Name, len(products)))

	log.WithFields(map[string]interface{}{
		"discount_id": d.ID,
		"name":        d.Name,
		"products":    len(products),
	}).Info("Discount applied")
	return nil
}

// Revoke strips a discount from every product carrying it
func (a *applicator) Revoke(ctx context.Context, d *model.Discount) error {
	products, err := a.productRepo.FindWithDiscount(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("find products with discount: %w", err)
	}

	var failed int
	for _, product := range products {
		if err := a.removeFromProduct(ctx, product, d.ID); err != nil {
			failed++
			log.WithFields(map[string]interface{}{
				"discount_id": d.ID,
				"product_id":  product.ID,
				"error":       err.Error(),
			}).Error("Failed to revoke discount from product")
		}
	}

	if failed > 0 {
		a.recordTransition("revoke", "partial_failure")
		return fmt.Errorf("discount %d: %d of %d products failed", d.ID, failed, len(products))
	}

	if err := a.discountRepo.SetApplied(ctx, d.ID, false); err != nil {
		return fmt.Errorf("mark discount unapplied: %w", err)
	}
	d.Applied = false

	a.recordTransition("revoke", "success")
	a.broadcastActivity("discount_deactivated", fmt.Sprintf("Discount %q has ended, %d products restored", d.Name, len(products)))

	log.WithFields(map[string]interface{}{
		"discount_id": d.ID,
		"name":        d.Name,
		"products":    len(products),
	}).Info("Discount revoked")
	return nil
}

// ApplyToCategory materializes a discount onto a category's products
func (a *applicator) ApplyToCategory(ctx context.Context, discountID uint64, category string) (int, error) {
	d, err := a.discountRepo.GetByID(ctx, discountID)
	if err != nil {
		return 0, err
	}

	if err := a.ensureApplicable(d); err != nil {
		return 0, err
	}

	products, err := a.productRepo.FindPublishedByCategory(ctx, category)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, product := range products {
		if err := a.applyToProduct(ctx, product, d); err != nil {
			log.WithFields(map[string]interface{}{
				"discount_id": d.ID,
				"product_id":  product.ID,
				"error":       err.Error(),
			}).Error("Failed to apply discount to product")
			continue
		}
		applied++
	}

	if applied > 0 {
		// Let the expiry scan find and strip these products later.
		if err := a.discountRepo.SetApplied(ctx, discountID, true); err != nil {
			return applied, err
		}
	}

	a.broadcastActivity("discount_applied", fmt.Sprintf("Discount %q applied to %d products in %q", d.Name, applied, category))
	return applied, nil
}

// ApplyToProduct materializes a discount onto one product
func (a *applicator) ApplyToProduct(ctx context.Context, discountID, productID uint64) error {
	d, err := a.discountRepo.GetByID(ctx, discountID)
	if err != nil {
		return err
	}

	if err := a.ensureApplicable(d); err != nil {
		return err
	}

	product, err := a.productRepo.GetByID(ctx, productID)
	if err != nil {
		return err
	}

	if err := a.applyToProduct(ctx, product, d); err != nil {
		return err
	}

	if err := a.discountRepo.SetApplied(ctx, discountID, true); err != nil {
		return err
	}

	a.broadcastActivity("discount_applied", fmt.Sprintf("Discount %q applied to product %q", d.Name, product.Name))
	return nil
}

// RemoveFromProduct strips a discount from one product
func (a *applicator) RemoveFromProduct(ctx context.Context, productID, discountID uint64) error {
	product, err := a.productRepo.GetByID(ctx, productID)
	if err != nil {
		return err
	}

	if !product.HasDiscount(discountID) {
		return nil
	}

	if err := a.removeFromProduct(ctx, product, discountID); err != nil {
		return err
	}

	a.broadcastActivity("discount_removed", fmt.Sprintf("Discount removed from product %q", product.Name))
	return nil
}

// ensureApplicable rejects a discount whose window is not currently
// open. Scheduled, expired and deactivated discounts must never
// materialize onto product pricing.
func (a *applicator) ensureApplicable(d *model.Discount) error {
	if status := d.StatusAt(time.Now()); status != model.DiscountStatusActive {
		return utils.NewError(utils.CodeInvalidParam,
			fmt.Sprintf("discount %q is %s and cannot be applied", d.Name, status))
	}
	return nil
}

// applyToProduct appends the snapshot entry and recomputes pricing,
// retrying on version conflicts with a fresh read
func (a *applicator) applyToProduct(ctx context.Context, product *model.Product, d *model.Discount) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		if product.HasDiscount(d.ID) {
			return nil
		}

		product.AppliedDiscounts = append(product.AppliedDiscounts, d.Snapshot(time.Now()))
		product.RecomputeEffectivePrice()

		err := a.productRepo.UpdatePricing(ctx, product)
		if err == nil {
			a.productCache.Invalidate(product.ID)
			a.recordRecompute("success")
			return nil
		}

		if !errors.Is(err, repository.ErrVersionConflict) {
			a.recordRecompute("error")
			return err
		}

		a.recordRecompute("conflict")
		product, err = a.productRepo.GetByID(ctx, product.ID)
		if err != nil {
			return err
		}
	}

	return repository.ErrVersionConflict
}

// removeFromProduct strips the discount's entries and recomputes
// pricing, retrying on version conflicts with a fresh read
func (a *applicator) removeFromProduct(ctx context.Context, product *model.Product, discountID uint64) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		if !product.HasDiscount(discountID) {
			return nil
		}

		remaining := product.AppliedDiscounts[:0:0]
		for _, entry := range product.AppliedDiscounts {
			if entry.DiscountID != discountID {
				remaining = append(remaining, entry)
			}
		}
		product.AppliedDiscounts = remaining
		product.RecomputeEffectivePrice()

		err := a.productRepo.UpdatePricing(ctx, product)
		if err == nil {
			a.productCache.Invalidate(product.ID)
			a.recordRecompute("success")
			return nil
		}

		if !errors.Is(err, repository.ErrVersionConflict) {
			a.recordRecompute("error")
			return err
		}

		a.recordRecompute("conflict")
		product, err = a.productRepo.GetByID(ctx, product.ID)
		if err != nil {
			return err
		}
	}

	return repository.ErrVersionConflict
}

func (a *applicator) recordTransition(transition, status string) {
	if a.metrics != nil {
		a.metrics.RecordDiscountTransition(transition, status)
	}
}

func (a *applicator) recordRecompute(status string) {
	if a.metrics != nil {
		a.metrics.RecordPriceRecompute(status)
	}
}

func (a *applicator) broadcastActivity(action, description string) {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.BroadcastAdminActivity(&model.AdminActivity{
		AdminName:   "system",
		Action:      action,
		Description: description,
		Timestamp:   time.Now(),
		Icon:        "tag",
	})
}
