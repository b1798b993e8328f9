package discount

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urbansprout/internal/cache"
	"urbansprout/internal/model"
	"urbansprout/internal/repository"
	"urbansprout/pkg/utils"
)

type fakeProductRepo struct {
	products map[uint64]*model.Product

	// conflictsLeft forces UpdatePricing to fail with a version
	// conflict this many times before succeeding
	conflictsLeft int
	updateErr     error
	updates       int
}

func newFakeProductRepo(products ...*model.Product) *fakeProductRepo {
	repo := &fakeProductRepo{products: make(map[uint64]*model.Product)}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (f *fakeProductRepo) Create(ctx context.Context, product *model.Product) error {
	f.products[product.ID] = product
	return nil
}

func (f *fakeProductRepo) GetByID(ctx context.Context, id uint64) (*model.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, errors.New("product not found")
	}
	clone := *p
	clone.AppliedDiscounts = append(model.AppliedDiscountList{}, p.AppliedDiscounts...)
	return &clone, nil
}

func (f *fakeProductRepo) Update(ctx context.Context, product *model.Product) error {
	f.products[product.ID] = product
	return nil
}

func (f *fakeProductRepo) List(ctx context.Context, page, pageSize int, category string) ([]*model.Product, int64, error) {
	return nil, 0, nil
}

func (f *fakeProductRepo) FindPublished(ctx context.Context) ([]*model.Product, error) {
	var out []*model.Product
	for _, p := range f.products {
		if p.IsPublished() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProductRepo) FindPublishedByCategory(ctx context.Context, category string) ([]*model.Product, error) {
	var out []*model.Product
	for _, p := range f.products {
		if p.IsPublished() && p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProductRepo) FindByIDs(ctx context.Context, ids []uint64) ([]*model.Product, error) {
	var out []*model.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProductRepo) FindWithDiscount(ctx context.Context, discountID uint64) ([]*model.Product, error) {
	var out []*model.Product
	for _, p := range f.products {
		if p.HasDiscount(discountID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProductRepo) UpdatePricing(ctx context.Context, product *model.Product) error {
	f.updates++
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return repository.ErrVersionConflict
	}
	product.Version++
	stored := *product
	stored.AppliedDiscounts = append(model.AppliedDiscountList{}, product.AppliedDiscounts...)
	f.products[product.ID] = &stored
	return nil
}

type fakeDiscountRepo struct {
	discounts map[uint64]*model.Discount

	dueForApply  []*model.Discount
	dueForRevoke []*model.Discount

	setAppliedErr error
}

func newFakeDiscountRepo(discounts ...*model.Discount) *fakeDiscountRepo {
	repo := &fakeDiscountRepo{discounts: make(map[uint64]*model.Discount)}
	for _, d := range discounts {
		repo.discounts[d.ID] = d
	}
	return repo
}

func (f *fakeDiscountRepo) Create(ctx context.Context, d *model.Discount) error {
	f.discounts[d.ID] = d
	return nil
}

func (f *fakeDiscountRepo) GetByID(ctx context.Context, id uint64) (*model.Discount, error) {
	d, ok := f.discounts[id]
	if !ok {
		return nil, errors.New("discount not found")
	}
	return d, nil
}

func (f *fakeDiscountRepo) Update(ctx context.Context, d *model.Discount) error {
	f.discounts[d.ID] = d
	return nil
}

func (f *fakeDiscountRepo) Delete(ctx context.Context, id uint64) error {
	delete(f.discounts, id)
	return nil
}

func (f *fakeDiscountRepo) List(ctx context.Context, page, pageSize int) ([]*model.Discount, int64, error) {
	return nil, 0, nil
}

func (f *fakeDiscountRepo) FindUpcoming(ctx context.Context, now time.Time) ([]*model.Discount, error) {
	return nil, nil
}

func (f *fakeDiscountRepo) FindDueForApply(ctx context.Context, now time.Time) ([]*model.Discount, error) {
	return f.dueForApply, nil
}

func (f *fakeDiscountRepo) FindDueForRevoke(ctx context.Context, now time.Time) ([]*model.Discount, error) {
	return f.dueForRevoke, nil
}

func (f *fakeDiscountRepo) SetApplied(ctx context.Context, id uint64, applied bool) error {
	if f.setAppliedErr != nil {
		return f.setAppliedErr
	}
	if d, ok := f.discounts[id]; ok {
		d.Applied = applied
	}
	return nil
}

func testProduct(id uint64, price int64) *model.Product {
	return &model.Product{
		ID:             id,
		Name:           "Monstera",
		Category:       "plants",
		RegularPrice:   price,
		EffectivePrice: price,
		Status:         model.ProductStatusPublished,
		Version:        1,
	}
}

func testDiscount(id uint64, kind string, value int64) *model.Discount {
	now := time.Now()
	return &model.Discount{
		ID:        id,
		Name:      "Spring Sale",
		Kind:      kind,
		Value:     value,
		AppliesTo: model.AppliesToAll,
		StartsAt:  now.Add(-time.Hour),
		EndsAt:    now.Add(time.Hour),
		Active:    true,
	}
}

func newTestApplicator(discountRepo repository.DiscountRepository, productRepo repository.ProductRepository) Applicator {
	productCache, _ := cache.NewProductCache(false, 0)
	return NewApplicator(discountRepo, productRepo, productCache, nil, nil)
}

func TestApplicator_Apply(t *testing.T) {
	product := testProduct(1, 10000)
	d := testDiscount(7, model.DiscountKindPercentage, 20)

	productRepo := newFakeProductRepo(product)
	discountRepo := newFakeDiscountRepo(d)
	a := newTestApplicator(discountRepo, productRepo)

	err := a.Apply(context.Background(), d)
	require.NoError(t, err)

	assert.True(t, d.Applied)
	stored := productRepo.products[1]
	assert.Equal(t, int64(8000), stored.EffectivePrice)
	assert.True(t, stored.HasDiscount(7))
}

func TestApplicator_Apply_Idempotent(t *testing.T) {
	product := testProduct(1, 10000)
	d := testDiscount(7, model.DiscountKindPercentage, 20)
	product.AppliedDiscounts = model.AppliedDiscountList{d.Snapshot(time.Now())}
	product.RecomputeEffectivePrice()

	productRepo := newFakeProductRepo(product)
	discountRepo := newFakeDiscountRepo(d)
	a := newTestApplicator(discountRepo, productRepo)

	err := a.Apply(context.Background(), d)
	require.NoError(t, err)

	stored := productRepo.products[1]
	assert.Equal(t, int64(8000), stored.EffectivePrice)
	assert.Len(t, stored.AppliedDiscounts, 1)
	assert.Zero(t, productRepo.updates)
}

func TestApplicator_Apply_RetriesOnVersionConflict(t *testing.T) {
	product := testProduct(1, 10000)
	d := testDiscount(7, model.DiscountKindFixed, 1500)

	productRepo := newFakeProductRepo(product)
	productRepo.conflictsLeft = 2
	discountRepo := newFakeDiscountRepo(d)
	a := newTestApplicator(discountRepo, productRepo)

	err := a.Apply(context.Background(), d)
	require.NoError(t, err)

	assert.Equal(t, 3, productRepo.updates)
	assert.Equal(t, int64(8500), productRepo.products[1].EffectivePrice)
}

func TestApplicator_Apply_PartialFailureKeepsAppliedUnset(t *testing.T) {
	product := testProduct(1, 10000)
	d := testDiscount(7, model.DiscountKindPercentage, 20)

	productRepo := newFakeProductRepo(product)
	productRepo.updateErr = errors.New("db down")
	discountRepo := newFakeDiscountRepo(d)
	a := newTestApplicator(discountRepo, productRepo)

	err := a.Apply(context.Background(), d)
	require.Error(t, err)
	assert.False(t, d.Applied)
}

func TestApplicator_DeepestDiscountWins(t *testing.T) {
	product := testProduct(1, 10000)
	shallow := testDiscount(7, model.DiscountKindPercentage, 10)
	deep := testDiscount(8, model.DiscountKindPercentage, 30)

	productRepo := newFakeProductRepo(product)
	discountRepo := newFakeDiscountRepo(shallow, deep)
	a := newTestApplicator(discountRepo, productRepo)

	ctx := context.Background()
	require.NoError(t, a.Apply(ctx, shallow))
	require.NoError(t, a.Apply(ctx, deep))

	stored := productRepo.products[1]
	assert.Equal(t, int64(7000), stored.EffectivePrice)
	assert.Len(t, stored.AppliedDiscounts, 2)

	// Revoking the deeper cut falls back to the shallower one.
	require.NoError(t, a.Revoke(ctx, deep))
	stored = productRepo.products[1]
	assert.Equal(t, int64(9000), stored.EffectivePrice)
}

func TestApplicator_Revoke(t *testing.T) {
	product := testProduct(1, 10000)
	d := testDiscount(7, model.DiscountKindPercentage, 20)
	d.Applied = true
	product.AppliedDiscounts = model.AppliedDiscountList{d.Snapshot(time.Now())}
	product.RecomputeEffectivePrice()

	productRepo := newFakeProductRepo(product)
	discountRepo := newFakeDiscountRepo(d)
	a := newTestApplicator(discountRepo, productRepo)

	err := a.Revoke(context.Background(), d)
	require.NoError(t, err)

	assert.False(t, d.Applied)
	stored := productRepo.products[1]
	assert.Equal(t, int64(10000), stored.EffectivePrice)
	assert.False(t, stored.HasDiscount(7))
}

func TestApplicator_ApplyToCategory(t *testing.T) {
	plant := testProduct(1, 10000)
	pot := testProduct(2, 2500)
	pot.Category = "pots"
	d := testDiscount(7, model.DiscountKindPercentage, 10)

	productRepo := newFakeProductRepo(plant, pot)
	discountRepo := newFakeDiscountRepo(d)
	a := newTestApplicator(discountRepo, productRepo)

	applied, err := a.ApplyToCategory(context.Background(), 7, "plants")
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	assert.Equal(t, int64(9000), productRepo.products[1].EffectivePrice)
	assert.Equal(t, int64(2500), productRepo.products[2].EffectivePrice)
	assert.True(t, discountRepo.discounts[7].Applied)
}

func TestApplicator_ApplyToProduct_RejectsScheduledDiscount(t *testing.T) {
	product := testProduct(1, 50000)
	scheduled := testDiscount(7, model.DiscountKindFixed, 10000)
	scheduled.StartsAt = time.Now().Add(time.Hour)
	scheduled.EndsAt = time.Now().Add(2 * time.Hour)

	productRepo := newFakeProductRepo(product)
	discountRepo := newFakeDiscountRepo(scheduled)
	a := newTestApplicator(discountRepo, productRepo)

	err := a.ApplyToProduct(context.Background(), 7, 1)
	require.Error(t, err)
	assert.Equal(t, utils.CodeInvalidParam, utils.GetErrorCode(err))

	stored := productRepo.products[1]
	assert.Equal(t, int64(50000), stored.EffectivePrice)
	assert.False(t, stored.HasDiscount(7))
	assert.False(t, discountRepo.discounts[7].Applied)
	assert.Zero(t, productRepo.updates)
}

func TestApplicator_ApplyToCategory_RejectsExpiredDiscount(t *testing.T) {
	product := testProduct(1, 10000)
	expired := testDiscount(7, model.DiscountKindPercentage, 20)
	expired.StartsAt = time.Now().Add(-2 * time.Hour)
	expired.EndsAt = time.Now().Add(-time.Hour)

	productRepo := newFakeProductRepo(product)
	discountRepo := newFakeDiscountRepo(expired)
	a := newTestApplicator(discountRepo, productRepo)

	applied, err := a.ApplyToCategory(context.Background(), 7, "plants")
	require.Error(t, err)
	assert.Equal(t, utils.CodeInvalidParam, utils.GetErrorCode(err))
	assert.Zero(t, applied)

	assert.Equal(t, int64(10000), productRepo.products[1].EffectivePrice)
	assert.False(t, discountRepo.discounts[7].Applied)
}

func TestApplicator_Apply_RejectsDeactivatedDiscount(t *testing.T) {
	product := testProduct(1, 10000)
	d := testDiscount(7, model.DiscountKindPercentage, 20)
	d.Active = false

	productRepo := newFakeProductRepo(product)
	discountRepo := newFakeDiscountRepo(d)
	a := newTestApplicator(discountRepo, productRepo)

	err := a.Apply(context.Background(), d)
	require.Error(t, err)
	assert.Equal(t, utils.CodeInvalidParam, utils.GetErrorCode(err))
	assert.False(t, d.Applied)
	assert.Zero(t, productRepo.updates)
}

func TestApplicator_RemoveFromProduct_NoEntryIsNoop(t *testing.T) {
	product := testProduct(1, 10000)

	productRepo := newFakeProductRepo(product)
	discountRepo := newFakeDiscountRepo()
	a := newTestApplicator(discountRepo, productRepo)

	err := a.RemoveFromProduct(context.Background(), 1, 99)
	assert.NoError(t, err)
	assert.Zero(t, productRepo.updates)
}

func TestApplicator_ResolveAffectedProducts(t *testing.T) {
	plant := testProduct(1, 10000)
	pot := testProduct(2, 2500)
	pot.Category = "pots"
	draft := testProduct(3, 5000)
	draft.Status = model.ProductStatusUnpublished

	productRepo := newFakeProductRepo(plant, pot, draft)
	discountRepo := newFakeDiscountRepo()
	a := newTestApplicator(discountRepo, productRepo)

	ctx := context.Background()

	all := testDiscount(1, model.DiscountKindPercentage, 10)
	products, err := a.ResolveAffectedProducts(ctx, all)
	require.NoError(t, err)
	assert.Len(t, products, 2)

	byCategory := testDiscount(2, model.DiscountKindPercentage, 10)
	byCategory.AppliesTo = model.AppliesToCategory
	byCategory.Category = "pots"
	products, err = a.ResolveAffectedProducts(ctx, byCategory)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, uint64(2), products[0].ID)

	byIDs := testDiscount(3, model.DiscountKindPercentage, 10)
	byIDs.AppliesTo = model.AppliesToProducts
	byIDs.ProductIDs = model.IDList{1, 999}
	products, err = a.ResolveAffectedProducts(ctx, byIDs)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, uint64(1), products[0].ID)
}
