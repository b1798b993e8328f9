package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urbansprout/internal/model"
	"urbansprout/pkg/utils"
)

type fakeDiscountStore struct {
	discounts map[uint64]*model.Discount
	nextID    uint64
}

func newFakeDiscountStore(discounts ...*model.Discount) *fakeDiscountStore {
	store := &fakeDiscountStore{discounts: make(map[uint64]*model.Discount), nextID: 1}
	for _, d := range discounts {
		store.discounts[d.ID] = d
		if d.ID >= store.nextID {
			store.nextID = d.ID + 1
		}
	}
	return store
}

func (f *fakeDiscountStore) Create(ctx context.Context, d *model.Discount) error {
	if err := d.Validate(); err != nil {
		return utils.WrapError(err, utils.CodeInvalidParam, err.Error())
	}
	d.ID = f.nextID
	f.nextID++
	f.discounts[d.ID] = d
	return nil
}

func (f *fakeDiscountStore) GetByID(ctx context.Context, id uint64) (*model.Discount, error) {
	if d, ok := f.discounts[id]; ok {
		return d, nil
	}
	return nil, utils.ErrDiscountNotFound
}

func (f *fakeDiscountStore) Update(ctx context.Context, d *model.Discount) error {
	if err := d.Validate(); err != nil {
		return utils.WrapError(err, utils.CodeInvalidParam, err.Error())
	}
	f.discounts[d.ID] = d
	return nil
}

func (f *fakeDiscountStore) Delete(ctx context.Context, id uint64) error {
	if _, ok := f.discounts[id]; !ok {
		return utils.ErrDiscountNotFound
	}
	delete(f.discounts, id)
	return nil
}

func (f *fakeDiscountStore) List(ctx context.Context, page, pageSize int) ([]*model.Discount, int64, error) {
	var out []*model.Discount
	for _, d := range f.discounts {
		out = append(out, d)
	}
	return out, int64(len(out)), nil
}

func (f *fakeDiscountStore) FindUpcoming(ctx context.Context, now time.Time) ([]*model.Discount, error) {
	var out []*model.Discount
	for _, d := range f.discounts {
		if d.Active && d.StartsAt.After(now) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDiscountStore) FindDueForApply(ctx context.Context, now time.Time) ([]*model.Discount, error) {
	return nil, nil
}

func (f *fakeDiscountStore) FindDueForRevoke(ctx context.Context, now time.Time) ([]*model.Discount, error) {
	return nil, nil
}

func (f *fakeDiscountStore) SetApplied(ctx context.Context, id uint64, applied bool) error {
	if d, ok := f.discounts[id]; ok {
		d.Applied = applied
	}
	return nil
}

type fakeApplicator struct {
	revoked       []uint64
	applied       []uint64
	removed       []uint64
	categoryCount int
}

func (f *fakeApplicator) ResolveAffectedProducts(ctx context.Context, d *model.Discount) ([]*model.Product, error) {
	return nil, nil
}

func (f *fakeApplicator) Apply(ctx context.Context, d *model.Discount) error {
	f.applied = append(f.applied, d.ID)
	return nil
}

func (f *fakeApplicator) Revoke(ctx context.Context, d *model.Discount) error {
	f.revoked = append(f.revoked, d.ID)
	d.Applied = false
	return nil
}

func (f *fakeApplicator) ApplyToCategory(ctx context.Context, discountID uint64, category string) (int, error) {
	return f.categoryCount, nil
}

func (f *fakeApplicator) ApplyToProduct(ctx context.Context, discountID, productID uint64) error {
	f.applied = append(f.applied, discountID)
	return nil
}

func (f *fakeApplicator) RemoveFromProduct(ctx context.Context, productID, discountID uint64) error {
	f.removed = append(f.removed, discountID)
	return nil
}

func discountRouter(store *fakeDiscountStore, applicator *fakeApplicator, dispatcher *fakeDispatcher) *gin.Engine {
	h := NewDiscountHandler(store, applicator, dispatcher)

	r := gin.New()
	group := r.Group("/admin/discounts", asUser(2, "admin", "iris"))
	group.GET("", h.List)
	group.POST("", h.Create)
	group.GET("/upcoming", h.Upcoming)
	group.PUT("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
	group.POST("/:id/apply-to-category", h.ApplyToCategory)
	return r
}

func discountPayload() map[string]interface{} {
	now := time.Now()
	return map[string]interface{}{
		"name":       "Summer Sale",
		"kind":       "percentage",
		"value":      20,
		"applies_to": "all",
		"starts_at":  now.Add(-time.Hour).Format(time.RFC3339),
		"ends_at":    now.Add(24 * time.Hour).Format(time.RFC3339),
	}
}

func postJSON(r *gin.Engine, method, path string, payload interface{}) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDiscountHandler_Create(t *testing.T) {
	store := newFakeDiscountStore()
	dispatcher := &fakeDispatcher{}
	r := discountRouter(store, &fakeApplicator{}, dispatcher)

	w := postJSON(r, "POST", "/admin/discounts", discountPayload())
	require.Equal(t, 200, w.Code)

	var response utils.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Success)

	data := response.Data.(map[string]interface{})
	assert.Equal(t, "Summer Sale", data["name"])
	assert.Equal(t, string(model.DiscountStatusActive), data["status"])

	require.Len(t, dispatcher.activities, 1)
	assert.Equal(t, "discount_created", dispatcher.activities[0].Action)
	assert.Equal(t, "iris", dispatcher.activities[0].AdminName)
}

func TestDiscountHandler_Create_InvalidKind(t *testing.T) {
	r := discountRouter(newFakeDiscountStore(), &fakeApplicator{}, &fakeDispatcher{})

	payload := discountPayload()
	payload["kind"] = "bogo"

	w := postJSON(r, "POST", "/admin/discounts", payload)
	assert.Equal(t, 400, w.Code)
}

func TestDiscountHandler_Create_ZeroPercentValue(t *testing.T) {
	store := newFakeDiscountStore()
	r := discountRouter(store, &fakeApplicator{}, &fakeDispatcher{})

	// Zero is inside the valid percentage range.
	payload := discountPayload()
	payload["value"] = 0

	w := postJSON(r, "POST", "/admin/discounts", payload)
	require.Equal(t, 200, w.Code)

	var response utils.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Success)
	require.Len(t, store.discounts, 1)
}

func TestDiscountHandler_Create_NegativeValue(t *testing.T) {
	r := discountRouter(newFakeDiscountStore(), &fakeApplicator{}, &fakeDispatcher{})

	payload := discountPayload()
	payload["value"] = -5

	w := postJSON(r, "POST", "/admin/discounts", payload)
	assert.Equal(t, 400, w.Code)
}

func TestDiscountHandler_Create_ValueOverHundredPercent(t *testing.T) {
	r := discountRouter(newFakeDiscountStore(), &fakeApplicator{}, &fakeDispatcher{})

	payload := discountPayload()
	payload["value"] = 150

	w := postJSON(r, "POST", "/admin/discounts", payload)
	assert.Equal(t, 400, w.Code)
}

func TestDiscountHandler_Update_PreservesBookkeeping(t *testing.T) {
	now := time.Now()
	existing := &model.Discount{
		ID:        5,
		Name:      "Old Name",
		Kind:      model.DiscountKindPercentage,
		Value:     10,
		AppliesTo: model.AppliesToAll,
		StartsAt:  now.Add(-time.Hour),
		EndsAt:    now.Add(time.Hour),
		Active:    true,
		Applied:   true,
		UsedCount: 7,
	}
	store := newFakeDiscountStore(existing)
	r := discountRouter(store, &fakeApplicator{}, &fakeDispatcher{})

	w := postJSON(r, "PUT", "/admin/discounts/5", discountPayload())
	require.Equal(t, 200, w.Code)

	updated := store.discounts[5]
	assert.Equal(t, "Summer Sale", updated.Name)
	assert.True(t, updated.Applied)
	assert.Equal(t, 7, updated.UsedCount)
}

func TestDiscountHandler_Delete_RevokesAppliedDiscount(t *testing.T) {
	now := time.Now()
	existing := &model.Discount{
		ID:        5,
		Name:      "Live Sale",
		Kind:      model.DiscountKindPercentage,
		Value:     10,
		AppliesTo: model.AppliesToAll,
		StartsAt:  now.Add(-time.Hour),
		EndsAt:    now.Add(time.Hour),
		Active:    true,
		Applied:   true,
	}
	store := newFakeDiscountStore(existing)
	applicator := &fakeApplicator{}
	r := discountRouter(store, applicator, &fakeDispatcher{})

	req := httptest.NewRequest("DELETE", "/admin/discounts/5", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	assert.Equal(t, []uint64{5}, applicator.revoked)
	assert.NotContains(t, store.discounts, uint64(5))
}

func TestDiscountHandler_Delete_NotFound(t *testing.T) {
	r := discountRouter(newFakeDiscountStore(), &fakeApplicator{}, &fakeDispatcher{})

	req := httptest.NewRequest("DELETE", "/admin/discounts/99", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, 404, w.Code)
}

func TestDiscountHandler_Upcoming(t *testing.T) {
	now := time.Now()
	scheduled := &model.Discount{
		ID:        3,
		Name:      "Holiday Sale",
		Kind:      model.DiscountKindFixed,
		Value:     500,
		AppliesTo: model.AppliesToAll,
		StartsAt:  now.Add(24 * time.Hour),
		EndsAt:    now.Add(48 * time.Hour),
		Active:    true,
	}
	store := newFakeDiscountStore(scheduled)
	r := discountRouter(store, &fakeApplicator{}, &fakeDispatcher{})

	req := httptest.NewRequest("GET", "/admin/discounts/upcoming", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)

	var response utils.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response.Data.(map[string]interface{})
	discounts := data["discounts"].([]interface{})
	require.Len(t, discounts, 1)

	view := discounts[0].(map[string]interface{})
	assert.Equal(t, string(model.DiscountStatusScheduled), view["status"])
}

func TestDiscountHandler_ApplyToCategory(t *testing.T) {
	now := time.Now()
	d := &model.Discount{
		ID:        4,
		Name:      "Pot Sale",
		Kind:      model.DiscountKindPercentage,
		Value:     15,
		AppliesTo: model.AppliesToCategory,
		Category:  "pots",
		StartsAt:  now.Add(-time.Hour),
		EndsAt:    now.Add(time.Hour),
		Active:    true,
	}
	store := newFakeDiscountStore(d)
	applicator := &fakeApplicator{categoryCount: 3}
	r := discountRouter(store, applicator, &fakeDispatcher{})

	w := postJSON(r, "POST", "/admin/discounts/4/apply-to-category", map[string]string{"category": "pots"})
	require.Equal(t, 200, w.Code)

	var response utils.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response.Data.(map[string]interface{})
	assert.Equal(t, float64(3), data["applied_count"])
}

func TestDiscountHandler_ApplyToCategory_MissingBody(t *testing.T) {
	r := discountRouter(newFakeDiscountStore(), &fakeApplicator{}, &fakeDispatcher{})

	w := postJSON(r, "POST", fmt.Sprintf("/admin/discounts/%d/apply-to-category", 4), map[string]string{})
	assert.Equal(t, 400, w.Code)
}
