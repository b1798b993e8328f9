package handler

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"urbansprout/internal/middleware"
	"urbansprout/internal/model"
	"urbansprout/internal/repository"
	"urbansprout/internal/service/discount"
	"urbansprout/internal/service/notify"
	"urbansprout/pkg/utils"
)

// DiscountRequest create/update discount request
type DiscountRequest struct {
	Name              string    `json:"name" binding:"required,max=200"`
	Kind              string    `json:"kind" binding:"required,oneof=percentage fixed"`
	Value             int64     `json:"value" binding:"gte=0"`
	AppliesTo         string    `json:"applies_to" binding:"required,oneof=all category products"`
	Category          string    `json:"category"`
	ProductIDs        []uint64  `json:"product_ids"`
	StartsAt          time.Time `json:"starts_at" binding:"required"`
	EndsAt            time.Time `json:"ends_at" binding:"required"`
	UsageLimit        *int      `json:"usage_limit"`
	MinOrderValue     int64     `json:"min_order_value"`
	MaxDiscountAmount int64     `json:"max_discount_amount"`
	Active            *bool     `json:"active"`
}

// DiscountView discount with its derived status
type DiscountView struct {
	*model.Discount
	Status model.DiscountStatus `json:"status"`
}

// DiscountHandler admin discount endpoints
type DiscountHandler struct {
	discountRepo repository.DiscountRepository
	applicator   discount.Applicator
	dispatcher   notify.Dispatcher
}

// NewDiscountHandler creates a discount handler
func NewDiscountHandler(
	discountRepo repository.DiscountRepository,
	applicator discount.Applicator,
	dispatcher notify.Dispatcher,
) *DiscountHandler {
	return &DiscountHandler{
		discountRepo: discountRepo,
		applicator:   applicator,
		dispatcher:   dispatcher,
	}
}

// Create creates a discount
func (h *DiscountHandler) Create(c *gin.Context) {
	var req DiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.CodeInvalidParam, "invalid parameters: "+err.Error())
		return
	}

	d := h.toModel(&req)
	if err := h.discountRepo.Create(c.Request.Context(), d); err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	h.broadcastActivity(c, "discount_created", fmt.Sprintf("Created discount %q", d.Name))
	utils.Success(c, h.view(d))
}

// Update updates a discount
func (h *DiscountHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		utils.Error(c, utils.CodeInvalidParam, "invalid discount id")
		return
	}

	var req DiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.CodeInvalidParam, "invalid parameters: "+err.Error())
		return
	}

	existing, err := h.discountRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	d := h.toModel(&req)
	d.ID = existing.ID
	d.Applied = existing.Applied
	d.UsedCount = existing.UsedCount
	d.CreatedAt = existing.CreatedAt

	if err := h.discountRepo.Update(c.Request.Context(), d); err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	// A deactivated discount is picked up by the next lifecycle scan,
	// so the update itself stays fast.
	h.broadcastActivity(c, "discount_updated", fmt.Sprintf("Updated discount %q", d.Name))
	utils.Success(c, h.view(d))
}

// Delete revokes a discount's effects and removes it
func (h *DiscountHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		utils.Error(c, utils.CodeInvalidParam, "invalid discount id")
		return
	}

	d, err := h.discountRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	// Deleting a live discount must also restore product pricing.
	if d.Applied {
		if err := h.applicator.Revoke(c.Request.Context(), d); err != nil {
			utils.ErrorFromErr(c, err)
			return
		}
	}

	if err := h.discountRepo.Delete(c.Request.Context(), id); err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	h.broadcastActivity(c, "discount_deleted", fmt.Sprintf("Deleted discount %q", d.Name))
	utils.Success(c, nil)
}

// List lists discounts with derived statuses
func (h *DiscountHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	discounts, total, err := h.discountRepo.List(c.Request.Context(), page, size)
	if err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	views := make([]*DiscountView, 0, len(discounts))
	for _, d := range discounts {
		views = append(views, h.view(d))
	}

	totalPages := int((total + int64(size) - 1) / int64(size))

	utils.Success(c, utils.PageData{
		List:       views,
		Total:      total,
		Page:       page,
		Size:       size,
		TotalPages: totalPages,
	})
}

// Upcoming lists scheduled discounts ordered by start time
func (h *DiscountHandler) Upcoming(c *gin.Context) {
	discounts, err := h.discountRepo.FindUpcoming(c.Request.Context(), time.Now())
	if err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	views := make([]*DiscountView, 0, len(discounts))
	for _, d := range discounts {
		views = append(views, h.view(d))
	}

	utils.Success(c, gin.H{"discounts": views})
}

// ApplyToCategory materializes a discount onto a category's products
func (h *DiscountHandler) ApplyToCategory(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		utils.Error(c, utils.CodeInvalidParam, "invalid discount id")
		return
	}

	var req struct {
		Category string `json:"category" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.CodeInvalidParam, "category is required")
		return
	}

	applied, err := h.applicator.ApplyToCategory(c.Request.Context(), id, req.Category)
	if err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	utils.Success(c, gin.H{"applied_count": applied})
}

// ApplyToProduct materializes a discount onto one product
func (h *DiscountHandler) ApplyToProduct(c *gin.Context) {
	productID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || productID == 0 {
		utils.Error(c, utils.CodeInvalidParam, "invalid product id")
		return
	}

	var req struct {
		DiscountID uint64 `json:"discount_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.CodeInvalidParam, "discount_id is required")
		return
	}

	if err := h.applicator.ApplyToProduct(c.Request.Context(), req.DiscountID, productID); err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	utils.Success(c, nil)
}

// RemoveFromProduct strips a discount from one product
func (h *DiscountHandler) RemoveFromProduct(c *gin.Context) {
	productID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || productID == 0 {
		utils.Error(c, utils.CodeInvalidParam, "invalid product id")
		return
	}

	discountID, err := strconv.ParseUint(c.Param("discountID"), 10, 64)
	if err != nil || discountID == 0 {
		utils.Error(c, utils.CodeInvalidParam, "invalid discount id")
		return
	}

	if err := h.applicator.RemoveFromProduct(c.Request.Context(), productID, discountID); err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	utils.Success(c, nil)
}

func (h *DiscountHandler) toModel(req *DiscountRequest) *model.Discount {
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	return &model.Discount{
		Name:              req.Name,
		Kind:              req.Kind,
		Value:             req.Value,
		AppliesTo:         req.AppliesTo,
		Category:          req.Category,
		ProductIDs:        req.ProductIDs,
		StartsAt:          req.StartsAt,
		EndsAt:            req.EndsAt,
		UsageLimit:        req.UsageLimit,
		MinOrderValue:     req.MinOrderValue,
		MaxDiscountAmount: req.MaxDiscountAmount,
		Active:            active,
	}
}

func (h *DiscountHandler) view(d *model.Discount) *DiscountView {
	return &DiscountView{
		Discount: d,
		Status:   d.StatusAt(time.Now()),
	}
}

func (h *DiscountHandler) broadcastActivity(c *gin.Context, action, description string) {
	if h.dispatcher == nil {
		return
	}

	adminName := "admin"
	if name, ok := middleware.GetUsername(c); ok {
		adminName = name
	}

	h.dispatcher.BroadcastAdminActivity(&model.AdminActivity{
		AdminName:   adminName,
		Action:      action,
		Description: description,
		Timestamp:   time.Now(),
		Icon:        "tag",
	})
}
