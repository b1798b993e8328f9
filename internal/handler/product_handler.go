package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"urbansprout/internal/cache"
	"urbansprout/internal/repository"
	"urbansprout/pkg/utils"
)

// ProductHandler storefront product endpoints
type ProductHandler struct {
	productRepo  repository.ProductRepository
	productCache *cache.ProductCache
}

// NewProductHandler creates a product handler
func NewProductHandler(productRepo repository.ProductRepository, productCache *cache.ProductCache) *ProductHandler {
	return &ProductHandler{
		productRepo:  productRepo,
		productCache: productCache,
	}
}

// List lists published products
func (h *ProductHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	category := c.Query("category")

	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	products, total, err := h.productRepo.List(c.Request.Context(), page, size, category)
	if err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	totalPages := int((total + int64(size) - 1) / int64(size))

	utils.Success(c, utils.PageData{
		List:       products,
		Total:      total,
		Page:       page,
		Size:       size,
		TotalPages: totalPages,
	})
}

// Get returns one product, served from cache when warm
func (h *ProductHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		utils.Error(c, utils.CodeInvalidParam, "invalid product id")
		return
	}

	if cached := h.productCache.Get(id); cached != nil {
		utils.Success(c, cached)
		return
	}

	product, err := h.productRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	if !product.IsPublished() {
		utils.Error(c, utils.CodeNotFound, "product not found")
		return
	}

	h.productCache.Set(product)
	utils.Success(c, product)
}
