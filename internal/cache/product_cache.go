package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	"urbansprout/internal/model"
)

// ProductCache in-process cache for published product reads. Pricing
// writes invalidate entries so storefront reads never serve a stale
// effective price for long.
type ProductCache struct {
	cache   *bigcache.BigCache
	enabled bool
}

// NewProductCache creates a product cache
func NewProductCache(enabled bool, ttl time.Duration) (*ProductCache, error) {
	if !enabled {
		return &ProductCache{enabled: false}, nil
	}

	if ttl <= 0 {
		ttl = time.Minute
	}

	c, err := bigcache.New(context.Background(), bigcache.DefaultConfig(ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to create product cache: %w", err)
	}

	return &ProductCache{cache: c, enabled: true}, nil
}

// Get returns a cached product, or nil on a miss
func (pc *ProductCache) Get(id uint64) *model.Product {
	if !pc.enabled {
		return nil
	}

	data, err := pc.cache.Get(productKey(id))
	if err != nil {
		return nil
	}

	var product model.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil
	}
	return &product
}

// Set caches a product
func (pc *ProductCache) Set(product *model.Product) {
	if !pc.enabled || product == nil {
		return
	}

	data, err := json.Marshal(product)
	if err != nil {
		return
	}
	pc.cache.Set(productKey(product.ID), data)
}

// Invalidate drops a cached product
func (pc *ProductCache) Invalidate(id uint64) {
	if !pc.enabled {
		return
	}
	pc.cache.Delete(productKey(id))
}

// Reset drops every cached product
func (pc *ProductCache) Reset() {
	if !pc.enabled {
		return
	}
	pc.cache.Reset()
}

func productKey(id uint64) string {
	return fmt.Sprintf("product:%d", id)
}
