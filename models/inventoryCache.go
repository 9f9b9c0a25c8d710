package models

import (
	"context"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/tiendaluna/pos_backend/config"
	"github.com/tiendaluna/pos_backend/utils"
)

const (
	inventoryAlertsCacheKey  = "inventory_alerts"
	inventorySummaryCacheKey = "inventory_summary"
)

// RedisInventoryCache drops the redis read views a stock mutation makes
// stale: the per-variant inventory snapshot, the cached variant object, and
// the store-wide alert and summary views. Failures are logged and swallowed,
// redis being down must never fail a sale.
type RedisInventoryCache struct {
	logger *logrus.Logger
}

func NewRedisInventoryCache(logger *logrus.Logger) *RedisInventoryCache {
	return &RedisInventoryCache{logger: logger}
}

func (c *RedisInventoryCache) InvalidateVariant(ctx context.Context, variantId int) {
	keys := []string{
		inventoryInfoCacheKey + strconv.Itoa(variantId),
		utils.GetTypeName[ProductVariant]() + ":" + strconv.Itoa(variantId),
		inventoryAlertsCacheKey,
		inventorySummaryCacheKey,
	}
	if err := config.RemoveRedisKey(keys...); err != nil {
		config.LogError(c.logger, "inventoryCache.go", "InvalidateVariant", "invalidate inventory cache", variantId, err)
	}
}
