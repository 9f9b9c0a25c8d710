package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tiendaluna/pos_backend/config"
)

type InventorySummaryResponse struct {
	TotalVariants    int             `json:"totalVariants"`
	TotalUnits       int             `json:"totalUnits"`
	TotalReserved    int             `json:"totalReserved"`
	LowStockVariants int             `json:"lowStockVariants"`
	OutOfStock       int             `json:"outOfStock"`
	PendingRecounts  int             `json:"pendingRecounts"`
	CostValue        decimal.Decimal `json:"costValue"`
	RetailValue      decimal.Decimal `json:"retailValue"`
}

// Cached under the same key the ledger invalidates on every stock mutation,
// so the dashboard tile is never more than one sale stale.
const inventorySummaryCacheKey = "inventory_summary"

// GetInventorySummaryReport is the storefront dashboard headline: unit and
// value totals plus the counters that need attention.
func GetInventorySummaryReport(ctx context.Context) (*InventorySummaryResponse, error) {
	start := time.Now()
	defer logSlowReport(ctx, "inventory_summary_report", start, nil)

	var cached InventorySummaryResponse
	if ok, err := cacheGet(inventorySummaryCacheKey, &cached); err == nil && ok {
		return &cached, nil
	}

	sql := `
SELECT
    COUNT(DISTINCT inv.variant_id) AS total_variants,
    COALESCE(SUM(inv.quantity), 0) AS total_units,
    COALESCE(SUM(inv.reserved_quantity), 0) AS total_reserved,
    COALESCE(SUM(CASE WHEN inv.quantity <= inv.min_stock AND inv.quantity > 0 THEN 1 ELSE 0 END), 0) AS low_stock_variants,
    COALESCE(SUM(CASE WHEN inv.quantity = 0 THEN 1 ELSE 0 END), 0) AS out_of_stock,
    COALESCE(SUM(CASE WHEN inv.needs_recount = 1 THEN 1 ELSE 0 END), 0) AS pending_recounts,
    COALESCE(SUM(inv.quantity * pv.cost), 0) AS cost_value,
    COALESCE(SUM(inv.quantity * pv.price), 0) AS retail_value
FROM inventories inv
    JOIN product_variants pv ON pv.id = inv.variant_id
WHERE inv.is_active = 1;
`

	var summary InventorySummaryResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql).Scan(&summary).Error; err != nil {
		return nil, err
	}

	_ = cacheSet(inventorySummaryCacheKey, &summary, reportCacheTTL())
	return &summary, nil
}
