package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tiendaluna/pos_backend/config"
)

type StockValueResponse struct {
	VariantId    int             `json:"variantId"`
	Sku          string          `json:"sku"`
	ProductName  string          `json:"productName"`
	Size         string          `json:"size"`
	Color        string          `json:"color"`
	TotalStock   int             `json:"totalStock"`
	CostPerUnit  decimal.Decimal `json:"costPerUnit"`
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
	CostValue    decimal.Decimal `json:"costValue"`
	RetailValue  decimal.Decimal `json:"retailValue"`
}

// GetStockValueReport values the stock on hand per variant at cost and at
// retail price, across every active location.
func GetStockValueReport(ctx context.Context) ([]*StockValueResponse, error) {
	start := time.Now()
	defer logSlowReport(ctx, "stock_value_report", start, nil)

	sql := `
SELECT
    pv.id AS variant_id,
    pv.sku,
    products.name AS product_name,
    pv.size,
    pv.color,
    stock.total_stock,
    pv.cost AS cost_per_unit,
    pv.price AS price_per_unit,
    stock.total_stock * pv.cost AS cost_value,
    stock.total_stock * pv.price AS retail_value
FROM
    (
        SELECT
            variant_id,
            SUM(quantity) AS total_stock
        FROM inventories
        WHERE is_active = 1
        GROUP BY variant_id
        HAVING SUM(quantity) > 0
    ) AS stock
    JOIN product_variants pv ON pv.id = stock.variant_id
    JOIN products ON products.id = pv.product_id
ORDER BY products.name, pv.sku;
`

	var records []*StockValueResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql).Scan(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}
