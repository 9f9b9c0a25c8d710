package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tiendaluna/pos_backend/config"
)

type DailySalesResponse struct {
	Day            string          `json:"day"`
	SaleCount      int             `json:"saleCount"`
	UnitsSold      int             `json:"unitsSold"`
	GrossSales     decimal.Decimal `json:"grossSales"`
	TotalDiscounts decimal.Decimal `json:"totalDiscounts"`
	NetSales       decimal.Decimal `json:"netSales"`
	TotalRefunded  decimal.Decimal `json:"totalRefunded"`
}

// GetDailySalesReport summarises sales per day over a date range, cancelled
// sales excluded. Dates are inclusive, formatted 2006-01-02.
func GetDailySalesReport(ctx context.Context, fromDate time.Time, toDate time.Time) ([]*DailySalesResponse, error) {
	start := time.Now()
	defer logSlowReport(ctx, "daily_sales_report", start, map[string]any{
		"from": fromDate.Format("2006-01-02"),
		"to":   toDate.Format("2006-01-02"),
	})

	key := "report:daily_sales:" + fromDate.Format("2006-01-02") + ":" + toDate.Format("2006-01-02")
	if reportCacheEnabled() {
		var cached []*DailySalesResponse
		if ok, err := cacheGet(key, &cached); err == nil && ok && cached != nil {
			return cached, nil
		}
	}

	sql := `
SELECT
    daily.day,
    daily.sale_count,
    daily.units_sold,
    daily.gross_sales,
    daily.total_discounts,
    daily.net_sales,
    COALESCE(ref.total_refunded, 0) AS total_refunded
FROM
    (
        SELECT
            DATE_FORMAT(s.created_at, '%Y-%m-%d') AS day,
            COUNT(*) AS sale_count,
            SUM((SELECT COALESCE(SUM(quantity), 0) FROM sale_items WHERE sale_id = s.id)) AS units_sold,
            SUM(s.subtotal) AS gross_sales,
            SUM(s.discount_amount) AS total_discounts,
            SUM(s.total) AS net_sales
        FROM sales s
        WHERE s.status <> 'cancelled'
          AND s.created_at >= @fromDate
          AND s.created_at < DATE_ADD(@toDate, INTERVAL 1 DAY)
        GROUP BY DATE_FORMAT(s.created_at, '%Y-%m-%d')
    ) AS daily
    LEFT JOIN (
        SELECT DATE_FORMAT(created_at, '%Y-%m-%d') AS day, SUM(amount) AS total_refunded
        FROM refunds
        GROUP BY DATE_FORMAT(created_at, '%Y-%m-%d')
    ) AS ref ON ref.day = daily.day
ORDER BY daily.day;
`

	var records []*DailySalesResponse
	db := config.GetDB()
	err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"fromDate": fromDate.Format("2006-01-02"),
		"toDate":   toDate.Format("2006-01-02"),
	}).Scan(&records).Error
	if err != nil {
		return nil, err
	}

	if reportCacheEnabled() {
		_ = cacheSet(key, records, reportCacheTTL())
	}
	return records, nil
}
