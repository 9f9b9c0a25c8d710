package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tiendaluna/pos_backend/config"
	"github.com/tiendaluna/pos_backend/models"
	"github.com/tiendaluna/pos_backend/utils"
)

type LocationInventoryResponse struct {
	LocationId       int    `json:"locationId"`
	LocationName     string `json:"locationName"`
	LocationType     string `json:"locationType"`
	Section          string `json:"section"`
	ShelfCode        string `json:"shelfCode"`
	Sku              string `json:"sku"`
	ProductName      string `json:"productName"`
	Size             string `json:"size"`
	Color            string `json:"color"`
	Quantity         int    `json:"quantity"`
	ReservedQuantity int    `json:"reservedQuantity"`
}

// GetLocationInventoryReport lists what sits on every shelf, or on one
// location when locationId is non-nil. The shelf walk sheet used for counts.
func GetLocationInventoryReport(ctx context.Context, locationId *int) ([]*LocationInventoryResponse, error) {
	start := time.Now()
	defer logSlowReport(ctx, "location_inventory_report", start, map[string]any{
		"location_id": fmt.Sprintf("%v", utils.DereferencePtr(locationId, 0)),
	})

	if locationId != nil && *locationId > 0 {
		if err := utils.ValidateResourceId[models.Location](ctx, *locationId); err != nil {
			return nil, errors.New("location not found")
		}
	}

	sqlT := `
SELECT
    locations.id AS location_id,
    locations.name AS location_name,
    locations.type AS location_type,
    locations.section,
    locations.shelf_code,
    pv.sku,
    products.name AS product_name,
    pv.size,
    pv.color,
    inv.quantity,
    inv.reserved_quantity
FROM inventories inv
    JOIN locations ON locations.id = inv.location_id
    JOIN product_variants pv ON pv.id = inv.variant_id
    JOIN products ON products.id = pv.product_id
WHERE inv.is_active = 1
  AND inv.quantity > 0
  {{- if .locationId }} AND inv.location_id = @locationId {{- end }}
ORDER BY locations.name, products.name, pv.sku;
`

	sql, err := utils.ExecTemplate(sqlT, map[string]interface{}{
		"locationId": utils.DereferencePtr(locationId, 0),
	})
	if err != nil {
		return nil, err
	}

	args := map[string]interface{}{}
	if locationId != nil && *locationId != 0 {
		args["locationId"] = locationId
	}

	var records []*LocationInventoryResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, args).Scan(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}
