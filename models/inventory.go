package models

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tiendaluna/pos_backend/config"
	"github.com/tiendaluna/pos_backend/utils"
)

// Inventory is the unit of truth for stock: one row per (variant, location).
// Rows are created lazily on the first movement into the pair and are never
// hard-deleted, only deactivated.
type Inventory struct {
	ID                int              `gorm:"primary_key" json:"id"`
	VariantId         int              `gorm:"not null;uniqueIndex:idx_variant_location;index:idx_variant_active" json:"variant_id"`
	LocationId        int              `gorm:"not null;uniqueIndex:idx_variant_location;index:idx_location_quantity" json:"location_id"`
	Quantity          int              `gorm:"not null;default:0;index:idx_location_quantity" json:"quantity"`
	ReservedQuantity  int              `gorm:"not null;default:0" json:"reserved_quantity"`
	MinStock          int              `gorm:"default:1" json:"min_stock"`
	MaxStock          int              `gorm:"default:50" json:"max_stock"`
	CostPerUnit       *decimal.Decimal `gorm:"type:decimal(20,2)" json:"cost_per_unit"`
	LastPurchasePrice *decimal.Decimal `gorm:"type:decimal(20,2)" json:"last_purchase_price"`
	LastPurchaseDate  *time.Time       `json:"last_purchase_date"`
	IsActive          *bool            `gorm:"not null;default:true;index:idx_variant_active" json:"is_active"`
	NeedsRecount      bool             `gorm:"not null;default:false" json:"needs_recount"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`

	Variant      ProductVariant      `gorm:"foreignKey:VariantId" json:"-"`
	Location     Location            `gorm:"foreignKey:LocationId" json:"-"`
	Movements    []InventoryMovement `gorm:"foreignKey:InventoryId;constraint:OnDelete:CASCADE" json:"-"`
	Reservations []Reservation       `gorm:"foreignKey:InventoryId;constraint:OnDelete:CASCADE" json:"-"`
}

// AvailableQuantity is the physical quantity minus active holds, floored at 0.
func (i *Inventory) AvailableQuantity() int {
	if avail := i.Quantity - i.ReservedQuantity; avail > 0 {
		return avail
	}
	return 0
}

func (i *Inventory) NeedsRestock() bool {
	return i.Quantity <= i.MinStock
}

func (i *Inventory) IsOverstocked() bool {
	return i.Quantity >= i.MaxStock
}

// InventoryLocationInfo is the per-location slice of InventoryInfo.
type InventoryLocationInfo struct {
	LocationId          int          `json:"location_id"`
	LocationName        string       `json:"location_name"`
	LocationType        LocationType `json:"location_type"`
	Section             string       `json:"section"`
	ShelfCode           string       `json:"shelf_code"`
	Quantity            int          `json:"quantity"`
	ReservedQuantity    int          `json:"reserved_quantity"`
	AvailableQuantity   int          `json:"available_quantity"`
	NeedsRestock        bool         `json:"needs_restock"`
	IsVisibleToCustomer bool         `json:"is_visible_to_customer"`
}

// InventoryInfo aggregates a variant's stock across locations.
type InventoryInfo struct {
	VariantId      int                     `json:"variant_id"`
	TotalStock     int                     `json:"total_stock"`
	TotalReserved  int                     `json:"total_reserved"`
	TotalAvailable int                     `json:"total_available"`
	InStock        bool                    `json:"in_stock"`
	Locations      []InventoryLocationInfo `json:"locations"`
}

const inventoryInfoCacheKey = "inventory_info:"

// GetInventoryInfo returns the aggregated stock view for a variant,
// redis-cached for a few minutes. Ledger writes invalidate the key.
func GetInventoryInfo(ctx context.Context, variantId int) (*InventoryInfo, error) {

	cacheKey := inventoryInfoCacheKey + strconv.Itoa(variantId)
	var cached InventoryInfo
	if found, err := config.GetRedisObject(cacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	type row struct {
		Inventory
		LocationName        string       `json:"location_name"`
		LocationType        LocationType `json:"location_type"`
		Section             string       `json:"section"`
		ShelfCode           string       `json:"shelf_code"`
		IsVisibleToCustomer bool         `json:"is_visible_to_customer"`
	}

	var rows []row
	db := config.GetDB()
	err := db.WithContext(ctx).
		Model(&Inventory{}).
		Select("inventories.*, locations.name AS location_name, locations.type AS location_type, locations.section, locations.shelf_code, locations.is_visible_to_customer").
		Joins("JOIN locations ON locations.id = inventories.location_id").
		Where("inventories.variant_id = ? AND inventories.is_active = ?", variantId, true).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	info := InventoryInfo{VariantId: variantId, Locations: make([]InventoryLocationInfo, 0, len(rows))}
	for _, r := range rows {
		inv := r.Inventory
		info.TotalStock += inv.Quantity
		info.TotalReserved += inv.ReservedQuantity
		info.Locations = append(info.Locations, InventoryLocationInfo{
			LocationId:          inv.LocationId,
			LocationName:        r.LocationName,
			LocationType:        r.LocationType,
			Section:             r.Section,
			ShelfCode:           r.ShelfCode,
			Quantity:            inv.Quantity,
			ReservedQuantity:    inv.ReservedQuantity,
			AvailableQuantity:   inv.AvailableQuantity(),
			NeedsRestock:        inv.NeedsRestock(),
			IsVisibleToCustomer: r.IsVisibleToCustomer,
		})
	}
	info.TotalAvailable = info.TotalStock - info.TotalReserved
	info.InStock = info.TotalAvailable > 0

	if err := config.SetRedisObject(cacheKey, &info, utils.GetCacheLifespan()); err != nil {
		config.LogError(config.GetLogger(), "inventory.go", "GetInventoryInfo", "cache store", variantId, err)
	}
	return &info, nil
}

func GetInventory(ctx context.Context, id int) (*Inventory, error) {
	return utils.FetchModel[Inventory](ctx, id)
}

// LowStockAlert flags an inventory row at or under its reorder threshold.
type LowStockAlert struct {
	InventoryId      int    `json:"inventory_id"`
	VariantId        int    `json:"variant_id"`
	ProductName      string `json:"product_name"`
	Sku              string `json:"sku"`
	Size             string `json:"size"`
	Color            string `json:"color"`
	LocationName     string `json:"location_name"`
	CurrentQuantity  int    `json:"current_quantity"`
	MinStock         int    `json:"min_stock"`
	RecommendedOrder int    `json:"recommended_order"`
	AlertLevel       string `json:"alert_level"`
}

func GetLowStockAlerts(ctx context.Context, locationId int) ([]*LowStockAlert, error) {

	type row struct {
		InventoryId  int
		VariantId    int
		ProductName  string
		Sku          string
		Size         string
		Color        string
		LocationName string
		Quantity     int
		MinStock     int
		MaxStock     int
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Model(&Inventory{}).
		Select(`inventories.id AS inventory_id, inventories.variant_id, products.name AS product_name,
			product_variants.sku, product_variants.size, product_variants.color,
			locations.name AS location_name, inventories.quantity, inventories.min_stock, inventories.max_stock`).
		Joins("JOIN product_variants ON product_variants.id = inventories.variant_id").
		Joins("JOIN products ON products.id = product_variants.product_id").
		Joins("JOIN locations ON locations.id = inventories.location_id").
		Where("inventories.quantity <= inventories.min_stock").
		Where("inventories.is_active = ? AND product_variants.is_active = ?", true, true)
	if locationId > 0 {
		dbCtx = dbCtx.Where("inventories.location_id = ?", locationId)
	}

	var rows []row
	if err := dbCtx.Find(&rows).Error; err != nil {
		return nil, err
	}

	alerts := make([]*LowStockAlert, 0, len(rows))
	for _, r := range rows {
		recommended := r.MaxStock - r.Quantity
		if doubled := r.MinStock * 2; doubled > recommended {
			recommended = doubled
		}
		level := "warning"
		if r.Quantity == 0 {
			level = "critical"
		}
		alerts = append(alerts, &LowStockAlert{
			InventoryId:      r.InventoryId,
			VariantId:        r.VariantId,
			ProductName:      r.ProductName,
			Sku:              r.Sku,
			Size:             r.Size,
			Color:            r.Color,
			LocationName:     r.LocationName,
			CurrentQuantity:  r.Quantity,
			MinStock:         r.MinStock,
			RecommendedOrder: recommended,
			AlertLevel:       level,
		})
	}
	return alerts, nil
}
