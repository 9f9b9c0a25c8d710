package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tiendaluna/pos_backend/config"
)

// InventoryMovement is the append-only audit trail of quantity changes.
// Rows are never updated or deleted; replaying QuantityChange from zero must
// reproduce the owning inventory row's current Quantity.
type InventoryMovement struct {
	ID             int              `gorm:"primary_key" json:"id"`
	InventoryId    int              `gorm:"not null;index:idx_inventory_movement" json:"inventory_id"`
	MovementType   MovementType     `gorm:"size:20;not null;index:idx_movement_type_date" json:"movement_type"`
	QuantityChange int              `gorm:"not null" json:"quantity_change"`
	ReferenceId    *int             `json:"reference_id"`
	ReferenceType  *ReferenceType   `gorm:"size:20" json:"reference_type"`
	Reason         string           `gorm:"size:200" json:"reason"`
	Notes          string           `gorm:"size:500" json:"notes"`
	UserId         string           `gorm:"size:50" json:"user_id"`
	CorrelationId  string           `gorm:"size:64;index" json:"correlation_id"`
	UnitCost       *decimal.Decimal `gorm:"type:decimal(20,2)" json:"unit_cost"`
	TotalCost      *decimal.Decimal `gorm:"type:decimal(20,2)" json:"total_cost"`
	CreatedAt      time.Time        `gorm:"autoCreateTime;index:idx_inventory_movement;index:idx_movement_type_date" json:"created_at"`
}

// MovementHistoryFilter narrows GetMovementHistory. Zero values mean "any".
type MovementHistoryFilter struct {
	VariantId    int
	LocationId   int
	MovementType MovementType
	StartDate    *time.Time
	EndDate      *time.Time
	Limit        int
}

type MovementHistoryEntry struct {
	ID             int            `json:"id"`
	MovementType   MovementType   `json:"movement_type"`
	QuantityChange int            `json:"quantity_change"`
	Reason         string         `json:"reason"`
	UserId         string         `json:"user_id"`
	CreatedAt      time.Time      `json:"created_at"`
	VariantId      int            `json:"variant_id"`
	LocationId     int            `json:"location_id"`
	ReferenceId    *int           `json:"reference_id"`
	ReferenceType  *ReferenceType `json:"reference_type"`
}

func GetMovementHistory(ctx context.Context, filter MovementHistoryFilter) ([]*MovementHistoryEntry, error) {

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Model(&InventoryMovement{}).
		Select(`inventory_movements.id, inventory_movements.movement_type, inventory_movements.quantity_change,
			inventory_movements.reason, inventory_movements.user_id, inventory_movements.created_at,
			inventory_movements.reference_id, inventory_movements.reference_type,
			inventories.variant_id, inventories.location_id`).
		Joins("JOIN inventories ON inventories.id = inventory_movements.inventory_id")

	if filter.VariantId > 0 {
		dbCtx = dbCtx.Where("inventories.variant_id = ?", filter.VariantId)
	}
	if filter.LocationId > 0 {
		dbCtx = dbCtx.Where("inventories.location_id = ?", filter.LocationId)
	}
	if filter.MovementType != "" {
		dbCtx = dbCtx.Where("inventory_movements.movement_type = ?", filter.MovementType)
	}
	if filter.StartDate != nil {
		dbCtx = dbCtx.Where("inventory_movements.created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		dbCtx = dbCtx.Where("inventory_movements.created_at <= ?", *filter.EndDate)
	}

	var entries []*MovementHistoryEntry
	if err := dbCtx.Order("inventory_movements.created_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
