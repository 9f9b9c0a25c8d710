package models

import (
	"context"
	"sort"

	"github.com/tiendaluna/pos_backend/config"
	"github.com/tiendaluna/pos_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductLocation is one stocked location of a variant, as shown to the
// cashier when locating merchandise on the floor.
type ProductLocation struct {
	InventoryId       int          `json:"inventory_id"`
	LocationId        int          `json:"location_id"`
	LocationName      string       `json:"location_name"`
	LocationType      LocationType `json:"location_type"`
	Section           string       `json:"section"`
	ShelfCode         string       `json:"shelf_code"`
	Quantity          int          `json:"quantity"`
	ReservedQuantity  int          `json:"reserved_quantity"`
	AvailableQuantity int          `json:"available_quantity"`
}

// FindProductLocations lists the locations where a variant has stock on hand,
// sales-floor locations first. customerVisibleOnly restricts the result to
// locations a customer can be pointed at.
func FindProductLocations(ctx context.Context, variantId int, customerVisibleOnly bool) ([]ProductLocation, error) {
	if err := utils.ValidateResourceId[ProductVariant](ctx, variantId); err != nil {
		return nil, ErrRecordNotFound
	}

	db := config.GetDB()
	query := db.WithContext(ctx).
		Model(&Inventory{}).
		Select(`inventories.id AS inventory_id,
			inventories.location_id,
			locations.name AS location_name,
			locations.type AS location_type,
			locations.section,
			locations.shelf_code,
			inventories.quantity,
			inventories.reserved_quantity,
			inventories.quantity - inventories.reserved_quantity AS available_quantity`).
		Joins("JOIN locations ON locations.id = inventories.location_id").
		Where("inventories.variant_id = ? AND inventories.quantity > 0", variantId).
		Where("inventories.is_active = ? AND locations.is_active = ?", true, true)
	if customerVisibleOnly {
		query = query.Where("locations.is_visible_to_customer = ?", true)
	}

	var locations []ProductLocation
	err := query.Find(&locations).Error
	if err != nil {
		return nil, translateDBError(err)
	}

	sortByAllocationOrder(locations)
	return locations, nil
}

// allocationSlice is one location's share of a planned deduction.
type allocationSlice struct {
	InventoryId int
	LocationId  int
	Quantity    int
}

// sortByAllocationOrder orders candidates the way stock is picked: display
// locations before storage, then larger available quantity first, location id
// as the final tie breaker so the order is stable.
func sortByAllocationOrder(candidates []ProductLocation) {
	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := candidates[i].LocationType.Priority(), candidates[j].LocationType.Priority()
		if pi != pj {
			return pi < pj
		}
		if candidates[i].AvailableQuantity != candidates[j].AvailableQuantity {
			return candidates[i].AvailableQuantity > candidates[j].AvailableQuantity
		}
		return candidates[i].LocationId < candidates[j].LocationId
	})
}

// planAllocation greedily splits a requested quantity across candidates in
// allocation order, never drawing on reserved stock. Returns the plan and the
// quantity it could cover.
func planAllocation(candidates []ProductLocation, requested int) ([]allocationSlice, int) {
	sortByAllocationOrder(candidates)

	var plan []allocationSlice
	remaining := requested
	for _, c := range candidates {
		if remaining == 0 {
			break
		}
		if c.AvailableQuantity <= 0 {
			continue
		}
		take := c.AvailableQuantity
		if take > remaining {
			take = remaining
		}
		plan = append(plan, allocationSlice{
			InventoryId: c.InventoryId,
			LocationId:  c.LocationId,
			Quantity:    take,
		})
		remaining -= take
	}
	return plan, requested - remaining
}

// AllocateAndDeduct deducts a sale quantity for a variant, splitting it across
// locations by allocation order, all in one transaction. Candidate rows are
// locked up front in ascending id order, then the plan is computed from the
// locked quantities so a concurrent sale of the same variant cannot oversell.
func (l *InventoryLedger) AllocateAndDeduct(ctx context.Context, variantId int, quantity int, referenceId *int, referenceType *ReferenceType, userId string) ([]*InventoryMovement, error) {
	if quantity <= 0 {
		return nil, &InsufficientStockError{VariantId: variantId, Requested: quantity}
	}

	var movements []*InventoryMovement
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		movements, txErr = l.allocateAndDeductTx(tx, variantId, quantity, referenceId, referenceType, userId)
		return txErr
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	l.invalidate(ctx, variantId)
	return movements, nil
}

func (l *InventoryLedger) allocateAndDeductTx(tx *gorm.DB, variantId int, quantity int, referenceId *int, referenceType *ReferenceType, userId string) ([]*InventoryMovement, error) {

	// Sales only draw from active, customer-visible locations; back-office
	// and disabled locations need an explicit transfer or adjustment.
	var locationIds []int
	if err := tx.Model(&Location{}).
		Where("is_active = ? AND is_visible_to_customer = ?", true, true).
		Pluck("id", &locationIds).Error; err != nil {
		return nil, err
	}

	var rows []Inventory
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Location").
		Where("variant_id = ? AND quantity > 0 AND is_active = ?", variantId, true).
		Where("location_id IN ?", locationIds).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	candidates := make([]ProductLocation, 0, len(rows))
	totalAvailable := 0
	for _, row := range rows {
		available := row.AvailableQuantity()
		totalAvailable += available
		candidates = append(candidates, ProductLocation{
			InventoryId:       row.ID,
			LocationId:        row.LocationId,
			LocationType:      row.Location.Type,
			Quantity:          row.Quantity,
			ReservedQuantity:  row.ReservedQuantity,
			AvailableQuantity: available,
		})
	}

	plan, covered := planAllocation(candidates, quantity)
	if covered < quantity {
		return nil, &InsufficientStockError{
			VariantId: variantId,
			Current:   totalAvailable,
			Requested: quantity,
		}
	}

	corrId, _ := utils.GetCorrelationIdFromContext(tx.Statement.Context)
	movements := make([]*InventoryMovement, 0, len(plan))
	for _, slice := range plan {
		if err := tx.Model(&Inventory{}).
			Where("id = ?", slice.InventoryId).
			Update("quantity", gorm.Expr("quantity - ?", slice.Quantity)).Error; err != nil {
			return nil, err
		}

		movement := InventoryMovement{
			InventoryId:    slice.InventoryId,
			MovementType:   MovementTypeSale,
			QuantityChange: -slice.Quantity,
			ReferenceId:    referenceId,
			ReferenceType:  referenceType,
			Reason:         "Sale deduction",
			UserId:         userId,
			CorrelationId:  corrId,
		}
		if err := tx.Create(&movement).Error; err != nil {
			return nil, err
		}
		movements = append(movements, &movement)
	}
	return movements, nil
}
