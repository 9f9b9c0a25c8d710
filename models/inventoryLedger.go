package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tiendaluna/pos_backend/config"
	"github.com/tiendaluna/pos_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryCache is the read-view invalidation hook. Invalidation is
// fire-and-forget: it runs after commit and its failures are logged, never
// surfaced as an operation failure.
type InventoryCache interface {
	InvalidateVariant(ctx context.Context, variantId int)
}

// InventoryLedger is the sole authority for mutating stock quantities.
// Sales, transfers, refunds and manual adjustments all go through it so that
// movement logging and the stock invariants are never bypassed. Every
// operation runs in one DB transaction with FOR UPDATE row locks on the
// inventory rows it touches.
type InventoryLedger struct {
	db     *gorm.DB
	cache  InventoryCache
	logger *logrus.Logger
}

func NewInventoryLedger(db *gorm.DB, cache InventoryCache, logger *logrus.Logger) *InventoryLedger {
	return &InventoryLedger{db: db, cache: cache, logger: logger}
}

// NewStockAdjustment is the input for a single-row quantity change.
type NewStockAdjustment struct {
	VariantId      int            `json:"variant_id" binding:"required"`
	LocationId     int            `json:"location_id" binding:"required"`
	QuantityChange int            `json:"quantity_change" binding:"required"`
	MovementType   MovementType   `json:"movement_type" binding:"required"`
	Reason         string         `json:"reason"`
	Notes          string         `json:"notes"`
	ReferenceId    *int           `json:"reference_id"`
	ReferenceType  *ReferenceType `json:"reference_type"`
	UserId         string         `json:"user_id"`
}

// AdjustQuantity applies a signed quantity change to the (variant, location)
// inventory row, creating the row lazily if it does not exist, and appends the
// movement record in the same transaction.
func (l *InventoryLedger) AdjustQuantity(ctx context.Context, input *NewStockAdjustment) (*InventoryMovement, error) {
	if !input.MovementType.Valid() {
		return nil, fmt.Errorf("invalid movement type %q", input.MovementType)
	}

	var movement *InventoryMovement
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		movement, txErr = l.adjustQuantityTx(tx, input)
		return txErr
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	l.invalidate(ctx, input.VariantId)
	return movement, nil
}

// adjustQuantityTx is the transactional core shared by the public operations.
// Caller owns the transaction boundary.
func (l *InventoryLedger) adjustQuantityTx(tx *gorm.DB, input *NewStockAdjustment) (*InventoryMovement, error) {

	inventory, err := l.lockOrCreateInventory(tx, input.VariantId, input.LocationId)
	if err != nil {
		return nil, err
	}

	newQuantity := inventory.Quantity + input.QuantityChange
	if newQuantity < 0 {
		return nil, &InsufficientStockError{
			VariantId:  input.VariantId,
			LocationId: input.LocationId,
			Current:    inventory.Quantity,
			Requested:  -input.QuantityChange,
		}
	}
	// A debit must not strand active holds: reserved <= quantity always.
	if newQuantity < inventory.ReservedQuantity {
		return nil, &InsufficientAvailableStockError{
			VariantId:  input.VariantId,
			LocationId: input.LocationId,
			Available:  inventory.AvailableQuantity(),
			Requested:  -input.QuantityChange,
		}
	}

	if err := tx.Model(inventory).Update("quantity", newQuantity).Error; err != nil {
		return nil, err
	}

	movement := InventoryMovement{
		InventoryId:    inventory.ID,
		MovementType:   input.MovementType,
		QuantityChange: input.QuantityChange,
		ReferenceId:    input.ReferenceId,
		ReferenceType:  input.ReferenceType,
		Reason:         input.Reason,
		Notes:          input.Notes,
		UserId:         input.UserId,
	}
	if corrId, ok := utils.GetCorrelationIdFromContext(tx.Statement.Context); ok {
		movement.CorrelationId = corrId
	}
	if err := tx.Create(&movement).Error; err != nil {
		return nil, err
	}

	return &movement, nil
}

// lockOrCreateInventory fetches the (variant, location) row under FOR UPDATE,
// creating a zero-quantity row if none exists. The unique index on
// (variant_id, location_id) makes concurrent lazy creation safe: the loser of
// the insert race re-reads the winner's row under lock.
func (l *InventoryLedger) lockOrCreateInventory(tx *gorm.DB, variantId int, locationId int) (*Inventory, error) {

	var inventory Inventory
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("variant_id = ? AND location_id = ?", variantId, locationId).
		First(&inventory).Error
	if err == nil {
		return &inventory, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Lazy creation: the pair must reference a real variant and location.
	if err := utils.ValidateResourceId[ProductVariant](tx.Statement.Context, variantId); err != nil {
		return nil, ErrRecordNotFound
	}
	if err := utils.ValidateResourceId[Location](tx.Statement.Context, locationId); err != nil {
		return nil, ErrRecordNotFound
	}

	inventory = Inventory{
		VariantId:        variantId,
		LocationId:       locationId,
		Quantity:         0,
		ReservedQuantity: 0,
		IsActive:         utils.NewTrue(),
	}
	if err := tx.Create(&inventory).Error; err != nil {
		// Lost a concurrent creation race; take the existing row under lock.
		var existing Inventory
		if err2 := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("variant_id = ? AND location_id = ?", variantId, locationId).
			First(&existing).Error; err2 == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &inventory, nil
}

// NewReservation is the input for taking an apartado.
type NewReservation struct {
	VariantId       int          `json:"variant_id" binding:"required"`
	LocationId      int          `json:"location_id" binding:"required"`
	Quantity        int          `json:"quantity" binding:"required,gt=0"`
	Customer        CustomerInfo `json:"customer" binding:"required"`
	DurationMinutes int          `json:"duration_minutes"`
}

const DefaultReservationMinutes = 30

// Reserve places a time-bounded hold against available stock at one location.
func (l *InventoryLedger) Reserve(ctx context.Context, input *NewReservation) (*Reservation, error) {
	if input.Quantity <= 0 {
		return nil, errors.New("reservation quantity must be positive")
	}
	if err := input.Customer.validate(); err != nil {
		return nil, err
	}
	duration := input.DurationMinutes
	if duration <= 0 {
		duration = DefaultReservationMinutes
	}

	var reservation Reservation
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		var inventory Inventory
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("variant_id = ? AND location_id = ? AND is_active = ?", input.VariantId, input.LocationId, true).
			First(&inventory).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return err
		}

		if inventory.AvailableQuantity() < input.Quantity {
			return &InsufficientAvailableStockError{
				VariantId:  input.VariantId,
				LocationId: input.LocationId,
				Available:  inventory.AvailableQuantity(),
				Requested:  input.Quantity,
			}
		}

		reservation = Reservation{
			InventoryId:   inventory.ID,
			Quantity:      input.Quantity,
			CustomerName:  input.Customer.Name,
			CustomerPhone: input.Customer.Phone,
			CustomerEmail: input.Customer.Email,
			Notes:         input.Customer.Notes,
			ExpiresAt:     time.Now().Add(time.Duration(duration) * time.Minute),
			Status:        ReservationStatusActive,
		}
		if err := tx.Create(&reservation).Error; err != nil {
			return err
		}

		return tx.Model(&inventory).
			Update("reserved_quantity", gorm.Expr("reserved_quantity + ?", input.Quantity)).Error
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	l.invalidate(ctx, input.VariantId)
	return &reservation, nil
}

// ReleaseReservation terminates an active hold exactly once.
// complete=true converts the hold into a physical debit with a sale movement;
// complete=false only releases the held quantity. Calling it again on a
// terminal reservation fails with InvalidReservationStateError.
func (l *InventoryLedger) ReleaseReservation(ctx context.Context, reservationId int, complete bool) error {
	variantId, err := l.releaseReservation(ctx, reservationId, complete)
	if err != nil {
		return err
	}
	l.invalidate(ctx, variantId)
	return nil
}

func (l *InventoryLedger) releaseReservation(ctx context.Context, reservationId int, complete bool) (int, error) {
	var variantId int
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		variantId, txErr = l.releaseReservationTx(tx, reservationId, complete)
		return txErr
	})
	if err != nil {
		return 0, translateDBError(err)
	}
	return variantId, nil
}

func (l *InventoryLedger) releaseReservationTx(tx *gorm.DB, reservationId int, complete bool) (int, error) {

	var reservation Reservation
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&reservation, reservationId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrRecordNotFound
		}
		return 0, err
	}
	if reservation.Status != ReservationStatusActive {
		return 0, &InvalidReservationStateError{ReservationId: reservationId, Status: reservation.Status}
	}

	var inventory Inventory
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&inventory, reservation.InventoryId).Error; err != nil {
		return 0, err
	}

	now := time.Now()
	updates := map[string]interface{}{}
	if complete {
		updates["status"] = ReservationStatusCompleted
		updates["completed_at"] = &now
	} else {
		updates["status"] = ReservationStatusCancelled
		updates["cancelled_at"] = &now
	}

	// Optimistic status flip: only succeeds if the row is still active at
	// commit time, which makes the terminal transition happen exactly once
	// even against a concurrent expiry sweep.
	res := tx.Model(&Reservation{}).
		Where("id = ? AND status = ?", reservationId, ReservationStatusActive).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected != 1 {
		return 0, &InvalidReservationStateError{ReservationId: reservationId, Status: reservation.Status}
	}

	invUpdates := map[string]interface{}{
		"reserved_quantity": gorm.Expr("reserved_quantity - ?", reservation.Quantity),
	}
	if complete {
		if inventory.Quantity < reservation.Quantity {
			// Cannot happen while reserved <= quantity holds; kept as a hard stop
			// so a broken row can never push quantity negative.
			return 0, &InsufficientStockError{
				VariantId:  inventory.VariantId,
				LocationId: inventory.LocationId,
				Current:    inventory.Quantity,
				Requested:  reservation.Quantity,
			}
		}
		invUpdates["quantity"] = gorm.Expr("quantity - ?", reservation.Quantity)
	}
	if err := tx.Model(&inventory).Updates(invUpdates).Error; err != nil {
		return 0, err
	}

	if complete {
		refType := ReferenceTypeReservation
		movement := InventoryMovement{
			InventoryId:    inventory.ID,
			MovementType:   MovementTypeSale,
			QuantityChange: -reservation.Quantity,
			ReferenceId:    &reservation.ID,
			ReferenceType:  &refType,
			Reason:         "Sale from reservation",
		}
		if corrId, ok := utils.GetCorrelationIdFromContext(tx.Statement.Context); ok {
			movement.CorrelationId = corrId
		}
		if err := tx.Create(&movement).Error; err != nil {
			return 0, err
		}
	}

	return inventory.VariantId, nil
}

// ExpireStaleReservations releases every active hold whose ExpiresAt has
// passed. Each expiry is its own transaction so one bad row cannot wedge the
// sweep; the active-status precondition keeps it safe against a concurrent
// explicit release of the same reservation.
func (l *InventoryLedger) ExpireStaleReservations(ctx context.Context) (int, error) {

	var staleIds []int
	err := l.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("status = ? AND expires_at <= ?", ReservationStatusActive, time.Now()).
		Pluck("id", &staleIds).Error
	if err != nil {
		return 0, translateDBError(err)
	}

	count := 0
	for _, id := range staleIds {
		variantId, expireErr := l.expireOne(ctx, id)
		if expireErr != nil {
			if IsInvalidReservationState(expireErr) {
				// Raced with an explicit release; nothing to do.
				continue
			}
			config.LogError(l.logger, "inventoryLedger.go", "ExpireStaleReservations", "expire reservation", id, expireErr)
			continue
		}
		count++
		l.invalidate(ctx, variantId)
	}
	return count, nil
}

func (l *InventoryLedger) expireOne(ctx context.Context, reservationId int) (int, error) {
	var variantId int
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		var reservation Reservation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&reservation, reservationId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return err
		}
		if reservation.Status != ReservationStatusActive {
			return &InvalidReservationStateError{ReservationId: reservationId, Status: reservation.Status}
		}

		var inventory Inventory
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&inventory, reservation.InventoryId).Error; err != nil {
			return err
		}

		res := tx.Model(&Reservation{}).
			Where("id = ? AND status = ?", reservationId, ReservationStatusActive).
			Update("status", ReservationStatusExpired)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return &InvalidReservationStateError{ReservationId: reservationId, Status: reservation.Status}
		}

		variantId = inventory.VariantId
		return tx.Model(&inventory).
			Update("reserved_quantity", gorm.Expr("reserved_quantity - ?", reservation.Quantity)).Error
	})
	if err != nil {
		return 0, translateDBError(err)
	}
	return variantId, nil
}

// NewStockTransfer moves quantity between two locations of the same variant.
type NewStockTransfer struct {
	VariantId      int    `json:"variant_id" binding:"required"`
	FromLocationId int    `json:"from_location_id" binding:"required"`
	ToLocationId   int    `json:"to_location_id" binding:"required"`
	Quantity       int    `json:"quantity" binding:"required,gt=0"`
	Reason         string `json:"reason"`
	UserId         string `json:"user_id"`
}

// Transfer debits the source and credits the destination atomically: either
// both rows change or neither does. Rows are locked in ascending id order so
// two opposite transfers over the same pair cannot deadlock.
func (l *InventoryLedger) Transfer(ctx context.Context, input *NewStockTransfer) error {
	if input.Quantity <= 0 {
		return errors.New("transfer quantity must be positive")
	}
	if input.FromLocationId == input.ToLocationId {
		return errors.New("source and destination locations must differ")
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		source, dest, err := l.lockTransferPair(tx, input)
		if err != nil {
			return err
		}

		if source.Quantity < input.Quantity {
			return &InsufficientStockError{
				VariantId:  input.VariantId,
				LocationId: input.FromLocationId,
				Current:    source.Quantity,
				Requested:  input.Quantity,
			}
		}
		if source.Quantity-input.Quantity < source.ReservedQuantity {
			return &InsufficientAvailableStockError{
				VariantId:  input.VariantId,
				LocationId: input.FromLocationId,
				Available:  source.AvailableQuantity(),
				Requested:  input.Quantity,
			}
		}

		if err := tx.Model(source).
			Update("quantity", gorm.Expr("quantity - ?", input.Quantity)).Error; err != nil {
			return err
		}
		if err := tx.Model(dest).
			Update("quantity", gorm.Expr("quantity + ?", input.Quantity)).Error; err != nil {
			return err
		}

		corrId, _ := utils.GetCorrelationIdFromContext(tx.Statement.Context)
		out := InventoryMovement{
			InventoryId:    source.ID,
			MovementType:   MovementTypeTransfer,
			QuantityChange: -input.Quantity,
			Reason:         fmt.Sprintf("Transfer to location %d: %s", input.ToLocationId, input.Reason),
			UserId:         input.UserId,
			CorrelationId:  corrId,
		}
		in := InventoryMovement{
			InventoryId:    dest.ID,
			MovementType:   MovementTypeTransfer,
			QuantityChange: input.Quantity,
			Reason:         fmt.Sprintf("Transfer from location %d: %s", input.FromLocationId, input.Reason),
			UserId:         input.UserId,
			CorrelationId:  corrId,
		}
		if err := tx.Create(&out).Error; err != nil {
			return err
		}
		return tx.Create(&in).Error
	})
	if err != nil {
		return translateDBError(err)
	}

	l.invalidate(ctx, input.VariantId)
	return nil
}

// lockTransferPair resolves both inventory rows (creating the destination
// lazily) and locks them in ascending id order.
func (l *InventoryLedger) lockTransferPair(tx *gorm.DB, input *NewStockTransfer) (source *Inventory, dest *Inventory, err error) {

	// Both ids are resolved without locks first: the IN pass below is the
	// only place row locks are taken, always in ascending id order, so two
	// opposite transfers over the same pair cannot deadlock.
	var sourceRow Inventory
	if err := tx.Where("variant_id = ? AND location_id = ?", input.VariantId, input.FromLocationId).
		First(&sourceRow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrRecordNotFound
		}
		return nil, nil, err
	}

	destId, err := l.resolveOrCreateInventoryId(tx, input.VariantId, input.ToLocationId)
	if err != nil {
		return nil, nil, err
	}

	var locked []Inventory
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", []int{sourceRow.ID, destId}).
		Order("id").
		Find(&locked).Error; err != nil {
		return nil, nil, err
	}
	for i := range locked {
		switch locked[i].ID {
		case sourceRow.ID:
			source = &locked[i]
		case destId:
			dest = &locked[i]
		}
	}
	if source == nil || dest == nil {
		return nil, nil, ErrRecordNotFound
	}
	return source, dest, nil
}

// resolveOrCreateInventoryId finds the (variant, location) row id without
// locking it, lazily inserting a zero-quantity row if none exists. Callers
// lock the row afterwards together with the rest of their working set.
func (l *InventoryLedger) resolveOrCreateInventoryId(tx *gorm.DB, variantId int, locationId int) (int, error) {

	var inventory Inventory
	err := tx.Where("variant_id = ? AND location_id = ?", variantId, locationId).
		First(&inventory).Error
	if err == nil {
		return inventory.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	if err := utils.ValidateResourceId[ProductVariant](tx.Statement.Context, variantId); err != nil {
		return 0, ErrRecordNotFound
	}
	if err := utils.ValidateResourceId[Location](tx.Statement.Context, locationId); err != nil {
		return 0, ErrRecordNotFound
	}

	inventory = Inventory{
		VariantId:        variantId,
		LocationId:       locationId,
		Quantity:         0,
		ReservedQuantity: 0,
		IsActive:         utils.NewTrue(),
	}
	if err := tx.Create(&inventory).Error; err != nil {
		// Lost a concurrent creation race; use the winner's row.
		var existing Inventory
		if err2 := tx.Where("variant_id = ? AND location_id = ?", variantId, locationId).
			First(&existing).Error; err2 == nil {
			return existing.ID, nil
		}
		return 0, err
	}
	return inventory.ID, nil
}

// SetQuantity corrects a row to a counted quantity (physical recount).
// A zero delta is a successful no-op with no movement record.
func (l *InventoryLedger) SetQuantity(ctx context.Context, inventoryId int, newQuantity int, reason string, userId string) (*InventoryMovement, error) {
	if newQuantity < 0 {
		return nil, errors.New("quantity cannot be negative")
	}

	var movement *InventoryMovement
	var variantId int
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		var inventory Inventory
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&inventory, inventoryId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return err
		}
		variantId = inventory.VariantId

		delta := newQuantity - inventory.Quantity
		if delta == 0 {
			return nil
		}
		if newQuantity < inventory.ReservedQuantity {
			return &InsufficientAvailableStockError{
				VariantId:  inventory.VariantId,
				LocationId: inventory.LocationId,
				Available:  inventory.AvailableQuantity(),
				Requested:  -delta,
			}
		}

		if err := tx.Model(&inventory).Updates(map[string]interface{}{
			"quantity":      newQuantity,
			"needs_recount": false,
		}).Error; err != nil {
			return err
		}

		refType := ReferenceTypeRecount
		m := InventoryMovement{
			InventoryId:    inventory.ID,
			MovementType:   MovementTypeAdjustment,
			QuantityChange: delta,
			ReferenceType:  &refType,
			Reason:         reason,
			UserId:         userId,
		}
		if corrId, ok := utils.GetCorrelationIdFromContext(tx.Statement.Context); ok {
			m.CorrelationId = corrId
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		movement = &m
		return nil
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	l.invalidate(ctx, variantId)
	return movement, nil
}

func (l *InventoryLedger) invalidate(ctx context.Context, variantId int) {
	if l.cache == nil || variantId == 0 {
		return
	}
	l.cache.InvalidateVariant(ctx, variantId)
}
