package models

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/tiendaluna/pos_backend/utils"
	"gorm.io/gorm"
)

// ErrRecordNotFound is returned when a referenced variant, location, inventory
// row or reservation does not exist.
var ErrRecordNotFound = utils.ErrorRecordNotFound

// InsufficientStockError is returned when a debit would drive the physical
// quantity of an inventory row (or a whole variant, for allocations) negative.
type InsufficientStockError struct {
	VariantId  int
	LocationId int // 0 for aggregate (allocation) failures
	Current    int
	Requested  int
}

func (e *InsufficientStockError) Error() string {
	if e.LocationId == 0 {
		return fmt.Sprintf("insufficient stock for variant %d: available %d, requested %d", e.VariantId, e.Current, e.Requested)
	}
	return fmt.Sprintf("insufficient stock for variant %d at location %d: current %d, requested %d", e.VariantId, e.LocationId, e.Current, e.Requested)
}

// InsufficientAvailableStockError is returned when a reservation request
// exceeds the available (unreserved) quantity.
type InsufficientAvailableStockError struct {
	VariantId  int
	LocationId int
	Available  int
	Requested  int
}

func (e *InsufficientAvailableStockError) Error() string {
	return fmt.Sprintf("insufficient available stock for variant %d at location %d: available %d, requested %d", e.VariantId, e.LocationId, e.Available, e.Requested)
}

// InvalidReservationStateError is returned when a release or completion is
// attempted on a reservation that is no longer active.
type InvalidReservationStateError struct {
	ReservationId int
	Status        ReservationStatus
}

func (e *InvalidReservationStateError) Error() string {
	return fmt.Sprintf("reservation %d is %s, not active", e.ReservationId, e.Status)
}

// TransactionConflictError wraps lock contention / serialization failures from
// MySQL. The whole operation rolled back; callers may retry it from scratch.
type TransactionConflictError struct {
	Err error
}

func (e *TransactionConflictError) Error() string {
	return fmt.Sprintf("transaction conflict: %v", e.Err)
}

func (e *TransactionConflictError) Unwrap() error { return e.Err }

const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// translateDBError maps low-level persistence errors to the ledger taxonomy.
// Deadlocks and lock wait timeouts become TransactionConflictError; gorm's
// not-found becomes ErrRecordNotFound; everything else passes through.
func translateDBError(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if myErr.Number == mysqlErrDeadlock || myErr.Number == mysqlErrLockWaitTimeout {
			return &TransactionConflictError{Err: err}
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}

func IsInsufficientStock(err error) bool {
	var e *InsufficientStockError
	return errors.As(err, &e)
}

func IsInsufficientAvailableStock(err error) bool {
	var e *InsufficientAvailableStockError
	return errors.As(err, &e)
}

func IsInvalidReservationState(err error) bool {
	var e *InvalidReservationStateError
	return errors.As(err, &e)
}

func IsTransactionConflict(err error) bool {
	var e *TransactionConflictError
	return errors.As(err, &e)
}
