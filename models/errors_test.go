package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

func TestTranslateDBErrorDeadlock(t *testing.T) {
	err := translateDBError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})
	if !IsTransactionConflict(err) {
		t.Fatalf("1213 not mapped to TransactionConflictError: %v", err)
	}
}

func TestTranslateDBErrorLockWaitTimeout(t *testing.T) {
	err := translateDBError(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
	if !IsTransactionConflict(err) {
		t.Fatalf("1205 not mapped to TransactionConflictError: %v", err)
	}
}

func TestTranslateDBErrorWrappedDeadlock(t *testing.T) {
	wrapped := fmt.Errorf("commit: %w", &mysql.MySQLError{Number: 1213})
	err := translateDBError(wrapped)
	if !IsTransactionConflict(err) {
		t.Fatalf("wrapped 1213 not mapped: %v", err)
	}
	var conflict *TransactionConflictError
	if !errors.As(err, &conflict) || !errors.Is(conflict.Err, wrapped) {
		t.Errorf("TransactionConflictError should keep the original error")
	}
}

func TestTranslateDBErrorRecordNotFound(t *testing.T) {
	err := translateDBError(gorm.ErrRecordNotFound)
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("gorm not-found not mapped to ErrRecordNotFound: %v", err)
	}
}

func TestTranslateDBErrorPassthrough(t *testing.T) {
	plain := errors.New("disk on fire")
	if got := translateDBError(plain); got != plain {
		t.Errorf("unrelated error rewritten: %v", got)
	}
	if translateDBError(nil) != nil {
		t.Errorf("nil rewritten")
	}

	other := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	if got := translateDBError(other); IsTransactionConflict(got) {
		t.Errorf("1062 must not become a conflict")
	}
}

func TestTranslateDBErrorKeepsDomainErrors(t *testing.T) {
	domain := &InsufficientStockError{VariantId: 1, LocationId: 2, Current: 0, Requested: 3}
	got := translateDBError(domain)
	if !IsInsufficientStock(got) {
		t.Fatalf("domain error lost in translation: %v", got)
	}
}

func TestErrorPredicates(t *testing.T) {
	cases := []struct {
		err  error
		want func(error) bool
	}{
		{&InsufficientStockError{VariantId: 1}, IsInsufficientStock},
		{&InsufficientAvailableStockError{VariantId: 1}, IsInsufficientAvailableStock},
		{&InvalidReservationStateError{ReservationId: 1, Status: ReservationStatusExpired}, IsInvalidReservationState},
		{&TransactionConflictError{Err: errors.New("x")}, IsTransactionConflict},
	}
	for _, c := range cases {
		if !c.want(c.err) {
			t.Errorf("%T not recognised by its predicate", c.err)
		}
		if !c.want(fmt.Errorf("wrap: %w", c.err)) {
			t.Errorf("wrapped %T not recognised", c.err)
		}
	}
	if IsInsufficientStock(&InsufficientAvailableStockError{}) {
		t.Errorf("predicates must not cross-match")
	}
}

func TestInsufficientStockErrorMessage(t *testing.T) {
	aggregate := &InsufficientStockError{VariantId: 7, Current: 2, Requested: 5}
	if got := aggregate.Error(); got != "insufficient stock for variant 7: available 2, requested 5" {
		t.Errorf("aggregate message = %q", got)
	}
	perRow := &InsufficientStockError{VariantId: 7, LocationId: 3, Current: 2, Requested: 5}
	if got := perRow.Error(); got != "insufficient stock for variant 7 at location 3: current 2, requested 5" {
		t.Errorf("per-row message = %q", got)
	}
}
