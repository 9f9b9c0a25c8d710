package models

import (
	"context"
	"time"

	"github.com/tiendaluna/pos_backend/config"
	"github.com/tiendaluna/pos_backend/utils"
)

// Reservation is a time-bounded hold ("apartado") against an inventory row.
// While Status is active its Quantity is included in the row's
// ReservedQuantity; any terminal transition removes it exactly once.
type Reservation struct {
	ID            int               `gorm:"primary_key" json:"id"`
	InventoryId   int               `gorm:"not null;index:idx_inventory_reservation" json:"inventory_id"`
	Quantity      int               `gorm:"not null" json:"quantity"`
	CustomerName  string            `gorm:"size:100" json:"customer_name"`
	CustomerPhone string            `gorm:"size:20" json:"customer_phone"`
	CustomerEmail *string           `gorm:"size:100" json:"customer_email"`
	ExpiresAt     time.Time         `gorm:"not null;index:idx_reservation_status_expires" json:"expires_at"`
	CompletedAt   *time.Time        `json:"completed_at"`
	CancelledAt   *time.Time        `json:"cancelled_at"`
	Status        ReservationStatus `gorm:"size:20;not null;default:active;index:idx_reservation_status_expires;index:idx_inventory_reservation" json:"status"`
	Notes         string            `gorm:"size:500" json:"notes"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// CustomerInfo is the contact captured when taking an apartado.
type CustomerInfo struct {
	Name  string  `json:"name" binding:"required"`
	Phone string  `json:"phone" binding:"required"`
	Email *string `json:"email"`
	Notes string  `json:"notes"`
}

func (c *CustomerInfo) validate() error {
	return utils.ValidatePhoneNumber(c.Phone, utils.CountryCode)
}

func GetReservation(ctx context.Context, id int) (*Reservation, error) {
	return utils.FetchModel[Reservation](ctx, id)
}

// GetActiveReservations lists active holds, soonest-expiring first.
func GetActiveReservations(ctx context.Context, variantId int) ([]*Reservation, error) {
	var reservations []*Reservation
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("status = ?", ReservationStatusActive)
	if variantId > 0 {
		dbCtx = dbCtx.
			Joins("JOIN inventories ON inventories.id = reservations.inventory_id").
			Where("inventories.variant_id = ?", variantId)
	}
	if err := dbCtx.Order("expires_at").Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}
