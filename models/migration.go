package models

import (
	"log"

	"github.com/tiendaluna/pos_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&Product{}, &ProductVariant{},
		&Location{},
		&Inventory{}, &InventoryMovement{}, &Reservation{},
		&Sale{}, &SaleItem{}, &Payment{},
		&Refund{}, &RefundItem{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
