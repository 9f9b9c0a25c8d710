package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/tiendaluna/pos_backend/config"
	"github.com/tiendaluna/pos_backend/models"
	"github.com/tiendaluna/pos_backend/utils"
)

// Seeds a fresh database with a demo catalog, the standard store locations
// and opening stock, for local development and demos.
func main() {
	adminPassword := flag.String("admin-password", "", "Password for the seeded admin user (required).")
	flag.Parse()

	if *adminPassword == "" {
		fmt.Fprintln(os.Stderr, "-admin-password is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx := context.Background()

	admin, err := models.CreateUser(ctx, &models.NewUser{
		Username: "admin",
		Password: *adminPassword,
		FullName: "Administrador",
		IsAdmin:  true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed admin: %v\n", err)
		os.Exit(1)
	}
	ctx = utils.SetUserIdInContext(ctx, admin.ID)

	locations := []*models.NewLocation{
		{Name: "Vitrina principal", Type: models.LocationTypeDisplay, Section: "Frente", IsVisibleToCustomer: utils.NewTrue()},
		{Name: "Exhibidor camisetas", Type: models.LocationTypeDisplay, Section: "Centro", IsVisibleToCustomer: utils.NewTrue()},
		{Name: "Bodega", Type: models.LocationTypeStorage, Section: "Trastienda"},
		{Name: "Apartados", Type: models.LocationTypeReserve, Section: "Trastienda"},
	}
	locationIds := make([]int, 0, len(locations))
	for _, input := range locations {
		location, err := models.CreateLocation(ctx, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed location %q: %v\n", input.Name, err)
			os.Exit(1)
		}
		locationIds = append(locationIds, location.ID)
	}

	price := decimal.NewFromInt(45000)
	cost := decimal.NewFromInt(22000)
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:           "Camiseta básica",
		Category:       "Camisetas",
		CategoryCode:   "CAM",
		InternalNumber: "001",
		Brand:          "TiendaLuna",
		BasePrice:      price,
		Variants: []models.NewProductVariant{
			{Sku: "CAM-001-M-NEG", Size: "M", Color: "Negro", ColorCode: "NEG", Price: price, Cost: cost},
			{Sku: "CAM-001-L-NEG", Size: "L", Color: "Negro", ColorCode: "NEG", Price: price, Cost: cost},
			{Sku: "CAM-001-M-BLA", Size: "M", Color: "Blanco", ColorCode: "BLA", Price: price, Cost: cost},
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed product: %v\n", err)
		os.Exit(1)
	}

	logger := config.GetLogger()
	cache := models.NewRedisInventoryCache(logger)
	ledger := models.NewInventoryLedger(config.GetDB(), cache, logger)

	for _, variant := range product.Variants {
		// Some units on display, the rest in storage.
		for i, qty := range []int{5, 20} {
			_, err := ledger.AdjustQuantity(ctx, &models.NewStockAdjustment{
				VariantId:      variant.ID,
				LocationId:     locationIds[i*2],
				QuantityChange: qty,
				MovementType:   models.MovementTypePurchase,
				Reason:         "Opening stock",
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "seed stock for %s: %v\n", variant.Sku, err)
				os.Exit(1)
			}
		}
	}

	fmt.Println("demo data seeded")
}
