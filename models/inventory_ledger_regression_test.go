package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tiendaluna/pos_backend/config"
	"github.com/tiendaluna/pos_backend/models"
	"github.com/tiendaluna/pos_backend/utils"
)

func TestInventoryLedgerRegression(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "tiendaluna_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUsernameInContext(ctx, "test@local")
	ctx = utils.SetCorrelationIdInContext(ctx, "regression-test")

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}
	logger := config.GetLogger()
	cache := models.NewRedisInventoryCache(logger)
	ledger := models.NewInventoryLedger(db, cache, logger)
	coordinator := models.NewSalesCoordinator(db, ledger, logger)

	display1 := seedLocation(t, ctx, "Vitrina", models.LocationTypeDisplay)
	display2 := seedLocation(t, ctx, "Exhibidor", models.LocationTypeDisplay)
	storage := seedLocation(t, ctx, "Bodega", models.LocationTypeStorage)

	t.Run("MovementsReplayToQuantity", func(t *testing.T) {
		variantId := seedVariant(t, ctx, "REPLAY")

		adjust(t, ctx, ledger, variantId, display1, 10, models.MovementTypePurchase)
		adjust(t, ctx, ledger, variantId, display1, -3, models.MovementTypeSale)
		adjust(t, ctx, ledger, variantId, display1, 5, models.MovementTypePurchase)
		adjust(t, ctx, ledger, variantId, display1, -4, models.MovementTypeAdjustment)

		inv := fetchInventory(t, ctx, variantId, display1)
		if inv.Quantity != 8 {
			t.Fatalf("quantity = %d, want 8", inv.Quantity)
		}

		var sum *int
		if err := db.WithContext(ctx).Model(&models.InventoryMovement{}).
			Where("inventory_id = ?", inv.ID).
			Select("SUM(quantity_change)").Scan(&sum).Error; err != nil {
			t.Fatalf("sum movements: %v", err)
		}
		if sum == nil || *sum != inv.Quantity {
			t.Errorf("movement sum = %v, quantity = %d; ledger does not replay", sum, inv.Quantity)
		}
	})

	t.Run("DebitBelowZeroRejected", func(t *testing.T) {
		variantId := seedVariant(t, ctx, "NEGATIVE")
		adjust(t, ctx, ledger, variantId, display1, 2, models.MovementTypePurchase)

		_, err := ledger.AdjustQuantity(ctx, &models.NewStockAdjustment{
			VariantId:      variantId,
			LocationId:     display1,
			QuantityChange: -3,
			MovementType:   models.MovementTypeSale,
		})
		if !models.IsInsufficientStock(err) {
			t.Fatalf("err = %v, want InsufficientStockError", err)
		}

		inv := fetchInventory(t, ctx, variantId, display1)
		if inv.Quantity != 2 {
			t.Errorf("failed debit changed quantity to %d", inv.Quantity)
		}
		var count int64
		db.WithContext(ctx).Model(&models.InventoryMovement{}).
			Where("inventory_id = ?", inv.ID).Count(&count)
		if count != 1 {
			t.Errorf("failed debit wrote a movement (count = %d)", count)
		}
	})

	t.Run("ReservationBound", func(t *testing.T) {
		variantId := seedVariant(t, ctx, "RESBOUND")
		adjust(t, ctx, ledger, variantId, display1, 5, models.MovementTypePurchase)

		res, err := ledger.Reserve(ctx, &models.NewReservation{
			VariantId:  variantId,
			LocationId: display1,
			Quantity:   3,
			Customer:   testCustomer(),
		})
		if err != nil {
			t.Fatalf("Reserve: %v", err)
		}

		_, err = ledger.Reserve(ctx, &models.NewReservation{
			VariantId:  variantId,
			LocationId: display1,
			Quantity:   3,
			Customer:   testCustomer(),
		})
		if !models.IsInsufficientAvailableStock(err) {
			t.Fatalf("over-reserve err = %v, want InsufficientAvailableStockError", err)
		}

		inv := fetchInventory(t, ctx, variantId, display1)
		if inv.ReservedQuantity != 3 || inv.Quantity != 5 {
			t.Errorf("inventory = %d/%d reserved, want 5/3", inv.Quantity, inv.ReservedQuantity)
		}

		// Reserved stock cannot be debited away either.
		_, err = ledger.AdjustQuantity(ctx, &models.NewStockAdjustment{
			VariantId:      variantId,
			LocationId:     display1,
			QuantityChange: -4,
			MovementType:   models.MovementTypeSale,
		})
		if !models.IsInsufficientAvailableStock(err) {
			t.Fatalf("debit through holds err = %v, want InsufficientAvailableStockError", err)
		}

		if err := ledger.ReleaseReservation(ctx, res.ID, false); err != nil {
			t.Fatalf("ReleaseReservation: %v", err)
		}
	})

	t.Run("ReleaseIsExactlyOnce", func(t *testing.T) {
		variantId := seedVariant(t, ctx, "ONCE")
		adjust(t, ctx, ledger, variantId, display1, 4, models.MovementTypePurchase)

		res, err := ledger.Reserve(ctx, &models.NewReservation{
			VariantId:  variantId,
			LocationId: display1,
			Quantity:   2,
			Customer:   testCustomer(),
		})
		if err != nil {
			t.Fatalf("Reserve: %v", err)
		}

		if err := ledger.ReleaseReservation(ctx, res.ID, true); err != nil {
			t.Fatalf("first release: %v", err)
		}
		err = ledger.ReleaseReservation(ctx, res.ID, true)
		if !models.IsInvalidReservationState(err) {
			t.Fatalf("second release err = %v, want InvalidReservationStateError", err)
		}

		inv := fetchInventory(t, ctx, variantId, display1)
		if inv.Quantity != 2 || inv.ReservedQuantity != 0 {
			t.Errorf("inventory = %d/%d, want 2/0 after one completed release", inv.Quantity, inv.ReservedQuantity)
		}
	})

	t.Run("ExpirySweepReturnsStock", func(t *testing.T) {
		variantId := seedVariant(t, ctx, "EXPIRE")
		adjust(t, ctx, ledger, variantId, display1, 6, models.MovementTypePurchase)

		res, err := ledger.Reserve(ctx, &models.NewReservation{
			VariantId:       variantId,
			LocationId:      display1,
			Quantity:        2,
			Customer:        testCustomer(),
			DurationMinutes: 1,
		})
		if err != nil {
			t.Fatalf("Reserve: %v", err)
		}

		// Force the hold into the past instead of sleeping.
		if err := db.WithContext(ctx).Model(&models.Reservation{}).
			Where("id = ?", res.ID).
			Update("expires_at", time.Now().Add(-time.Minute)).Error; err != nil {
			t.Fatalf("backdate reservation: %v", err)
		}

		expired, err := ledger.ExpireStaleReservations(ctx)
		if err != nil {
			t.Fatalf("ExpireStaleReservations: %v", err)
		}
		if expired != 1 {
			t.Fatalf("expired = %d, want 1", expired)
		}

		got, err := models.GetReservation(ctx, res.ID)
		if err != nil {
			t.Fatalf("GetReservation: %v", err)
		}
		if got.Status != models.ReservationStatusExpired {
			t.Errorf("status = %s, want expired", got.Status)
		}
		inv := fetchInventory(t, ctx, variantId, display1)
		if inv.Quantity != 6 || inv.ReservedQuantity != 0 {
			t.Errorf("inventory = %d/%d, want 6/0 after expiry", inv.Quantity, inv.ReservedQuantity)
		}
	})

	t.Run("TransferConservesTotal", func(t *testing.T) {
		variantId := seedVariant(t, ctx, "TRANSFER")
		adjust(t, ctx, ledger, variantId, storage, 10, models.MovementTypePurchase)

		err := ledger.Transfer(ctx, &models.NewStockTransfer{
			VariantId:      variantId,
			FromLocationId: storage,
			ToLocationId:   display1,
			Quantity:       4,
			Reason:         "restock floor",
		})
		if err != nil {
			t.Fatalf("Transfer: %v", err)
		}

		source := fetchInventory(t, ctx, variantId, storage)
		dest := fetchInventory(t, ctx, variantId, display1)
		if source.Quantity != 6 || dest.Quantity != 4 {
			t.Errorf("after transfer: source %d dest %d, want 6 and 4", source.Quantity, dest.Quantity)
		}

		err = ledger.Transfer(ctx, &models.NewStockTransfer{
			VariantId:      variantId,
			FromLocationId: storage,
			ToLocationId:   display1,
			Quantity:       99,
		})
		if !models.IsInsufficientStock(err) {
			t.Fatalf("oversized transfer err = %v, want InsufficientStockError", err)
		}
		source = fetchInventory(t, ctx, variantId, storage)
		dest = fetchInventory(t, ctx, variantId, display1)
		if source.Quantity+dest.Quantity != 10 {
			t.Errorf("total = %d, transfer did not conserve stock", source.Quantity+dest.Quantity)
		}
	})

	t.Run("AllocationSpansLocations", func(t *testing.T) {
		variantId := seedVariant(t, ctx, "ALLOC")
		adjust(t, ctx, ledger, variantId, display1, 2, models.MovementTypePurchase)
		adjust(t, ctx, ledger, variantId, display2, 5, models.MovementTypePurchase)
		adjust(t, ctx, ledger, variantId, storage, 20, models.MovementTypePurchase)

		movements, err := ledger.AllocateAndDeduct(ctx, variantId, 8, nil, nil, "")
		if err != nil {
			t.Fatalf("AllocateAndDeduct: %v", err)
		}
		if len(movements) != 3 {
			t.Fatalf("movements = %d, want 3 (both displays then storage)", len(movements))
		}

		if got := fetchInventory(t, ctx, variantId, display2).Quantity; got != 0 {
			t.Errorf("best-stocked display quantity = %d, want 0", got)
		}
		if got := fetchInventory(t, ctx, variantId, display1).Quantity; got != 0 {
			t.Errorf("display quantity = %d, want 0", got)
		}
		if got := fetchInventory(t, ctx, variantId, storage).Quantity; got != 19 {
			t.Errorf("storage quantity = %d, want 19", got)
		}
	})

	t.Run("AllocationSkipsInactiveAndHiddenLocations", func(t *testing.T) {
		variantId := seedVariant(t, ctx, "HIDDEN")

		hidden, err := models.CreateLocation(ctx, &models.NewLocation{
			Name:                "Cajón interno",
			Type:                models.LocationTypeStorage,
			IsVisibleToCustomer: utils.NewFalse(),
		})
		if err != nil {
			t.Fatalf("create hidden location: %v", err)
		}
		retired, err := models.CreateLocation(ctx, &models.NewLocation{
			Name: "Estante retirado",
			Type: models.LocationTypeDisplay,
		})
		if err != nil {
			t.Fatalf("create retired location: %v", err)
		}

		adjust(t, ctx, ledger, variantId, display1, 2, models.MovementTypePurchase)
		adjust(t, ctx, ledger, variantId, hidden.ID, 10, models.MovementTypePurchase)
		adjust(t, ctx, ledger, variantId, retired.ID, 10, models.MovementTypePurchase)

		if _, err := models.ToggleActiveLocation(ctx, retired.ID, false); err != nil {
			t.Fatalf("deactivate location: %v", err)
		}

		// Only the 2 units on the visible active display count.
		_, err = ledger.AllocateAndDeduct(ctx, variantId, 5, nil, nil, "")
		if !models.IsInsufficientStock(err) {
			t.Fatalf("AllocateAndDeduct over hidden stock: err = %v, want insufficient stock", err)
		}

		movements, err := ledger.AllocateAndDeduct(ctx, variantId, 2, nil, nil, "")
		if err != nil {
			t.Fatalf("AllocateAndDeduct: %v", err)
		}
		if len(movements) != 1 {
			t.Fatalf("movements = %d, want 1 (display only)", len(movements))
		}
		if got := fetchInventory(t, ctx, variantId, hidden.ID).Quantity; got != 10 {
			t.Errorf("hidden location quantity = %d, want 10 untouched", got)
		}
		if got := fetchInventory(t, ctx, variantId, retired.ID).Quantity; got != 10 {
			t.Errorf("inactive location quantity = %d, want 10 untouched", got)
		}
	})

	t.Run("ConcurrentSalesNeverOversell", func(t *testing.T) {
		variantId := seedVariant(t, ctx, "RACE")
		adjust(t, ctx, ledger, variantId, display1, 5, models.MovementTypePurchase)

		const workers = 10
		var wg sync.WaitGroup
		results := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := ledger.AllocateAndDeduct(ctx, variantId, 1, nil, nil, "")
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		succeeded := 0
		for err := range results {
			if err == nil {
				succeeded++
				continue
			}
			if !models.IsInsufficientStock(err) && !models.IsTransactionConflict(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}
		if succeeded != 5 {
			t.Errorf("succeeded = %d, want exactly 5", succeeded)
		}
		if got := fetchInventory(t, ctx, variantId, display1).Quantity; got != 0 {
			t.Errorf("quantity = %d, want 0", got)
		}
	})

	t.Run("RecountClearsFlagAndWritesMovement", func(t *testing.T) {
		variantId := seedVariant(t, ctx, "RECOUNT")
		adjust(t, ctx, ledger, variantId, display1, 7, models.MovementTypePurchase)
		inv := fetchInventory(t, ctx, variantId, display1)
		if err := db.WithContext(ctx).Model(&models.Inventory{}).
			Where("id = ?", inv.ID).Update("needs_recount", true).Error; err != nil {
			t.Fatalf("flag recount: %v", err)
		}

		movement, err := ledger.SetQuantity(ctx, inv.ID, 4, "physical count", "1")
		if err != nil {
			t.Fatalf("SetQuantity: %v", err)
		}
		if movement == nil || movement.QuantityChange != -3 {
			t.Fatalf("movement = %+v, want delta -3", movement)
		}

		inv = fetchInventory(t, ctx, variantId, display1)
		if inv.Quantity != 4 || inv.NeedsRecount {
			t.Errorf("inventory = %d needsRecount=%v, want 4/false", inv.Quantity, inv.NeedsRecount)
		}

		// Matching count is a silent success.
		movement, err = ledger.SetQuantity(ctx, inv.ID, 4, "physical count", "1")
		if err != nil {
			t.Fatalf("no-op SetQuantity: %v", err)
		}
		if movement != nil {
			t.Errorf("no-op recount wrote movement %+v", movement)
		}
	})

	t.Run("SaleLifecycle", func(t *testing.T) {
		variantId := seedVariant(t, ctx, "SALE")
		adjust(t, ctx, ledger, variantId, display1, 10, models.MovementTypePurchase)

		price := decimal.NewFromInt(45000)
		sale, err := coordinator.CreateSale(ctx, &models.NewSale{
			Items: []models.NewSaleItem{{
				VariantId: variantId,
				Quantity:  3,
				UnitPrice: &price,
			}},
			Payments: []models.NewPayment{{
				Method: models.PaymentMethodCash,
				Amount: decimal.NewFromInt(135000),
			}},
		})
		if err != nil {
			t.Fatalf("CreateSale: %v", err)
		}
		if !regexp.MustCompile(`^V-\d{8}-\d{4}$`).MatchString(sale.SaleNumber) {
			t.Errorf("sale number %q has the wrong shape", sale.SaleNumber)
		}
		if sale.PaymentStatus != models.PaymentStatusPaid {
			t.Errorf("payment status = %s, want paid", sale.PaymentStatus)
		}
		if got := fetchInventory(t, ctx, variantId, display1).Quantity; got != 7 {
			t.Errorf("quantity after sale = %d, want 7", got)
		}

		cancelled, err := coordinator.CancelSale(ctx, sale.ID, "customer changed mind")
		if err != nil {
			t.Fatalf("CancelSale: %v", err)
		}
		if cancelled.Status != models.SaleStatusCancelled {
			t.Errorf("status = %s, want cancelled", cancelled.Status)
		}
		if got := fetchInventory(t, ctx, variantId, display1).Quantity; got != 10 {
			t.Errorf("quantity after cancellation = %d, want 10", got)
		}
	})

	t.Run("RefundRestocksGoodItems", func(t *testing.T) {
		variantId := seedVariant(t, ctx, "REFUND")
		adjust(t, ctx, ledger, variantId, display1, 10, models.MovementTypePurchase)

		price := decimal.NewFromInt(30000)
		sale, err := coordinator.CreateSale(ctx, &models.NewSale{
			Items: []models.NewSaleItem{{
				VariantId: variantId,
				Quantity:  4,
				UnitPrice: &price,
			}},
			Payments: []models.NewPayment{{
				Method: models.PaymentMethodCard,
				Amount: decimal.NewFromInt(120000),
			}},
		})
		if err != nil {
			t.Fatalf("CreateSale: %v", err)
		}

		refund, err := coordinator.CreateRefund(ctx, &models.NewRefund{
			SaleId: sale.ID,
			Reason: "talla equivocada",
			Items: []models.NewRefundItem{
				{SaleItemId: sale.Items[0].ID, Quantity: 1, Condition: models.ItemConditionGood},
				{SaleItemId: sale.Items[0].ID, Quantity: 1, Condition: models.ItemConditionDamaged},
			},
		})
		if err != nil {
			t.Fatalf("CreateRefund: %v", err)
		}
		if !regexp.MustCompile(`^D-\d{8}-\d{4}$`).MatchString(refund.RefundNumber) {
			t.Errorf("refund number %q has the wrong shape", refund.RefundNumber)
		}
		if !refund.Amount.Equal(decimal.NewFromInt(60000)) {
			t.Errorf("refund amount = %s, want 60000", refund.Amount)
		}

		// Only the resellable unit goes back on the shelf.
		if got := fetchInventory(t, ctx, variantId, display1).Quantity; got != 7 {
			t.Errorf("quantity after refund = %d, want 7", got)
		}

		// Refunding more than sold is rejected.
		_, err = coordinator.CreateRefund(ctx, &models.NewRefund{
			SaleId: sale.ID,
			Reason: "otra vez",
			Items:  []models.NewRefundItem{{SaleItemId: sale.Items[0].ID, Quantity: 3}},
		})
		if err == nil {
			t.Errorf("over-refund accepted")
		}
	})

	t.Run("ReservationToSale", func(t *testing.T) {
		variantId := seedVariant(t, ctx, "APARTADO")
		adjust(t, ctx, ledger, variantId, display1, 3, models.MovementTypePurchase)

		res, err := ledger.Reserve(ctx, &models.NewReservation{
			VariantId:  variantId,
			LocationId: display1,
			Quantity:   2,
			Customer:   testCustomer(),
		})
		if err != nil {
			t.Fatalf("Reserve: %v", err)
		}

		sale, err := coordinator.CompleteReservationSale(ctx, res.ID, []models.NewPayment{{
			Method: models.PaymentMethodCash,
			Amount: decimal.NewFromInt(90000),
		}})
		if err != nil {
			t.Fatalf("CompleteReservationSale: %v", err)
		}
		if sale.ReservationId == nil || *sale.ReservationId != res.ID {
			t.Errorf("sale not linked to reservation")
		}

		inv := fetchInventory(t, ctx, variantId, display1)
		if inv.Quantity != 1 || inv.ReservedQuantity != 0 {
			t.Errorf("inventory = %d/%d, want 1/0", inv.Quantity, inv.ReservedQuantity)
		}

		got, err := models.GetReservation(ctx, res.ID)
		if err != nil {
			t.Fatalf("GetReservation: %v", err)
		}
		if got.Status != models.ReservationStatusCompleted {
			t.Errorf("reservation status = %s, want completed", got.Status)
		}
	})

	t.Run("CancelApartadoSaleRestoresStock", func(t *testing.T) {
		variantId := seedVariant(t, ctx, "APARTCAN")
		adjust(t, ctx, ledger, variantId, display1, 3, models.MovementTypePurchase)

		res, err := ledger.Reserve(ctx, &models.NewReservation{
			VariantId:  variantId,
			LocationId: display1,
			Quantity:   2,
			Customer:   testCustomer(),
		})
		if err != nil {
			t.Fatalf("Reserve: %v", err)
		}
		sale, err := coordinator.CompleteReservationSale(ctx, res.ID, []models.NewPayment{{
			Method: models.PaymentMethodCash,
			Amount: decimal.NewFromInt(90000),
		}})
		if err != nil {
			t.Fatalf("CompleteReservationSale: %v", err)
		}

		// The deduction must ride on the sale's own trail, not the reservation's.
		db := config.GetDB()
		var deductions int64
		if err := db.WithContext(ctx).Model(&models.InventoryMovement{}).
			Where("reference_id = ? AND reference_type = ? AND movement_type = ?",
				sale.ID, models.ReferenceTypeSale, models.MovementTypeSale).
			Count(&deductions).Error; err != nil {
			t.Fatalf("count deductions: %v", err)
		}
		if deductions != 1 {
			t.Fatalf("sale-referenced deductions = %d, want 1", deductions)
		}

		cancelled, err := coordinator.CancelSale(ctx, sale.ID, "cliente se retractó")
		if err != nil {
			t.Fatalf("CancelSale: %v", err)
		}
		if cancelled.Status != models.SaleStatusCancelled {
			t.Errorf("sale status = %s, want cancelled", cancelled.Status)
		}

		inv := fetchInventory(t, ctx, variantId, display1)
		if inv.Quantity != 3 || inv.ReservedQuantity != 0 {
			t.Errorf("inventory = %d/%d, want 3/0 after cancellation", inv.Quantity, inv.ReservedQuantity)
		}
	})
}

var seededLocations = map[string]int{}

func seedLocation(t *testing.T, ctx context.Context, name string, locType models.LocationType) int {
	t.Helper()
	if id, ok := seededLocations[name]; ok {
		return id
	}
	location, err := models.CreateLocation(ctx, &models.NewLocation{
		Name: name,
		Type: locType,
	})
	if err != nil {
		t.Fatalf("seed location %q: %v", name, err)
	}
	seededLocations[name] = location.ID
	return location.ID
}

func seedVariant(t *testing.T, ctx context.Context, tag string) int {
	t.Helper()
	price := decimal.NewFromInt(45000)
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:           "Camiseta " + tag,
		Category:       "Camisetas",
		CategoryCode:   "CAM",
		InternalNumber: "001",
		BasePrice:      price,
		Variants: []models.NewProductVariant{{
			Sku:   "CAM-" + tag + "-M-NEG",
			Size:  "M",
			Color: "Negro",
			Price: price,
			Cost:  decimal.NewFromInt(20000),
		}},
	})
	if err != nil {
		t.Fatalf("seed product %s: %v", tag, err)
	}
	return product.Variants[0].ID
}

func testCustomer() models.CustomerInfo {
	return models.CustomerInfo{
		Name:  "Ana Pérez",
		Phone: "+573001234567",
	}
}

func adjust(t *testing.T, ctx context.Context, ledger *models.InventoryLedger, variantId, locationId, delta int, movementType models.MovementType) {
	t.Helper()
	_, err := ledger.AdjustQuantity(ctx, &models.NewStockAdjustment{
		VariantId:      variantId,
		LocationId:     locationId,
		QuantityChange: delta,
		MovementType:   movementType,
		Reason:         "test",
	})
	if err != nil {
		t.Fatalf("adjust %d at %d by %d: %v", variantId, locationId, delta, err)
	}
}

func fetchInventory(t *testing.T, ctx context.Context, variantId, locationId int) *models.Inventory {
	t.Helper()
	var inv models.Inventory
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("variant_id = ? AND location_id = ?", variantId, locationId).
		First(&inv).Error; err != nil {
		t.Fatalf("fetch inventory %d/%d: %v", variantId, locationId, err)
	}
	return &inv
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("pos-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("pos-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=tiendaluna_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
