package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tiendaluna/pos_backend/config"
	"github.com/tiendaluna/pos_backend/middlewares"
	"github.com/tiendaluna/pos_backend/models"
	"github.com/tiendaluna/pos_backend/models/reports"
	"github.com/tiendaluna/pos_backend/utils"
	"github.com/tiendaluna/pos_backend/workflow"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("tiendaluna-pos")

// traceRequests opens a span per request so handler work shows up alongside
// the otelgorm query spans.
func traceRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.FullPath()
		if name == "" {
			name = c.Request.URL.Path
		}
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+name)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// respondError maps the domain error taxonomy onto HTTP statuses. Conflicts a
// client can resolve by retrying carry a Retry-After.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, models.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case models.IsInsufficientStock(err),
		models.IsInsufficientAvailableStock(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case models.IsInvalidReservationState(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case models.IsTransactionConflict(err):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transaction conflict, retry"})
	default:
		logger := config.GetLogger()
		config.LogError(logger, "server.go", "respondError", c.FullPath(), nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func registerAuthRoutes(r *gin.RouterGroup) {
	r.POST("/auth/login", func(c *gin.Context) {
		var input struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if !bindJSON(c, &input) {
			return
		}
		token, err := models.Login(c.Request.Context(), input.Username, input.Password)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	})
}

func registerCatalogRoutes(r *gin.RouterGroup) {
	r.POST("/products", func(c *gin.Context) {
		var input models.NewProduct
		if !bindJSON(c, &input) {
			return
		}
		product, err := models.CreateProduct(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, product)
	})

	r.GET("/products/:id", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		product, err := models.GetProduct(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	})

	r.GET("/variants/:id", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		variant, err := models.GetVariant(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, variant)
	})

	r.GET("/variants", func(c *gin.Context) {
		variants, err := models.SearchVariants(c.Request.Context(), c.Query("search"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, variants)
	})

	// POS scanner path: any of sku, barcode or short code.
	r.GET("/scan/:code", func(c *gin.Context) {
		variant, err := models.FindVariantByCode(c.Request.Context(), c.Param("code"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, variant)
	})
}

func registerLocationRoutes(r *gin.RouterGroup) {
	r.POST("/locations", func(c *gin.Context) {
		var input models.NewLocation
		if !bindJSON(c, &input) {
			return
		}
		location, err := models.CreateLocation(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, location)
	})

	r.GET("/locations", func(c *gin.Context) {
		activeOnly := c.Query("all") == ""
		locations, err := models.GetAllLocations(c.Request.Context(), activeOnly)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, locations)
	})

	r.GET("/locations/:id", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		location, err := models.GetLocation(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, location)
	})
}

func registerInventoryRoutes(r *gin.RouterGroup, ledger *models.InventoryLedger) {
	r.GET("/inventory/variants/:id", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		info, err := models.GetInventoryInfo(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	})

	r.GET("/inventory/variants/:id/locations", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		customerVisible := c.Query("customer_visible") == "true"
		locations, err := models.FindProductLocations(c.Request.Context(), id, customerVisible)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, locations)
	})

	r.POST("/inventory/adjust", func(c *gin.Context) {
		var input models.NewStockAdjustment
		if !bindJSON(c, &input) {
			return
		}
		movement, err := ledger.AdjustQuantity(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, movement)
	})

	r.POST("/inventory/transfer", func(c *gin.Context) {
		var input models.NewStockTransfer
		if !bindJSON(c, &input) {
			return
		}
		if err := ledger.Transfer(c.Request.Context(), &input); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "transferred"})
	})

	r.POST("/inventory/:id/recount", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input struct {
			Quantity int    `json:"quantity" binding:"min=0"`
			Reason   string `json:"reason" binding:"required"`
		}
		if !bindJSON(c, &input) {
			return
		}
		userId := ""
		if uid, found := utils.GetUserIdFromContext(c.Request.Context()); found {
			userId = strconv.Itoa(uid)
		}
		movement, err := ledger.SetQuantity(c.Request.Context(), id, input.Quantity, input.Reason, userId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"movement": movement})
	})

	r.GET("/inventory/movements", func(c *gin.Context) {
		filter := models.MovementHistoryFilter{
			VariantId:    queryInt(c, "variant_id"),
			LocationId:   queryInt(c, "location_id"),
			MovementType: models.MovementType(c.Query("movement_type")),
			Limit:        queryInt(c, "limit"),
		}
		history, err := models.GetMovementHistory(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, history)
	})

	r.GET("/inventory/alerts", func(c *gin.Context) {
		alerts, err := models.GetLowStockAlerts(c.Request.Context(), queryInt(c, "location_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, alerts)
	})
}

func registerReservationRoutes(r *gin.RouterGroup, ledger *models.InventoryLedger, coordinator *models.SalesCoordinator) {
	r.POST("/reservations", func(c *gin.Context) {
		var input models.NewReservation
		if !bindJSON(c, &input) {
			return
		}
		reservation, err := ledger.Reserve(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, reservation)
	})

	r.GET("/reservations/:id", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		reservation, err := models.GetReservation(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, reservation)
	})

	r.GET("/inventory/variants/:id/reservations", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		reservations, err := models.GetActiveReservations(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, reservations)
	})

	r.POST("/reservations/:id/cancel", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		if err := ledger.ReleaseReservation(c.Request.Context(), id, false); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
	})

	r.POST("/reservations/:id/complete", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input struct {
			Payments []models.NewPayment `json:"payments" binding:"dive"`
		}
		if !bindJSON(c, &input) {
			return
		}
		sale, err := coordinator.CompleteReservationSale(c.Request.Context(), id, input.Payments)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sale)
	})

	r.POST("/reservations/expire", func(c *gin.Context) {
		expired, err := ledger.ExpireStaleReservations(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"expired": expired})
	})
}

func registerSalesRoutes(r *gin.RouterGroup, coordinator *models.SalesCoordinator) {
	r.POST("/sales", func(c *gin.Context) {
		var input models.NewSale
		if !bindJSON(c, &input) {
			return
		}
		sale, err := coordinator.CreateSale(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sale)
	})

	r.POST("/sales/quick", func(c *gin.Context) {
		var input struct {
			Code     string               `json:"code" binding:"required"`
			Quantity int                  `json:"quantity"`
			Method   models.PaymentMethod `json:"method"`
		}
		if !bindJSON(c, &input) {
			return
		}
		sale, err := coordinator.QuickSale(c.Request.Context(), input.Code, input.Quantity, input.Method)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sale)
	})

	r.GET("/sales/:id", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		sale, err := models.GetSale(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sale)
	})

	r.POST("/sales/:id/cancel", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input struct {
			Reason string `json:"reason" binding:"required"`
		}
		if !bindJSON(c, &input) {
			return
		}
		sale, err := coordinator.CancelSale(c.Request.Context(), id, input.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sale)
	})

	r.POST("/refunds", func(c *gin.Context) {
		var input models.NewRefund
		if !bindJSON(c, &input) {
			return
		}
		refund, err := coordinator.CreateRefund(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, refund)
	})

	r.GET("/refunds/:id", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		refund, err := models.GetRefund(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, refund)
	})
}

const excelContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func registerReportRoutes(r *gin.RouterGroup) {
	r.GET("/reports/stock-value", func(c *gin.Context) {
		records, err := reports.GetStockValueReport(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, records)
	})

	r.GET("/reports/stock-value/export", func(c *gin.Context) {
		f, err := reports.ExportStockValueExcel(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		defer f.Close()
		c.Header("Content-Disposition", "attachment; filename=stock_value.xlsx")
		c.Header("Content-Type", excelContentType)
		if err := f.Write(c.Writer); err != nil {
			respondError(c, err)
		}
	})

	r.GET("/reports/daily-sales", func(c *gin.Context) {
		fromDate, err := time.Parse("2006-01-02", c.Query("from"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return
		}
		toDate, err := time.Parse("2006-01-02", c.Query("to"))
		if err != nil {
			toDate = fromDate
		}
		records, err := reports.GetDailySalesReport(c.Request.Context(), fromDate, toDate)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, records)
	})

	r.GET("/reports/location-inventory", func(c *gin.Context) {
		var locationId *int
		if id := queryInt(c, "location_id"); id > 0 {
			locationId = &id
		}
		records, err := reports.GetLocationInventoryReport(c.Request.Context(), locationId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, records)
	})

	r.GET("/reports/location-inventory/export", func(c *gin.Context) {
		var locationId *int
		if id := queryInt(c, "location_id"); id > 0 {
			locationId = &id
		}
		f, err := reports.ExportLocationInventoryExcel(c.Request.Context(), locationId)
		if err != nil {
			respondError(c, err)
			return
		}
		defer f.Close()
		c.Header("Content-Disposition", "attachment; filename=location_inventory.xlsx")
		c.Header("Content-Type", excelContentType)
		if err := f.Write(c.Writer); err != nil {
			respondError(c, err)
		}
	})

	r.GET("/reports/inventory-summary", func(c *gin.Context) {
		summary, err := reports.GetInventorySummaryReport(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func queryInt(c *gin.Context, name string) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return n
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	logger := config.GetLogger()
	cache := models.NewRedisInventoryCache(logger)
	ledger := models.NewInventoryLedger(db, cache, logger)
	coordinator := models.NewSalesCoordinator(db, ledger, logger)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := workflow.NewReservationSweeper(ledger, logger)
	go sweeper.Run(rootCtx)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "https://pos.tiendaluna.com.co"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Correlation-Id", "X-Cashier-Name", "X-Pos-Terminal"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(traceRequests())
	r.Use(middlewares.SessionMiddleware())
	r.Use(middlewares.AuthMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	public := r.Group("/api")
	registerAuthRoutes(public)

	api := r.Group("/api", middlewares.RequireAuth())
	registerCatalogRoutes(api)
	registerLocationRoutes(api)
	registerInventoryRoutes(api, ledger)
	registerReservationRoutes(api, ledger, coordinator)
	registerSalesRoutes(api, coordinator)
	registerReportRoutes(api)

	admin := r.Group("/api", middlewares.RequireAuth(), middlewares.RequireAdmin())
	admin.POST("/users", func(c *gin.Context) {
		var input models.NewUser
		if !bindJSON(c, &input) {
			return
		}
		user, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, user)
	})
	admin.PATCH("/locations/:id/active", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input struct {
			IsActive *bool `json:"is_active" binding:"required"`
		}
		if !bindJSON(c, &input) {
			return
		}
		location, err := models.ToggleActiveLocation(c.Request.Context(), id, *input.IsActive)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, location)
	})
	admin.PATCH("/variants/:id/active", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input struct {
			IsActive *bool `json:"is_active" binding:"required"`
		}
		if !bindJSON(c, &input) {
			return
		}
		variant, err := models.ToggleActiveVariant(c.Request.Context(), id, *input.IsActive)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, variant)
	})

	srv := &http.Server{Addr: ":" + port, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s", err)
		}
	}()
	log.Printf("listening on :%s", port)

	<-rootCtx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %s", err)
	}
}
