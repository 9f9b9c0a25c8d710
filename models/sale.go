package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tiendaluna/pos_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Sale struct {
	ID             int             `gorm:"primary_key" json:"id"`
	SaleNumber     string          `gorm:"type:varchar(20);not null;uniqueIndex" json:"sale_number"`
	Status         SaleStatus      `gorm:"type:varchar(20);not null;default:'completed';index" json:"status"`
	CustomerName   string          `gorm:"type:varchar(255)" json:"customer_name"`
	CustomerPhone  string          `gorm:"type:varchar(30)" json:"customer_phone"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"subtotal"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"discount_amount"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"tax_amount"`
	Total          decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total"`
	PaymentStatus  PaymentStatus   `gorm:"type:varchar(20);not null;default:'pending'" json:"payment_status"`
	ReservationId  *int            `gorm:"index" json:"reservation_id"`
	Notes          string          `gorm:"type:text" json:"notes"`
	UserId         string          `gorm:"type:varchar(100)" json:"user_id"`
	CashierName    string          `gorm:"type:varchar(255)" json:"cashier_name"`
	PosTerminal    string          `gorm:"type:varchar(100)" json:"pos_terminal"`
	CancelledAt    *time.Time      `json:"cancelled_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Items    []SaleItem `gorm:"foreignKey:SaleId;constraint:OnDelete:CASCADE" json:"items"`
	Payments []Payment  `gorm:"foreignKey:SaleId;constraint:OnDelete:CASCADE" json:"payments"`
}

type SaleItem struct {
	ID             int             `gorm:"primary_key" json:"id"`
	SaleId         int             `gorm:"not null;index" json:"sale_id"`
	VariantId      int             `gorm:"not null;index" json:"variant_id"`
	Quantity       int             `gorm:"not null" json:"quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"unit_price"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"discount_amount"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"subtotal"`

	Variant ProductVariant `gorm:"foreignKey:VariantId" json:"-"`
}

type Payment struct {
	ID        int             `gorm:"primary_key" json:"id"`
	SaleId    int             `gorm:"not null;index" json:"sale_id"`
	Method    PaymentMethod   `gorm:"type:varchar(20);not null" json:"method"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Reference string          `gorm:"type:varchar(100)" json:"reference"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewSaleItem struct {
	VariantId      int              `json:"variant_id" binding:"required"`
	Quantity       int              `json:"quantity" binding:"required,gt=0"`
	UnitPrice      *decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
}

type NewPayment struct {
	Method    PaymentMethod   `json:"method" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	Reference string          `json:"reference"`
}

type NewSale struct {
	Items          []NewSaleItem   `json:"items" binding:"required,dive"`
	Payments       []NewPayment    `json:"payments" binding:"dive"`
	CustomerName   string          `json:"customer_name"`
	CustomerPhone  string          `json:"customer_phone"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Notes          string          `json:"notes"`
}

// SalesCoordinator composes the inventory ledger with sale and payment rows.
// The sale record and every stock deduction it causes commit in one
// transaction, a sale can never exist without its movements or vice versa.
type SalesCoordinator struct {
	db     *gorm.DB
	ledger *InventoryLedger
	logger *logrus.Logger
}

func NewSalesCoordinator(db *gorm.DB, ledger *InventoryLedger, logger *logrus.Logger) *SalesCoordinator {
	return &SalesCoordinator{db: db, ledger: ledger, logger: logger}
}

const (
	saleNumberPrefix   = "V"
	refundNumberPrefix = "D"
)

// nextDocumentNumber issues the next PREFIX-YYYYMMDD-NNNN number for the day.
// The latest row of the day is read under lock so two concurrent sales cannot
// take the same sequence; the unique index is the backstop.
func nextDocumentNumber(tx *gorm.DB, table string, column string, prefix string) (string, error) {
	day := time.Now().Format("20060102")
	dayPrefix := prefix + "-" + day + "-"

	var last string
	err := tx.Table(table).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(column+" LIKE ?", dayPrefix+"%").
		Order(column + " DESC").
		Limit(1).
		Pluck(column, &last).Error
	if err != nil {
		return "", err
	}

	seq := 1
	if last != "" {
		parts := strings.Split(last, "-")
		if n, convErr := strconv.Atoi(parts[len(parts)-1]); convErr == nil {
			seq = n + 1
		}
	}
	return fmt.Sprintf("%s%04d", dayPrefix, seq), nil
}

// CreateSale records a sale and deducts its items from inventory, splitting
// each item across locations by allocation order.
func (c *SalesCoordinator) CreateSale(ctx context.Context, input *NewSale) (*Sale, error) {
	if len(input.Items) == 0 {
		return nil, errors.New("a sale needs at least one item")
	}
	for _, p := range input.Payments {
		if !p.Method.Valid() {
			return nil, fmt.Errorf("invalid payment method %q", p.Method)
		}
	}

	var sale *Sale
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		sale, txErr = c.createSaleTx(tx, input, nil)
		return txErr
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	for _, item := range sale.Items {
		c.ledger.invalidate(ctx, item.VariantId)
	}
	return sale, nil
}

func (c *SalesCoordinator) createSaleTx(tx *gorm.DB, input *NewSale, reservationId *int) (*Sale, error) {
	ctx := tx.Statement.Context

	saleNumber, err := nextDocumentNumber(tx, "sales", "sale_number", saleNumberPrefix)
	if err != nil {
		return nil, err
	}

	userId := ""
	if id, ok := utils.GetUserIdFromContext(ctx); ok {
		userId = strconv.Itoa(id)
	}
	cashier, _ := utils.GetCashierNameFromContext(ctx)
	terminal, _ := utils.GetPosTerminalFromContext(ctx)

	sale := Sale{
		SaleNumber:     saleNumber,
		Status:         SaleStatusCompleted,
		CustomerName:   input.CustomerName,
		CustomerPhone:  input.CustomerPhone,
		DiscountAmount: input.DiscountAmount,
		TaxAmount:      input.TaxAmount,
		ReservationId:  reservationId,
		Notes:          input.Notes,
		UserId:         userId,
		CashierName:    cashier,
		PosTerminal:    terminal,
	}
	if err := tx.Create(&sale).Error; err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	refType := ReferenceTypeSale
	for _, in := range input.Items {

		unitPrice := decimal.Zero
		if in.UnitPrice != nil {
			unitPrice = *in.UnitPrice
		} else {
			var variant ProductVariant
			if err := tx.First(&variant, in.VariantId).Error; err != nil {
				return nil, ErrRecordNotFound
			}
			unitPrice = variant.Price
		}

		lineSubtotal := unitPrice.Mul(decimal.NewFromInt(int64(in.Quantity))).Sub(in.DiscountAmount)
		item := SaleItem{
			SaleId:         sale.ID,
			VariantId:      in.VariantId,
			Quantity:       in.Quantity,
			UnitPrice:      unitPrice,
			DiscountAmount: in.DiscountAmount,
			Subtotal:       lineSubtotal,
		}
		if err := tx.Create(&item).Error; err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
		subtotal = subtotal.Add(lineSubtotal)

		// reservationId set means the stock was already held and is debited
		// by the reservation completion, not the allocator.
		if reservationId == nil {
			if _, err := c.ledger.allocateAndDeductTx(tx, in.VariantId, in.Quantity, &sale.ID, &refType, userId); err != nil {
				return nil, err
			}
		}
	}

	paid := decimal.Zero
	for _, in := range input.Payments {
		payment := Payment{
			SaleId:    sale.ID,
			Method:    in.Method,
			Amount:    in.Amount,
			Reference: in.Reference,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return nil, err
		}
		sale.Payments = append(sale.Payments, payment)
		paid = paid.Add(in.Amount)
	}

	total := subtotal.Sub(input.DiscountAmount).Add(input.TaxAmount)
	paymentStatus := PaymentStatusPending
	if paid.GreaterThanOrEqual(total) {
		paymentStatus = PaymentStatusPaid
	} else if paid.GreaterThan(decimal.Zero) {
		paymentStatus = PaymentStatusPartial
	}

	if err := tx.Model(&sale).Updates(map[string]interface{}{
		"subtotal":       subtotal,
		"total":          total,
		"payment_status": paymentStatus,
	}).Error; err != nil {
		return nil, err
	}
	sale.Subtotal = subtotal
	sale.Total = total
	sale.PaymentStatus = paymentStatus

	return &sale, nil
}

// QuickSale is the one-scan cash sale: resolve the code, sell one line at
// list price, pay in full.
func (c *SalesCoordinator) QuickSale(ctx context.Context, code string, quantity int, method PaymentMethod) (*Sale, error) {
	if quantity <= 0 {
		quantity = 1
	}
	if method == "" {
		method = PaymentMethodCash
	}

	variant, err := FindVariantByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	amount := variant.Price.Mul(decimal.NewFromInt(int64(quantity)))
	return c.CreateSale(ctx, &NewSale{
		Items: []NewSaleItem{{
			VariantId: variant.ID,
			Quantity:  quantity,
			UnitPrice: &variant.Price,
		}},
		Payments: []NewPayment{{Method: method, Amount: amount}},
	})
}

// CancelSale voids a completed sale and puts the merchandise back where it
// was deducted from, replaying the sale's own movements in reverse.
func (c *SalesCoordinator) CancelSale(ctx context.Context, saleId int, reason string) (*Sale, error) {

	var sale Sale
	variantIds := map[int]bool{}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items").
			First(&sale, saleId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return err
		}
		if sale.Status != SaleStatusCompleted {
			return fmt.Errorf("sale %s is %s and cannot be cancelled", sale.SaleNumber, sale.Status)
		}

		var deductions []InventoryMovement
		if err := tx.
			Where("reference_id = ? AND reference_type = ? AND movement_type = ?", saleId, ReferenceTypeSale, MovementTypeSale).
			Find(&deductions).Error; err != nil {
			return err
		}

		userId := ""
		if id, ok := utils.GetUserIdFromContext(tx.Statement.Context); ok {
			userId = strconv.Itoa(id)
		}
		refType := ReferenceTypeSaleCancellation
		for _, d := range deductions {

			var inventory Inventory
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&inventory, d.InventoryId).Error; err != nil {
				return err
			}
			variantIds[inventory.VariantId] = true

			if err := tx.Model(&inventory).
				Update("quantity", gorm.Expr("quantity + ?", -d.QuantityChange)).Error; err != nil {
				return err
			}

			movement := InventoryMovement{
				InventoryId:    d.InventoryId,
				MovementType:   MovementTypeReturn,
				QuantityChange: -d.QuantityChange,
				ReferenceId:    &saleId,
				ReferenceType:  &refType,
				Reason:         fmt.Sprintf("Cancellation of sale %s: %s", sale.SaleNumber, reason),
				UserId:         userId,
			}
			if err := tx.Create(&movement).Error; err != nil {
				return err
			}
		}

		now := time.Now()
		return tx.Model(&sale).Updates(map[string]interface{}{
			"status":       SaleStatusCancelled,
			"cancelled_at": &now,
			"notes":        strings.TrimSpace(sale.Notes + "\nCancelled: " + reason),
		}).Error
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	for variantId := range variantIds {
		c.ledger.invalidate(ctx, variantId)
	}
	return &sale, nil
}

// CompleteReservationSale converts an active apartado into a paid sale. The
// reservation transition, the stock debit and the sale rows commit together.
func (c *SalesCoordinator) CompleteReservationSale(ctx context.Context, reservationId int, payments []NewPayment) (*Sale, error) {

	var sale *Sale
	var variantId int
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		var reservation Reservation
		if err := tx.First(&reservation, reservationId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return err
		}

		var inventory Inventory
		if err := tx.Preload("Variant").First(&inventory, reservation.InventoryId).Error; err != nil {
			return err
		}
		variantId = inventory.VariantId

		if _, err := c.ledger.releaseReservationTx(tx, reservationId, true); err != nil {
			return err
		}

		input := &NewSale{
			Items: []NewSaleItem{{
				VariantId: inventory.VariantId,
				Quantity:  reservation.Quantity,
				UnitPrice: &inventory.Variant.Price,
			}},
			Payments:      payments,
			CustomerName:  reservation.CustomerName,
			CustomerPhone: reservation.CustomerPhone,
			Notes:         "Apartado " + strconv.Itoa(reservationId),
		}
		var txErr error
		sale, txErr = c.createSaleTx(tx, input, &reservationId)
		if txErr != nil {
			return txErr
		}

		// Re-stamp the deduction written by the reservation release onto the
		// sale, so cancellation and refunds find it in the sale's own trail.
		// The exactly-once terminal transition guarantees a single such row.
		return tx.Model(&InventoryMovement{}).
			Where("reference_id = ? AND reference_type = ? AND movement_type = ?",
				reservationId, ReferenceTypeReservation, MovementTypeSale).
			Updates(map[string]interface{}{
				"reference_id":   sale.ID,
				"reference_type": ReferenceTypeSale,
			}).Error
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	c.ledger.invalidate(ctx, variantId)
	return sale, nil
}

// GetSale loads a sale with its items and payments.
func GetSale(ctx context.Context, id int) (*Sale, error) {
	return utils.FetchModel[Sale](ctx, id, "Items", "Payments")
}
