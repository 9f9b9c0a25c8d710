package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tiendaluna/pos_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Refund struct {
	ID           int             `gorm:"primary_key" json:"id"`
	RefundNumber string          `gorm:"type:varchar(20);not null;uniqueIndex" json:"refund_number"`
	SaleId       int             `gorm:"not null;index" json:"sale_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Reason       string          `gorm:"type:text" json:"reason"`
	UserId       string          `gorm:"type:varchar(100)" json:"user_id"`
	CreatedAt    time.Time       `gorm:"autoCreateTime;index" json:"created_at"`

	Items []RefundItem `gorm:"foreignKey:RefundId;constraint:OnDelete:CASCADE" json:"items"`
}

type RefundItem struct {
	ID                int             `gorm:"primary_key" json:"id"`
	RefundId          int             `gorm:"not null;index" json:"refund_id"`
	SaleItemId        int             `gorm:"not null;index" json:"sale_item_id"`
	VariantId         int             `gorm:"not null" json:"variant_id"`
	Quantity          int             `gorm:"not null" json:"quantity"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Condition         ItemCondition   `gorm:"type:varchar(20);not null;default:'good'" json:"condition"`
	ReturnToInventory *bool           `gorm:"not null;default:true" json:"return_to_inventory"`
}

type NewRefundItem struct {
	SaleItemId        int           `json:"sale_item_id" binding:"required"`
	Quantity          int           `json:"quantity" binding:"required,gt=0"`
	Condition         ItemCondition `json:"condition"`
	ReturnToInventory *bool         `json:"return_to_inventory"`
}

type NewRefund struct {
	SaleId int             `json:"sale_id" binding:"required"`
	Items  []NewRefundItem `json:"items" binding:"required,dive"`
	Reason string          `json:"reason" binding:"required"`
}

// CreateRefund refunds part or all of a completed sale. Resellable returned
// items go back to the locations the sale deducted them from, most recent
// deduction first; damaged or defective items are refunded without restock.
func (c *SalesCoordinator) CreateRefund(ctx context.Context, input *NewRefund) (*Refund, error) {
	if len(input.Items) == 0 {
		return nil, errors.New("a refund needs at least one item")
	}

	var refund Refund
	variantIds := map[int]bool{}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		var sale Sale
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items").
			First(&sale, input.SaleId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return err
		}
		if sale.Status != SaleStatusCompleted && sale.Status != SaleStatusRefunded {
			return fmt.Errorf("sale %s is %s and cannot be refunded", sale.SaleNumber, sale.Status)
		}

		saleItems := map[int]*SaleItem{}
		for i := range sale.Items {
			saleItems[sale.Items[i].ID] = &sale.Items[i]
		}

		refundNumber, err := nextDocumentNumber(tx, "refunds", "refund_number", refundNumberPrefix)
		if err != nil {
			return err
		}

		userId := ""
		if id, ok := utils.GetUserIdFromContext(tx.Statement.Context); ok {
			userId = strconv.Itoa(id)
		}

		refund = Refund{
			RefundNumber: refundNumber,
			SaleId:       sale.ID,
			Reason:       input.Reason,
			UserId:       userId,
		}
		if err := tx.Create(&refund).Error; err != nil {
			return err
		}

		total := decimal.Zero
		for _, in := range input.Items {

			saleItem, ok := saleItems[in.SaleItemId]
			if !ok {
				return fmt.Errorf("sale item %d does not belong to sale %s", in.SaleItemId, sale.SaleNumber)
			}

			refunded, err := refundedQuantity(tx, in.SaleItemId)
			if err != nil {
				return err
			}
			if in.Quantity > saleItem.Quantity-refunded {
				return fmt.Errorf("sale item %d: %d of %d already refunded, cannot refund %d more",
					in.SaleItemId, refunded, saleItem.Quantity, in.Quantity)
			}

			condition := in.Condition
			if condition == "" {
				condition = ItemConditionGood
			}
			restock := utils.DereferencePtr(in.ReturnToInventory, true) && condition == ItemConditionGood

			// Per-unit amount from the line subtotal so line discounts are
			// refunded proportionally.
			amount := saleItem.Subtotal.
				Div(decimal.NewFromInt(int64(saleItem.Quantity))).
				Mul(decimal.NewFromInt(int64(in.Quantity))).
				Round(2)

			item := RefundItem{
				RefundId:          refund.ID,
				SaleItemId:        in.SaleItemId,
				VariantId:         saleItem.VariantId,
				Quantity:          in.Quantity,
				Amount:            amount,
				Condition:         condition,
				ReturnToInventory: &restock,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			refund.Items = append(refund.Items, item)
			total = total.Add(amount)

			if restock {
				if err := c.restockRefundedItem(tx, &sale, &refund, saleItem.VariantId, in.Quantity, userId); err != nil {
					return err
				}
				variantIds[saleItem.VariantId] = true
			}
		}

		if err := tx.Model(&refund).Update("amount", total).Error; err != nil {
			return err
		}
		refund.Amount = total

		return markSaleRefunded(tx, &sale)
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	for variantId := range variantIds {
		c.ledger.invalidate(ctx, variantId)
	}
	return &refund, nil
}

// restockRefundedItem credits a returned quantity back onto the inventory
// rows the sale deducted it from, walking the sale's deductions newest first.
func (c *SalesCoordinator) restockRefundedItem(tx *gorm.DB, sale *Sale, refund *Refund, variantId int, quantity int, userId string) error {

	var deductions []InventoryMovement
	err := tx.
		Joins("JOIN inventories ON inventories.id = inventory_movements.inventory_id").
		Where("inventory_movements.reference_id = ? AND inventory_movements.reference_type = ?", sale.ID, ReferenceTypeSale).
		Where("inventory_movements.movement_type = ? AND inventories.variant_id = ?", MovementTypeSale, variantId).
		Order("inventory_movements.id DESC").
		Find(&deductions).Error
	if err != nil {
		return err
	}

	refType := ReferenceTypeRefund
	remaining := quantity
	for _, d := range deductions {
		if remaining == 0 {
			break
		}
		credit := -d.QuantityChange
		if credit > remaining {
			credit = remaining
		}
		if credit <= 0 {
			continue
		}

		var inventory Inventory
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&inventory, d.InventoryId).Error; err != nil {
			return err
		}
		if err := tx.Model(&inventory).
			Update("quantity", gorm.Expr("quantity + ?", credit)).Error; err != nil {
			return err
		}

		movement := InventoryMovement{
			InventoryId:    d.InventoryId,
			MovementType:   MovementTypeReturn,
			QuantityChange: credit,
			ReferenceId:    &refund.ID,
			ReferenceType:  &refType,
			Reason:         fmt.Sprintf("Refund %s of sale %s", refund.RefundNumber, sale.SaleNumber),
			UserId:         userId,
		}
		if err := tx.Create(&movement).Error; err != nil {
			return err
		}
		remaining -= credit
	}

	if remaining > 0 {
		return fmt.Errorf("sale %s has no deduction trail for %d units of variant %d",
			sale.SaleNumber, remaining, variantId)
	}
	return nil
}

func refundedQuantity(tx *gorm.DB, saleItemId int) (int, error) {
	var refunded *int
	err := tx.Model(&RefundItem{}).
		Where("sale_item_id = ?", saleItemId).
		Select("SUM(quantity)").
		Scan(&refunded).Error
	if err != nil {
		return 0, err
	}
	if refunded == nil {
		return 0, nil
	}
	return *refunded, nil
}

// markSaleRefunded flips the sale to refunded once every sold unit has a
// refund item.
func markSaleRefunded(tx *gorm.DB, sale *Sale) error {
	sold := 0
	for _, item := range sale.Items {
		sold += item.Quantity
	}

	var refunded *int
	err := tx.Model(&RefundItem{}).
		Joins("JOIN refunds ON refunds.id = refund_items.refund_id").
		Where("refunds.sale_id = ?", sale.ID).
		Select("SUM(refund_items.quantity)").
		Scan(&refunded).Error
	if err != nil {
		return err
	}
	if refunded == nil || *refunded < sold {
		return nil
	}

	return tx.Model(sale).Updates(map[string]interface{}{
		"status":         SaleStatusRefunded,
		"payment_status": PaymentStatusRefunded,
	}).Error
}

// GetRefund loads a refund with its items.
func GetRefund(ctx context.Context, id int) (*Refund, error) {
	return utils.FetchModel[Refund](ctx, id, "Items")
}
