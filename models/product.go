package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tiendaluna/pos_backend/config"
	"github.com/tiendaluna/pos_backend/utils"
)

type Product struct {
	ID             int              `gorm:"primary_key" json:"id"`
	Name           string           `gorm:"size:200;not null" json:"name"`
	Category       string           `gorm:"size:50;not null" json:"category"`
	CategoryCode   string           `gorm:"size:10;not null;index:idx_category_number" json:"category_code"`
	InternalNumber string           `gorm:"size:10;not null;index:idx_category_number" json:"internal_number"`
	Description    string           `gorm:"type:text" json:"description"`
	Brand          string           `gorm:"size:100" json:"brand"`
	BasePrice      decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"base_price"`
	Variants       []ProductVariant `gorm:"constraint:OnDelete:CASCADE" json:"variants"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type ProductVariant struct {
	ID        int             `gorm:"primary_key" json:"id"`
	ProductId int             `gorm:"index;not null" json:"product_id"`
	Sku       string          `gorm:"size:50;uniqueIndex;not null" json:"sku"`
	Barcode   *string         `gorm:"size:20;uniqueIndex" json:"barcode"`
	ShortCode *string         `gorm:"size:20;uniqueIndex" json:"short_code"`
	Size      string          `gorm:"size:10;not null" json:"size"`
	Color     string          `gorm:"size:50;not null" json:"color"`
	ColorCode string          `gorm:"size:10;not null" json:"color_code"`
	Price     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"price"`
	Cost      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"cost"`
	IsActive  *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProductVariant struct {
	Sku       string          `json:"sku" binding:"required"`
	Barcode   *string         `json:"barcode"`
	ShortCode *string         `json:"short_code"`
	Size      string          `json:"size" binding:"required"`
	Color     string          `json:"color" binding:"required"`
	ColorCode string          `json:"color_code"`
	Price     decimal.Decimal `json:"price"`
	Cost      decimal.Decimal `json:"cost"`
}

type NewProduct struct {
	Name           string              `json:"name" binding:"required"`
	Category       string              `json:"category" binding:"required"`
	CategoryCode   string              `json:"category_code" binding:"required"`
	InternalNumber string              `json:"internal_number" binding:"required"`
	Description    string              `json:"description"`
	Brand          string              `json:"brand"`
	BasePrice      decimal.Decimal     `json:"base_price"`
	Variants       []NewProductVariant `json:"variants" binding:"required,min=1"`
}

func (input *NewProduct) validate(ctx context.Context) error {
	if input.BasePrice.IsNegative() {
		return errors.New("base price cannot be negative")
	}
	seen := map[string]bool{}
	for _, v := range input.Variants {
		sku := strings.TrimSpace(v.Sku)
		if sku == "" {
			return errors.New("variant sku is required")
		}
		if seen[sku] {
			return fmt.Errorf("duplicate sku %q in input", sku)
		}
		seen[sku] = true
		if err := utils.ValidateUnique[ProductVariant](ctx, "sku", sku, 0); err != nil {
			return err
		}
		if v.Price.IsNegative() || v.Cost.IsNegative() {
			return errors.New("variant price and cost cannot be negative")
		}
	}
	return nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	variants := make([]ProductVariant, 0, len(input.Variants))
	for _, v := range input.Variants {
		price := v.Price
		if price.IsZero() {
			price = input.BasePrice
		}
		variants = append(variants, ProductVariant{
			Sku:       strings.TrimSpace(v.Sku),
			Barcode:   v.Barcode,
			ShortCode: v.ShortCode,
			Size:      v.Size,
			Color:     v.Color,
			ColorCode: v.ColorCode,
			Price:     price,
			Cost:      v.Cost,
			IsActive:  utils.NewTrue(),
		})
	}

	product := Product{
		Name:           input.Name,
		Category:       input.Category,
		CategoryCode:   input.CategoryCode,
		InternalNumber: input.InternalNumber,
		Description:    input.Description,
		Brand:          input.Brand,
		BasePrice:      input.BasePrice,
		Variants:       variants,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}

	return &product, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	return utils.FetchModel[Product](ctx, id, "Variants")
}

// GetVariant fetches a variant by id, cache-aside through redis.
func GetVariant(ctx context.Context, id int) (*ProductVariant, error) {

	variant, err := utils.RetrieveRedis[ProductVariant](id)
	if err != nil {
		return nil, err
	}
	if variant != nil {
		return variant, nil
	}

	variant, err = utils.FetchModel[ProductVariant](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedis[ProductVariant](variant, variant.ID); err != nil {
		return nil, err
	}
	return variant, nil
}

// FindVariantByCode resolves a scanned code against sku, barcode and short
// code, in that order. Used by the POS scanner path.
func FindVariantByCode(ctx context.Context, code string) (*ProductVariant, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrRecordNotFound
	}

	var variant ProductVariant
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("sku = ? OR barcode = ? OR short_code = ?", code, code, code).
		First(&variant).Error
	if err != nil {
		return nil, ErrRecordNotFound
	}
	return &variant, nil
}

func SearchVariants(ctx context.Context, term string) ([]*ProductVariant, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.New("search term is required")
	}

	var variants []*ProductVariant
	like := "%" + term + "%"
	db := config.GetDB()
	err := db.WithContext(ctx).
		Joins("JOIN products ON products.id = product_variants.product_id").
		Where("product_variants.is_active = ?", true).
		Where("product_variants.sku LIKE ? OR products.name LIKE ? OR products.brand LIKE ?", like, like, like).
		Limit(config.SearchLimit).
		Find(&variants).Error
	if err != nil {
		return nil, err
	}
	return variants, nil
}

// ToggleActiveVariant also drops the cached copy so the POS cannot scan a
// stale active flag.
func ToggleActiveVariant(ctx context.Context, id int, isActive bool) (*ProductVariant, error) {
	variant, err := utils.FetchModel[ProductVariant](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(variant).Update("is_active", isActive).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[ProductVariant](id); err != nil {
		logger := config.GetLogger()
		config.LogError(logger, "product.go", "ToggleActiveVariant", "cache invalidation", id, err)
	}
	return variant, nil
}
