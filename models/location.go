package models

import (
	"context"
	"errors"
	"time"

	"github.com/tiendaluna/pos_backend/config"
	"github.com/tiendaluna/pos_backend/utils"
)

type Location struct {
	ID                  int          `gorm:"primary_key" json:"id"`
	Name                string       `gorm:"size:100;not null" json:"name"`
	Type                LocationType `gorm:"size:50;not null;index" json:"type"`
	Section             string       `gorm:"size:50" json:"section"`
	ShelfCode           string       `gorm:"size:20" json:"shelf_code"`
	Description         string       `gorm:"size:200" json:"description"`
	IsVisibleToCustomer *bool        `gorm:"not null;default:true" json:"is_visible_to_customer"`
	IsActive            *bool        `gorm:"not null;default:true" json:"is_active"`
	MaxCapacity         int          `gorm:"default:100" json:"max_capacity"`
	CreatedAt           time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLocation struct {
	Name                string       `json:"name" binding:"required"`
	Type                LocationType `json:"type" binding:"required"`
	Section             string       `json:"section"`
	ShelfCode           string       `json:"shelf_code"`
	Description         string       `json:"description"`
	IsVisibleToCustomer *bool        `json:"is_visible_to_customer"`
	MaxCapacity         int          `json:"max_capacity"`
}

func (input *NewLocation) validate(ctx context.Context, id int) error {
	if !input.Type.Valid() {
		return errors.New("invalid location type")
	}
	if err := utils.ValidateUnique[Location](ctx, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateLocation(ctx context.Context, input *NewLocation) (*Location, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	visible := input.IsVisibleToCustomer
	if visible == nil {
		visible = utils.NewTrue()
	}
	maxCapacity := input.MaxCapacity
	if maxCapacity <= 0 {
		maxCapacity = 100
	}

	location := Location{
		Name:                input.Name,
		Type:                input.Type,
		Section:             input.Section,
		ShelfCode:           input.ShelfCode,
		Description:         input.Description,
		IsVisibleToCustomer: visible,
		IsActive:            utils.NewTrue(),
		MaxCapacity:         maxCapacity,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&location).Error; err != nil {
		return nil, err
	}

	return &location, nil
}

func GetLocation(ctx context.Context, id int) (*Location, error) {
	return utils.FetchModel[Location](ctx, id)
}

func GetAllLocations(ctx context.Context, activeOnly bool) ([]*Location, error) {
	var locations []*Location
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if activeOnly {
		dbCtx = dbCtx.Where("is_active = ?", true)
	}
	if err := dbCtx.Order("type, name").Find(&locations).Error; err != nil {
		return nil, err
	}
	return locations, nil
}

// ToggleActiveLocation deactivates or reactivates a location. Locations are
// never hard-deleted; inventory rows keep pointing at them.
func ToggleActiveLocation(ctx context.Context, id int, isActive bool) (*Location, error) {
	location, err := utils.FetchModel[Location](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(location).Update("is_active", isActive).Error; err != nil {
		return nil, err
	}
	return location, nil
}
