package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	WidgetPlacementProductPage = "product_page"
	WidgetPlacementFloating    = "floating"

	WidgetThemeLight = "light"
	WidgetThemeDark  = "dark"
	WidgetThemeAuto  = "auto"
)

// ShopSettings holds the per-shop widget configuration the merchant edits in
// the embedded admin.
type ShopSettings struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ShopID          uint      `gorm:"uniqueIndex;not null" json:"shop_id"`
	WidgetEnabled   bool      `gorm:"default:true" json:"widget_enabled"`
	WidgetPlacement string    `gorm:"type:varchar(30);default:'product_page'" json:"widget_placement" validate:"oneof=product_page floating"`
	WidgetTheme     string    `gorm:"type:varchar(10);default:'auto'" json:"widget_theme" validate:"oneof=light dark auto"`
	ButtonLabel     string    `gorm:"type:varchar(60);default:'Try it on'" json:"button_label" validate:"max=60"`
	AccentColor     string    `gorm:"type:varchar(7);default:'#1a1a1a'" json:"accent_color" validate:"omitempty,hexcolor"`
	ShowSizeHint    bool      `gorm:"default:true" json:"show_size_hint"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *ShopSettings) Validate() error {
	v := validator.New()

	return v.Struct(s)
}

// DefaultShopSettings returns the settings a shop starts with.
func DefaultShopSettings(shopID uint) *ShopSettings {
	return &ShopSettings{
		ShopID:          shopID,
		WidgetEnabled:   true,
		WidgetPlacement: WidgetPlacementProductPage,
		WidgetTheme:     WidgetThemeAuto,
		ButtonLabel:     "Try it on",
		AccentColor:     "#1a1a1a",
		ShowSizeHint:    true,
	}
}
