package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/omafit/tryon-app/app/models"
)

// settingsRepository implements the SettingsRepository interface
type settingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new settings repository instance
func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

// GetByShopID retrieves the widget settings for a shop, creating the defaults
// on first access.
func (r *settingsRepository) GetByShopID(shopID uint) (*models.ShopSettings, error) {
	var settings models.ShopSettings
	err := r.db.Where("shop_id = ?", shopID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		defaults := models.DefaultShopSettings(shopID)
		if createErr := r.db.Create(defaults).Error; createErr != nil {
			return nil, createErr
		}
		return defaults, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// Save persists the widget settings
func (r *settingsRepository) Save(settings *models.ShopSettings) error {
	return r.db.Save(settings).Error
}
