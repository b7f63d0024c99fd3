package repository

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/omafit/tryon-app/app/models"
)

// shopRepository implements the ShopRepository interface
type shopRepository struct {
	db *gorm.DB
}

// NewShopRepository creates a new shop repository instance
func NewShopRepository(db *gorm.DB) ShopRepository {
	return &shopRepository{db: db}
}

// Create creates a new shop in the database
func (r *shopRepository) Create(shop *models.Shop) error {
	return r.db.Create(shop).Error
}

// GetByID retrieves a shop by its ID
func (r *shopRepository) GetByID(id uint) (*models.Shop, error) {
	var shop models.Shop
	err := r.db.First(&shop, id).Error
	if err != nil {
		return nil, err
	}
	return &shop, nil
}

// GetByDomain retrieves a shop by its myshopify domain
func (r *shopRepository) GetByDomain(domain string) (*models.Shop, error) {
	var shop models.Shop
	err := r.db.Where("domain = ?", strings.ToLower(strings.TrimSpace(domain))).First(&shop).Error
	if err != nil {
		return nil, err
	}
	return &shop, nil
}

// GetByAPITokenHash resolves a widget API token hash to its shop.
func (r *shopRepository) GetByAPITokenHash(hash string) (*models.Shop, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var shop models.Shop
	err := r.db.Where("api_token_hash = ? AND api_token_hash <> '' AND uninstalled_at IS NULL", trimmed).First(&shop).Error
	if err != nil {
		return nil, err
	}
	return &shop, nil
}

// Update updates an existing shop in the database
func (r *shopRepository) Update(shop *models.Shop) error {
	return r.db.Save(shop).Error
}

// MarkUninstalled records an app uninstall and invalidates the shop's tokens.
func (r *shopRepository) MarkUninstalled(domain string) error {
	now := time.Now()
	return r.db.Model(&models.Shop{}).
		Where("domain = ?", strings.ToLower(strings.TrimSpace(domain))).
		Updates(map[string]interface{}{
			"uninstalled_at": &now,
			"access_token":   "",
			"api_token_hash": "",
		}).Error
}

// AddImagesUsed atomically increments the cycle usage counter and returns the
// new total. A cycle rollover resets the counter before adding. Runs in one
// transaction so LAST_INSERT_ID stays on the same connection.
func (r *shopRepository) AddImagesUsed(id uint, cycle string, delta int) (int, error) {
	var total int
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(
			"UPDATE shops SET images_used_month = LAST_INSERT_ID(IF(usage_cycle = ?, images_used_month, 0) + ?), usage_cycle = ? WHERE id = ?",
			cycle, delta, cycle, id,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Raw("SELECT LAST_INSERT_ID()").Scan(&total).Error
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// List retrieves a paginated list of shops
func (r *shopRepository) List(offset, limit int) ([]models.Shop, error) {
	var shops []models.Shop
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&shops).Error
	return shops, err
}

// Count returns the total number of shops
func (r *shopRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Shop{}).Count(&count).Error
	return count, err
}
