package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/omafit/tryon-app/app/models"
)

// sizeChartRepository implements the SizeChartRepository interface
type sizeChartRepository struct {
	db *gorm.DB
}

// NewSizeChartRepository creates a new size chart repository instance
func NewSizeChartRepository(db *gorm.DB) SizeChartRepository {
	return &sizeChartRepository{db: db}
}

// Create creates a new size chart
func (r *sizeChartRepository) Create(chart *models.SizeChart) error {
	return r.db.Create(chart).Error
}

// GetByUUID retrieves a size chart by its public UUID
func (r *sizeChartRepository) GetByUUID(uuid string) (*models.SizeChart, error) {
	var chart models.SizeChart
	err := r.db.Where("uuid = ?", uuid).First(&chart).Error
	if err != nil {
		return nil, err
	}
	return &chart, nil
}

// GetByShopID retrieves all size charts for a shop
func (r *sizeChartRepository) GetByShopID(shopID uint) ([]models.SizeChart, error) {
	var charts []models.SizeChart
	err := r.db.Where("shop_id = ?", shopID).Order("created_at DESC").Find(&charts).Error
	return charts, err
}

// GetPublishedForProduct resolves the chart shown for a product: a
// product-scoped chart wins over a shop-wide one.
func (r *sizeChartRepository) GetPublishedForProduct(shopID uint, productID string) (*models.SizeChart, error) {
	var chart models.SizeChart
	err := r.db.
		Where("shop_id = ? AND published = ? AND product_scope = ? AND scope_value = ?",
			shopID, true, models.SizeChartScopeProduct, productID).
		First(&chart).Error
	if err == nil {
		return &chart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = r.db.
		Where("shop_id = ? AND published = ? AND product_scope = ?",
			shopID, true, models.SizeChartScopeAll).
		Order("updated_at DESC").
		First(&chart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// No published chart is a normal state for the widget, not an error.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &chart, nil
}

// Update updates an existing size chart
func (r *sizeChartRepository) Update(chart *models.SizeChart) error {
	return r.db.Save(chart).Error
}

// Delete soft deletes a size chart
func (r *sizeChartRepository) Delete(id uint) error {
	return r.db.Delete(&models.SizeChart{}, id).Error
}
