package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/omafit/tryon-app/app/models"
)

// ShopRepository defines the interface for shop-related database operations
type ShopRepository interface {
	Create(shop *models.Shop) error
	GetByID(id uint) (*models.Shop, error)
	GetByDomain(domain string) (*models.Shop, error)
	GetByAPITokenHash(hash string) (*models.Shop, error)
	Update(shop *models.Shop) error
	MarkUninstalled(domain string) error
	AddImagesUsed(id uint, cycle string, delta int) (int, error)
	List(offset, limit int) ([]models.Shop, error)
	Count() (int64, error)
}

// SettingsRepository defines the interface for widget settings operations
type SettingsRepository interface {
	GetByShopID(shopID uint) (*models.ShopSettings, error)
	Save(settings *models.ShopSettings) error
}

// SizeChartRepository defines the interface for size chart operations
type SizeChartRepository interface {
	Create(chart *models.SizeChart) error
	GetByUUID(uuid string) (*models.SizeChart, error)
	GetByShopID(shopID uint) ([]models.SizeChart, error)
	GetPublishedForProduct(shopID uint, productID string) (*models.SizeChart, error)
	Update(chart *models.SizeChart) error
	Delete(id uint) error
}

// WebhookEventRepository defines the interface for webhook event deduplication
type WebhookEventRepository interface {
	CreateIfNotExists(event *models.WebhookEvent) (created bool, err error)
	GetByID(id uint) (*models.WebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
	ListRecent(limit int) ([]models.WebhookEvent, error)
}

// QueueRepository defines the interface for cache/queue operations
type QueueRepository interface {
	GetAllKeys() ([]string, error)
	GetValue(key string) (string, error)
	GetTTL(key string) (time.Duration, error)
	DeleteKey(key string) (int64, error)
	GetListLength(key string) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Shop         ShopRepository
	Settings     SettingsRepository
	SizeChart    SizeChartRepository
	WebhookEvent WebhookEventRepository
	Queue        QueueRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Shop:         NewShopRepository(db),
		Settings:     NewSettingsRepository(db),
		SizeChart:    NewSizeChartRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
		Queue:        NewQueueRepository(),
	}
}
