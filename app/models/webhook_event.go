package models

import "time"

// WebhookEvent stores platform webhook deliveries with deduplication metadata
// for idempotent processing. ProviderEventID is the platform's delivery id
// (X-Shopify-Webhook-Id).
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ShopDomain      string     `gorm:"type:varchar(191);not null;index" json:"shop_domain"`
	Topic           string     `gorm:"type:varchar(100);not null;index" json:"topic"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';uniqueIndex" json:"provider_event_id"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
