package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SizeChartScopeAll        = "all"
	SizeChartScopeCollection = "collection"
	SizeChartScopeProduct    = "product"
)

// SizeChart is a merchant-defined sizing table shown next to the try-on
// widget. BodyJSON holds the column/row structure as the admin editor
// produced it.
type SizeChart struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UUID         string         `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	ShopID       uint           `gorm:"index;not null" json:"shop_id"`
	Title        string         `gorm:"type:varchar(150);not null" json:"title" validate:"required,min=1,max=150"`
	BodyJSON     string         `gorm:"type:longtext;not null" json:"body_json" validate:"required"`
	ProductScope string         `gorm:"type:varchar(20);default:'all'" json:"product_scope" validate:"oneof=all collection product"`
	ScopeValue   string         `gorm:"type:varchar(191)" json:"scope_value" validate:"max=191"`
	Published    bool           `gorm:"default:false" json:"published"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (s *SizeChart) Validate() error {
	if !json.Valid([]byte(s.BodyJSON)) {
		return ErrInvalidChartBody
	}
	v := validator.New()

	return v.Struct(s)
}

// BeforeCreate assigns the public UUID.
func (s *SizeChart) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == "" {
		s.UUID = uuid.New().String()
	}
	return nil
}

// ErrInvalidChartBody is returned when BodyJSON is not valid JSON.
var ErrInvalidChartBody = errors.New("size chart body is not valid JSON")
