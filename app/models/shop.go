package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Shop is one installed store. The offline access token authorizes platform
// API calls on the shop's behalf; the API token authenticates the shop's
// storefront widget against our API.
type Shop struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Domain          string         `gorm:"uniqueIndex;type:varchar(191);not null" json:"domain" validate:"required,fqdn,max=191"`
	Name            string         `gorm:"type:varchar(191)" json:"name" validate:"max=191"`
	Email           string         `gorm:"type:varchar(200)" json:"email" validate:"omitempty,email,max=200"`
	AccessToken     string         `gorm:"type:varchar(255)" json:"-"`
	APITokenHash    string         `gorm:"type:varchar(64);index" json:"-"`
	ImagesUsedMonth int            `gorm:"default:0" json:"images_used_month"`
	UsageCycle      string         `gorm:"type:varchar(7)" json:"usage_cycle"` // YYYY-MM of ImagesUsedMonth
	WidgetViews     int64          `gorm:"default:0" json:"widget_views"`
	TryOnPreviews   int64          `gorm:"default:0" json:"tryon_previews"`
	InstalledAt     time.Time      `gorm:"autoCreateTime" json:"installed_at"`
	UninstalledAt   *time.Time     `gorm:"type:timestamp;default:null" json:"uninstalled_at,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (s *Shop) Validate() error {
	v := validator.New()

	return v.Struct(s)
}

// IsInstalled reports whether the shop currently has the app installed.
func (s *Shop) IsInstalled() bool {
	return s.UninstalledAt == nil
}

// HashAPIToken returns the hex SHA-256 of a raw API token. Only the hash is
// stored.
func HashAPIToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIToken creates a fresh random token, stores its hash on the shop
// and returns the raw token for one-time display.
func (s *Shop) GenerateAPIToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	s.APITokenHash = HashAPIToken(token)
	return token, nil
}
