package billing

import (
	"fmt"
	"time"
)

const (
	BillingStatusActive    = "active"
	BillingStatusInactive  = "inactive"
	BillingStatusPending   = "pending"
	BillingStatusCancelled = "cancelled"
	BillingStatusManual    = "manual"
)

// UsageUntouched in ImagesUsedMonth marks a write that must leave the
// stored usage counter alone. The counter only moves forward within a cycle
// and is reset externally; plan/status writes never own it.
const UsageUntouched = -1

// ShopBillingRecord is the canonical billing row for one shop as held by the
// external data store. The store may key it under any of several legacy
// identifier columns; logically there is exactly one record per shop.
type ShopBillingRecord struct {
	ShopDomain         string
	Plan               PlanID
	BillingStatus      string
	ImagesIncluded     int
	PricePerExtraImage float64
	ImagesUsedMonth    int // UsageUntouched on upsert = keep stored value
	Currency           string
	UpdatedAt          time.Time
}

// BillingSnapshot is the result of one subscription sync. It is derived fresh
// from the platform on every sync and never cached.
type BillingSnapshot struct {
	ShopDomain            string  `json:"shop_domain"`
	HasActiveSubscription bool    `json:"has_active_subscription"`
	SubscriptionName      string  `json:"subscription_name"`
	Plan                  PlanID  `json:"plan"`
	BillingStatus         string  `json:"billing_status"`
	ImagesIncluded        int     `json:"images_included"`
	PricePerExtraImage    float64 `json:"price_per_extra_image"`
	Currency              string  `json:"currency"`
	LineItemID            string  `json:"line_item_id,omitempty"`
	CappedAmount          float64 `json:"capped_amount,omitempty"`
}

// SyncErrorCode enumerates structured reasons a sync can fail. Callers decide
// whether to log-and-continue; the sync itself never propagates raw platform
// errors.
type SyncErrorCode string

const (
	SyncErrNotConfigured       SyncErrorCode = "not_configured"
	SyncErrPlatformUnavailable SyncErrorCode = "platform_unavailable"
	SyncErrPersistenceFailed   SyncErrorCode = "persistence_failed"
	SyncErrUnauthorized        SyncErrorCode = "unauthorized"
)

// SyncError carries a stable reason code alongside the underlying cause.
type SyncError struct {
	Code SyncErrorCode
	Err  error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("billing sync failed (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("billing sync failed (%s)", e.Code)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Fatal reports whether outer retry loops should stop immediately instead of
// waiting for the platform to become consistent.
func (e *SyncError) Fatal() bool {
	switch e.Code {
	case SyncErrNotConfigured, SyncErrPersistenceFailed, SyncErrUnauthorized:
		return true
	default:
		return false
	}
}

func newSyncError(code SyncErrorCode, err error) *SyncError {
	return &SyncError{Code: code, Err: err}
}
