package billing

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// chargeGuardTTL keeps idempotency guard keys alive for one billing cycle
// plus slack.
const chargeGuardTTL = 32 * 24 * time.Hour

// usageChargeNamespace seeds the UUIDv5 idempotency keys sent to the
// platform.
var usageChargeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://omafit.app/usage-charge"))

// ChargeResult reports the outcome of one overage-charge evaluation. Billing
// failures never abort the image-generation flow, so errors travel inside the
// result instead of being returned.
type ChargeResult struct {
	Created        bool    `json:"created"`
	AlreadyCharged bool    `json:"already_charged,omitempty"`
	ImagesCharged  int     `json:"images_charged,omitempty"`
	Amount         float64 `json:"amount,omitempty"`
	CurrencyCode   string  `json:"currency_code,omitempty"`
	UsageRecordID  string  `json:"usage_record_id,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// OverageForCall isolates the overage attributable to exactly this call. A
// call that pushes usage from under the limit to over it is charged only for
// the portion past the limit; a call entirely past an exceeded limit is
// charged in full. Repeated calls can never double-charge the same images.
func OverageForCall(imagesUsedTotal, planLimit, imagesThisCall int) int {
	if planLimit < 0 || imagesUsedTotal <= planLimit {
		return 0
	}
	previousUsed := imagesUsedTotal - imagesThisCall
	base := planLimit
	if previousUsed > base {
		base = previousUsed
	}
	extra := imagesUsedTotal - base
	if extra < 0 {
		return 0
	}
	return extra
}

// Meter submits usage-based overage charges against the active
// subscription's billable line item.
type Meter struct {
	rdb *redis.Client
	now func() time.Time
}

// NewMeter creates a meter. rdb may be nil; the idempotency guard then
// degrades to caller-side discipline.
func NewMeter(rdb *redis.Client) *Meter {
	return &Meter{rdb: rdb, now: time.Now}
}

// ChargeOverageIfNeeded computes the chargeable delta for this call and
// emits an idempotent usage charge. The platform enforces the capped amount
// itself; a charge past the cap is expected to come back as a user error and
// is not retried.
func (m *Meter) ChargeOverageIfNeeded(ctx context.Context, platform PlatformClient, shopDomain string, imagesUsedTotal, planLimit int, pricePerExtra float64, currency string, imagesThisCall int) ChargeResult {
	extra := OverageForCall(imagesUsedTotal, planLimit, imagesThisCall)
	if extra <= 0 || pricePerExtra <= 0 {
		return ChargeResult{Created: false}
	}
	if currency == "" {
		currency = "USD"
	}

	// One guard key per shop, cycle and cumulative usage count: the same
	// usage state can be charged at most once even if the pipeline calls us
	// twice.
	guardKey := fmt.Sprintf("tryon:usage_charge:%s:%s:%d", shopDomain, m.now().UTC().Format("2006-01"), imagesUsedTotal)
	if m.rdb != nil {
		set, err := m.rdb.SetNX(ctx, guardKey, 1, chargeGuardTTL).Result()
		if err != nil {
			log.Warnf("[Billing] idempotency guard unavailable for %s: %v", shopDomain, err)
		} else if !set {
			return ChargeResult{Created: false, AlreadyCharged: true}
		}
	}

	active, err := m.findActiveSubscription(ctx, platform)
	if err != nil {
		m.releaseGuard(ctx, guardKey)
		return ChargeResult{Created: false, Error: err.Error()}
	}
	lineItem, err := active.UsageLineItem()
	if err != nil {
		m.releaseGuard(ctx, guardKey)
		return ChargeResult{Created: false, Error: err.Error()}
	}

	totalPrice := math.Round(float64(extra)*pricePerExtra*100) / 100
	description := fmt.Sprintf("%d extra try-on images beyond plan quota", extra)
	if extra == 1 {
		description = "1 extra try-on image beyond plan quota"
	}
	idempotencyKey := uuid.NewSHA1(usageChargeNamespace, []byte(guardKey)).String()

	recordID, userErrs, err := platform.CreateUsageRecord(ctx, lineItem.ID, description, totalPrice, currency, idempotencyKey)
	if err != nil {
		// Transport failure: nothing was charged, so release the guard and
		// let a later call retry.
		m.releaseGuard(ctx, guardKey)
		return ChargeResult{Created: false, Error: err.Error()}
	}
	if len(userErrs) > 0 {
		// Business rejection (e.g. capped amount exceeded). The guard stays:
		// this usage state must not be retried automatically.
		msgs := make([]string, 0, len(userErrs))
		for _, ue := range userErrs {
			msgs = append(msgs, ue.Message)
		}
		return ChargeResult{Created: false, Error: strings.Join(msgs, "; ")}
	}

	return ChargeResult{
		Created:       true,
		ImagesCharged: extra,
		Amount:        totalPrice,
		CurrencyCode:  currency,
		UsageRecordID: recordID,
	}
}

func (m *Meter) findActiveSubscription(ctx context.Context, platform PlatformClient) (*Subscription, error) {
	subs, err := platform.ActiveSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		if strings.EqualFold(strings.TrimSpace(subs[i].Status), SubscriptionStatusActive) {
			return &subs[i], nil
		}
	}
	return nil, fmt.Errorf("no active subscription to charge against")
}

func (m *Meter) releaseGuard(ctx context.Context, key string) {
	if m.rdb == nil {
		return
	}
	if err := m.rdb.Del(ctx, key).Err(); err != nil {
		log.Warnf("[Billing] failed to release idempotency guard %s: %v", key, err)
	}
}

// CheckCapHeadroom is the diagnostic companion to the charging path: it
// reports how much of the platform-enforced spending cap is still available.
// The charging path itself never pre-validates against the cap.
func (m *Meter) CheckCapHeadroom(ctx context.Context, platform PlatformClient, chargedThisCycle float64) (headroom float64, capped bool, err error) {
	active, err := m.findActiveSubscription(ctx, platform)
	if err != nil {
		return 0, false, err
	}
	lineItem, err := active.UsageLineItem()
	if err != nil {
		return 0, false, err
	}
	if lineItem.CappedAmount <= 0 {
		return 0, false, nil
	}
	headroom = lineItem.CappedAmount - chargedThisCycle
	if headroom < 0 {
		headroom = 0
	}
	return headroom, true, nil
}
