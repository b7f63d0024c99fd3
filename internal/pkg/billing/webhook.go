package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// SubscriptionWebhookEvent is the payload of the platform's subscription
// lifecycle webhooks (APP_SUBSCRIPTIONS_UPDATE), reduced to what the billing
// core consumes.
type SubscriptionWebhookEvent struct {
	SubscriptionID string `json:"admin_graphql_api_id"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	UpdatedAt      string `json:"updated_at"`
}

// ParseSubscriptionWebhook decodes the webhook body. The platform wraps the
// subscription in an "app_subscription" envelope.
func ParseSubscriptionWebhook(body []byte) (*SubscriptionWebhookEvent, error) {
	var envelope struct {
		AppSubscription *SubscriptionWebhookEvent `json:"app_subscription"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if envelope.AppSubscription == nil {
		return nil, fmt.Errorf("webhook payload missing app_subscription")
	}
	return envelope.AppSubscription, nil
}

// PlatformStatusToBillingStatus maps a platform subscription status onto the
// canonical record status. Anything unknown degrades to inactive.
func PlatformStatusToBillingStatus(platformStatus string) string {
	switch strings.ToUpper(strings.TrimSpace(platformStatus)) {
	case "ACTIVE":
		return BillingStatusActive
	case "PENDING":
		return BillingStatusPending
	case "CANCELLED":
		return BillingStatusCancelled
	default:
		return BillingStatusInactive
	}
}

// ApplyWebhookEvent writes the webhook's view of the subscription into the
// record immediately, ahead of the next full sync. Best effort: the webhook
// is a hint, the sync engine remains the source of truth.
func (s *SyncService) ApplyWebhookEvent(ctx context.Context, shopDomain string, event *SubscriptionWebhookEvent) bool {
	status := PlatformStatusToBillingStatus(event.Status)

	plan := PlanStarter
	if strings.TrimSpace(event.Name) != "" {
		plan = ResolvePlan(event.Name, nil)
	} else if prior, err := s.store.ReadBillingRecord(ctx, shopDomain); err == nil && prior != nil {
		// Cancellation webhooks often omit the name; keep the known plan.
		plan = prior.Plan
	}

	limits := LimitsFor(plan)
	ok := s.store.UpsertBillingRecord(ctx, shopDomain, &ShopBillingRecord{
		ShopDomain:         shopDomain,
		Plan:               plan,
		BillingStatus:      status,
		ImagesIncluded:     limits.ImagesIncluded,
		PricePerExtraImage: limits.PricePerExtraImage,
		ImagesUsedMonth:    UsageUntouched,
		Currency:           "USD",
		UpdatedAt:          time.Now().UTC(),
	})
	if !ok {
		log.Warnf("[Billing] webhook update for %s not persisted (plan=%s status=%s)", shopDomain, plan, status)
	}
	return ok
}

// VerifyWebhookSignature checks the platform's HMAC-SHA256 header against the
// raw request body. The header carries the digest base64 encoded.
func VerifyWebhookSignature(body []byte, headerSignature, secret string) bool {
	if headerSignature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(headerSignature))
}
