package jobqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/omafit/tryon-app/app/repository"
	"github.com/omafit/tryon-app/internal/pkg/billing"
)

// BillingDeps wires the billing services the job processors need. Set once at
// startup via SetBillingDeps.
type BillingDeps struct {
	APIVersion string
	Sync       *billing.SyncService
	Meter      *billing.Meter
	Shops      repository.ShopRepository
	Events     repository.WebhookEventRepository
}

var (
	billingDeps   *BillingDeps
	billingDepsMu sync.RWMutex
)

// SetBillingDeps installs the billing dependencies for job processing.
func SetBillingDeps(deps *BillingDeps) {
	billingDepsMu.Lock()
	defer billingDepsMu.Unlock()
	billingDeps = deps
}

func getBillingDeps() (*BillingDeps, error) {
	billingDepsMu.RLock()
	defer billingDepsMu.RUnlock()
	if billingDeps == nil {
		return nil, fmt.Errorf("billing dependencies not configured")
	}
	return billingDeps, nil
}

// platformClientFor builds a platform client from the shop's stored access
// token.
func (d *BillingDeps) platformClientFor(shopDomain string) (billing.PlatformClient, error) {
	shop, err := d.Shops.GetByDomain(shopDomain)
	if err != nil {
		return nil, fmt.Errorf("shop %s not found: %w", shopDomain, err)
	}
	if shop.AccessToken == "" {
		return nil, fmt.Errorf("shop %s has no access token", shopDomain)
	}
	return billing.NewShopifyClient(shop.Domain, shop.AccessToken, d.APIVersion), nil
}

// processBillingSyncJob reconciles one shop's billing record from the
// platform ledger.
func (q *Queue) processBillingSyncJob(ctx context.Context, job *Job) error {
	deps, err := getBillingDeps()
	if err != nil {
		return err
	}
	payload, err := BillingSyncJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid billing sync payload: %w", err)
	}

	platform, err := deps.platformClientFor(payload.ShopDomain)
	if err != nil {
		return err
	}

	var syncErr *billing.SyncError
	if payload.RequireActive {
		_, syncErr = deps.Sync.EnsureActiveAfterApproval(ctx, platform, payload.ShopDomain)
	} else {
		_, syncErr = deps.Sync.SyncBilling(ctx, platform, payload.ShopDomain)
	}
	if syncErr != nil {
		return syncErr
	}
	return nil
}

// processOverageChargeJob submits an overage usage charge for one image
// generation call. The charge result is logged, never retried past the
// queue's own retry budget: the idempotency guard makes re-runs safe.
func (q *Queue) processOverageChargeJob(ctx context.Context, job *Job) error {
	deps, err := getBillingDeps()
	if err != nil {
		return err
	}
	payload, err := OverageChargeJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid overage charge payload: %w", err)
	}

	platform, err := deps.platformClientFor(payload.ShopDomain)
	if err != nil {
		return err
	}

	result := deps.Meter.ChargeOverageIfNeeded(ctx, platform, payload.ShopDomain,
		payload.ImagesUsedTotal, payload.PlanLimit, payload.PricePerExtra,
		payload.Currency, payload.ImagesThisCall)
	if result.Error != "" {
		return fmt.Errorf("overage charge for %s failed: %s", payload.ShopDomain, result.Error)
	}
	if result.Created {
		log.Infof("[JobQueue] Charged %s for %d extra images (%.2f %s)",
			payload.ShopDomain, result.ImagesCharged, result.Amount, result.CurrencyCode)
	}
	return nil
}

// processWebhookJob applies a stored subscription webhook to the billing
// record and follows up with a full sync.
func (q *Queue) processWebhookJob(ctx context.Context, job *Job) error {
	deps, err := getBillingDeps()
	if err != nil {
		return err
	}
	payload, err := WebhookProcessJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid webhook payload: %w", err)
	}

	event, err := deps.Events.GetByID(payload.EventID)
	if err != nil {
		return fmt.Errorf("webhook event %d not found: %w", payload.EventID, err)
	}

	processingErr := deps.applyWebhook(ctx, event.ShopDomain, []byte(event.PayloadJSON))
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	if markErr := deps.Events.MarkProcessed(event.ID, msg); markErr != nil {
		log.Warnf("[JobQueue] Failed to mark webhook event %d processed: %v", event.ID, markErr)
	}
	return processingErr
}

// applyWebhook writes the webhook's status hint immediately, then reconciles
// against the ledger for the authoritative state.
func (d *BillingDeps) applyWebhook(ctx context.Context, shopDomain string, body []byte) error {
	event, err := billing.ParseSubscriptionWebhook(body)
	if err != nil {
		return err
	}
	d.Sync.ApplyWebhookEvent(ctx, shopDomain, event)

	platform, err := d.platformClientFor(shopDomain)
	if err != nil {
		// Uninstalled shops keep the webhook's best-effort state.
		log.Warnf("[JobQueue] Webhook for %s applied without ledger sync: %v", shopDomain, err)
		return nil
	}
	if _, syncErr := d.Sync.SyncBilling(ctx, platform, shopDomain); syncErr != nil && syncErr.Fatal() {
		return syncErr
	}
	return nil
}
