package controllers

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/omafit/tryon-app/app/models"
	"github.com/omafit/tryon-app/app/repository"
	"github.com/omafit/tryon-app/internal/pkg/billing"
	"github.com/omafit/tryon-app/internal/pkg/config"
	"github.com/omafit/tryon-app/internal/pkg/jobqueue"
	"github.com/omafit/tryon-app/internal/pkg/middleware"
)

// defaultUsageCap is the monthly overage cap (in USD) offered with new
// subscriptions. The merchant must approve a raise before charges can exceed
// it.
const defaultUsageCap = 100.0

// BillingController serves the embedded admin's billing endpoints and the
// platform's billing webhooks.
type BillingController struct {
	cfg  *config.Config
	rec  billing.RecordStore
	sync *billing.SyncService
}

func NewBillingController(cfg *config.Config, rec billing.RecordStore, sync *billing.SyncService) *BillingController {
	return &BillingController{cfg: cfg, rec: rec, sync: sync}
}

func (bc *BillingController) platformClient(shop *models.Shop) *billing.ShopifyClient {
	return billing.NewShopifyClient(shop.Domain, shop.AccessToken, bc.cfg.Shopify.APIVersion)
}

// HandleStatus returns the shop's persisted billing record together with the
// access gate's verdict. It never calls the platform.
func (bc *BillingController) HandleStatus(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Shop authentication required"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()

	rec, err := bc.rec.ReadBillingRecord(ctx, shop.Domain)
	if err != nil {
		log.Errorf("[Billing] Status read for %s failed: %v", shop.Domain, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "store_unavailable", "message": "Billing record store unavailable"})
	}

	access := billing.EvaluateAccess(rec, true)
	limit := billing.EvaluateImageLimit(rec)

	resp := fiber.Map{
		"shop":   shop.Domain,
		"access": access,
		"limit":  limit,
	}
	if rec != nil {
		resp["plan"] = rec.Plan
		resp["billing_status"] = rec.BillingStatus
		resp["images_included"] = rec.ImagesIncluded
		resp["images_used_month"] = rec.ImagesUsedMonth
		resp["price_per_extra_image"] = rec.PricePerExtraImage
		resp["currency"] = rec.Currency
	}
	return c.JSON(resp)
}

// HandleSync reconciles the shop's billing record against the platform ledger
// and returns the fresh snapshot.
func (bc *BillingController) HandleSync(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Shop authentication required"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	snapshot, syncErr := bc.sync.SyncBilling(ctx, bc.platformClient(shop), shop.Domain)
	if syncErr != nil {
		status := fiber.StatusBadGateway
		switch syncErr.Code {
		case billing.SyncErrUnauthorized:
			status = fiber.StatusUnauthorized
		case billing.SyncErrNotConfigured:
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{"error": string(syncErr.Code), "message": "Billing sync failed"})
	}
	return c.JSON(snapshot)
}

type subscribeRequest struct {
	Plan string `json:"plan"`
	Test bool   `json:"test"`
}

// HandleSubscribe creates a pending subscription for the requested plan and
// returns the platform's confirmation URL the merchant must approve.
func (bc *BillingController) HandleSubscribe(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Shop authentication required"})
	}

	var req subscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	plan := billing.NormalizePlan(req.Plan)
	if plan == billing.PlanEnterprise {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "plan_not_purchasable", "message": "Enterprise plans are arranged manually"})
	}
	limits := billing.LimitsFor(plan)

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	confirmationURL, userErrs, err := bc.platformClient(shop).CreateSubscription(ctx, billing.CreateSubscriptionRequest{
		PlanName:     planDisplayName(plan),
		Price:        limits.MonthlyPrice,
		CurrencyCode: "USD",
		Terms:        subscriptionTerms(limits),
		CappedAmount: defaultUsageCap,
		ReturnURL:    bc.confirmURL(shop.Domain),
		Test:         req.Test || bc.cfg.IsDev(),
	})
	if err != nil {
		log.Errorf("[Billing] Subscription create for %s failed: %v", shop.Domain, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "platform_unavailable", "message": "Could not reach the platform billing API"})
	}
	if len(userErrs) > 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "rejected", "message": userErrs[0].Message})
	}

	return c.JSON(fiber.Map{
		"plan":             plan,
		"confirmation_url": confirmationURL,
	})
}

func (bc *BillingController) confirmURL(shopDomain string) string {
	return bc.cfg.PublicDomain + "/api/v1/billing/confirm?shop=" + url.QueryEscape(shopDomain)
}

// HandleConfirm is the return URL the merchant lands on after approving a
// subscription. The approval may not be visible on the ledger yet, so the
// reconciliation runs as a background job with its own retry window.
func (bc *BillingController) HandleConfirm(c *fiber.Ctx) error {
	shopDomain := strings.TrimSpace(c.Query("shop"))
	if shopDomain == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing shop parameter"})
	}

	if _, err := repository.GetGlobalFactory().GetShopRepository().GetByDomain(shopDomain); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown shop"})
	}

	payload := jobqueue.BillingSyncJobPayload{ShopDomain: shopDomain, RequireActive: true}
	if _, err := jobqueue.GetManager().GetQueue().EnqueueJob(jobqueue.JobTypeBillingSync, payload.ToMap()); err != nil {
		log.Errorf("[Billing] Could not enqueue post-approval sync for %s: %v", shopDomain, err)
	}

	if bc.cfg.Shopify.APIKey != "" {
		return c.Redirect("https://"+shopDomain+"/admin/apps/"+bc.cfg.Shopify.APIKey, fiber.StatusSeeOther)
	}
	return c.JSON(fiber.Map{"status": "confirming", "shop": shopDomain})
}

// HandleSubscriptionWebhook receives APP_SUBSCRIPTIONS_UPDATE deliveries.
// Deliveries are persisted with their delivery id and processed exactly once
// by the job queue; redeliveries ack with 200 without reprocessing.
func (bc *BillingController) HandleSubscriptionWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Shopify-Hmac-Sha256"))
	valid := billing.VerifyWebhookSignature(rawBody, signature, bc.cfg.Shopify.APISecret)
	if !valid {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid webhook signature"})
	}

	shopDomain := strings.TrimSpace(c.Get("X-Shopify-Shop-Domain"))
	if shopDomain == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing shop domain header"})
	}

	event := &models.WebhookEvent{
		ShopDomain:      shopDomain,
		Topic:           strings.TrimSpace(c.Get("X-Shopify-Topic")),
		ProviderEventID: firstHeaderValue(c, "X-Shopify-Webhook-Id", "X-Shopify-Event-Id"),
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	}

	created, err := repository.GetGlobalFactory().GetWebhookEventRepository().CreateIfNotExists(event)
	if err != nil {
		log.Errorf("[Billing] Could not store webhook for %s: %v", shopDomain, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not store webhook"})
	}
	if created {
		payload := jobqueue.WebhookProcessJobPayload{EventID: event.ID}
		if _, err := jobqueue.GetManager().GetQueue().EnqueueJob(jobqueue.JobTypeWebhookProcess, payload.ToMap()); err != nil {
			log.Errorf("[Billing] Could not enqueue webhook job for %s: %v", shopDomain, err)
		}
	}

	return c.JSON(fiber.Map{"received": true, "duplicate": !created})
}

// HandleUninstalledWebhook receives APP_UNINSTALLED. Tokens are cleared so no
// further platform calls happen for the shop; the billing record is removed
// from the external store best effort.
func (bc *BillingController) HandleUninstalledWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Shopify-Hmac-Sha256"))
	if !billing.VerifyWebhookSignature(rawBody, signature, bc.cfg.Shopify.APISecret) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid webhook signature"})
	}

	shopDomain := strings.TrimSpace(c.Get("X-Shopify-Shop-Domain"))
	if shopDomain == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing shop domain header"})
	}

	if err := repository.GetGlobalFactory().GetShopRepository().MarkUninstalled(shopDomain); err != nil {
		log.Errorf("[Billing] Could not mark %s uninstalled: %v", shopDomain, err)
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()
	if err := bc.rec.DeleteBillingRecord(ctx, shopDomain); err != nil {
		log.Warnf("[Billing] Could not delete billing record for %s: %v", shopDomain, err)
	}

	return c.JSON(fiber.Map{"received": true})
}
