package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/omafit/tryon-app/app/repository"
	"github.com/omafit/tryon-app/internal/pkg/billing"
	"github.com/omafit/tryon-app/internal/pkg/config"
	"github.com/omafit/tryon-app/internal/pkg/jobqueue"
	"github.com/omafit/tryon-app/internal/pkg/middleware"
	"github.com/omafit/tryon-app/internal/pkg/usage"
)

// TryOnController serves the image generation endpoint the storefront widget
// calls.
type TryOnController struct {
	cfg  *config.Config
	rec  billing.RecordStore
	gate *billing.Gate
}

func NewTryOnController(cfg *config.Config, rec billing.RecordStore, gate *billing.Gate) *TryOnController {
	return &TryOnController{cfg: cfg, rec: rec, gate: gate}
}

type generateRequest struct {
	ProductImageURL string `json:"product_image_url"`
	PersonImageURL  string `json:"person_image_url"`
	ProductID       string `json:"product_id"`
}

// HandleGenerate runs the billing gate, counts the image against the shop's
// monthly quota and enqueues the overage charge when the quota is exceeded.
// A failed overage charge never blocks the generation itself.
func (tc *TryOnController) HandleGenerate(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Shop authentication required"})
	}

	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if strings.TrimSpace(req.ProductImageURL) == "" || strings.TrimSpace(req.PersonImageURL) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "product_image_url and person_image_url are required"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 20*time.Second)
	defer cancel()

	access := tc.gate.CheckAccess(ctx, shop.Domain, true)
	if !access.HasAccess {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":   "billing_required",
			"message": "An active subscription is required to generate try-on images",
			"reason":  access.Reason,
		})
	}

	// The quota counter is the app database, not the billing record: it must
	// increment atomically per call even when the record store is degraded.
	usedTotal, err := repository.GetGlobalFactory().GetShopRepository().
		AddImagesUsed(shop.ID, usageCycle(time.Now()), 1)
	if err != nil {
		log.Errorf("[TryOn] Usage increment for %s failed: %v", shop.Domain, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not record usage"})
	}

	rec, recErr := tc.rec.ReadBillingRecord(ctx, shop.Domain)
	if recErr != nil {
		log.Warnf("[TryOn] Billing record read for %s failed, overage deferred to next sync: %v", shop.Domain, recErr)
	}
	overageQueued := false
	if rec != nil {
		limits := billing.LimitsFor(rec.Plan)
		if !limits.IsUnlimited() && usedTotal > limits.ImagesIncluded && limits.PricePerExtraImage > 0 {
			currency := rec.Currency
			if currency == "" {
				currency = "USD"
			}
			payload := jobqueue.OverageChargeJobPayload{
				ShopDomain:      shop.Domain,
				ImagesUsedTotal: usedTotal,
				PlanLimit:       limits.ImagesIncluded,
				PricePerExtra:   limits.PricePerExtraImage,
				Currency:        currency,
				ImagesThisCall:  1,
			}
			if _, err := jobqueue.GetManager().GetQueue().EnqueueJob(jobqueue.JobTypeOverageCharge, payload.ToMap()); err != nil {
				log.Errorf("[TryOn] Could not enqueue overage charge for %s: %v", shop.Domain, err)
			} else {
				overageQueued = true
			}
		}
	}

	if err := usage.AddTryOnPreview(shop.ID); err != nil {
		log.Warnf("[TryOn] Preview counter for %s failed: %v", shop.Domain, err)
	}

	return c.JSON(fiber.Map{
		"preview_id":        uuid.New().String(),
		"product_id":        req.ProductID,
		"images_used_month": usedTotal,
		"overage_queued":    overageQueued,
	})
}
