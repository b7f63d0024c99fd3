package controllers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/omafit/tryon-app/app/models"
	"github.com/omafit/tryon-app/internal/pkg/billing"
	"github.com/omafit/tryon-app/internal/pkg/middleware"
)

// requireShop returns the authenticated shop from Locals. When it returns a
// nil shop the 401 response has already been written; handlers return the
// accompanying error as-is.
func requireShop(c *fiber.Ctx) (*models.Shop, error) {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return nil, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "Shop authentication required",
		})
	}
	return shop, nil
}

// usageCycle returns the YYYY-MM bucket a timestamp's usage counts against.
func usageCycle(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// planDisplayName is the subscription name shown to the merchant on the
// platform's approval screen. ResolvePlan maps these back on sync.
func planDisplayName(plan billing.PlanID) string {
	switch plan {
	case billing.PlanGrowth:
		return "Omafit Growth"
	case billing.PlanPro:
		return "Omafit Pro"
	case billing.PlanEnterprise:
		return "Omafit Enterprise"
	default:
		return "Omafit Starter"
	}
}

// subscriptionTerms renders the usage pricing line shown on the approval
// screen. Must be non-empty for plans with a usage line item.
func subscriptionTerms(limits billing.PlanLimits) string {
	if limits.PricePerExtraImage <= 0 {
		return ""
	}
	return fmt.Sprintf("$%.2f per try-on image beyond %d per month",
		limits.PricePerExtraImage, limits.ImagesIncluded)
}

// firstHeaderValue returns the first non-empty header among names.
func firstHeaderValue(c *fiber.Ctx, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(c.Get(name)); v != "" {
			return v
		}
	}
	return ""
}
