package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/omafit/tryon-app/app/models"
	"github.com/omafit/tryon-app/app/repository"
	"github.com/omafit/tryon-app/internal/pkg/billing"
	"github.com/omafit/tryon-app/internal/pkg/middleware"
	"github.com/omafit/tryon-app/internal/pkg/usage"
)

// WidgetController serves the merchant's widget settings and the public
// storefront config endpoint.
type WidgetController struct {
	gate *billing.Gate
}

// widgetEnabled combines the merchant's toggle with the billing gate verdict.
// Both must allow before the storefront renders the widget.
func widgetEnabled(settings *models.ShopSettings, access billing.AccessResult) bool {
	return settings.WidgetEnabled && access.HasAccess
}

func NewWidgetController(gate *billing.Gate) *WidgetController {
	return &WidgetController{gate: gate}
}

// HandleGetSettings returns the shop's widget settings, creating defaults on
// first access.
func (wc *WidgetController) HandleGetSettings(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Shop authentication required"})
	}

	settings, err := repository.GetGlobalFactory().GetSettingsRepository().GetByShopID(shop.ID)
	if err != nil {
		log.Errorf("[Widget] Settings load for %s failed: %v", shop.Domain, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load settings"})
	}
	return c.JSON(settings)
}

// HandleUpdateSettings replaces the shop's widget settings.
func (wc *WidgetController) HandleUpdateSettings(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Shop authentication required"})
	}

	repo := repository.GetGlobalFactory().GetSettingsRepository()
	settings, err := repo.GetByShopID(shop.ID)
	if err != nil {
		log.Errorf("[Widget] Settings load for %s failed: %v", shop.Domain, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load settings"})
	}

	if err := c.BodyParser(settings); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	settings.ShopID = shop.ID

	if err := settings.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if err := repo.Save(settings); err != nil {
		log.Errorf("[Widget] Settings save for %s failed: %v", shop.Domain, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not save settings"})
	}
	return c.JSON(settings)
}

// HandleWidgetConfig is the public endpoint the storefront script loads its
// configuration from. The widget only renders when the shop's billing allows
// it; a shop past its quota stays enabled because extra images are billed,
// not blocked.
func (wc *WidgetController) HandleWidgetConfig(c *fiber.Ctx) error {
	shopDomain := strings.TrimSpace(c.Query("shop"))
	if shopDomain == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing shop parameter"})
	}

	shop, err := repository.GetGlobalFactory().GetShopRepository().GetByDomain(shopDomain)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown shop"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load shop"})
	}
	if !shop.IsInstalled() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown shop"})
	}

	settings, err := repository.GetGlobalFactory().GetSettingsRepository().GetByShopID(shop.ID)
	if err != nil {
		log.Errorf("[Widget] Settings load for %s failed: %v", shop.Domain, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load settings"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()
	access := wc.gate.CheckAccess(ctx, shop.Domain, true)

	if err := usage.AddWidgetView(shop.ID); err != nil {
		log.Warnf("[Widget] View counter for %s failed: %v", shop.Domain, err)
	}

	return c.JSON(fiber.Map{
		"enabled":        widgetEnabled(settings, access),
		"placement":      settings.WidgetPlacement,
		"theme":          settings.WidgetTheme,
		"button_label":   settings.ButtonLabel,
		"accent_color":   settings.AccentColor,
		"show_size_hint": settings.ShowSizeHint,
	})
}
