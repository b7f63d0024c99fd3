package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/omafit/tryon-app/app/models"
	"github.com/omafit/tryon-app/app/repository"
)

// SizeChartController manages the merchant's size charts and serves the
// published chart to the storefront widget.
type SizeChartController struct{}

func NewSizeChartController() *SizeChartController {
	return &SizeChartController{}
}

// HandleList returns all size charts of the authenticated shop.
func (sc *SizeChartController) HandleList(c *fiber.Ctx) error {
	shop, errResp := requireShop(c)
	if shop == nil {
		return errResp
	}

	charts, err := repository.GetGlobalFactory().GetSizeChartRepository().GetByShopID(shop.ID)
	if err != nil {
		log.Errorf("[SizeChart] List for %s failed: %v", shop.Domain, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load size charts"})
	}
	return c.JSON(fiber.Map{"size_charts": charts})
}

// HandleCreate stores a new size chart.
func (sc *SizeChartController) HandleCreate(c *fiber.Ctx) error {
	shop, errResp := requireShop(c)
	if shop == nil {
		return errResp
	}

	var chart models.SizeChart
	if err := c.BodyParser(&chart); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	chart.ID = 0
	chart.UUID = ""
	chart.ShopID = shop.ID

	if err := chart.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if err := repository.GetGlobalFactory().GetSizeChartRepository().Create(&chart); err != nil {
		log.Errorf("[SizeChart] Create for %s failed: %v", shop.Domain, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not create size chart"})
	}
	return c.Status(fiber.StatusCreated).JSON(chart)
}

// HandleGet returns one size chart by its public UUID.
func (sc *SizeChartController) HandleGet(c *fiber.Ctx) error {
	shop, errResp := requireShop(c)
	if shop == nil {
		return errResp
	}

	chart, errResp := sc.ownedChart(c, shop.ID)
	if chart == nil {
		return errResp
	}
	return c.JSON(chart)
}

// HandleUpdate replaces an existing size chart's editable fields.
func (sc *SizeChartController) HandleUpdate(c *fiber.Ctx) error {
	shop, errResp := requireShop(c)
	if shop == nil {
		return errResp
	}

	chart, errResp := sc.ownedChart(c, shop.ID)
	if chart == nil {
		return errResp
	}

	var update models.SizeChart
	if err := c.BodyParser(&update); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	chart.Title = update.Title
	chart.BodyJSON = update.BodyJSON
	chart.ProductScope = update.ProductScope
	chart.ScopeValue = update.ScopeValue
	chart.Published = update.Published

	if err := chart.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if err := repository.GetGlobalFactory().GetSizeChartRepository().Update(chart); err != nil {
		log.Errorf("[SizeChart] Update for %s failed: %v", shop.Domain, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not update size chart"})
	}
	return c.JSON(chart)
}

// HandleDelete removes a size chart.
func (sc *SizeChartController) HandleDelete(c *fiber.Ctx) error {
	shop, errResp := requireShop(c)
	if shop == nil {
		return errResp
	}

	chart, errResp := sc.ownedChart(c, shop.ID)
	if chart == nil {
		return errResp
	}

	if err := repository.GetGlobalFactory().GetSizeChartRepository().Delete(chart.ID); err != nil {
		log.Errorf("[SizeChart] Delete for %s failed: %v", shop.Domain, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not delete size chart"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandlePublicChart returns the published size chart for a product, scoped
// charts first, shop-wide charts as fallback. No chart is not an error for
// the widget; it gets an empty response.
func (sc *SizeChartController) HandlePublicChart(c *fiber.Ctx) error {
	shopDomain := strings.TrimSpace(c.Query("shop"))
	productID := strings.TrimSpace(c.Query("product"))
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

	chart, err := repository.GetGlobalFactory().GetSizeChartRepository().GetPublishedForProduct(shop.ID, productID)
	if err != nil {
		log.Errorf("[SizeChart] Public lookup for %s failed: %v", shopDomain, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load size chart"})
	}
	if chart == nil {
		return c.JSON(fiber.Map{"size_chart": nil})
	}
	return c.JSON(fiber.Map{"size_chart": chart})
}

// ownedChart loads the chart from the :uuid path parameter and enforces shop
// ownership. A foreign chart reads as not found. When the returned chart is
// nil the response has already been written.
func (sc *SizeChartController) ownedChart(c *fiber.Ctx, shopID uint) (*models.SizeChart, error) {
	chart, err := repository.GetGlobalFactory().GetSizeChartRepository().GetByUUID(c.Params("uuid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Size chart not found"})
		}
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load size chart"})
	}
	if chart.ShopID != shopID {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Size chart not found"})
	}
	return chart, nil
}
