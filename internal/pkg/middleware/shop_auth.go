package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/omafit/tryon-app/app/models"
	"github.com/omafit/tryon-app/app/repository"
)

// ShopContextKey is the Locals key under which the authenticated shop is
// stored for downstream handlers.
const ShopContextKey = "shop"

// extractShopToken reads the per-shop API token from the request. Checks the
// X-Shop-Token header first, then X-API-Key, then an Authorization bearer.
func extractShopToken(c *fiber.Ctx) string {
	if token := strings.TrimSpace(c.Get("X-Shop-Token")); token != "" {
		return token
	}
	if token := strings.TrimSpace(c.Get("X-API-Key")); token != "" {
		return token
	}
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// ShopAuth authenticates a shop by its API token. Tokens are stored hashed;
// the lookup goes through the hash so a database leak never exposes tokens.
func ShopAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractShopToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Missing shop API token",
			})
		}

		repo := repository.GetGlobalFactory().GetShopRepository()
		shop, err := repo.GetByAPITokenHash(models.HashAPIToken(token))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error":   "unauthorized",
					"message": "Invalid shop API token",
				})
			}
			log.Errorf("[ShopAuth] Token lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "internal_server_error",
				"message": "Authentication unavailable",
			})
		}

		if !shop.IsInstalled() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "forbidden",
				"message": "Shop is no longer installed",
			})
		}

		c.Locals(ShopContextKey, shop)
		return c.Next()
	}
}

// ShopFromContext returns the shop placed in Locals by ShopAuth, or nil when
// the route was not authenticated.
func ShopFromContext(c *fiber.Ctx) *models.Shop {
	if v := c.Locals(ShopContextKey); v != nil {
		if shop, ok := v.(*models.Shop); ok {
			return shop
		}
	}
	return nil
}
