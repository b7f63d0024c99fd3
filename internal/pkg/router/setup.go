package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/omafit/tryon-app/internal/pkg/billing"
	"github.com/omafit/tryon-app/internal/pkg/config"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps carries the shared services the routes are built around. Assembled
// once in main.
type Deps struct {
	Cfg   *config.Config
	Store billing.RecordStore
	Sync  *billing.SyncService
	Gate  *billing.Gate
}

func InstallRouter(app *fiber.App, deps Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	setup(app, NewApiRouter(deps), NewWidgetRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
