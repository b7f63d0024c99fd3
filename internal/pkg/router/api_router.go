package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/omafit/tryon-app/app/controllers"
	"github.com/omafit/tryon-app/internal/pkg/middleware"
)

// ApiRouter wires the embedded admin API, billing webhooks and operational
// endpoints.
type ApiRouter struct {
	deps Deps
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}

func (h *ApiRouter) InstallRouter(app *fiber.App) {
	billingCtrl := controllers.NewBillingController(h.deps.Cfg, h.deps.Store, h.deps.Sync)
	tryOnCtrl := controllers.NewTryOnController(h.deps.Cfg, h.deps.Store, h.deps.Gate)
	widgetCtrl := controllers.NewWidgetController(h.deps.Gate)
	chartCtrl := controllers.NewSizeChartController()
	adminCtrl := controllers.NewAdminController()

	api := app.Group("/api", limiter.New(limiter.Config{Max: 120}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Omafit try-on API",
		})
	})

	v1 := api.Group("/v1")

	// Webhooks and the approval return URL carry their own authentication
	// (HMAC signature / platform redirect), not a shop token. The platform
	// redirects the merchant's browser with GET; POST stays available for the
	// admin surface to trigger the same reconciliation.
	v1.Get("/billing/confirm", billingCtrl.HandleConfirm)
	v1.Post("/billing/confirm", billingCtrl.HandleConfirm)
	v1.Post("/webhooks/app_subscriptions/update", billingCtrl.HandleSubscriptionWebhook)
	v1.Post("/webhooks/app/uninstalled", billingCtrl.HandleUninstalledWebhook)

	authed := v1.Group("", middleware.ShopAuth())
	authed.Get("/billing/status", billingCtrl.HandleStatus)
	authed.Post("/billing/sync", billingCtrl.HandleSync)
	authed.Post("/billing/subscribe", billingCtrl.HandleSubscribe)

	authed.Post("/tryon/generate", tryOnCtrl.HandleGenerate)

	authed.Get("/widget/settings", widgetCtrl.HandleGetSettings)
	authed.Put("/widget/settings", widgetCtrl.HandleUpdateSettings)

	authed.Get("/size-charts", chartCtrl.HandleList)
	authed.Post("/size-charts", chartCtrl.HandleCreate)
	authed.Get("/size-charts/:uuid", chartCtrl.HandleGet)
	authed.Put("/size-charts/:uuid", chartCtrl.HandleUpdate)
	authed.Delete("/size-charts/:uuid", chartCtrl.HandleDelete)

	admin := v1.Group("/admin", basicauth.New(basicauth.Config{
		Users: map[string]string{
			h.deps.Cfg.MetricsUser: h.deps.Cfg.MetricsPassword,
		},
	}))
	admin.Get("/queue", adminCtrl.HandleQueueStatus)
	admin.Get("/cache", adminCtrl.HandleCacheOverview)
	admin.Get("/webhooks", adminCtrl.HandleRecentWebhooks)
	admin.Get("/shops", adminCtrl.HandleShops)
}
