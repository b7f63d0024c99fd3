package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/omafit/tryon-app/app/controllers"
)

// WidgetRouter wires the public storefront endpoints the widget script calls
// from shoppers' browsers. These are unauthenticated and CORS-open; they
// expose only published data.
type WidgetRouter struct {
	deps Deps
}

func NewWidgetRouter(deps Deps) *WidgetRouter {
	return &WidgetRouter{deps: deps}
}

func (h *WidgetRouter) InstallRouter(app *fiber.App) {
	widgetCtrl := controllers.NewWidgetController(h.deps.Gate)
	chartCtrl := controllers.NewSizeChartController()

	widget := app.Group("/widget",
		cors.New(),
		limiter.New(limiter.Config{Max: 300}),
	)
	widget.Get("/config", widgetCtrl.HandleWidgetConfig)
	widget.Get("/size-chart", chartCtrl.HandlePublicChart)
}
