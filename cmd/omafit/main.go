package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/omafit/tryon-app/app/repository"
	"github.com/omafit/tryon-app/internal/pkg/billing"
	"github.com/omafit/tryon-app/internal/pkg/cache"
	"github.com/omafit/tryon-app/internal/pkg/config"
	"github.com/omafit/tryon-app/internal/pkg/database"
	"github.com/omafit/tryon-app/internal/pkg/jobqueue"
	"github.com/omafit/tryon-app/internal/pkg/router"
	"github.com/omafit/tryon-app/internal/pkg/shopstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	app := NewApplication(cfg)

	// Drain workers before the process exits so in-flight billing jobs finish.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		jobqueue.GetManager().Stop()
		_ = app.Shutdown()
	}()

	if err := app.Listen(fmt.Sprintf("%s:%s", cfg.AppHost, cfg.AppPort)); err != nil {
		log.Fatal(err)
	}
}

func NewApplication(cfg *config.Config) *fiber.App {
	database.Setup(cfg.DB)
	cache.Setup(cfg.Cache)
	repository.InitializeFactory(database.GetDB())

	// Billing services share one record store adapter.
	recordStore := billing.NewRecordStore(shopstore.New(cfg.Store))
	syncService := billing.NewSyncService(recordStore)
	meter := billing.NewMeter(cache.GetClient())
	gate := billing.NewGate(recordStore)

	repos := repository.GetGlobalRepositories()
	jobqueue.SetBillingDeps(&jobqueue.BillingDeps{
		APIVersion: cfg.Shopify.APIVersion,
		Sync:       syncService,
		Meter:      meter,
		Shops:      repos.Shop,
		Events:     repos.WebhookEvent,
	})
	jobqueue.Initialize(cfg.JobWorkers).Start()

	app := fiber.New(fiber.Config{
		AppName:   "omafit-tryon",
		BodyLimit: 10 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			cfg.MetricsUser: cfg.MetricsPassword,
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	if spec := findOpenAPISpec(); spec != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: spec,
			Path:     "v1",
		}))
	}

	// ROUTER
	router.InstallRouter(app, router.Deps{
		Cfg:   cfg,
		Store: recordStore,
		Sync:  syncService,
		Gate:  gate,
	})

	return app
}

// findOpenAPISpec locates the bundled OpenAPI document relative to the usual
// run locations.
func findOpenAPISpec() string {
	for _, base := range []string{"./", "../../", "../../../"} {
		path := base + "public/docs/v1/openapi.yml"
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
