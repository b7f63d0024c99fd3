package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/omafit/tryon-app/app/repository"
	"github.com/omafit/tryon-app/internal/pkg/jobqueue"
)

// AdminController exposes operational views: job queue state and recent
// webhook deliveries. The router puts these behind basic auth.
type AdminController struct{}

func NewAdminController() *AdminController {
	return &AdminController{}
}

// HandleQueueStatus reports queue depth, in-flight jobs and lifetime stats.
func (ac *AdminController) HandleQueueStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	queue := jobqueue.GetManager().GetQueue()

	stats, err := queue.GetJobStats(ctx)
	if err != nil {
		log.Errorf("[Admin] Queue stats failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load queue stats"})
	}
	queued, err := queue.GetQueueSize(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load queue size"})
	}
	processing, err := queue.GetProcessingSize(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load processing size"})
	}

	return c.JSON(fiber.Map{
		"running":    jobqueue.GetManager().IsRunning(),
		"queued":     queued,
		"processing": processing,
		"stats":      stats,
	})
}

// HandleRecentWebhooks lists the latest webhook deliveries with their
// processing outcome.
func (ac *AdminController) HandleRecentWebhooks(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	events, err := repository.GetGlobalFactory().GetWebhookEventRepository().ListRecent(limit)
	if err != nil {
		log.Errorf("[Admin] Webhook list failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load webhook events"})
	}
	return c.JSON(fiber.Map{"webhook_events": events})
}

// HandleCacheOverview reports raw cache state for debugging: total key count
// and the queue list lengths straight from Redis, bypassing the queue's own
// bookkeeping.
func (ac *AdminController) HandleCacheOverview(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetQueueRepository()

	keys, err := repo.GetAllKeys()
	if err != nil {
		log.Errorf("[Admin] Cache key scan failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not scan cache"})
	}
	queued, err := repo.GetListLength(jobqueue.JobQueueKey)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not read queue length"})
	}
	processing, err := repo.GetListLength(jobqueue.JobProcessingKey)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not read processing length"})
	}

	return c.JSON(fiber.Map{
		"total_keys": len(keys),
		"queued":     queued,
		"processing": processing,
	})
}

// HandleShops lists installed shops with usage counters.
func (ac *AdminController) HandleShops(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	repo := repository.GetGlobalFactory().GetShopRepository()
	shops, err := repo.List(offset, limit)
	if err != nil {
		log.Errorf("[Admin] Shop list failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load shops"})
	}
	total, err := repo.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not count shops"})
	}

	return c.JSON(fiber.Map{"shops": shops, "total": total})
}
