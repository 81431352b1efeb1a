package server

import (
	"storescraper/internal/core/job"
	"storescraper/internal/health"
	"storescraper/internal/platform/redis"
	"storescraper/internal/progress"

	"github.com/gofiber/fiber/v2"
)

type Dependencies struct {
	Jobs   *job.Handler
	Events *progress.Handler
	Redis  *redis.Service
}

func RegisterRoutes(app *fiber.App, d Dependencies) *health.Handler {
	healthHandler := health.NewHandler(d.Redis)
	app.Get("/health", health.Limiter(), healthHandler.HandleHealth)

	api := app.Group("/api/cron")

	api.Post("/jobs", d.Jobs.HandleCreate)
	api.Get("/jobs", d.Jobs.HandleList)
	api.Get("/jobs/:id", d.Jobs.HandleGet)
	api.Put("/jobs/:id", d.Jobs.HandleUpdate)
	api.Delete("/jobs/:id", d.Jobs.HandleDelete)
	api.Post("/jobs/:id/trigger", d.Jobs.HandleTrigger)
	api.Get("/jobs/:id/logs", d.Jobs.HandleLogs)

	api.Get("/events", d.Events.HandleEvents)

	return healthHandler
}
