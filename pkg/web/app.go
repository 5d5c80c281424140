package web

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/jornada-io/jornada/pkg/journey"
	"github.com/jornada-io/jornada/pkg/persistence"
)

// NewApp builds the fiber application with all journey and run routes.
func NewApp(
	journeys *journey.Repository,
	coordinator *journey.Coordinator,
	p persistence.Persistence,
	validate *validator.Validate,
) *fiber.App {
	handlers := NewAPIHandlers(journeys, coordinator, p, validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Jornada API")
	})

	j := app.Group("/journeys")
	j.Get("/", handlers.GetJourneys)
	j.Post("/", handlers.CreateJourney)
	j.Get("/:id", handlers.GetJourney)
	j.Patch("/:id", handlers.UpdateJourney)
	j.Delete("/:id", handlers.DeleteJourney)
	j.Post("/:id/publish", handlers.PublishJourney)
	j.Post("/:id/launch", handlers.LaunchJourney)

	r := app.Group("/runs")
	r.Get("/", handlers.GetRuns)
	r.Get("/:id", handlers.GetRun)
	r.Get("/:id/stats", handlers.GetRunStats)
	r.Get("/:id/contacts", handlers.GetRunContacts)
	r.Post("/:id/stop", handlers.StopRun)

	app.Get("/health", handlers.HealthCheck)

	return app
}
