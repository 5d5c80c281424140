package web

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/jornada-io/jornada/pkg/journey"
	"github.com/jornada-io/jornada/pkg/models"
	"github.com/jornada-io/jornada/pkg/persistence"
)

type APIHandlers struct {
	journeys    *journey.Repository
	coordinator *journey.Coordinator
	runs        persistence.RunRepository
	contacts    persistence.ContactRepository
	validator   *validator.Validate
}

func NewAPIHandlers(
	journeys *journey.Repository,
	coordinator *journey.Coordinator,
	p persistence.Persistence,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		journeys:    journeys,
		coordinator: coordinator,
		runs:        p.RunRepository(),
		contacts:    p.ContactRepository(),
		validator:   validate,
	}
}

func (h *APIHandlers) GetJourneys(c fiber.Ctx) error {
	journeys, err := h.journeys.FetchAll(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(journeys)
}

func (h *APIHandlers) GetJourney(c fiber.Ctx) error {
	found, err := h.journeys.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(found)
}

func (h *APIHandlers) CreateJourney(c fiber.Ctx) error {
	var req CreateJourneyRequest

	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.journeys.Create(c.Context(), &models.Journey{
		Name:     req.Name,
		Nodes:    req.Nodes,
		Edges:    req.Edges,
		Metadata: req.Metadata,
		Owner:    req.Owner,
	})
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateJourney(c fiber.Ctx) error {
	var req UpdateJourneyRequest

	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.journeys.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Status != nil {
		existing.Status = models.JourneyStatus(*req.Status)
	}

	if req.Nodes != nil {
		existing.Nodes = req.Nodes
	}

	if req.Edges != nil {
		existing.Edges = req.Edges
	}

	if req.Metadata != nil {
		existing.Metadata = req.Metadata
	}

	updated, err := h.journeys.Update(c.Context(), existing.ID, existing)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteJourney(c fiber.Ctx) error {
	if err := h.journeys.Delete(c.Context(), c.Params("id")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PublishJourney(c fiber.Ctx) error {
	published, err := h.journeys.Publish(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(published)
}

// LaunchJourney creates a run from a published journey and schedules its
// first tick.
func (h *APIHandlers) LaunchJourney(c fiber.Ctx) error {
	var req LaunchRunRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}

		if err := h.validator.Struct(&req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	run, err := h.coordinator.Launch(c.Context(), journey.LaunchRequest{
		JourneyID: c.Params("id"),
		Channel:   req.Channel,
		Rows:      req.Rows,
		PhoneKey:  req.PhoneKey,
		Mapping:   req.Mapping,
	})
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	runs, err := h.runs.Runs(c.Context(), models.RunStatus(c.Query("status")))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(runs)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.runs.RunByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetRunStats(c fiber.Ctx) error {
	stats, err := h.coordinator.Stats(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) GetRunContacts(c fiber.Ctx) error {
	run, err := h.runs.RunByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	contacts, err := h.contacts.ContactsByRun(c.Context(), run.ID)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(contacts)
}

func (h *APIHandlers) StopRun(c fiber.Ctx) error {
	if err := h.coordinator.Stop(c.Context(), c.Params("id")); err != nil {
		return handleError(c, err)
	}

	run, err := h.runs.RunByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	message, healthy := h.journeys.HealthCheck(c.Context())
	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "unhealthy",
			"message": message,
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}
