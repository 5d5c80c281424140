package web

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/jornada-io/jornada/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleError maps domain errors onto problem+json responses.
func handleError(c fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors

	switch {
	case errors.As(err, &validationErrors):
		return badRequest(c, err.Error())

	case errors.Is(err, persistence.ErrJourneyNotLaunchable):
		return conflict(c, err.Error())

	case errors.Is(err, persistence.ErrJourneyNotFound):
		return notFound(c, "journey not found")

	case errors.Is(err, persistence.ErrRunNotFound):
		return notFound(c, "run not found")

	case errors.Is(err, persistence.ErrContactNotFound):
		return notFound(c, "contact not found")

	default:
		return internalError(c, err)
	}
}
