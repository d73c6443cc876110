package web

import (
	"github.com/dubaigit/task-mail-sub006/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType(services.CodeInvalidRequest).
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

// handleServiceError renders a service error as problem+json. The problem
// type is the service error code.
func handleServiceError(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := services.Code(err)

	switch {
	case services.IsValidationError(err):
		status = fiber.StatusBadRequest
	case services.IsNotFoundError(err):
		status = fiber.StatusNotFound
	case services.IsConflictError(err):
		status = fiber.StatusConflict
	case code == services.CodeExecutionFailed:
		status = fiber.StatusUnprocessableEntity
	}

	if code == "" {
		code = "INTERNAL_ERROR"
	}

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(code)

	if status == fiber.StatusInternalServerError {
		problem = problem.WithError(err)
	} else {
		problem = problem.WithDetail(err.Error())
	}

	return c.Status(status).JSON(problem)
}
