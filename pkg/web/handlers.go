// Package web provides the HTTP API of the automation service.
package web

import (
	"strconv"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/dubaigit/task-mail-sub006/pkg/services"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	automation *services.Automation
}

func NewAPIHandlers(automation *services.Automation) *APIHandlers {
	return &APIHandlers{automation: automation}
}

// Register mounts every route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Post("/events", h.EnqueueEvent)
	router.Get("/executions/:id", h.GetExecution)

	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Post("/test", h.TestWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/activate", h.ActivateWorkflow)
	w.Post("/:id/deactivate", h.DeactivateWorkflow)
	w.Get("/:id/executions", h.GetWorkflowExecutions)

	q := router.Group("/queue")
	q.Get("/failed", h.GetFailedItems)
	q.Get("/:id", h.GetQueueItem)
	q.Post("/:id/cancel", h.CancelQueueItem)
	q.Post("/:id/retry", h.RetryQueueItem)

	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) EnqueueEvent(c fiber.Ctx) error {
	var req EnqueueRequest

	err := c.Bind().JSON(&req)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if req.Event == nil {
		return badRequest(c, "Event is required")
	}

	item, err := h.automation.Enqueue(c.Context(), req.Event, req.Priority)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(item)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.automation.GetExecution(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.automation.ListWorkflows(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflows)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var def models.Workflow

	err := c.Bind().JSON(&def)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	def.ID = ""

	saved, err := h.automation.SaveWorkflow(c.Context(), &def)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	def, err := h.automation.GetWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

// UpdateWorkflow replaces the definition stored under :id, creating it when
// absent.
func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var def models.Workflow

	err := c.Bind().JSON(&def)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	def.ID = c.Params("id")

	saved, err := h.automation.SaveWorkflow(c.Context(), &def)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(saved)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	err := h.automation.DeleteWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	def, err := h.automation.ActivateWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) DeactivateWorkflow(c fiber.Ctx) error {
	def, err := h.automation.DeactivateWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	limit, err := queryLimit(c)
	if err != nil {
		return badRequest(c, "Invalid limit: "+err.Error())
	}

	executions, err := h.automation.ListExecutions(c.Context(), c.Params("id"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(executions)
}

func (h *APIHandlers) TestWorkflow(c fiber.Ctx) error {
	var req TestWorkflowRequest

	err := c.Bind().JSON(&req)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if req.Workflow == nil || req.Event == nil {
		return badRequest(c, "Workflow and event are required")
	}

	execution, err := h.automation.TestWorkflow(c.Context(), req.Workflow, req.Event, req.IsDryRun())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetFailedItems(c fiber.Ctx) error {
	limit, err := queryLimit(c)
	if err != nil {
		return badRequest(c, "Invalid limit: "+err.Error())
	}

	items, err := h.automation.ListFailedItems(c.Context(), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(items)
}

func (h *APIHandlers) GetQueueItem(c fiber.Ctx) error {
	item, err := h.automation.GetQueueItem(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(item)
}

func (h *APIHandlers) CancelQueueItem(c fiber.Ctx) error {
	item, err := h.automation.CancelQueueItem(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(item)
}

func (h *APIHandlers) RetryQueueItem(c fiber.Ctx) error {
	item, err := h.automation.RetryQueueItem(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(item)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	message, healthy := h.automation.HealthCheck(c.Context())
	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{Status: "unhealthy", Message: message})
	}

	return c.JSON(HealthResponse{Status: "healthy", Message: message})
}

func queryLimit(c fiber.Ctx) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}

	return strconv.Atoi(raw)
}
