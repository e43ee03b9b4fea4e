package workflowapi

import (
	"github.com/gofiber/fiber/v2"
)

type WorkflowRoutes struct {
	handler *WorkflowHandler
	auth    *AuthMiddleware
}

func NewWorkflowRoutes(handler *WorkflowHandler, auth *AuthMiddleware) *WorkflowRoutes {
	return &WorkflowRoutes{
		handler: handler,
		auth:    auth,
	}
}

func (r *WorkflowRoutes) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/v1", r.auth.Authenticate())

	// Definitions
	workflows := api.Group("/workflows")
	workflows.Post("/", r.handler.SaveDefinition)
	workflows.Post("/validate", r.handler.ValidateDefinition)
	workflows.Get("/", r.handler.ListDefinitions)
	workflows.Get("/:id", r.handler.GetDefinition)
	workflows.Patch("/:id/active", r.handler.SetDefinitionActive)
	workflows.Delete("/:id", r.auth.RequireAdmin(), r.handler.DeleteDefinition)

	// Executions
	executions := api.Group("/executions")
	executions.Post("/", r.handler.StartExecution)
	executions.Get("/", r.handler.ListExecutions)
	executions.Get("/:id", r.handler.GetExecution)
	executions.Post("/:id/advance", r.handler.AdvanceExecution)
	executions.Post("/:id/cancel", r.handler.CancelExecution)
	executions.Get("/:id/actions", r.handler.ListActionRecords)

	// Inbound messages (trigger detection)
	api.Post("/messages/inbound", r.handler.HandleInboundMessage)
}
