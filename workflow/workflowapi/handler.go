package workflowapi

import (
	"log"

	"github.com/Abraxas-365/convo/pkg/kernel"
	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// WorkflowHandler exposes the engine and the definition store over HTTP.
// Every query is scoped by the authenticated tenant.
type WorkflowHandler struct {
	engine         workflow.Engine
	detector       workflow.TriggerDetector
	definitionRepo workflow.DefinitionRepository
	executionRepo  workflow.ExecutionRepository
	actionRecords  workflow.ActionRecordRepository
}

func NewWorkflowHandler(
	engine workflow.Engine,
	detector workflow.TriggerDetector,
	definitionRepo workflow.DefinitionRepository,
	executionRepo workflow.ExecutionRepository,
	actionRecords workflow.ActionRecordRepository,
) *WorkflowHandler {
	return &WorkflowHandler{
		engine:         engine,
		detector:       detector,
		definitionRepo: definitionRepo,
		executionRepo:  executionRepo,
		actionRecords:  actionRecords,
	}
}

// ============================================================================
// Definitions
// ============================================================================

// SaveDefinition parses, validates and stores a definition from raw JSON or
// YAML. An existing id gets a bumped version; running executions stay pinned
// to the version they started on.
func (h *WorkflowHandler) SaveDefinition(c *fiber.Ctx) error {
	auth, ok := GetAuthContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	def, err := workflow.ParseDefinition(c.Body(), auth.TenantID)
	if err != nil {
		return err
	}

	if def.ID.IsEmpty() {
		def.ID = kernel.NewWorkflowID(uuid.New().String())
	}

	if existing, err := h.definitionRepo.FindByID(c.Context(), def.ID); err == nil {
		if existing.TenantID != auth.TenantID {
			return workflow.ErrDefinitionNotFound().WithDetail("workflow_id", def.ID.String())
		}
		def.Version = existing.Version + 1
		def.CreatedAt = existing.CreatedAt
	} else if !errx.IsType(err, errx.TypeNotFound) {
		return err
	}

	if err := h.definitionRepo.Save(c.Context(), *def); err != nil {
		return err
	}

	log.Printf("📋 Saved definition %s v%d for tenant %s", def.ID, def.Version, auth.TenantID)
	return c.Status(fiber.StatusCreated).JSON(def.ToDTO())
}

// ValidateDefinition runs the full validation pass and reports every problem
// found, never just the first.
func (h *WorkflowHandler) ValidateDefinition(c *fiber.Ctx) error {
	auth, ok := GetAuthContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	def, err := workflow.DecodeDefinition(c.Body(), auth.TenantID)
	if err != nil {
		return err
	}

	if errs := workflow.ValidateDefinition(def); len(errs) > 0 {
		return c.JSON(workflow.ValidateDefinitionResponse{IsValid: false, Errors: errs})
	}
	return c.JSON(workflow.ValidateDefinitionResponse{IsValid: true})
}

func (h *WorkflowHandler) GetDefinition(c *fiber.Ctx) error {
	auth, ok := GetAuthContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	id := kernel.WorkflowID(c.Params("id"))
	def, err := h.definitionRepo.FindByID(c.Context(), id)
	if err != nil {
		return err
	}
	if def.TenantID != auth.TenantID {
		return workflow.ErrDefinitionNotFound().WithDetail("workflow_id", id.String())
	}

	return c.JSON(def)
}

func (h *WorkflowHandler) ListDefinitions(c *fiber.Ctx) error {
	auth, ok := GetAuthContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	req := workflow.DefinitionListRequest{
		TenantID: auth.TenantID,
		Search:   c.Query("search"),
	}
	req.Page = c.QueryInt("page", 1)
	req.PageSize = c.QueryInt("page_size", 20)
	if c.Query("is_active") != "" {
		isActive := c.QueryBool("is_active")
		req.IsActive = &isActive
	}

	resp, err := h.definitionRepo.List(c.Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *WorkflowHandler) DeleteDefinition(c *fiber.Ctx) error {
	auth, ok := GetAuthContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	id := kernel.WorkflowID(c.Params("id"))
	if err := h.definitionRepo.Delete(c.Context(), id, auth.TenantID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SetDefinitionActive toggles whether a definition is a trigger candidate
// and startable.
func (h *WorkflowHandler) SetDefinitionActive(c *fiber.Ctx) error {
	auth, ok := GetAuthContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var body struct {
		IsActive bool `json:"is_active"`
	}
	if err := c.BodyParser(&body); err != nil {
		return errx.New("invalid request body", errx.TypeValidation)
	}

	id := kernel.WorkflowID(c.Params("id"))
	def, err := h.definitionRepo.FindByID(c.Context(), id)
	if err != nil {
		return err
	}
	if def.TenantID != auth.TenantID {
		return workflow.ErrDefinitionNotFound().WithDetail("workflow_id", id.String())
	}

	if body.IsActive {
		def.Activate()
	} else {
		def.Deactivate()
	}

	if err := h.definitionRepo.Save(c.Context(), *def); err != nil {
		return err
	}
	return c.JSON(def.ToDTO())
}

// ============================================================================
// Executions
// ============================================================================

func (h *WorkflowHandler) StartExecution(c *fiber.Ctx) error {
	auth, ok := GetAuthContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var req workflow.StartRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.New("invalid request body", errx.TypeValidation)
	}
	req.TenantID = auth.TenantID

	result, err := h.engine.Start(c.Context(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *WorkflowHandler) AdvanceExecution(c *fiber.Ctx) error {
	auth, ok := GetAuthContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var req workflow.AdvanceRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.New("invalid request body", errx.TypeValidation)
	}
	req.ExecutionID = kernel.ExecutionID(c.Params("id"))

	if err := h.checkExecutionTenant(c, req.ExecutionID, auth.TenantID); err != nil {
		return err
	}

	result, err := h.engine.Advance(c.Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (h *WorkflowHandler) CancelExecution(c *fiber.Ctx) error {
	auth, ok := GetAuthContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	id := kernel.ExecutionID(c.Params("id"))
	if err := h.checkExecutionTenant(c, id, auth.TenantID); err != nil {
		return err
	}

	if err := h.engine.Cancel(c.Context(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *WorkflowHandler) GetExecution(c *fiber.Ctx) error {
	auth, ok := GetAuthContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	id := kernel.ExecutionID(c.Params("id"))
	exec, err := h.engine.Get(c.Context(), id)
	if err != nil {
		return err
	}
	if exec.TenantID != auth.TenantID {
		return workflow.ErrExecutionNotFound().WithDetail("execution_id", id.String())
	}
	return c.JSON(exec)
}

func (h *WorkflowHandler) ListExecutions(c *fiber.Ctx) error {
	auth, ok := GetAuthContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	req := workflow.ExecutionListRequest{
		TenantID:  auth.TenantID,
		SessionID: kernel.SessionID(c.Query("session_id")),
		Workflow:  kernel.WorkflowID(c.Query("workflow_id")),
	}
	req.Page = c.QueryInt("page", 1)
	req.PageSize = c.QueryInt("page_size", 20)
	if c.Query("status") != "" {
		status := workflow.ExecutionStatus(c.Query("status"))
		req.Status = &status
	}

	resp, err := h.executionRepo.List(c.Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *WorkflowHandler) ListActionRecords(c *fiber.Ctx) error {
	auth, ok := GetAuthContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	id := kernel.ExecutionID(c.Params("id"))
	if err := h.checkExecutionTenant(c, id, auth.TenantID); err != nil {
		return err
	}

	records, err := h.actionRecords.FindByExecution(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(records)
}

// ============================================================================
// Inbound messages (trigger detection)
// ============================================================================

// HandleInboundMessage runs trigger detection over free text and starts the
// winning workflow. A non-match is a normal response, not an error: the
// caller falls back to its default message handling.
func (h *WorkflowHandler) HandleInboundMessage(c *fiber.Ctx) error {
	auth, ok := GetAuthContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var req workflow.InboundMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.New("invalid request body", errx.TypeValidation)
	}

	def, err := h.detector.Detect(c.Context(), auth.TenantID, req.Text)
	if err != nil {
		return err
	}
	if def == nil {
		return c.JSON(workflow.InboundMessageResponse{Triggered: false})
	}

	result, err := h.engine.Start(c.Context(), workflow.StartRequest{
		WorkflowID: def.ID,
		TenantID:   auth.TenantID,
		SessionID:  req.SessionID,
	})
	if err != nil {
		// A busy session keeps its running workflow; the trigger loses.
		if errx.IsType(err, errx.TypeConflict) {
			return c.JSON(workflow.InboundMessageResponse{Triggered: false})
		}
		return err
	}

	return c.JSON(workflow.InboundMessageResponse{
		Triggered:  true,
		WorkflowID: def.ID,
		Turn:       result,
	})
}

func (h *WorkflowHandler) checkExecutionTenant(c *fiber.Ctx, id kernel.ExecutionID, tenantID kernel.TenantID) error {
	exec, err := h.engine.Get(c.Context(), id)
	if err != nil {
		return err
	}
	if exec.TenantID != tenantID {
		return workflow.ErrExecutionNotFound().WithDetail("execution_id", id.String())
	}
	return nil
}
