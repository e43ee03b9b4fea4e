package workflow

import (
	"github.com/Abraxas-365/convo/pkg/kernel"
	"github.com/Abraxas-365/craftable/storex"
)

// ============================================================================
// Engine API DTOs
// ============================================================================

type StartRequest struct {
	WorkflowID       kernel.WorkflowID `json:"workflow_id" validate:"required"`
	TenantID         kernel.TenantID   `json:"tenant_id" validate:"required"`
	SessionID        kernel.SessionID  `json:"session_id" validate:"required"`
	InitialVariables map[string]any    `json:"initial_variables,omitempty"`
}

type AdvanceRequest struct {
	ExecutionID kernel.ExecutionID `json:"execution_id" validate:"required"`
	SessionID   kernel.SessionID   `json:"session_id" validate:"required"`
	UserInput   string             `json:"user_input,omitempty"`
	UserChoice  string             `json:"user_choice,omitempty"`
}

// TurnResult resultado de una vuelta del motor. Error carries a recoverable
// problem (unmatched choice, failed validation, delay still pending): the
// execution did not advance and the caller should re-prompt.
type TurnResult struct {
	ExecutionID       kernel.ExecutionID `json:"execution_id"`
	Status            ExecutionStatus    `json:"status"`
	Message           string             `json:"message,omitempty"`
	Choices           []string           `json:"choices,omitempty"`
	InputRequired     string             `json:"input_required,omitempty"`
	WorkflowCompleted bool               `json:"workflow_completed"`
	Error             string             `json:"error,omitempty"`
}

// ============================================================================
// Inbound Message DTOs (trigger detection)
// ============================================================================

type InboundMessageRequest struct {
	SessionID kernel.SessionID `json:"session_id" validate:"required"`
	Text      string           `json:"text" validate:"required"`
}

// InboundMessageResponse indica si un workflow tomó control del mensaje
type InboundMessageResponse struct {
	Triggered  bool              `json:"triggered"`
	WorkflowID kernel.WorkflowID `json:"workflow_id,omitempty"`
	Turn       *TurnResult       `json:"turn,omitempty"`
}

// ============================================================================
// Definition DTOs
// ============================================================================

type ValidateDefinitionResponse struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

type DefinitionListRequest struct {
	storex.PaginationOptions
	TenantID kernel.TenantID `json:"tenant_id" validate:"required"`
	IsActive *bool           `json:"is_active,omitempty"`
	Search   string          `json:"search,omitempty"`
}

func (dlr DefinitionListRequest) GetOffset() int {
	return (dlr.Page - 1) * dlr.PageSize
}

type DefinitionListResponse = storex.Paginated[WorkflowDefinition]

// ============================================================================
// Execution DTOs
// ============================================================================

type ExecutionListRequest struct {
	storex.PaginationOptions
	TenantID  kernel.TenantID   `json:"tenant_id" validate:"required"`
	SessionID kernel.SessionID  `json:"session_id,omitempty"`
	Status    *ExecutionStatus  `json:"status,omitempty"`
	Workflow  kernel.WorkflowID `json:"workflow_id,omitempty"`
}

func (elr ExecutionListRequest) GetOffset() int {
	return (elr.Page - 1) * elr.PageSize
}

type ExecutionListResponse = storex.Paginated[WorkflowExecution]

// ============================================================================
// Simple DTOs
// ============================================================================

type DefinitionDetailsDTO struct {
	ID        kernel.WorkflowID `json:"id"`
	Name      string            `json:"name"`
	Version   int               `json:"version"`
	IsActive  bool              `json:"is_active"`
	StepCount int               `json:"step_count"`
}

func (d *WorkflowDefinition) ToDTO() DefinitionDetailsDTO {
	return DefinitionDetailsDTO{
		ID:        d.ID,
		Name:      d.Name,
		Version:   d.Version,
		IsActive:  d.IsActive,
		StepCount: len(d.Steps),
	}
}
