package workflow

import (
	"context"
	"time"

	"github.com/Abraxas-365/convo/pkg/kernel"
)

// ============================================================================
// Repository Interfaces
// ============================================================================

// DefinitionRepository persistencia de definiciones de workflow. Authoring
// lives outside this service; the engine only loads, lists and activates.
type DefinitionRepository interface {
	Save(ctx context.Context, def WorkflowDefinition) error
	FindByID(ctx context.Context, id kernel.WorkflowID) (*WorkflowDefinition, error)
	FindVersion(ctx context.Context, id kernel.WorkflowID, version int) (*WorkflowDefinition, error)
	FindActiveByTenant(ctx context.Context, tenantID kernel.TenantID) ([]*WorkflowDefinition, error)
	List(ctx context.Context, req DefinitionListRequest) (DefinitionListResponse, error)
	Delete(ctx context.Context, id kernel.WorkflowID, tenantID kernel.TenantID) error
}

// ExecutionRepository persistencia de ejecuciones
type ExecutionRepository interface {
	Save(ctx context.Context, exec WorkflowExecution) error
	FindByID(ctx context.Context, id kernel.ExecutionID) (*WorkflowExecution, error)
	FindActiveBySession(ctx context.Context, sessionID kernel.SessionID) (*WorkflowExecution, error)
	List(ctx context.Context, req ExecutionListRequest) (ExecutionListResponse, error)
}

// ActionRecordRepository append-only store para la acción save_to_database,
// consumido después por analítica fuera de este core.
type ActionRecordRepository interface {
	Append(ctx context.Context, record ActionRecord) error
	FindByExecution(ctx context.Context, executionID kernel.ExecutionID) ([]*ActionRecord, error)
}

// ============================================================================
// State Interfaces
// ============================================================================

// StateStore low-level storage of per-session execution state. Put enforces
// the optimistic version check: it succeeds only when the stored version
// still equals state.Version, then persists with Version+1. A stale write
// returns a STATE_CONFLICT error and must be retried by the caller, never
// silently merged.
type StateStore interface {
	Get(ctx context.Context, executionID kernel.ExecutionID) (*ExecutionState, error)
	Put(ctx context.Context, state *ExecutionState) error
	Delete(ctx context.Context, executionID kernel.ExecutionID) error
}

// StateManager owns ExecutionState plus its consistency with the durable
// execution row: every persist writes both or reports the conflict.
type StateManager interface {
	Create(ctx context.Context, exec *WorkflowExecution, initial map[string]any) (*ExecutionState, error)
	Load(ctx context.Context, executionID kernel.ExecutionID) (*ExecutionState, error)
	Persist(ctx context.Context, exec *WorkflowExecution, state *ExecutionState) error
	Expire(ctx context.Context, executionID kernel.ExecutionID) error
}

// ============================================================================
// Step Execution Contract
// ============================================================================

// TurnInput user-supplied input for one external call
type TurnInput struct {
	Text   string `json:"text,omitempty"`
	Choice string `json:"choice,omitempty"`
}

// IsEmpty reports whether the turn carried no input.
func (i *TurnInput) IsEmpty() bool {
	return i == nil || (i.Text == "" && i.Choice == "")
}

// StepRequest contexto de una invocación de executor
type StepRequest struct {
	Step       Step
	Definition *WorkflowDefinition
	Execution  *WorkflowExecution
	State      *ExecutionState
	Input      *TurnInput
	// Prompted is true on the second invocation of an interactive step:
	// the prompt was already presented and this call consumes input.
	Prompted bool
}

// StepResult resultado estructurado de un executor. No unhandled error may
// cross the executor boundary: recoverable problems (unmatched choice,
// failed validation) come back as Success=false with the step unchanged.
type StepResult struct {
	Success           bool           `json:"success"`
	Error             string         `json:"error,omitempty"`
	Message           string         `json:"message,omitempty"`
	Choices           []string       `json:"choices,omitempty"`
	InputRequired     string         `json:"input_required,omitempty"` // "choice" | "text"
	NextStepID        string         `json:"next_step_id,omitempty"`
	WorkflowCompleted bool           `json:"workflow_completed"`
	VariablesDelta    map[string]any `json:"variables_delta,omitempty"`
}

// StepExecutor strategy contract, one implementation per step kind. Looked
// up by step type through the executor registry, never by conditional chain.
type StepExecutor interface {
	Execute(ctx context.Context, req StepRequest) (*StepResult, error)
	SupportsType(stepType StepType) bool
	ValidateStep(step Step) error
}

// ============================================================================
// Engine Interface
// ============================================================================

// Engine API consumida por la capa de chat/gateway
type Engine interface {
	Start(ctx context.Context, req StartRequest) (*TurnResult, error)
	Advance(ctx context.Context, req AdvanceRequest) (*TurnResult, error)
	Cancel(ctx context.Context, executionID kernel.ExecutionID) error
	Get(ctx context.Context, executionID kernel.ExecutionID) (*WorkflowExecution, error)
}

// ============================================================================
// Dispatch Interfaces
// ============================================================================

// OutboundKind clase de mensaje saliente encolado
type OutboundKind string

const (
	OutboundKindEmail OutboundKind = "email"
	OutboundKindSMS   OutboundKind = "sms"
)

// OutboundMessage message contract consumed by the external communications
// service. The engine guarantees enqueue-success only, not delivery.
type OutboundMessage struct {
	Kind       OutboundKind   `json:"kind"`
	To         string         `json:"to"`
	Subject    string         `json:"subject,omitempty"`
	Message    string         `json:"message,omitempty"`
	TemplateID string         `json:"template_id,omitempty"`
	Variables  map[string]any `json:"variables,omitempty"`
}

// QueuePublisher publishes fire-and-forget side-effect messages to the
// durable outbound queue.
type QueuePublisher interface {
	Publish(ctx context.Context, msg OutboundMessage) error
}

// ActionRequest una invocación de acción resuelta
type ActionRequest struct {
	TenantID    kernel.TenantID
	WorkflowID  kernel.WorkflowID
	ExecutionID kernel.ExecutionID
	Action      string
	Params      map[string]any
}

// ActionDispatcher performs named side effects: queued publishes for
// email/SMS, bounded synchronous calls for webhook/save/log. The only
// component that talks to the outside world.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, req ActionRequest) error
}

// ActionRecord registro append-only de la acción save_to_database
type ActionRecord struct {
	ID          kernel.ActionRecordID `db:"id" json:"id"`
	TenantID    kernel.TenantID       `db:"tenant_id" json:"tenant_id"`
	WorkflowID  kernel.WorkflowID     `db:"workflow_id" json:"workflow_id"`
	ExecutionID kernel.ExecutionID    `db:"execution_id" json:"execution_id"`
	ActionName  string                `db:"action_name" json:"action_name"`
	Data        map[string]any        `db:"data" json:"data"`
	CreatedAt   time.Time             `db:"created_at" json:"created_at"`
}

// ============================================================================
// Delay / Trigger Interfaces
// ============================================================================

// DelayedResume una ejecución pendiente de reanudar tras un DELAY
type DelayedResume struct {
	ExecutionID kernel.ExecutionID `json:"execution_id"`
	SessionID   kernel.SessionID   `json:"session_id"`
	ResumeAt    time.Time          `json:"resume_at"`
}

// DelaySchedule durable index of executions waiting on a DELAY deadline.
// The engine only schedules; a sweeper worker re-drives due entries.
type DelaySchedule interface {
	Schedule(ctx context.Context, resume DelayedResume) error
	Due(ctx context.Context, now time.Time, limit int64) ([]DelayedResume, error)
	Remove(ctx context.Context, executionID kernel.ExecutionID) error
}

// TriggerDetector matches inbound free text against a tenant's active
// workflow set. Returns nil when nothing matches so normal (non-workflow)
// handling proceeds.
type TriggerDetector interface {
	Detect(ctx context.Context, tenantID kernel.TenantID, text string) (*WorkflowDefinition, error)
}
