package workflowexec

import (
	"context"
	"log"
	"time"

	"github.com/Abraxas-365/convo/pkg/kernel"
	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/google/uuid"
)

// defaultMaxAutoSteps bounds auto-advance within one external call, guarding
// against cyclic definitions with no interactive step.
const defaultMaxAutoSteps = 50

// WorkflowEngine orchestrates turns: it executes the current step and keeps
// auto-advancing through non-interactive steps until an interactive turn
// boundary or a terminal state is reached. Suspension is always "return +
// persist state", never a blocked call.
type WorkflowEngine struct {
	definitionRepo workflow.DefinitionRepository
	executionRepo  workflow.ExecutionRepository
	stateManager   workflow.StateManager
	delaySchedule  workflow.DelaySchedule
	stepExecutors  map[workflow.StepType]workflow.StepExecutor
	maxAutoSteps   int
}

var _ workflow.Engine = (*WorkflowEngine)(nil)

// Config tunables for the engine.
type Config struct {
	MaxAutoSteps int
}

func NewWorkflowEngine(
	definitionRepo workflow.DefinitionRepository,
	executionRepo workflow.ExecutionRepository,
	stateManager workflow.StateManager,
	delaySchedule workflow.DelaySchedule,
	cfg *Config,
	stepExecutors ...workflow.StepExecutor,
) *WorkflowEngine {
	maxAutoSteps := defaultMaxAutoSteps
	if cfg != nil && cfg.MaxAutoSteps > 0 {
		maxAutoSteps = cfg.MaxAutoSteps
	}

	engine := &WorkflowEngine{
		definitionRepo: definitionRepo,
		executionRepo:  executionRepo,
		stateManager:   stateManager,
		delaySchedule:  delaySchedule,
		stepExecutors:  make(map[workflow.StepType]workflow.StepExecutor),
		maxAutoSteps:   maxAutoSteps,
	}

	for _, executor := range stepExecutors {
		engine.RegisterStepExecutor(executor)
	}

	return engine
}

// RegisterStepExecutor binds an executor to every step type it supports.
// Adding a step kind means registering one new entry here, nothing else.
func (e *WorkflowEngine) RegisterStepExecutor(executor workflow.StepExecutor) {
	for _, stepType := range []workflow.StepType{
		workflow.StepTypeMessage,
		workflow.StepTypeChoice,
		workflow.StepTypeInput,
		workflow.StepTypeCondition,
		workflow.StepTypeAction,
		workflow.StepTypeDelay,
	} {
		if executor.SupportsType(stepType) {
			e.stepExecutors[stepType] = executor
			log.Printf("✅ Registered executor for step type: %s", stepType)
		}
	}
}

// ============================================================================
// Start
// ============================================================================

func (e *WorkflowEngine) Start(ctx context.Context, req workflow.StartRequest) (*workflow.TurnResult, error) {
	log.Printf("🚀 Starting workflow %s for session %s", req.WorkflowID, req.SessionID)

	def, err := e.definitionRepo.FindByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to load definition", errx.TypeInternal)
	}
	if def.TenantID != req.TenantID {
		return nil, workflow.ErrDefinitionNotFound().
			WithDetail("workflow_id", req.WorkflowID.String())
	}
	if !def.IsActive {
		return nil, workflow.ErrDefinitionInactive().
			WithDetail("workflow_id", req.WorkflowID.String())
	}

	if active, err := e.executionRepo.FindActiveBySession(ctx, req.SessionID); err == nil && active != nil {
		return nil, workflow.ErrSessionBusy().
			WithDetail("session_id", req.SessionID.String()).
			WithDetail("execution_id", active.ID.String())
	} else if err != nil && !errx.IsType(err, errx.TypeNotFound) {
		return nil, errx.Wrap(err, "failed to check session executions", errx.TypeInternal)
	}

	now := time.Now()
	exec := &workflow.WorkflowExecution{
		ID:              kernel.NewExecutionID(uuid.New().String()),
		WorkflowID:      def.ID,
		WorkflowVersion: def.Version,
		TenantID:        def.TenantID,
		SessionID:       req.SessionID,
		Status:          workflow.ExecutionStatusPending,
		CurrentStepID:   def.StartStep,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// Definition defaults first, request variables overlay.
	initial := make(map[string]any, len(def.Variables)+len(req.InitialVariables))
	for k, v := range def.Variables {
		initial[k] = v
	}
	for k, v := range req.InitialVariables {
		initial[k] = v
	}

	state, err := e.stateManager.Create(ctx, exec, initial)
	if err != nil {
		return nil, errx.Wrap(err, "failed to create execution state", errx.TypeInternal)
	}

	if err := exec.TransitionTo(workflow.ExecutionStatusRunning); err != nil {
		return nil, err
	}
	state.Turn++

	return e.runTurn(ctx, def, exec, state, nil)
}

// ============================================================================
// Advance
// ============================================================================

func (e *WorkflowEngine) Advance(ctx context.Context, req workflow.AdvanceRequest) (*workflow.TurnResult, error) {
	exec, err := e.executionRepo.FindByID(ctx, req.ExecutionID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to load execution", errx.TypeInternal)
	}
	if exec.SessionID != req.SessionID {
		return nil, workflow.ErrExecutionNotFound().
			WithDetail("execution_id", req.ExecutionID.String())
	}
	if exec.Status.IsTerminal() {
		return nil, workflow.ErrExecutionTerminal().
			WithDetail("execution_id", exec.ID.String()).
			WithDetail("status", string(exec.Status))
	}

	def, err := e.definitionRepo.FindVersion(ctx, exec.WorkflowID, exec.WorkflowVersion)
	if err != nil {
		return nil, errx.Wrap(err, "failed to load pinned definition", errx.TypeInternal)
	}

	state, err := e.stateManager.Load(ctx, exec.ID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to load execution state", errx.TypeInternal)
	}

	var input *workflow.TurnInput
	if req.UserInput != "" || req.UserChoice != "" {
		input = &workflow.TurnInput{Text: req.UserInput, Choice: req.UserChoice}
	}

	if exec.Status == workflow.ExecutionStatusWaitingInput {
		if err := exec.TransitionTo(workflow.ExecutionStatusRunning); err != nil {
			return nil, err
		}
	}
	state.Turn++

	return e.runTurn(ctx, def, exec, state, input)
}

// ============================================================================
// Cancel / Get
// ============================================================================

// Cancel forces a non-terminal execution into CANCELLED. Cancellation is
// explicit and cooperative: it is the only way an execution ends without
// reaching COMPLETED or FAILED.
func (e *WorkflowEngine) Cancel(ctx context.Context, executionID kernel.ExecutionID) error {
	exec, err := e.executionRepo.FindByID(ctx, executionID)
	if err != nil {
		return errx.Wrap(err, "failed to load execution", errx.TypeInternal)
	}
	if exec.Status.IsTerminal() {
		return workflow.ErrExecutionTerminal().
			WithDetail("execution_id", executionID.String()).
			WithDetail("status", string(exec.Status))
	}

	if err := exec.TransitionTo(workflow.ExecutionStatusCancelled); err != nil {
		return err
	}
	if err := e.executionRepo.Save(ctx, *exec); err != nil {
		return errx.Wrap(err, "failed to save cancelled execution", errx.TypeInternal)
	}

	if err := e.stateManager.Expire(ctx, executionID); err != nil {
		log.Printf("⚠️  Failed to expire state for cancelled execution %s: %v", executionID, err)
	}
	e.removeDelayedResume(ctx, executionID)

	log.Printf("🛑 Execution cancelled: %s", executionID)
	return nil
}

func (e *WorkflowEngine) Get(ctx context.Context, executionID kernel.ExecutionID) (*workflow.WorkflowExecution, error) {
	return e.executionRepo.FindByID(ctx, executionID)
}

// ============================================================================
// Turn loop
// ============================================================================

// runTurn drives one external call: it executes steps from the current
// cursor, auto-advancing through non-interactive results, and halts at the
// first interactive boundary, pending delay, or terminal state.
func (e *WorkflowEngine) runTurn(
	ctx context.Context,
	def *workflow.WorkflowDefinition,
	exec *workflow.WorkflowExecution,
	state *workflow.ExecutionState,
	input *workflow.TurnInput,
) (*workflow.TurnResult, error) {
	if result, pending := e.checkPendingDelay(ctx, exec, state); pending {
		return result, nil
	}

	for steps := 0; ; steps++ {
		if steps >= e.maxAutoSteps {
			return e.failExecution(ctx, exec, state,
				workflow.ErrAutoAdvanceLimit().
					WithDetail("execution_id", exec.ID.String()).
					WithDetail("max_steps", e.maxAutoSteps))
		}

		step := def.StepByID(state.CurrentStepID)
		if step == nil {
			// Strict mode: the parser guarantees references at definition
			// time, so a missing step at runtime is an execution error, not
			// a silent completion.
			return e.failExecution(ctx, exec, state,
				workflow.ErrStepNotFound().
					WithDetail("execution_id", exec.ID.String()).
					WithDetail("step_id", state.CurrentStepID))
		}

		executor, ok := e.stepExecutors[step.Type]
		if !ok {
			return e.failExecution(ctx, exec, state,
				workflow.ErrUnknownStepType().
					WithDetail("step_type", string(step.Type)))
		}

		prompted := step.Type.IsInteractive() && state.IsPrompted(step.ID)

		result, err := executor.Execute(ctx, workflow.StepRequest{
			Step:       *step,
			Definition: def,
			Execution:  exec,
			State:      state,
			Input:      input,
			Prompted:   prompted,
		})
		if err != nil {
			return e.failExecution(ctx, exec, state,
				errx.Wrap(err, "step execution failed", errx.TypeInternal))
		}

		if !result.Success {
			// Recoverable: the step does not advance, no variables are
			// written, the caller re-prompts. Nothing was persisted so the
			// stored execution still reads WAITING_INPUT.
			if exec.Status == workflow.ExecutionStatusRunning && prompted {
				if err := exec.TransitionTo(workflow.ExecutionStatusWaitingInput); err != nil {
					return nil, err
				}
			}
			return &workflow.TurnResult{
				ExecutionID: exec.ID,
				Status:      exec.Status,
				Error:       result.Error,
			}, nil
		}

		// Interactive prompt phase: present and suspend (unless the step
		// itself completes the workflow, e.g. a trailing message).
		if step.Type.IsInteractive() && !prompted {
			state.MergeVariables(result.VariablesDelta)
			if result.WorkflowCompleted {
				exec.MarkStepCompleted(step.ID)
				return e.completeExecution(ctx, exec, state, result)
			}

			state.MarkPrompted(step.ID)
			if err := exec.TransitionTo(workflow.ExecutionStatusWaitingInput); err != nil {
				return nil, err
			}
			if err := e.stateManager.Persist(ctx, exec, state); err != nil {
				return nil, err
			}
			return &workflow.TurnResult{
				ExecutionID:   exec.ID,
				Status:        exec.Status,
				Message:       result.Message,
				Choices:       result.Choices,
				InputRequired: result.InputRequired,
			}, nil
		}

		// Consume phase or non-interactive step: apply and advance.
		if prompted {
			state.ClearPrompted(step.ID)
		}
		state.MergeVariables(result.VariablesDelta)
		input = nil // consumed by the first step that sees it

		if result.WorkflowCompleted {
			exec.MarkStepCompleted(step.ID)
			return e.completeExecution(ctx, exec, state, result)
		}

		exec.MarkStepCompleted(result.NextStepID)
		state.CurrentStepID = result.NextStepID

		if turnResult, pending := e.suspendForDelay(ctx, exec, state); pending {
			return turnResult, nil
		}
	}
}

// checkPendingDelay blocks advancement while a DELAY deadline is still in
// the future; an elapsed deadline is cleared so the turn proceeds.
func (e *WorkflowEngine) checkPendingDelay(ctx context.Context, exec *workflow.WorkflowExecution, state *workflow.ExecutionState) (*workflow.TurnResult, bool) {
	resumeAt, ok := state.ResumeAt()
	if !ok {
		return nil, false
	}
	if time.Now().Before(resumeAt) {
		return &workflow.TurnResult{
			ExecutionID: exec.ID,
			Status:      exec.Status,
			Error:       "delay pending until " + resumeAt.Format(time.RFC3339),
		}, true
	}

	state.ClearResumeAt()
	e.removeDelayedResume(ctx, exec.ID)
	return nil, false
}

// suspendForDelay persists and returns control when the step just executed
// scheduled a future resume.
func (e *WorkflowEngine) suspendForDelay(ctx context.Context, exec *workflow.WorkflowExecution, state *workflow.ExecutionState) (*workflow.TurnResult, bool) {
	resumeAt, ok := state.ResumeAt()
	if !ok || !time.Now().Before(resumeAt) {
		return nil, false
	}

	if err := e.stateManager.Persist(ctx, exec, state); err != nil {
		log.Printf("❌ Failed to persist delayed execution %s: %v", exec.ID, err)
		return &workflow.TurnResult{
			ExecutionID: exec.ID,
			Status:      exec.Status,
			Error:       err.Error(),
		}, true
	}

	log.Printf("⏸️  Execution %s suspended until %s", exec.ID, resumeAt.Format(time.RFC3339))
	return &workflow.TurnResult{
		ExecutionID: exec.ID,
		Status:      exec.Status,
	}, true
}

func (e *WorkflowEngine) completeExecution(
	ctx context.Context,
	exec *workflow.WorkflowExecution,
	state *workflow.ExecutionState,
	result *workflow.StepResult,
) (*workflow.TurnResult, error) {
	state.MergeVariables(map[string]any{workflow.VarWorkflowCompleted: true})

	if err := exec.TransitionTo(workflow.ExecutionStatusCompleted); err != nil {
		return nil, err
	}
	if err := e.stateManager.Persist(ctx, exec, state); err != nil {
		return nil, err
	}
	if err := e.stateManager.Expire(ctx, exec.ID); err != nil {
		log.Printf("⚠️  Failed to expire state for completed execution %s: %v", exec.ID, err)
	}
	e.removeDelayedResume(ctx, exec.ID)

	log.Printf("✅ Workflow execution completed: %s (%d steps)", exec.ID, exec.StepsCompleted)
	return &workflow.TurnResult{
		ExecutionID:       exec.ID,
		Status:            exec.Status,
		Message:           result.Message,
		WorkflowCompleted: true,
	}, nil
}

// failExecution transitions to FAILED, persists, and surfaces the cause to
// the caller as an execution error.
func (e *WorkflowEngine) failExecution(
	ctx context.Context,
	exec *workflow.WorkflowExecution,
	state *workflow.ExecutionState,
	cause error,
) (*workflow.TurnResult, error) {
	if err := exec.Fail(cause.Error()); err != nil {
		return nil, err
	}
	if err := e.stateManager.Persist(ctx, exec, state); err != nil {
		log.Printf("❌ Failed to persist failed execution %s: %v", exec.ID, err)
	}
	if err := e.stateManager.Expire(ctx, exec.ID); err != nil {
		log.Printf("⚠️  Failed to expire state for failed execution %s: %v", exec.ID, err)
	}
	e.removeDelayedResume(ctx, exec.ID)

	log.Printf("❌ Workflow execution failed: %s: %v", exec.ID, cause)
	return nil, cause
}

func (e *WorkflowEngine) removeDelayedResume(ctx context.Context, executionID kernel.ExecutionID) {
	if e.delaySchedule == nil {
		return
	}
	if err := e.delaySchedule.Remove(ctx, executionID); err != nil {
		log.Printf("⚠️  Failed to remove delayed resume for %s: %v", executionID, err)
	}
}
