package workflowexec

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/convo/pkg/kernel"
	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/convo/workflow/dispatch"
	"github.com/Abraxas-365/convo/workflow/statemanager"
	"github.com/Abraxas-365/convo/workflow/stepexec"
	"github.com/Abraxas-365/convo/workflow/workflowinfra"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/storex"
	"github.com/stretchr/testify/require"
)

type engineHarness struct {
	defs     *workflowinfra.MemoryDefinitionRepository
	execs    *workflowinfra.MemoryExecutionRepository
	states   *workflowinfra.MemoryStateStore
	schedule *workflowinfra.MemoryDelaySchedule
	queue    *workflowinfra.MemoryQueuePublisher
	records  *workflowinfra.MemoryActionRecordRepository
	engine   *WorkflowEngine
}

func newHarness(t *testing.T, maxAutoSteps int) *engineHarness {
	t.Helper()

	h := &engineHarness{
		defs:     workflowinfra.NewMemoryDefinitionRepository(),
		execs:    workflowinfra.NewMemoryExecutionRepository(),
		states:   workflowinfra.NewMemoryStateStore(),
		schedule: workflowinfra.NewMemoryDelaySchedule(),
		queue:    workflowinfra.NewMemoryQueuePublisher(),
		records:  workflowinfra.NewMemoryActionRecordRepository(),
	}

	resolver := workflow.NewResolver()
	dispatcher := dispatch.NewDispatcher(h.queue, dispatch.NewWebhookClient(time.Second), h.records)

	h.engine = NewWorkflowEngine(
		h.defs,
		h.execs,
		statemanager.NewStateManager(h.states, h.execs),
		h.schedule,
		&Config{MaxAutoSteps: maxAutoSteps},
		stepexec.NewMessageExecutor(resolver),
		stepexec.NewChoiceExecutor(resolver),
		stepexec.NewInputExecutor(resolver),
		stepexec.NewConditionExecutor(resolver),
		stepexec.NewActionExecutor(resolver, dispatcher),
		stepexec.NewDelayExecutor(h.schedule),
	)
	return h
}

func (h *engineHarness) saveDefinition(t *testing.T, def workflow.WorkflowDefinition) {
	t.Helper()
	require.NoError(t, h.defs.Save(context.Background(), def))
}

func baseDefinition(id string, startStep string, steps []workflow.Step) workflow.WorkflowDefinition {
	now := time.Now()
	return workflow.WorkflowDefinition{
		ID:        kernel.WorkflowID(id),
		TenantID:  kernel.TenantID("tenant-1"),
		Name:      id,
		Version:   1,
		StartStep: startStep,
		Steps:     steps,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func listExecutions(tenantID string) workflow.ExecutionListRequest {
	return workflow.ExecutionListRequest{
		PaginationOptions: storex.PaginationOptions{Page: 1, PageSize: 20},
		TenantID:          kernel.TenantID(tenantID),
	}
}

func startRequest(workflowID, sessionID string) workflow.StartRequest {
	return workflow.StartRequest{
		WorkflowID: kernel.WorkflowID(workflowID),
		TenantID:   kernel.TenantID("tenant-1"),
		SessionID:  kernel.SessionID(sessionID),
	}
}

func choiceScenarioDefinition() workflow.WorkflowDefinition {
	return baseDefinition("wf-choice", "greet", []workflow.Step{
		{ID: "greet", Type: workflow.StepTypeMessage, Content: "Hello there!", NextStep: "ask"},
		{ID: "ask", Type: workflow.StepTypeChoice, Content: "Pick a path", Variable: "path", Options: []workflow.ChoiceOption{
			{Text: "Path A", Value: "a", NextStep: "done_a"},
			{Text: "Path B", Value: "b", NextStep: "done_b"},
		}},
		{ID: "done_a", Type: workflow.StepTypeMessage, Content: "You chose A"},
		{ID: "done_b", Type: workflow.StepTypeMessage, Content: "You chose B"},
	})
}

func TestEngineChoiceScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 50)
	h.saveDefinition(t, choiceScenarioDefinition())

	// Turn 1: the greeting is presented and the execution suspends.
	result, err := h.engine.Start(ctx, startRequest("wf-choice", "session-1"))
	require.NoError(t, err)
	require.Equal(t, workflow.ExecutionStatusWaitingInput, result.Status)
	require.Equal(t, "Hello there!", result.Message)
	require.False(t, result.WorkflowCompleted)

	executionID := result.ExecutionID

	// Turn 2: no input consumes the greeting and auto-advances to the
	// choice prompt.
	result, err = h.engine.Advance(ctx, workflow.AdvanceRequest{
		ExecutionID: executionID,
		SessionID:   kernel.SessionID("session-1"),
	})
	require.NoError(t, err)
	require.Equal(t, workflow.ExecutionStatusWaitingInput, result.Status)
	require.Equal(t, "Pick a path", result.Message)
	require.Equal(t, []string{"Path A", "Path B"}, result.Choices)
	require.Equal(t, "choice", result.InputRequired)

	// Turn 3: an unmatched choice is recoverable, nothing advances.
	result, err = h.engine.Advance(ctx, workflow.AdvanceRequest{
		ExecutionID: executionID,
		SessionID:   kernel.SessionID("session-1"),
		UserChoice:  "z",
	})
	require.NoError(t, err)
	require.Equal(t, workflow.ExecutionStatusWaitingInput, result.Status)
	require.NotEmpty(t, result.Error)

	stored, err := h.execs.FindByID(ctx, executionID)
	require.NoError(t, err)
	require.Equal(t, workflow.ExecutionStatusWaitingInput, stored.Status)

	state, err := h.states.Get(ctx, executionID)
	require.NoError(t, err)
	_, ok := state.Get("path")
	require.False(t, ok)

	// Turn 4: a valid choice captures the variable and runs through to
	// the terminal message in the same call.
	result, err = h.engine.Advance(ctx, workflow.AdvanceRequest{
		ExecutionID: executionID,
		SessionID:   kernel.SessionID("session-1"),
		UserChoice:  "a",
	})
	require.NoError(t, err)
	require.Equal(t, workflow.ExecutionStatusCompleted, result.Status)
	require.Equal(t, "You chose A", result.Message)
	require.True(t, result.WorkflowCompleted)

	stored, err = h.execs.FindByID(ctx, executionID)
	require.NoError(t, err)
	require.Equal(t, workflow.ExecutionStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	// Cached state is expired on terminal status.
	_, err = h.states.Get(ctx, executionID)
	require.Error(t, err)
	require.True(t, errx.IsType(err, errx.TypeNotFound))

	// Terminal executions reject further turns.
	_, err = h.engine.Advance(ctx, workflow.AdvanceRequest{
		ExecutionID: executionID,
		SessionID:   kernel.SessionID("session-1"),
	})
	require.Error(t, err)
	require.True(t, errx.IsType(err, errx.TypeBusiness))
}

func TestEngineChoiceByOptionText(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 50)
	h.saveDefinition(t, choiceScenarioDefinition())

	result, err := h.engine.Start(ctx, startRequest("wf-choice", "session-1"))
	require.NoError(t, err)

	executionID := result.ExecutionID
	_, err = h.engine.Advance(ctx, workflow.AdvanceRequest{
		ExecutionID: executionID,
		SessionID:   kernel.SessionID("session-1"),
	})
	require.NoError(t, err)

	// Free text matching the display text resolves like the value would.
	result, err = h.engine.Advance(ctx, workflow.AdvanceRequest{
		ExecutionID: executionID,
		SessionID:   kernel.SessionID("session-1"),
		UserInput:   "Path B",
	})
	require.NoError(t, err)
	require.Equal(t, "You chose B", result.Message)
	require.True(t, result.WorkflowCompleted)
}

func TestEngineAutoAdvanceBound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 10)

	h.saveDefinition(t, baseDefinition("wf-cycle", "a", []workflow.Step{
		{ID: "a", Type: workflow.StepTypeCondition, Condition: "1 == 1", NextStep: "b"},
		{ID: "b", Type: workflow.StepTypeCondition, Condition: "1 == 1", NextStep: "a"},
	}))

	_, err := h.engine.Start(ctx, startRequest("wf-cycle", "session-1"))
	require.Error(t, err)

	active, err := h.execs.List(ctx, listExecutions("tenant-1"))
	require.NoError(t, err)
	require.Len(t, active.Data, 1)
	require.Equal(t, workflow.ExecutionStatusFailed, active.Data[0].Status)
	require.NotEmpty(t, active.Data[0].Error)
	require.Equal(t, 1, active.Page.Number)
	require.Equal(t, 20, active.Page.Size)
	require.Equal(t, 1, active.Page.Total)
	require.Equal(t, 1, active.Page.Pages)
}

func TestEngineMissingStepFailsExecution(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 50)

	// Saved directly, bypassing parse-time validation.
	h.saveDefinition(t, baseDefinition("wf-broken", "start", []workflow.Step{
		{ID: "start", Type: workflow.StepTypeCondition, Condition: "1 == 1", NextStep: "ghost"},
	}))

	_, err := h.engine.Start(ctx, startRequest("wf-broken", "session-1"))
	require.Error(t, err)

	list, err := h.execs.List(ctx, listExecutions("tenant-1"))
	require.NoError(t, err)
	require.Len(t, list.Data, 1)
	require.Equal(t, workflow.ExecutionStatusFailed, list.Data[0].Status)
}

func TestEngineConditionBranching(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 50)

	h.saveDefinition(t, baseDefinition("wf-branch", "check", []workflow.Step{
		{ID: "check", Type: workflow.StepTypeCondition, Condition: `{{tier}} == "pro"`, NextStep: "pro_msg", ElseStep: "free_msg"},
		{ID: "pro_msg", Type: workflow.StepTypeMessage, Content: "Welcome back, pro"},
		{ID: "free_msg", Type: workflow.StepTypeMessage, Content: "Upgrade today"},
	}))

	req := startRequest("wf-branch", "session-pro")
	req.InitialVariables = map[string]any{"tier": "pro"}
	result, err := h.engine.Start(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "Welcome back, pro", result.Message)
	require.True(t, result.WorkflowCompleted)

	req = startRequest("wf-branch", "session-free")
	req.InitialVariables = map[string]any{"tier": "free"}
	result, err = h.engine.Start(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "Upgrade today", result.Message)
}

func TestEngineInputValidationAndAction(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 50)

	h.saveDefinition(t, baseDefinition("wf-email", "ask_email", []workflow.Step{
		{ID: "ask_email", Type: workflow.StepTypeInput, Content: "Your email?", Variable: "email",
			Validation: `^[^@\s]+@[^@\s]+$`, NextStep: "notify"},
		{ID: "notify", Type: workflow.StepTypeAction, Action: "send_email", Params: map[string]any{
			"to":      "{{email}}",
			"subject": "Welcome",
			"message": "Thanks for signing up",
		}, NextStep: "bye"},
		{ID: "bye", Type: workflow.StepTypeMessage, Content: "Check your inbox at {{email}}"},
	}))

	result, err := h.engine.Start(ctx, startRequest("wf-email", "session-1"))
	require.NoError(t, err)
	require.Equal(t, "Your email?", result.Message)
	require.Equal(t, "text", result.InputRequired)

	executionID := result.ExecutionID

	// Invalid input is recoverable: re-prompt, nothing written.
	result, err = h.engine.Advance(ctx, workflow.AdvanceRequest{
		ExecutionID: executionID,
		SessionID:   kernel.SessionID("session-1"),
		UserInput:   "not-an-email",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Error)
	require.Equal(t, workflow.ExecutionStatusWaitingInput, result.Status)

	result, err = h.engine.Advance(ctx, workflow.AdvanceRequest{
		ExecutionID: executionID,
		SessionID:   kernel.SessionID("session-1"),
		UserInput:   "ana@example.com",
	})
	require.NoError(t, err)
	require.True(t, result.WorkflowCompleted)
	require.Equal(t, "Check your inbox at ana@example.com", result.Message)

	// The action published one outbound message with resolved params.
	require.Len(t, h.queue.Messages, 1)
	require.Equal(t, workflow.OutboundKindEmail, h.queue.Messages[0].Kind)
	require.Equal(t, "ana@example.com", h.queue.Messages[0].To)
}

func TestEngineDelaySuspendAndResume(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 50)

	h.saveDefinition(t, baseDefinition("wf-delay", "wait", []workflow.Step{
		{ID: "wait", Type: workflow.StepTypeDelay, DurationSeconds: 3600, NextStep: "done"},
		{ID: "done", Type: workflow.StepTypeMessage, Content: "Back again"},
	}))

	result, err := h.engine.Start(ctx, startRequest("wf-delay", "session-1"))
	require.NoError(t, err)
	require.Equal(t, workflow.ExecutionStatusRunning, result.Status)
	require.Empty(t, result.Error)

	executionID := result.ExecutionID

	// The deadline landed in the schedule.
	due, err := h.schedule.Due(ctx, time.Now().Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, executionID, due[0].ExecutionID)

	// An advance before the deadline is a no-op.
	result, err = h.engine.Advance(ctx, workflow.AdvanceRequest{
		ExecutionID: executionID,
		SessionID:   kernel.SessionID("session-1"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Error)
	require.Equal(t, workflow.ExecutionStatusRunning, result.Status)

	// Rewind the deadline as if the hour passed.
	state, err := h.states.Get(ctx, executionID)
	require.NoError(t, err)
	state.SetResumeAt(time.Now().Add(-time.Minute))
	require.NoError(t, h.states.Put(ctx, state))

	result, err = h.engine.Advance(ctx, workflow.AdvanceRequest{
		ExecutionID: executionID,
		SessionID:   kernel.SessionID("session-1"),
	})
	require.NoError(t, err)
	require.True(t, result.WorkflowCompleted)
	require.Equal(t, "Back again", result.Message)
}

func TestEngineSessionBusy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 50)
	h.saveDefinition(t, choiceScenarioDefinition())

	_, err := h.engine.Start(ctx, startRequest("wf-choice", "session-1"))
	require.NoError(t, err)

	_, err = h.engine.Start(ctx, startRequest("wf-choice", "session-1"))
	require.Error(t, err)
	require.True(t, errx.IsType(err, errx.TypeConflict))

	// A different session is unaffected.
	_, err = h.engine.Start(ctx, startRequest("wf-choice", "session-2"))
	require.NoError(t, err)
}

func TestEngineInactiveDefinition(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 50)

	def := choiceScenarioDefinition()
	def.IsActive = false
	h.saveDefinition(t, def)

	_, err := h.engine.Start(ctx, startRequest("wf-choice", "session-1"))
	require.Error(t, err)
	require.True(t, errx.IsType(err, errx.TypeBusiness))
}

func TestEngineCancel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 50)
	h.saveDefinition(t, choiceScenarioDefinition())

	result, err := h.engine.Start(ctx, startRequest("wf-choice", "session-1"))
	require.NoError(t, err)

	executionID := result.ExecutionID
	require.NoError(t, h.engine.Cancel(ctx, executionID))

	stored, err := h.execs.FindByID(ctx, executionID)
	require.NoError(t, err)
	require.Equal(t, workflow.ExecutionStatusCancelled, stored.Status)

	_, err = h.states.Get(ctx, executionID)
	require.Error(t, err)

	// Cancel is not idempotent: the second call reports the terminal state.
	err = h.engine.Cancel(ctx, executionID)
	require.Error(t, err)
	require.True(t, errx.IsType(err, errx.TypeBusiness))

	// The session is free for a new execution.
	_, err = h.engine.Start(ctx, startRequest("wf-choice", "session-1"))
	require.NoError(t, err)
}

func TestEngineVersionPinning(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 50)

	h.saveDefinition(t, baseDefinition("wf-pin", "greet", []workflow.Step{
		{ID: "greet", Type: workflow.StepTypeMessage, Content: "hello", NextStep: "ask"},
		{ID: "ask", Type: workflow.StepTypeInput, Content: "question v1", Variable: "answer"},
	}))

	result, err := h.engine.Start(ctx, startRequest("wf-pin", "session-1"))
	require.NoError(t, err)
	require.Equal(t, "hello", result.Message)

	// A new version lands mid-flight.
	v2 := baseDefinition("wf-pin", "greet", []workflow.Step{
		{ID: "greet", Type: workflow.StepTypeMessage, Content: "hello v2", NextStep: "ask"},
		{ID: "ask", Type: workflow.StepTypeInput, Content: "question v2", Variable: "answer"},
	})
	v2.Version = 2
	h.saveDefinition(t, v2)

	// The running execution keeps seeing version 1.
	result, err = h.engine.Advance(ctx, workflow.AdvanceRequest{
		ExecutionID: result.ExecutionID,
		SessionID:   kernel.SessionID("session-1"),
	})
	require.NoError(t, err)
	require.Equal(t, "question v1", result.Message)

	// A fresh execution picks up version 2.
	result, err = h.engine.Start(ctx, startRequest("wf-pin", "session-2"))
	require.NoError(t, err)
	require.Equal(t, "hello v2", result.Message)
}

func TestEngineTenantMismatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 50)
	h.saveDefinition(t, choiceScenarioDefinition())

	req := startRequest("wf-choice", "session-1")
	req.TenantID = kernel.TenantID("tenant-other")
	_, err := h.engine.Start(ctx, req)
	require.Error(t, err)
	require.True(t, errx.IsType(err, errx.TypeNotFound))
}
