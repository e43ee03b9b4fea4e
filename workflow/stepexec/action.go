package stepexec

import (
	"context"
	"log"

	"github.com/Abraxas-365/convo/workflow"
)

// ActionExecutor resolves the step params and hands them to the dispatcher.
// Side effects are best-effort: any dispatch failure is caught and logged
// and the workflow proceeds to next_step regardless.
type ActionExecutor struct {
	resolver   *workflow.Resolver
	dispatcher workflow.ActionDispatcher
}

var _ workflow.StepExecutor = (*ActionExecutor)(nil)

func NewActionExecutor(resolver *workflow.Resolver, dispatcher workflow.ActionDispatcher) *ActionExecutor {
	return &ActionExecutor{
		resolver:   resolver,
		dispatcher: dispatcher,
	}
}

func (e *ActionExecutor) Execute(ctx context.Context, req workflow.StepRequest) (*workflow.StepResult, error) {
	params := e.resolver.ResolveParams(req.Step.Params, req.State.Variables)

	dispatchReq := workflow.ActionRequest{
		TenantID:    req.Execution.TenantID,
		WorkflowID:  req.Execution.WorkflowID,
		ExecutionID: req.Execution.ID,
		Action:      req.Step.Action,
		Params:      params,
	}

	if err := e.dispatcher.Dispatch(ctx, dispatchReq); err != nil {
		log.Printf("⚠️  Action %q dispatch failed on step %s: %v (workflow proceeds)",
			req.Step.Action, req.Step.ID, err)
	}

	result := &workflow.StepResult{Success: true}
	if req.Step.NextStep == "" {
		result.WorkflowCompleted = true
		return result, nil
	}
	result.NextStepID = req.Step.NextStep
	return result, nil
}

func (e *ActionExecutor) SupportsType(stepType workflow.StepType) bool {
	return stepType == workflow.StepTypeAction
}

func (e *ActionExecutor) ValidateStep(step workflow.Step) error {
	if step.Action == "" {
		return workflow.ErrInvalidDefinition().
			WithDetail("step_id", step.ID).
			WithDetail("reason", "action step requires an action name")
	}
	return nil
}
