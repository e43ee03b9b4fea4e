package stepexec

import (
	"context"

	"github.com/Abraxas-365/convo/workflow"
)

// ConditionExecutor evalúa condiciones y bifurca el grafo
type ConditionExecutor struct {
	resolver *workflow.Resolver
}

var _ workflow.StepExecutor = (*ConditionExecutor)(nil)

func NewConditionExecutor(resolver *workflow.Resolver) *ConditionExecutor {
	return &ConditionExecutor{resolver: resolver}
}

// Execute routes to next_step when the condition holds, else_step when it
// does not. An absent else_step on a false condition completes the
// workflow. Never interacts with the user.
func (e *ConditionExecutor) Execute(ctx context.Context, req workflow.StepRequest) (*workflow.StepResult, error) {
	result := &workflow.StepResult{Success: true}

	if e.resolver.Evaluate(req.Step.Condition, req.State.Variables) {
		if req.Step.NextStep == "" {
			result.WorkflowCompleted = true
			return result, nil
		}
		result.NextStepID = req.Step.NextStep
		return result, nil
	}

	if req.Step.ElseStep == "" {
		result.WorkflowCompleted = true
		return result, nil
	}
	result.NextStepID = req.Step.ElseStep
	return result, nil
}

func (e *ConditionExecutor) SupportsType(stepType workflow.StepType) bool {
	return stepType == workflow.StepTypeCondition
}

func (e *ConditionExecutor) ValidateStep(step workflow.Step) error {
	if step.Condition == "" {
		return workflow.ErrInvalidDefinition().
			WithDetail("step_id", step.ID).
			WithDetail("reason", "condition step requires a condition")
	}
	return nil
}
