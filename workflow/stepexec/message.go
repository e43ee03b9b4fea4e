package stepexec

import (
	"context"

	"github.com/Abraxas-365/convo/workflow"
)

// MessageExecutor presenta un mensaje y cede el turno
type MessageExecutor struct {
	resolver *workflow.Resolver
}

var _ workflow.StepExecutor = (*MessageExecutor)(nil)

func NewMessageExecutor(resolver *workflow.Resolver) *MessageExecutor {
	return &MessageExecutor{resolver: resolver}
}

// Execute resolves the content on the prompt invocation. The consume
// invocation produces no message and just hands the cursor to next_step;
// an unset next_step completes the workflow.
func (e *MessageExecutor) Execute(ctx context.Context, req workflow.StepRequest) (*workflow.StepResult, error) {
	result := &workflow.StepResult{Success: true}

	if !req.Prompted {
		result.Message = e.resolver.Resolve(req.Step.Content, req.State.Variables)
	}

	if req.Step.NextStep == "" {
		result.WorkflowCompleted = true
		return result, nil
	}

	result.NextStepID = req.Step.NextStep
	return result, nil
}

func (e *MessageExecutor) SupportsType(stepType workflow.StepType) bool {
	return stepType == workflow.StepTypeMessage
}

func (e *MessageExecutor) ValidateStep(step workflow.Step) error {
	if step.Content == "" {
		return workflow.ErrInvalidDefinition().
			WithDetail("step_id", step.ID).
			WithDetail("reason", "message step requires content")
	}
	return nil
}
