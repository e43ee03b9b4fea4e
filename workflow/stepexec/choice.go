package stepexec

import (
	"context"
	"fmt"
	"log"

	"github.com/Abraxas-365/convo/workflow"
)

// ChoiceExecutor two-phase: present options, then capture the selection
// into the step's variable exactly once.
type ChoiceExecutor struct {
	resolver *workflow.Resolver
}

var _ workflow.StepExecutor = (*ChoiceExecutor)(nil)

func NewChoiceExecutor(resolver *workflow.Resolver) *ChoiceExecutor {
	return &ChoiceExecutor{resolver: resolver}
}

func (e *ChoiceExecutor) Execute(ctx context.Context, req workflow.StepRequest) (*workflow.StepResult, error) {
	if !req.Prompted {
		return e.present(req), nil
	}
	return e.consume(req), nil
}

// present resolves the prompt and returns the option display texts; the
// execution pauses at the step (WAITING_INPUT).
func (e *ChoiceExecutor) present(req workflow.StepRequest) *workflow.StepResult {
	choices := make([]string, len(req.Step.Options))
	for i, opt := range req.Step.Options {
		choices[i] = opt.Text
	}

	return &workflow.StepResult{
		Success:       true,
		Message:       e.resolver.Resolve(req.Step.Content, req.State.Variables),
		Choices:       choices,
		InputRequired: "choice",
	}
}

// consume matches the selection by value first, then by text. No match is a
// recoverable error result: the step stays put, nothing is written, the
// caller re-prompts. A re-submitted selection for an already-resolved step
// passes through without re-applying the variable write.
func (e *ChoiceExecutor) consume(req workflow.StepRequest) *workflow.StepResult {
	result := &workflow.StepResult{Success: true}

	selection := ""
	if req.Input != nil {
		selection = req.Input.Choice
		if selection == "" {
			selection = req.Input.Text
		}
	}
	if selection == "" {
		return &workflow.StepResult{
			Success: false,
			Error:   "a choice is required",
		}
	}

	option := req.Step.OptionByValue(selection)
	if option == nil {
		return &workflow.StepResult{
			Success: false,
			Error:   fmt.Sprintf("%q does not match any option", selection),
		}
	}

	if req.State.IsStepCompleted(req.Step.ID) {
		log.Printf("ℹ️  Choice step %s already resolved, skipping variable write", req.Step.ID)
	} else {
		result.VariablesDelta = map[string]any{
			req.Step.Variable:                      option.Value,
			workflow.StepCompletionKey(req.Step.ID): true,
		}
	}

	// option.next_step takes precedence over step.next_step
	next := option.NextStep
	if next == "" {
		next = req.Step.NextStep
	}
	if next == "" {
		result.WorkflowCompleted = true
		return result
	}

	result.NextStepID = next
	return result
}

func (e *ChoiceExecutor) SupportsType(stepType workflow.StepType) bool {
	return stepType == workflow.StepTypeChoice
}

func (e *ChoiceExecutor) ValidateStep(step workflow.Step) error {
	if step.Content == "" || step.Variable == "" {
		return workflow.ErrInvalidDefinition().
			WithDetail("step_id", step.ID).
			WithDetail("reason", "choice step requires content and variable")
	}
	if len(step.Options) < 2 {
		return workflow.ErrInvalidDefinition().
			WithDetail("step_id", step.ID).
			WithDetail("reason", "choice step requires at least 2 options")
	}
	return nil
}
