package stepexec

import (
	"context"
	"log"
	"regexp"

	"github.com/Abraxas-365/convo/workflow"
)

// InputExecutor two-phase: present the prompt, then capture free text into
// the step's variable, optionally validated against a regex.
type InputExecutor struct {
	resolver *workflow.Resolver
}

var _ workflow.StepExecutor = (*InputExecutor)(nil)

func NewInputExecutor(resolver *workflow.Resolver) *InputExecutor {
	return &InputExecutor{resolver: resolver}
}

func (e *InputExecutor) Execute(ctx context.Context, req workflow.StepRequest) (*workflow.StepResult, error) {
	if !req.Prompted {
		return &workflow.StepResult{
			Success:       true,
			Message:       e.resolver.Resolve(req.Step.Content, req.State.Variables),
			InputRequired: "text",
		}, nil
	}

	text := ""
	if req.Input != nil {
		text = req.Input.Text
	}
	if text == "" {
		return &workflow.StepResult{
			Success: false,
			Error:   "input is required",
		}, nil
	}

	if req.Step.Validation != "" {
		re, err := regexp.Compile(req.Step.Validation)
		if err != nil {
			// Parser rejects invalid patterns; a broken pattern here means
			// the definition changed under us. Treat as non-matching.
			log.Printf("⚠️  Invalid validation pattern on step %s: %v", req.Step.ID, err)
			return &workflow.StepResult{
				Success: false,
				Error:   "input validation unavailable",
			}, nil
		}
		if !re.MatchString(text) {
			return &workflow.StepResult{
				Success: false,
				Error:   "input does not match the expected format",
			}, nil
		}
	}

	result := &workflow.StepResult{Success: true}

	if req.State.IsStepCompleted(req.Step.ID) {
		log.Printf("ℹ️  Input step %s already resolved, skipping variable write", req.Step.ID)
	} else {
		result.VariablesDelta = map[string]any{
			req.Step.Variable:                      text,
			workflow.StepCompletionKey(req.Step.ID): true,
		}
	}

	if req.Step.NextStep == "" {
		result.WorkflowCompleted = true
		return result, nil
	}

	result.NextStepID = req.Step.NextStep
	return result, nil
}

func (e *InputExecutor) SupportsType(stepType workflow.StepType) bool {
	return stepType == workflow.StepTypeInput
}

func (e *InputExecutor) ValidateStep(step workflow.Step) error {
	if step.Content == "" || step.Variable == "" {
		return workflow.ErrInvalidDefinition().
			WithDetail("step_id", step.ID).
			WithDetail("reason", "input step requires content and variable")
	}
	if step.Validation != "" {
		if _, err := regexp.Compile(step.Validation); err != nil {
			return workflow.ErrInvalidDefinition().
				WithDetail("step_id", step.ID).
				WithDetail("reason", "invalid validation pattern")
		}
	}
	return nil
}
