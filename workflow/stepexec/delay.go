package stepexec

import (
	"context"
	"log"
	"time"

	"github.com/Abraxas-365/convo/workflow"
)

// DelayExecutor marks the execution to resume no earlier than
// duration_seconds from now and returns control without blocking. The
// engine owns no timer thread: resumption happens on the next external
// invocation at or after the deadline, normally driven by the sweeper.
type DelayExecutor struct {
	schedule workflow.DelaySchedule
}

var _ workflow.StepExecutor = (*DelayExecutor)(nil)

func NewDelayExecutor(schedule workflow.DelaySchedule) *DelayExecutor {
	return &DelayExecutor{schedule: schedule}
}

func (e *DelayExecutor) Execute(ctx context.Context, req workflow.StepRequest) (*workflow.StepResult, error) {
	// The parser rejects a delay without next_step; if one reaches us anyway
	// the wait would end into nothing, so complete without scheduling.
	if req.Step.NextStep == "" {
		log.Printf("⚠️  Delay step %s has no next_step, completing without waiting", req.Step.ID)
		return &workflow.StepResult{Success: true, WorkflowCompleted: true}, nil
	}

	resumeAt := time.Now().Add(time.Duration(req.Step.DurationSeconds * float64(time.Second)))

	result := &workflow.StepResult{
		Success: true,
		VariablesDelta: map[string]any{
			workflow.VarResumeAt: resumeAt.Format(time.RFC3339),
		},
	}

	if e.schedule != nil {
		resume := workflow.DelayedResume{
			ExecutionID: req.Execution.ID,
			SessionID:   req.Execution.SessionID,
			ResumeAt:    resumeAt,
		}
		if err := e.schedule.Schedule(ctx, resume); err != nil {
			// Scheduling is an optimization: the deadline also lives in the
			// state, so an external re-drive still resumes correctly.
			log.Printf("⚠️  Failed to schedule delayed resume for %s: %v", req.Execution.ID, err)
		}
	}

	result.NextStepID = req.Step.NextStep
	return result, nil
}

func (e *DelayExecutor) SupportsType(stepType workflow.StepType) bool {
	return stepType == workflow.StepTypeDelay
}

func (e *DelayExecutor) ValidateStep(step workflow.Step) error {
	if step.DurationSeconds <= 0 {
		return workflow.ErrInvalidDefinition().
			WithDetail("step_id", step.ID).
			WithDetail("reason", "delay step requires duration_seconds > 0")
	}
	if step.NextStep == "" {
		return workflow.ErrInvalidDefinition().
			WithDetail("step_id", step.ID).
			WithDetail("reason", "delay step requires next_step")
	}
	return nil
}
