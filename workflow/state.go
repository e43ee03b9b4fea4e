package workflow

import (
	"time"

	"github.com/Abraxas-365/convo/pkg/kernel"
)

// ============================================================================
// ExecutionState - session-scoped variable map + cursor
// ============================================================================

// Reserved control keys inside the variable map. Everything prefixed with
// "__" belongs to the engine and is never exposed to templates or callers.
const (
	ControlKeyPrefix = "__"

	// VarWorkflowCompleted completion marker set on terminal success
	VarWorkflowCompleted = "__workflow_completed"

	// VarResumeAt RFC3339 deadline written by a DELAY step
	VarResumeAt = "__resume_at"

	promptedKeyPrefix  = "__prompted:"
	completedKeyPrefix = "__completed:"
)

// ExecutionState estado mutable por sesión de una ejecución. Owned
// exclusively by the state manager; callers never mutate it directly.
// Version backs the optimistic read-modify-write check: a Put with a stale
// Version is rejected so racing turns cannot silently lose variable writes.
type ExecutionState struct {
	ExecutionID   kernel.ExecutionID `json:"execution_id"`
	SessionID     kernel.SessionID   `json:"session_id"`
	CurrentStepID string             `json:"current_step_id"`
	Variables     map[string]any     `json:"variables"`
	Turn          int                `json:"turn"`
	Version       int64              `json:"version"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// NewExecutionState crea el estado inicial de una ejecución
func NewExecutionState(executionID kernel.ExecutionID, sessionID kernel.SessionID, startStep string, initial map[string]any) *ExecutionState {
	vars := make(map[string]any, len(initial))
	for k, v := range initial {
		vars[k] = v
	}
	return &ExecutionState{
		ExecutionID:   executionID,
		SessionID:     sessionID,
		CurrentStepID: startStep,
		Variables:     vars,
		UpdatedAt:     time.Now(),
	}
}

// MergeVariables applies a step's variable delta. Merge semantics: new keys
// overlay, keys the step did not touch are preserved.
func (s *ExecutionState) MergeVariables(delta map[string]any) {
	if len(delta) == 0 {
		return
	}
	if s.Variables == nil {
		s.Variables = make(map[string]any, len(delta))
	}
	for k, v := range delta {
		s.Variables[k] = v
	}
	s.UpdatedAt = time.Now()
}

// Get obtiene una variable
func (s *ExecutionState) Get(key string) (any, bool) {
	if s.Variables == nil {
		return nil, false
	}
	v, ok := s.Variables[key]
	return v, ok
}

// MarkPrompted records that the interactive step already presented its
// prompt, so the next invocation for this step consumes input instead.
func (s *ExecutionState) MarkPrompted(stepID string) {
	s.MergeVariables(map[string]any{promptedKeyPrefix + stepID: true})
}

// IsPrompted verifica si el paso ya presentó su prompt
func (s *ExecutionState) IsPrompted(stepID string) bool {
	v, ok := s.Get(promptedKeyPrefix + stepID)
	b, _ := v.(bool)
	return ok && b
}

// ClearPrompted removes the prompt marker so a later revisit of the same
// step (via a condition loop) prompts again.
func (s *ExecutionState) ClearPrompted(stepID string) {
	if s.Variables != nil {
		delete(s.Variables, promptedKeyPrefix+stepID)
		s.UpdatedAt = time.Now()
	}
}

// IsStepCompleted verifica el marcador de captura por paso. The marker is
// what makes choice/input capture exactly-once: a re-submitted selection for
// an already-resolved step never re-applies the variable write.
func (s *ExecutionState) IsStepCompleted(stepID string) bool {
	v, ok := s.Get(completedKeyPrefix + stepID)
	b, _ := v.(bool)
	return ok && b
}

// StepCompletionKey returns the control key executors write into their
// variable delta when a capture resolves.
func StepCompletionKey(stepID string) string {
	return completedKeyPrefix + stepID
}

// SetResumeAt marca la ejecución para reanudar no antes del deadline
func (s *ExecutionState) SetResumeAt(t time.Time) {
	s.MergeVariables(map[string]any{VarResumeAt: t.Format(time.RFC3339)})
}

// ResumeAt returns the pending delay deadline, if any.
func (s *ExecutionState) ResumeAt() (time.Time, bool) {
	v, ok := s.Get(VarResumeAt)
	if !ok {
		return time.Time{}, false
	}
	raw, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ClearResumeAt limpia el deadline de un DELAY ya vencido
func (s *ExecutionState) ClearResumeAt() {
	if s.Variables != nil {
		delete(s.Variables, VarResumeAt)
		s.UpdatedAt = time.Now()
	}
}
