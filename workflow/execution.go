package workflow

import (
	"time"

	"github.com/Abraxas-365/convo/pkg/kernel"
)

// ============================================================================
// Execution Entity
// ============================================================================

// ExecutionStatus estado de una ejecución
type ExecutionStatus string

const (
	ExecutionStatusPending      ExecutionStatus = "PENDING"
	ExecutionStatusRunning      ExecutionStatus = "RUNNING"
	ExecutionStatusWaitingInput ExecutionStatus = "WAITING_INPUT"
	ExecutionStatusCompleted    ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed       ExecutionStatus = "FAILED"
	ExecutionStatusCancelled    ExecutionStatus = "CANCELLED"
)

// IsTerminal reports whether the status is final. Terminal executions are
// immutable: no step may execute and no further transition is legal.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// legalTransitions enumerates the state machine:
// PENDING → RUNNING ⇄ WAITING_INPUT → COMPLETED | FAILED | CANCELLED.
var legalTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionStatusPending: {ExecutionStatusRunning, ExecutionStatusCancelled},
	ExecutionStatusRunning: {
		ExecutionStatusWaitingInput, ExecutionStatusCompleted,
		ExecutionStatusFailed, ExecutionStatusCancelled,
	},
	ExecutionStatusWaitingInput: {
		ExecutionStatusRunning, ExecutionStatusCompleted,
		ExecutionStatusFailed, ExecutionStatusCancelled,
	},
}

// CanTransitionTo verifica si la transición de estado es legal
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// WorkflowExecution una corrida de una definición para una sesión de chat.
// Created on start, mutated by the engine after every step, immutable once
// in a terminal status.
type WorkflowExecution struct {
	ID              kernel.ExecutionID `db:"id" json:"id"`
	WorkflowID      kernel.WorkflowID  `db:"workflow_id" json:"workflow_id"`
	WorkflowVersion int                `db:"workflow_version" json:"workflow_version"`
	TenantID        kernel.TenantID    `db:"tenant_id" json:"tenant_id"`
	SessionID       kernel.SessionID   `db:"session_id" json:"session_id"`
	Status          ExecutionStatus    `db:"status" json:"status"`
	CurrentStepID   string             `db:"current_step_id" json:"current_step_id"`
	StepsCompleted  int                `db:"steps_completed" json:"steps_completed"`
	Error           string             `db:"error" json:"error,omitempty"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at" json:"updated_at"`
	CompletedAt     *time.Time         `db:"completed_at" json:"completed_at,omitempty"`
}

// IsValid verifica si la ejecución es válida
func (e *WorkflowExecution) IsValid() bool {
	return !e.ID.IsEmpty() && !e.WorkflowID.IsEmpty() &&
		!e.TenantID.IsEmpty() && !e.SessionID.IsEmpty()
}

// TransitionTo moves the execution to the next status, enforcing the state
// machine. Illegal transitions (including any move out of a terminal state)
// return an error and leave the execution untouched.
func (e *WorkflowExecution) TransitionTo(next ExecutionStatus) error {
	if !e.Status.CanTransitionTo(next) {
		return ErrInvalidTransition().
			WithDetail("execution_id", e.ID.String()).
			WithDetail("from", string(e.Status)).
			WithDetail("to", string(next))
	}

	e.Status = next
	e.UpdatedAt = time.Now()
	if next.IsTerminal() {
		now := time.Now()
		e.CompletedAt = &now
	}
	return nil
}

// MarkStepCompleted avanza el cursor y el contador de pasos
func (e *WorkflowExecution) MarkStepCompleted(nextStepID string) {
	e.StepsCompleted++
	e.CurrentStepID = nextStepID
	e.UpdatedAt = time.Now()
}

// Fail transitions to FAILED recording the reason.
func (e *WorkflowExecution) Fail(reason string) error {
	if err := e.TransitionTo(ExecutionStatusFailed); err != nil {
		return err
	}
	e.Error = reason
	return nil
}
