package statemanager

import (
	"context"
	"log"

	"github.com/Abraxas-365/convo/pkg/kernel"
	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/craftable/errx"
)

// StateManager keeps the durable execution row and the cached execution
// state consistent: every persist writes both. Version conflicts from the
// store are surfaced untouched so the caller can reload and retry; divergent
// copies are never merged.
type StateManager struct {
	store         workflow.StateStore
	executionRepo workflow.ExecutionRepository
}

var _ workflow.StateManager = (*StateManager)(nil)

func NewStateManager(store workflow.StateStore, executionRepo workflow.ExecutionRepository) *StateManager {
	return &StateManager{
		store:         store,
		executionRepo: executionRepo,
	}
}

// Create persists a fresh execution together with its initial state.
func (m *StateManager) Create(ctx context.Context, exec *workflow.WorkflowExecution, initial map[string]any) (*workflow.ExecutionState, error) {
	if err := m.executionRepo.Save(ctx, *exec); err != nil {
		return nil, errx.Wrap(err, "failed to save new execution", errx.TypeInternal)
	}

	state := workflow.NewExecutionState(exec.ID, exec.SessionID, exec.CurrentStepID, initial)
	if err := m.store.Put(ctx, state); err != nil {
		return nil, errx.Wrap(err, "failed to store initial execution state", errx.TypeInternal)
	}

	log.Printf("📦 Created execution state for %s (session %s)", exec.ID, exec.SessionID)
	return state, nil
}

func (m *StateManager) Load(ctx context.Context, executionID kernel.ExecutionID) (*workflow.ExecutionState, error) {
	state, err := m.store.Get(ctx, executionID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return nil, workflow.ErrStateNotFound().
				WithDetail("execution_id", executionID.String())
		}
		return nil, err
	}
	return state, nil
}

// Persist writes the execution row first and then the state under the
// optimistic version check. A conflict means another writer advanced this
// execution concurrently; it propagates as-is.
func (m *StateManager) Persist(ctx context.Context, exec *workflow.WorkflowExecution, state *workflow.ExecutionState) error {
	if err := m.executionRepo.Save(ctx, *exec); err != nil {
		return errx.Wrap(err, "failed to save execution", errx.TypeInternal)
	}

	if err := m.store.Put(ctx, state); err != nil {
		if errx.IsType(err, errx.TypeConflict) {
			log.Printf("⚠️  State conflict on execution %s (version %d)", exec.ID, state.Version)
			return err
		}
		return errx.Wrap(err, "failed to store execution state", errx.TypeInternal)
	}

	return nil
}

// Expire drops the cached state. The durable execution row survives; a
// missing entry is not an error.
func (m *StateManager) Expire(ctx context.Context, executionID kernel.ExecutionID) error {
	if err := m.store.Delete(ctx, executionID); err != nil && !errx.IsType(err, errx.TypeNotFound) {
		return err
	}
	return nil
}
