package statemanager

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/convo/pkg/kernel"
	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/convo/workflow/workflowinfra"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/stretchr/testify/require"
)

func newExecution(id string) *workflow.WorkflowExecution {
	now := time.Now()
	return &workflow.WorkflowExecution{
		ID:              kernel.NewExecutionID(id),
		WorkflowID:      kernel.WorkflowID("wf-1"),
		WorkflowVersion: 1,
		TenantID:        kernel.TenantID("tenant-1"),
		SessionID:       kernel.SessionID("session-1"),
		Status:          workflow.ExecutionStatusPending,
		CurrentStepID:   "start",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestCreateAndLoad(t *testing.T) {
	ctx := context.Background()
	store := workflowinfra.NewMemoryStateStore()
	execs := workflowinfra.NewMemoryExecutionRepository()
	manager := NewStateManager(store, execs)

	exec := newExecution("exec-1")
	state, err := manager.Create(ctx, exec, map[string]any{"name": "Ana"})
	require.NoError(t, err)
	require.Equal(t, "start", state.CurrentStepID)

	// Both halves exist: the durable row and the cached state.
	stored, err := execs.FindByID(ctx, exec.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.ExecutionStatusPending, stored.Status)

	loaded, err := manager.Load(ctx, exec.ID)
	require.NoError(t, err)
	v, ok := loaded.Get("name")
	require.True(t, ok)
	require.Equal(t, "Ana", v)
}

func TestLoadUnknownExecution(t *testing.T) {
	ctx := context.Background()
	manager := NewStateManager(workflowinfra.NewMemoryStateStore(), workflowinfra.NewMemoryExecutionRepository())

	_, err := manager.Load(ctx, kernel.NewExecutionID("ghost"))
	require.Error(t, err)
	require.True(t, errx.IsType(err, errx.TypeNotFound))
}

func TestPersistVersionConflict(t *testing.T) {
	ctx := context.Background()
	store := workflowinfra.NewMemoryStateStore()
	execs := workflowinfra.NewMemoryExecutionRepository()
	manager := NewStateManager(store, execs)

	exec := newExecution("exec-1")
	_, err := manager.Create(ctx, exec, nil)
	require.NoError(t, err)

	// Two turns load the same version.
	first, err := manager.Load(ctx, exec.ID)
	require.NoError(t, err)
	second, err := manager.Load(ctx, exec.ID)
	require.NoError(t, err)

	first.MergeVariables(map[string]any{"winner": "first"})
	require.NoError(t, manager.Persist(ctx, exec, first))

	// The loser is rejected, never merged.
	second.MergeVariables(map[string]any{"winner": "second"})
	err = manager.Persist(ctx, exec, second)
	require.Error(t, err)
	require.True(t, errx.IsType(err, errx.TypeConflict))

	loaded, err := manager.Load(ctx, exec.ID)
	require.NoError(t, err)
	v, _ := loaded.Get("winner")
	require.Equal(t, "first", v)
}

func TestPersistBumpsVersion(t *testing.T) {
	ctx := context.Background()
	store := workflowinfra.NewMemoryStateStore()
	manager := NewStateManager(store, workflowinfra.NewMemoryExecutionRepository())

	exec := newExecution("exec-1")
	state, err := manager.Create(ctx, exec, nil)
	require.NoError(t, err)

	before := state.Version
	require.NoError(t, manager.Persist(ctx, exec, state))
	require.Equal(t, before+1, state.Version)

	// The caller can keep persisting with its own copy.
	require.NoError(t, manager.Persist(ctx, exec, state))
}

func TestExpire(t *testing.T) {
	ctx := context.Background()
	store := workflowinfra.NewMemoryStateStore()
	manager := NewStateManager(store, workflowinfra.NewMemoryExecutionRepository())

	exec := newExecution("exec-1")
	_, err := manager.Create(ctx, exec, nil)
	require.NoError(t, err)

	require.NoError(t, manager.Expire(ctx, exec.ID))
	_, err = manager.Load(ctx, exec.ID)
	require.Error(t, err)

	// The durable row is untouched and expiring twice is fine.
	require.NoError(t, manager.Expire(ctx, exec.ID))
}
