package triggerdetect

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/convo/pkg/kernel"
	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/convo/workflow/workflowinfra"
	"github.com/stretchr/testify/require"
)

func saveDefinition(t *testing.T, repo workflow.DefinitionRepository, id string, tenant kernel.TenantID, trigger workflow.WorkflowTrigger, createdAt time.Time, active bool) {
	t.Helper()
	def := workflow.WorkflowDefinition{
		ID:        kernel.WorkflowID(id),
		TenantID:  tenant,
		Name:      id,
		Version:   1,
		StartStep: "start",
		Steps: []workflow.Step{
			{ID: "start", Type: workflow.StepTypeMessage, Content: "hi"},
		},
		Trigger:   trigger,
		IsActive:  active,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, repo.Save(context.Background(), def))
}

func TestDetectorKeywordMatch(t *testing.T) {
	repo := workflowinfra.NewMemoryDefinitionRepository()
	tenant := kernel.TenantID("tenant-1")
	now := time.Now()

	saveDefinition(t, repo, "wf-order", tenant,
		workflow.WorkflowTrigger{Keywords: []string{"order"}, Priority: 5}, now, true)

	detector := NewDetector(repo)

	def, err := detector.Detect(context.Background(), tenant, "I want to ORDER a pizza")
	require.NoError(t, err)
	require.NotNil(t, def)
	require.Equal(t, kernel.WorkflowID("wf-order"), def.ID)
}

func TestDetectorPatternMatch(t *testing.T) {
	repo := workflowinfra.NewMemoryDefinitionRepository()
	tenant := kernel.TenantID("tenant-1")

	saveDefinition(t, repo, "wf-ticket", tenant,
		workflow.WorkflowTrigger{Patterns: []string{`ticket #\d+`}}, time.Now(), true)

	detector := NewDetector(repo)

	def, err := detector.Detect(context.Background(), tenant, "status of ticket #42 please")
	require.NoError(t, err)
	require.NotNil(t, def)

	def, err = detector.Detect(context.Background(), tenant, "status of ticket please")
	require.NoError(t, err)
	require.Nil(t, def)
}

func TestDetectorPriorityOrdering(t *testing.T) {
	repo := workflowinfra.NewMemoryDefinitionRepository()
	tenant := kernel.TenantID("tenant-1")
	now := time.Now()

	saveDefinition(t, repo, "wf-low", tenant,
		workflow.WorkflowTrigger{Keywords: []string{"help"}, Priority: 1}, now.Add(-2*time.Hour), true)
	saveDefinition(t, repo, "wf-high", tenant,
		workflow.WorkflowTrigger{Keywords: []string{"help"}, Priority: 9}, now, true)

	detector := NewDetector(repo)

	def, err := detector.Detect(context.Background(), tenant, "help me")
	require.NoError(t, err)
	require.NotNil(t, def)
	require.Equal(t, kernel.WorkflowID("wf-high"), def.ID)
}

func TestDetectorPriorityTieBreaksOnCreation(t *testing.T) {
	repo := workflowinfra.NewMemoryDefinitionRepository()
	tenant := kernel.TenantID("tenant-1")
	now := time.Now()

	saveDefinition(t, repo, "wf-newer", tenant,
		workflow.WorkflowTrigger{Keywords: []string{"hola"}, Priority: 5}, now, true)
	saveDefinition(t, repo, "wf-older", tenant,
		workflow.WorkflowTrigger{Keywords: []string{"hola"}, Priority: 5}, now.Add(-time.Hour), true)

	detector := NewDetector(repo)

	def, err := detector.Detect(context.Background(), tenant, "hola")
	require.NoError(t, err)
	require.NotNil(t, def)
	require.Equal(t, kernel.WorkflowID("wf-older"), def.ID)
}

func TestDetectorSkipsInactiveAndOtherTenants(t *testing.T) {
	repo := workflowinfra.NewMemoryDefinitionRepository()
	tenant := kernel.TenantID("tenant-1")
	now := time.Now()

	saveDefinition(t, repo, "wf-inactive", tenant,
		workflow.WorkflowTrigger{Keywords: []string{"hello"}}, now, false)
	saveDefinition(t, repo, "wf-foreign", kernel.TenantID("tenant-2"),
		workflow.WorkflowTrigger{Keywords: []string{"hello"}}, now, true)

	detector := NewDetector(repo)

	def, err := detector.Detect(context.Background(), tenant, "hello")
	require.NoError(t, err)
	require.Nil(t, def)
}

func TestDetectorNoMatchReturnsNil(t *testing.T) {
	repo := workflowinfra.NewMemoryDefinitionRepository()
	detector := NewDetector(repo)

	def, err := detector.Detect(context.Background(), kernel.TenantID("tenant-1"), "nothing here")
	require.NoError(t, err)
	require.Nil(t, def)

	def, err = detector.Detect(context.Background(), kernel.TenantID("tenant-1"), "")
	require.NoError(t, err)
	require.Nil(t, def)
}
