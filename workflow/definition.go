package workflow

import (
	"time"

	"github.com/Abraxas-365/convo/pkg/kernel"
)

// ============================================================================
// WorkflowDefinition Entity
// ============================================================================

// WorkflowDefinition representa el grafo validado de pasos de un tenant.
// Immutable once referenced by a running execution: edits create a new
// version, running executions stay pinned to the version they started on.
type WorkflowDefinition struct {
	ID          kernel.WorkflowID `db:"id" json:"id"`
	TenantID    kernel.TenantID   `db:"tenant_id" json:"tenant_id"`
	Name        string            `db:"name" json:"name"`
	Description string            `db:"description" json:"description"`
	Version     int               `db:"version" json:"version"`
	StartStep   string            `db:"start_step" json:"start_step"`
	Variables   map[string]any    `db:"variables" json:"variables,omitempty"`
	Steps       []Step            `db:"steps" json:"steps"`
	Trigger     WorkflowTrigger   `db:"trigger" json:"trigger"`
	IsActive    bool              `db:"is_active" json:"is_active"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// IsValid verifica si la definición es válida
func (d *WorkflowDefinition) IsValid() bool {
	return !d.ID.IsEmpty() && !d.TenantID.IsEmpty() && d.Name != "" &&
		d.StartStep != "" && len(d.Steps) > 0
}

// StepByID obtiene un paso por ID
func (d *WorkflowDefinition) StepByID(stepID string) *Step {
	for i := range d.Steps {
		if d.Steps[i].ID == stepID {
			return &d.Steps[i]
		}
	}
	return nil
}

// Activate activa la definición
func (d *WorkflowDefinition) Activate() {
	d.IsActive = true
	d.UpdatedAt = time.Now()
}

// Deactivate desactiva la definición
func (d *WorkflowDefinition) Deactivate() {
	d.IsActive = false
	d.UpdatedAt = time.Now()
}

// NextVersion returns a copy carrying the given steps under a bumped version.
// The receiver is left untouched so executions pinned to it keep a stable
// graph.
func (d *WorkflowDefinition) NextVersion(steps []Step, startStep string) WorkflowDefinition {
	next := *d
	next.Steps = steps
	next.StartStep = startStep
	next.Version = d.Version + 1
	next.UpdatedAt = time.Now()
	return next
}
