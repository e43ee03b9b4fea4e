package workflowinfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Abraxas-365/convo/pkg/kernel"
	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/storex"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type PostgresDefinitionRepository struct {
	db *sqlx.DB
}

var _ workflow.DefinitionRepository = (*PostgresDefinitionRepository)(nil)

func NewPostgresDefinitionRepository(db *sqlx.DB) *PostgresDefinitionRepository {
	return &PostgresDefinitionRepository{db: db}
}

// dbDefinition is an intermediate struct for database operations. Versions
// are rows: (id, version) is the primary key, so pinned executions always
// find the exact graph they started on.
type dbDefinition struct {
	ID          string          `db:"id"`
	TenantID    string          `db:"tenant_id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Version     int             `db:"version"`
	StartStep   string          `db:"start_step"`
	Variables   json.RawMessage `db:"variables"`
	Steps       json.RawMessage `db:"steps"`
	Trigger     json.RawMessage `db:"trigger"`
	IsActive    bool            `db:"is_active"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func toDBDefinition(def workflow.WorkflowDefinition) (*dbDefinition, error) {
	triggerJSON, err := json.Marshal(def.Trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger: %w", err)
	}

	stepsJSON := []byte("[]")
	if len(def.Steps) > 0 {
		stepsJSON, err = json.Marshal(def.Steps)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal steps: %w", err)
		}
	}

	variablesJSON := []byte("{}")
	if len(def.Variables) > 0 {
		variablesJSON, err = json.Marshal(def.Variables)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal variables: %w", err)
		}
	}

	return &dbDefinition{
		ID:          def.ID.String(),
		TenantID:    def.TenantID.String(),
		Name:        def.Name,
		Description: def.Description,
		Version:     def.Version,
		StartStep:   def.StartStep,
		Variables:   variablesJSON,
		Steps:       stepsJSON,
		Trigger:     triggerJSON,
		IsActive:    def.IsActive,
		CreatedAt:   def.CreatedAt,
		UpdatedAt:   def.UpdatedAt,
	}, nil
}

func toDomainDefinition(dbDef *dbDefinition) (*workflow.WorkflowDefinition, error) {
	var trigger workflow.WorkflowTrigger
	if len(dbDef.Trigger) > 0 && string(dbDef.Trigger) != "null" {
		if err := json.Unmarshal(dbDef.Trigger, &trigger); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger: %w", err)
		}
	}

	var steps []workflow.Step
	if len(dbDef.Steps) > 0 && string(dbDef.Steps) != "null" {
		if err := json.Unmarshal(dbDef.Steps, &steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
		}
	}

	var variables map[string]any
	if len(dbDef.Variables) > 0 && string(dbDef.Variables) != "null" {
		if err := json.Unmarshal(dbDef.Variables, &variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	return &workflow.WorkflowDefinition{
		ID:          kernel.WorkflowID(dbDef.ID),
		TenantID:    kernel.TenantID(dbDef.TenantID),
		Name:        dbDef.Name,
		Description: dbDef.Description,
		Version:     dbDef.Version,
		StartStep:   dbDef.StartStep,
		Variables:   variables,
		Steps:       steps,
		Trigger:     trigger,
		IsActive:    dbDef.IsActive,
		CreatedAt:   dbDef.CreatedAt,
		UpdatedAt:   dbDef.UpdatedAt,
	}, nil
}

// "trigger" is a reserved word in Postgres, hence the quoting.
const definitionColumns = `
	id, tenant_id, name, description, version, start_step,
	variables, steps, "trigger", is_active, created_at, updated_at`

func (r *PostgresDefinitionRepository) Save(ctx context.Context, def workflow.WorkflowDefinition) error {
	dbDef, err := toDBDefinition(def)
	if err != nil {
		return errx.Wrap(err, "failed to convert definition", errx.TypeInternal).
			WithDetail("workflow_id", def.ID.String())
	}

	query := `
		INSERT INTO workflow_definitions (
			id, tenant_id, name, description, version, start_step,
			variables, steps, "trigger", is_active, created_at, updated_at
		) VALUES (
			:id, :tenant_id, :name, :description, :version, :start_step,
			:variables, :steps, :trigger, :is_active, :created_at, :updated_at
		)
		ON CONFLICT (id, version) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			start_step = EXCLUDED.start_step,
			variables = EXCLUDED.variables,
			steps = EXCLUDED.steps,
			"trigger" = EXCLUDED."trigger",
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.NamedExecContext(ctx, query, dbDef)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errx.New("definition name already exists for tenant", errx.TypeConflict).
				WithDetail("name", def.Name).
				WithDetail("tenant_id", def.TenantID.String())
		}
		return errx.Wrap(err, "failed to save definition", errx.TypeInternal).
			WithDetail("workflow_id", def.ID.String())
	}

	return nil
}

// FindByID returns the latest version of the definition.
func (r *PostgresDefinitionRepository) FindByID(ctx context.Context, id kernel.WorkflowID) (*workflow.WorkflowDefinition, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM workflow_definitions
		WHERE id = $1
		ORDER BY version DESC
		LIMIT 1`, definitionColumns)

	var dbDef dbDefinition
	err := r.db.GetContext(ctx, &dbDef, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, workflow.ErrDefinitionNotFound().WithDetail("workflow_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to find definition by id", errx.TypeInternal).
			WithDetail("workflow_id", id.String())
	}

	return toDomainDefinition(&dbDef)
}

// FindVersion returns the exact pinned version.
func (r *PostgresDefinitionRepository) FindVersion(ctx context.Context, id kernel.WorkflowID, version int) (*workflow.WorkflowDefinition, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM workflow_definitions
		WHERE id = $1 AND version = $2`, definitionColumns)

	var dbDef dbDefinition
	err := r.db.GetContext(ctx, &dbDef, query, id.String(), version)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, workflow.ErrDefinitionNotFound().
				WithDetail("workflow_id", id.String()).
				WithDetail("version", version)
		}
		return nil, errx.Wrap(err, "failed to find definition version", errx.TypeInternal).
			WithDetail("workflow_id", id.String())
	}

	return toDomainDefinition(&dbDef)
}

// FindActiveByTenant returns the latest active version of every active
// definition for the tenant, the candidate set for trigger detection.
func (r *PostgresDefinitionRepository) FindActiveByTenant(ctx context.Context, tenantID kernel.TenantID) ([]*workflow.WorkflowDefinition, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT ON (id) %s
		FROM workflow_definitions
		WHERE tenant_id = $1 AND is_active = true
		ORDER BY id, version DESC`, definitionColumns)

	var dbDefs []dbDefinition
	err := r.db.SelectContext(ctx, &dbDefs, query, tenantID.String())
	if err != nil {
		return nil, errx.Wrap(err, "failed to find active definitions", errx.TypeInternal).
			WithDetail("tenant_id", tenantID.String())
	}

	result := make([]*workflow.WorkflowDefinition, 0, len(dbDefs))
	for i := range dbDefs {
		def, err := toDomainDefinition(&dbDefs[i])
		if err != nil {
			return nil, errx.Wrap(err, "failed to convert definition", errx.TypeInternal)
		}
		result = append(result, def)
	}

	return result, nil
}

func (r *PostgresDefinitionRepository) List(ctx context.Context, req workflow.DefinitionListRequest) (workflow.DefinitionListResponse, error) {
	var conditions []string
	var args []any
	argPos := 1

	conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argPos))
	args = append(args, req.TenantID.String())
	argPos++

	if req.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argPos))
		args = append(args, *req.IsActive)
		argPos++
	}

	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", argPos, argPos+1))
		searchPattern := "%" + req.Search + "%"
		args = append(args, searchPattern, searchPattern)
		argPos += 2
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf(`
		SELECT COUNT(*) FROM (
			SELECT DISTINCT ON (id) id
			FROM workflow_definitions
			WHERE %s
			ORDER BY id, version DESC
		) latest`, whereClause)
	var total int
	err := r.db.GetContext(ctx, &total, countQuery, args...)
	if err != nil {
		return workflow.DefinitionListResponse{}, errx.Wrap(err, "failed to count definitions", errx.TypeInternal)
	}

	dataQuery := fmt.Sprintf(`
		SELECT * FROM (
			SELECT DISTINCT ON (id) %s
			FROM workflow_definitions
			WHERE %s
			ORDER BY id, version DESC
		) latest
		ORDER BY name ASC
		LIMIT $%d OFFSET $%d`,
		definitionColumns, whereClause, argPos, argPos+1)

	args = append(args, req.PageSize, req.GetOffset())

	var dbDefs []dbDefinition
	err = r.db.SelectContext(ctx, &dbDefs, dataQuery, args...)
	if err != nil {
		return workflow.DefinitionListResponse{}, errx.Wrap(err, "failed to list definitions", errx.TypeInternal)
	}

	defs := make([]workflow.WorkflowDefinition, 0, len(dbDefs))
	for i := range dbDefs {
		def, err := toDomainDefinition(&dbDefs[i])
		if err != nil {
			return workflow.DefinitionListResponse{}, errx.Wrap(err, "failed to convert definition", errx.TypeInternal)
		}
		defs = append(defs, *def)
	}

	return storex.NewPaginated(defs, req.Page, req.PageSize, total), nil
}

// Delete removes every version of the definition for the tenant.
func (r *PostgresDefinitionRepository) Delete(ctx context.Context, id kernel.WorkflowID, tenantID kernel.TenantID) error {
	query := `DELETE FROM workflow_definitions WHERE id = $1 AND tenant_id = $2`

	result, err := r.db.ExecContext(ctx, query, id.String(), tenantID.String())
	if err != nil {
		return errx.Wrap(err, "failed to delete definition", errx.TypeInternal).
			WithDetail("workflow_id", id.String())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return workflow.ErrDefinitionNotFound().WithDetail("workflow_id", id.String())
	}

	return nil
}
