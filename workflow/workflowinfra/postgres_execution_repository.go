package workflowinfra

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Abraxas-365/convo/pkg/kernel"
	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/storex"
	"github.com/jmoiron/sqlx"
)

type PostgresExecutionRepository struct {
	db *sqlx.DB
}

var _ workflow.ExecutionRepository = (*PostgresExecutionRepository)(nil)

func NewPostgresExecutionRepository(db *sqlx.DB) *PostgresExecutionRepository {
	return &PostgresExecutionRepository{db: db}
}

// dbExecution is an intermediate struct for database operations
type dbExecution struct {
	ID              string     `db:"id"`
	WorkflowID      string     `db:"workflow_id"`
	WorkflowVersion int        `db:"workflow_version"`
	TenantID        string     `db:"tenant_id"`
	SessionID       string     `db:"session_id"`
	Status          string     `db:"status"`
	CurrentStepID   string     `db:"current_step_id"`
	StepsCompleted  int        `db:"steps_completed"`
	Error           string     `db:"error"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
	CompletedAt     *time.Time `db:"completed_at"`
}

func toDBExecution(exec workflow.WorkflowExecution) *dbExecution {
	return &dbExecution{
		ID:              exec.ID.String(),
		WorkflowID:      exec.WorkflowID.String(),
		WorkflowVersion: exec.WorkflowVersion,
		TenantID:        exec.TenantID.String(),
		SessionID:       exec.SessionID.String(),
		Status:          string(exec.Status),
		CurrentStepID:   exec.CurrentStepID,
		StepsCompleted:  exec.StepsCompleted,
		Error:           exec.Error,
		CreatedAt:       exec.CreatedAt,
		UpdatedAt:       exec.UpdatedAt,
		CompletedAt:     exec.CompletedAt,
	}
}

func toDomainExecution(dbExec *dbExecution) *workflow.WorkflowExecution {
	return &workflow.WorkflowExecution{
		ID:              kernel.ExecutionID(dbExec.ID),
		WorkflowID:      kernel.WorkflowID(dbExec.WorkflowID),
		WorkflowVersion: dbExec.WorkflowVersion,
		TenantID:        kernel.TenantID(dbExec.TenantID),
		SessionID:       kernel.SessionID(dbExec.SessionID),
		Status:          workflow.ExecutionStatus(dbExec.Status),
		CurrentStepID:   dbExec.CurrentStepID,
		StepsCompleted:  dbExec.StepsCompleted,
		Error:           dbExec.Error,
		CreatedAt:       dbExec.CreatedAt,
		UpdatedAt:       dbExec.UpdatedAt,
		CompletedAt:     dbExec.CompletedAt,
	}
}

const executionColumns = `
	id, workflow_id, workflow_version, tenant_id, session_id, status,
	current_step_id, steps_completed, error, created_at, updated_at, completed_at`

func (r *PostgresExecutionRepository) Save(ctx context.Context, exec workflow.WorkflowExecution) error {
	dbExec := toDBExecution(exec)

	query := `
		INSERT INTO workflow_executions (
			id, workflow_id, workflow_version, tenant_id, session_id, status,
			current_step_id, steps_completed, error, created_at, updated_at, completed_at
		) VALUES (
			:id, :workflow_id, :workflow_version, :tenant_id, :session_id, :status,
			:current_step_id, :steps_completed, :error, :created_at, :updated_at, :completed_at
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_step_id = EXCLUDED.current_step_id,
			steps_completed = EXCLUDED.steps_completed,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at`

	_, err := r.db.NamedExecContext(ctx, query, dbExec)
	if err != nil {
		return errx.Wrap(err, "failed to save execution", errx.TypeInternal).
			WithDetail("execution_id", exec.ID.String())
	}

	return nil
}

func (r *PostgresExecutionRepository) FindByID(ctx context.Context, id kernel.ExecutionID) (*workflow.WorkflowExecution, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM workflow_executions
		WHERE id = $1`, executionColumns)

	var dbExec dbExecution
	err := r.db.GetContext(ctx, &dbExec, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, workflow.ErrExecutionNotFound().WithDetail("execution_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to find execution by id", errx.TypeInternal).
			WithDetail("execution_id", id.String())
	}

	return toDomainExecution(&dbExec), nil
}

// FindActiveBySession returns the single non-terminal execution for the
// session, if any. The unique partial index on (session_id) guarantees at
// most one exists.
func (r *PostgresExecutionRepository) FindActiveBySession(ctx context.Context, sessionID kernel.SessionID) (*workflow.WorkflowExecution, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM workflow_executions
		WHERE session_id = $1
			AND status IN ('PENDING', 'RUNNING', 'WAITING_INPUT')
		ORDER BY created_at DESC
		LIMIT 1`, executionColumns)

	var dbExec dbExecution
	err := r.db.GetContext(ctx, &dbExec, query, sessionID.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, workflow.ErrExecutionNotFound().WithDetail("session_id", sessionID.String())
		}
		return nil, errx.Wrap(err, "failed to find active execution", errx.TypeInternal).
			WithDetail("session_id", sessionID.String())
	}

	return toDomainExecution(&dbExec), nil
}

func (r *PostgresExecutionRepository) List(ctx context.Context, req workflow.ExecutionListRequest) (workflow.ExecutionListResponse, error) {
	var conditions []string
	var args []any
	argPos := 1

	conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argPos))
	args = append(args, req.TenantID.String())
	argPos++

	if !req.SessionID.IsEmpty() {
		conditions = append(conditions, fmt.Sprintf("session_id = $%d", argPos))
		args = append(args, req.SessionID.String())
		argPos++
	}

	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(*req.Status))
		argPos++
	}

	if !req.Workflow.IsEmpty() {
		conditions = append(conditions, fmt.Sprintf("workflow_id = $%d", argPos))
		args = append(args, req.Workflow.String())
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM workflow_executions WHERE %s", whereClause)
	var total int
	err := r.db.GetContext(ctx, &total, countQuery, args...)
	if err != nil {
		return workflow.ExecutionListResponse{}, errx.Wrap(err, "failed to count executions", errx.TypeInternal)
	}

	dataQuery := fmt.Sprintf(`
		SELECT %s
		FROM workflow_executions
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		executionColumns, whereClause, argPos, argPos+1)

	args = append(args, req.PageSize, req.GetOffset())

	var dbExecs []dbExecution
	err = r.db.SelectContext(ctx, &dbExecs, dataQuery, args...)
	if err != nil {
		return workflow.ExecutionListResponse{}, errx.Wrap(err, "failed to list executions", errx.TypeInternal)
	}

	execs := make([]workflow.WorkflowExecution, 0, len(dbExecs))
	for i := range dbExecs {
		execs = append(execs, *toDomainExecution(&dbExecs[i]))
	}

	return storex.NewPaginated(execs, req.Page, req.PageSize, total), nil
}
