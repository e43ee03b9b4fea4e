package workflowinfra

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Abraxas-365/convo/pkg/kernel"
	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/jmoiron/sqlx"
)

// PostgresActionRecordRepository append-only store behind the
// save_to_database action. No updates, no deletes.
type PostgresActionRecordRepository struct {
	db *sqlx.DB
}

var _ workflow.ActionRecordRepository = (*PostgresActionRecordRepository)(nil)

func NewPostgresActionRecordRepository(db *sqlx.DB) *PostgresActionRecordRepository {
	return &PostgresActionRecordRepository{db: db}
}

type dbActionRecord struct {
	ID          string          `db:"id"`
	TenantID    string          `db:"tenant_id"`
	WorkflowID  string          `db:"workflow_id"`
	ExecutionID string          `db:"execution_id"`
	ActionName  string          `db:"action_name"`
	Data        json.RawMessage `db:"data"`
	CreatedAt   time.Time       `db:"created_at"`
}

func (r *PostgresActionRecordRepository) Append(ctx context.Context, record workflow.ActionRecord) error {
	dataJSON := []byte("{}")
	if len(record.Data) > 0 {
		var err error
		dataJSON, err = json.Marshal(record.Data)
		if err != nil {
			return errx.Wrap(err, "failed to marshal action data", errx.TypeInternal).
				WithDetail("record_id", record.ID.String())
		}
	}

	dbRecord := &dbActionRecord{
		ID:          record.ID.String(),
		TenantID:    record.TenantID.String(),
		WorkflowID:  record.WorkflowID.String(),
		ExecutionID: record.ExecutionID.String(),
		ActionName:  record.ActionName,
		Data:        dataJSON,
		CreatedAt:   record.CreatedAt,
	}

	query := `
		INSERT INTO workflow_action_records (
			id, tenant_id, workflow_id, execution_id, action_name, data, created_at
		) VALUES (
			:id, :tenant_id, :workflow_id, :execution_id, :action_name, :data, :created_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, dbRecord)
	if err != nil {
		return errx.Wrap(err, "failed to append action record", errx.TypeInternal).
			WithDetail("record_id", record.ID.String())
	}

	return nil
}

func (r *PostgresActionRecordRepository) FindByExecution(ctx context.Context, executionID kernel.ExecutionID) ([]*workflow.ActionRecord, error) {
	query := `
		SELECT id, tenant_id, workflow_id, execution_id, action_name, data, created_at
		FROM workflow_action_records
		WHERE execution_id = $1
		ORDER BY created_at ASC`

	var dbRecords []dbActionRecord
	err := r.db.SelectContext(ctx, &dbRecords, query, executionID.String())
	if err != nil {
		return nil, errx.Wrap(err, "failed to find action records", errx.TypeInternal).
			WithDetail("execution_id", executionID.String())
	}

	result := make([]*workflow.ActionRecord, 0, len(dbRecords))
	for i := range dbRecords {
		dbRec := &dbRecords[i]

		var data map[string]any
		if len(dbRec.Data) > 0 && string(dbRec.Data) != "null" {
			if err := json.Unmarshal(dbRec.Data, &data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal action data: %w", err)
			}
		}

		result = append(result, &workflow.ActionRecord{
			ID:          kernel.ActionRecordID(dbRec.ID),
			TenantID:    kernel.TenantID(dbRec.TenantID),
			WorkflowID:  kernel.WorkflowID(dbRec.WorkflowID),
			ExecutionID: kernel.ExecutionID(dbRec.ExecutionID),
			ActionName:  dbRec.ActionName,
			Data:        data,
			CreatedAt:   dbRec.CreatedAt,
		})
	}

	return result, nil
}
