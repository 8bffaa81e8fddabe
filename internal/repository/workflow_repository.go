package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-st-sourcing/internal/apperrors"
	"github.com/pesio-ai/be-st-sourcing/internal/database"
	"github.com/pesio-ai/be-st-sourcing/internal/workflow"
)

// WorkflowRepository persists workflow instances. Levels are stored as one
// JSONB column whose shape is defined by the engine's JSON tags and must
// round-trip exactly. Mutating methods take a database.Querier so the
// service can run them inside the transaction that holds the entity lock.
type WorkflowRepository struct {
	db *database.DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *database.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

const workflowColumns = `
	id, program_id, workflow_trigger_id, trigger_type, events, flow_type,
	status, is_enabled, is_deleted, levels, created_at, updated_at
`

// CreateTx inserts a new instance. When supersede is set, any currently
// enabled instance for the same trigger id is disabled first, in the same
// transaction, so two active instances never coexist.
func (r *WorkflowRepository) CreateTx(ctx context.Context, q database.Querier, inst *workflow.Instance, supersede bool) error {
	if supersede {
		disable := `
			UPDATE sourcing_workflows
			SET is_enabled = FALSE,
			    updated_at = NOW()
			WHERE workflow_trigger_id = $1
			  AND is_enabled = TRUE
		`
		if _, err := q.Exec(ctx, disable, inst.TriggerID); err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "failed to supersede prior workflow")
		}
	}

	levelsJSON, err := json.Marshal(inst.Levels)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal workflow levels")
	}

	query := `
		INSERT INTO sourcing_workflows
		    (program_id, workflow_trigger_id, trigger_type, events,
		     flow_type, status, is_enabled, is_deleted, levels)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7, FALSE, $8)
		RETURNING id, created_at, updated_at
	`

	err = q.QueryRow(ctx, query,
		inst.ProgramID,
		inst.TriggerID,
		string(inst.TriggerType),
		inst.Event,
		string(inst.FlowType),
		string(inst.Status),
		inst.IsEnabled,
		levelsJSON,
	).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create workflow instance")
	}
	return nil
}

// GetByID retrieves an instance by primary key.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*workflow.Instance, error) {
	query := `SELECT ` + workflowColumns + ` FROM sourcing_workflows WHERE id = $1`

	inst, err := r.scanInstance(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("workflow", id)
	}
	return inst, err
}

// GetByIDTx retrieves an instance inside a transaction with a row lock, so
// concurrent decisions on the same workflow are linearized.
func (r *WorkflowRepository) GetByIDTx(ctx context.Context, q database.Querier, id string) (*workflow.Instance, error) {
	query := `SELECT ` + workflowColumns + ` FROM sourcing_workflows WHERE id = $1 FOR UPDATE`

	inst, err := r.scanInstance(q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("workflow", id)
	}
	return inst, err
}

// GetActiveByTriggerID returns the enabled instance gating an entity, or
// nil when the entity is not gated.
func (r *WorkflowRepository) GetActiveByTriggerID(ctx context.Context, triggerID string) (*workflow.Instance, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM sourcing_workflows
		WHERE workflow_trigger_id = $1
		  AND is_enabled = TRUE
		  AND is_deleted = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`

	inst, err := r.scanInstance(r.db.QueryRow(ctx, query, triggerID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return inst, err
}

// GetActiveByTriggerIDTx is GetActiveByTriggerID inside the caller's
// transaction, with a row lock so the instance cannot be superseded between
// the read and a following disable.
func (r *WorkflowRepository) GetActiveByTriggerIDTx(ctx context.Context, q database.Querier, triggerID string) (*workflow.Instance, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM sourcing_workflows
		WHERE workflow_trigger_id = $1
		  AND is_enabled = TRUE
		  AND is_deleted = FALSE
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`

	inst, err := r.scanInstance(q.QueryRow(ctx, query, triggerID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return inst, err
}

// UpdateStateTx persists the levels and status recomputed by the engine.
func (r *WorkflowRepository) UpdateStateTx(ctx context.Context, q database.Querier, inst *workflow.Instance) error {
	levelsJSON, err := json.Marshal(inst.Levels)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal workflow levels")
	}

	query := `
		UPDATE sourcing_workflows
		SET levels     = $2,
		    status     = $3,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err = q.QueryRow(ctx, query, inst.ID, levelsJSON, string(inst.Status)).Scan(&inst.UpdatedAt)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("workflow", inst.ID)
	}
	return err
}

// DisableByTriggerIDTx soft-disables the active instance for an entity,
// used when the entity is withdrawn or closed.
func (r *WorkflowRepository) DisableByTriggerIDTx(ctx context.Context, q database.Querier, triggerID string) error {
	query := `
		UPDATE sourcing_workflows
		SET is_enabled = FALSE,
		    updated_at = NOW()
		WHERE workflow_trigger_id = $1
		  AND is_enabled = TRUE
	`

	_, err := q.Exec(ctx, query, triggerID)
	return err
}

// ListPendingByProgram returns the enabled, still-pending instances of one
// trigger type in a program. The pending-action query filters these in
// memory with the same gate evaluator the advancer uses.
func (r *WorkflowRepository) ListPendingByProgram(ctx context.Context, programID string, triggerType workflow.EntityType) ([]*workflow.Instance, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM sourcing_workflows
		WHERE program_id = $1
		  AND trigger_type = $2
		  AND status = 'pending'
		  AND is_enabled = TRUE
		  AND is_deleted = FALSE
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, programID, string(triggerType))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list pending workflows")
	}
	defer rows.Close()

	var instances []*workflow.Instance
	for rows.Next() {
		inst, err := r.scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// ── scan helper ───────────────────────────────────────────────────────────────

type instanceScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanInstance(sc instanceScanner) (*workflow.Instance, error) {
	inst := &workflow.Instance{}
	var triggerType, flowType, status string
	var levelsJSON []byte

	err := sc.Scan(
		&inst.ID,
		&inst.ProgramID,
		&inst.TriggerID,
		&triggerType,
		&inst.Event,
		&flowType,
		&status,
		&inst.IsEnabled,
		&inst.IsDeleted,
		&levelsJSON,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inst.TriggerType = workflow.EntityType(triggerType)
	inst.FlowType = workflow.FlowType(flowType)
	inst.Status = workflow.InstanceStatus(status)
	if len(levelsJSON) > 0 {
		if err := json.Unmarshal(levelsJSON, &inst.Levels); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to unmarshal workflow levels")
		}
	}
	inst.Levels = workflow.SortedLevels(inst.Levels)
	return inst, nil
}
