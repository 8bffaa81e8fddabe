package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-st-sourcing/internal/apperrors"
	"github.com/pesio-ai/be-st-sourcing/internal/database"
	"github.com/pesio-ai/be-st-sourcing/internal/workflow"
)

// WorkflowConfigRepository reads workflow config templates. It implements
// workflow.ConfigStore; preference and hierarchy rules are applied by the
// selector, not in SQL.
type WorkflowConfigRepository struct {
	db *database.DB
}

// NewWorkflowConfigRepository creates a new WorkflowConfigRepository.
func NewWorkflowConfigRepository(db *database.DB) *WorkflowConfigRepository {
	return &WorkflowConfigRepository{db: db}
}

// ListConfigs returns every non-deleted config for a program/module/event.
func (r *WorkflowConfigRepository) ListConfigs(ctx context.Context, programID, moduleID, eventID string) ([]workflow.Config, error) {
	query := `
		SELECT id, program_id, module_id, event_id, flow_type,
		       hierarchies, is_associated_to_all_hierarchy,
		       is_enabled, is_deleted, levels, created_on
		FROM sourcing_workflow_configs
		WHERE program_id = $1
		  AND module_id = $2
		  AND event_id = $3
		  AND is_deleted = FALSE
		ORDER BY created_on DESC
	`

	rows, err := r.db.Query(ctx, query, programID, moduleID, eventID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list workflow configs")
	}
	defer rows.Close()

	var configs []workflow.Config
	for rows.Next() {
		cfg, err := r.scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

// GetByID retrieves one config by primary key.
func (r *WorkflowConfigRepository) GetByID(ctx context.Context, id string) (*workflow.Config, error) {
	query := `
		SELECT id, program_id, module_id, event_id, flow_type,
		       hierarchies, is_associated_to_all_hierarchy,
		       is_enabled, is_deleted, levels, created_on
		FROM sourcing_workflow_configs
		WHERE id = $1
	`

	cfg, err := r.scanConfig(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("workflow_config", id)
	}
	return cfg, err
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type configScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowConfigRepository) scanConfig(sc configScanner) (*workflow.Config, error) {
	cfg := &workflow.Config{}
	var flowType string
	var levelsJSON []byte

	err := sc.Scan(
		&cfg.ID,
		&cfg.ProgramID,
		&cfg.ModuleID,
		&cfg.EventID,
		&flowType,
		&cfg.Hierarchies,
		&cfg.AllHierarchies,
		&cfg.IsEnabled,
		&cfg.IsDeleted,
		&levelsJSON,
		&cfg.CreatedOn,
	)
	if err != nil {
		return nil, err
	}

	cfg.FlowType = workflow.FlowType(flowType)
	if len(levelsJSON) > 0 {
		if err := json.Unmarshal(levelsJSON, &cfg.Levels); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to unmarshal config levels")
		}
	}
	return cfg, nil
}
