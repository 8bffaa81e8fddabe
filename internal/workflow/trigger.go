package workflow

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-st-sourcing/internal/apperrors"
)

// RoleResolver resolves a recipient role template to the concrete user ids
// entitled to act on it within a program and hierarchy set.
type RoleResolver interface {
	ResolveUsers(ctx context.Context, programID, role string, hierarchyIDs []string) ([]string, error)
}

// TriggerInput describes the entity mutation that may require gating.
type TriggerInput struct {
	ProgramID    string
	ModuleID     string
	Event        string
	TriggerID    string
	TriggerType  EntityType
	HierarchyIDs []string
	// IsUpdated marks a re-trigger caused by editing the entity; the
	// service supersedes the prior instance instead of mutating it.
	IsUpdated bool
}

// Trigger materializes workflow instances from selected configs.
type Trigger struct {
	selector *Selector
	resolver RoleResolver
	log      zerolog.Logger
}

// NewTrigger creates a Trigger.
func NewTrigger(selector *Selector, resolver RoleResolver, log zerolog.Logger) *Trigger {
	return &Trigger{selector: selector, resolver: resolver, log: log}
}

// Build selects a config and materializes an unpersisted instance for the
// event. Returns nil when no config matches. When a Review config resolves
// with zero actionable levels the trigger falls back to an Approval config
// before settling for the vacuously completed Review instance.
func (t *Trigger) Build(ctx context.Context, in TriggerInput) (*Result, error) {
	if in.TriggerID == "" {
		return nil, apperrors.InvalidInput("trigger_id", "trigger entity id is required")
	}

	cfg, err := t.selector.Select(ctx, in.ProgramID, in.ModuleID, in.Event, in.HierarchyIDs, "")
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, nil
	}

	inst, err := t.materialize(ctx, cfg, in)
	if err != nil {
		return nil, err
	}

	if cfg.FlowType == FlowReview && !HasActionableWork(inst.Levels) {
		fallback, err := t.selector.Select(ctx, in.ProgramID, in.ModuleID, in.Event, in.HierarchyIDs, FlowApproval)
		if err != nil {
			return nil, err
		}
		if fallback != nil {
			t.log.Debug().
				Str("program_id", in.ProgramID).
				Str("event", in.Event).
				Msg("review workflow has no actionable levels, falling back to approval config")
			inst, err = t.materialize(ctx, fallback, in)
			if err != nil {
				return nil, err
			}
		}
	}

	return &Result{Instance: inst, Status: inst.Status}, nil
}

// materialize builds a concrete instance from a config's level templates,
// resolving each recipient role to user ids. Levels whose roles resolve to
// nobody are kept with empty recipients and are vacuously satisfied.
func (t *Trigger) materialize(ctx context.Context, cfg *Config, in TriggerInput) (*Instance, error) {
	levels := make([]Level, 0, len(cfg.Levels))
	for _, tpl := range cfg.Levels {
		level := Level{
			PlacementOrder: tpl.PlacementOrder,
			Status:         LevelPending,
		}
		for _, rt := range tpl.Recipients {
			users, err := t.resolver.ResolveUsers(ctx, in.ProgramID, rt.Role, in.HierarchyIDs)
			if err != nil {
				return nil, apperrors.Wrap(err, apperrors.CodeInternal, "resolve recipient role "+rt.Role)
			}
			if len(users) == 0 {
				continue
			}
			level.Recipients = append(level.Recipients, Recipient{
				Status:   RecipientPending,
				MetaData: users,
				Role:     rt.Role,
			})
		}
		if len(level.Recipients) == 0 {
			level.Status = LevelBypassed
		}
		levels = append(levels, level)
	}
	levels = SortedLevels(levels)

	inst := &Instance{
		ProgramID:   in.ProgramID,
		TriggerID:   in.TriggerID,
		TriggerType: in.TriggerType,
		Event:       in.Event,
		FlowType:    cfg.FlowType,
		Status:      ComputeStatus(levels),
		IsEnabled:   true,
		Levels:      levels,
	}
	return inst, nil
}
