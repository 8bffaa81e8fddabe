package service

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-st-sourcing/internal/apperrors"
	"github.com/pesio-ai/be-st-sourcing/internal/database"
	"github.com/pesio-ai/be-st-sourcing/internal/logger"
	"github.com/pesio-ai/be-st-sourcing/internal/repository"
	"github.com/pesio-ai/be-st-sourcing/internal/workflow"
)

// WorkflowService orchestrates the workflow engine against persistence:
// it owns the transaction boundary, the row locks that linearize
// concurrent decisions, and the post-commit side-effect dispatch.
type WorkflowService struct {
	db             *database.DB
	trigger        *workflow.Trigger
	workflowRepo   *repository.WorkflowRepository
	offerRepo      *repository.OfferRepository
	jobRepo        *repository.JobRepository
	submissionRepo *repository.SubmissionRepository
	dispatcher     *SideEffectDispatcher
	log            *logger.Logger
}

// NewWorkflowService creates a WorkflowService.
func NewWorkflowService(
	db *database.DB,
	trigger *workflow.Trigger,
	workflowRepo *repository.WorkflowRepository,
	offerRepo *repository.OfferRepository,
	jobRepo *repository.JobRepository,
	submissionRepo *repository.SubmissionRepository,
	dispatcher *SideEffectDispatcher,
	log *logger.Logger,
) *WorkflowService {
	return &WorkflowService{
		db:             db,
		trigger:        trigger,
		workflowRepo:   workflowRepo,
		offerRepo:      offerRepo,
		jobRepo:        jobRepo,
		submissionRepo: submissionRepo,
		dispatcher:     dispatcher,
		log:            log,
	}
}

// ── Trigger ───────────────────────────────────────────────────────────────────

// TriggerTx selects and materializes a workflow for an entity event, applies
// the status projection to the entity, and persists both — all inside the
// caller's transaction, which must hold the entity's row lock. The returned
// side effects are the caller's to dispatch after commit.
func (s *WorkflowService) TriggerTx(
	ctx context.Context,
	tx pgx.Tx,
	in workflow.TriggerInput,
	snap workflow.EntitySnapshot,
) (*workflow.Result, *workflow.Projection, error) {
	res, err := s.trigger.Build(ctx, in)
	if err != nil {
		return nil, nil, err
	}

	if res != nil {
		if err := s.workflowRepo.CreateTx(ctx, tx, res.Instance, in.IsUpdated); err != nil {
			return nil, nil, err
		}
	}

	proj, err := workflow.Project(res, in.Event, snap)
	if err != nil {
		return nil, nil, err
	}
	if err := s.applyProjectionTx(ctx, tx, snap, proj); err != nil {
		return nil, nil, err
	}

	if res != nil {
		s.log.Info().
			Str("workflow_id", res.Instance.ID).
			Str("trigger_id", in.TriggerID).
			Str("event", in.Event).
			Str("flow_type", string(res.Instance.FlowType)).
			Str("workflow_status", string(res.Status)).
			Msg("workflow triggered")
	}
	return res, proj, nil
}

// ── Advance ───────────────────────────────────────────────────────────────────

// AdvanceRequest is one recipient decision against a persisted workflow.
type AdvanceRequest struct {
	WorkflowID     string
	PlacementOrder int
	UserID         string
	Decision       workflow.Decision
	ImpersonatorID string
}

// AdvanceWorkflow applies a recipient decision. The trigger entity row is
// locked first so racing recipients are linearized: the second writer sees
// the already-resolved recipient and takes the idempotent no-op path.
// On completion the entity status is projected inside the same transaction;
// side effects dispatch after commit.
func (s *WorkflowService) AdvanceWorkflow(ctx context.Context, req AdvanceRequest) (*workflow.Instance, error) {
	if req.UserID == "" {
		return nil, apperrors.InvalidInput("user_id", "acting user is required")
	}

	var (
		inst    *workflow.Instance
		effects []workflow.SideEffect
		actor   = req.UserID
	)
	if req.ImpersonatorID != "" {
		actor = req.ImpersonatorID
	}

	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		loaded, err := s.workflowRepo.GetByIDTx(ctx, tx, req.WorkflowID)
		if err != nil {
			return err
		}

		snap, err := s.lockTriggerEntity(ctx, tx, loaded)
		if err != nil {
			return err
		}

		outcome, err := workflow.Apply(loaded, workflow.AdvanceInput{
			PlacementOrder: req.PlacementOrder,
			UserID:         req.UserID,
			Decision:       req.Decision,
			ImpersonatorID: req.ImpersonatorID,
		})
		if err != nil {
			return err
		}
		inst = outcome.Instance

		if outcome.Idempotent {
			s.log.Info().
				Str("workflow_id", loaded.ID).
				Str("user_id", req.UserID).
				Str("decision", string(req.Decision)).
				Msg("duplicate decision ignored")
			return nil
		}

		if err := s.workflowRepo.UpdateStateTx(ctx, tx, loaded); err != nil {
			return err
		}

		if outcome.Status == workflow.InstanceCompleted {
			proj, err := workflow.Project(&workflow.Result{
				Instance: loaded,
				Status:   outcome.Status,
				Decision: outcome.Decision,
			}, loaded.Event, snap)
			if err != nil {
				return err
			}
			if err := s.applyProjectionTx(ctx, tx, snap, proj); err != nil {
				return err
			}
			effects = proj.SideEffects
		} else {
			// Intermediate decision: entity status is unchanged, only the
			// trail and reviewers-in-waiting care.
			effects = []workflow.SideEffect{
				{
					Kind:      workflow.EffectCandidateHistory,
					EventCode: loaded.Event + "_" + string(req.Decision),
					Payload: map[string]any{
						"program_id":   snap.ProgramID,
						"candidate_id": snap.CandidateID,
						"entity_type":  string(snap.Type),
						"entity_id":    snap.ID,
						"old_status":   snap.Status,
						"new_status":   snap.Status,
						"workflow_id":  loaded.ID,
					},
				},
				{
					Kind:      workflow.EffectNotification,
					EventCode: "workflow_level_resolved",
					Payload: map[string]any{
						"program_id":      snap.ProgramID,
						"entity_type":     string(snap.Type),
						"entity_id":       snap.ID,
						"workflow_id":     loaded.ID,
						"placement_order": req.PlacementOrder,
						"decision":        string(req.Decision),
					},
				},
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.Dispatch(ctx, effects, actor)
	return inst, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// IsActionable reports whether the user can currently act anywhere on the
// workflow. It is the same predicate the advancer enforces.
func (s *WorkflowService) IsActionable(inst *workflow.Instance, userID string) bool {
	if inst == nil || !inst.IsEnabled || inst.IsDeleted || inst.Status != workflow.InstancePending {
		return false
	}
	return workflow.FirstActionableLevel(inst.Levels, userID) != nil
}

// PendingForUser returns the workflows of one trigger type in a program
// that are pending the user's action.
func (s *WorkflowService) PendingForUser(
	ctx context.Context,
	programID, userID string,
	triggerType workflow.EntityType,
) ([]*workflow.Instance, error) {
	instances, err := s.workflowRepo.ListPendingByProgram(ctx, programID, triggerType)
	if err != nil {
		return nil, err
	}

	var pending []*workflow.Instance
	for _, inst := range instances {
		if s.IsActionable(inst, userID) {
			pending = append(pending, inst)
		}
	}
	return pending, nil
}

// CountPendingForUser returns the "pending my action" badge count.
func (s *WorkflowService) CountPendingForUser(
	ctx context.Context,
	programID, userID string,
	triggerType workflow.EntityType,
) (int, error) {
	pending, err := s.PendingForUser(ctx, programID, userID, triggerType)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// GetWorkflow returns a workflow instance by id.
func (s *WorkflowService) GetWorkflow(ctx context.Context, id string) (*workflow.Instance, error) {
	return s.workflowRepo.GetByID(ctx, id)
}

// GetActiveWorkflowForEntity returns the enabled instance gating an entity,
// or nil.
func (s *WorkflowService) GetActiveWorkflowForEntity(ctx context.Context, triggerID string) (*workflow.Instance, error) {
	return s.workflowRepo.GetActiveByTriggerID(ctx, triggerID)
}

// Dispatch forwards side effects to the dispatcher. Entity services call it
// after their own transactions commit.
func (s *WorkflowService) Dispatch(ctx context.Context, effects []workflow.SideEffect, actor string) {
	s.dispatcher.Dispatch(ctx, effects, actor)
}

// ── Internals ─────────────────────────────────────────────────────────────────

// lockTriggerEntity takes the row lock on the workflow's trigger entity and
// returns its snapshot. A missing entity is an inconsistency: the workflow
// points at something that no longer exists.
func (s *WorkflowService) lockTriggerEntity(ctx context.Context, tx pgx.Tx, inst *workflow.Instance) (workflow.EntitySnapshot, error) {
	switch inst.TriggerType {
	case workflow.EntityOffer:
		offer, err := s.offerRepo.LockTx(ctx, tx, inst.TriggerID)
		if err != nil {
			return workflow.EntitySnapshot{}, s.asInconsistent(err, inst)
		}
		return workflow.EntitySnapshot{
			Type:          workflow.EntityOffer,
			ID:            offer.ID,
			ProgramID:     offer.ProgramID,
			Status:        offer.Status,
			CandidateID:   offer.CandidateID,
			JobID:         offer.JobID,
			SubmissionID:  offer.SubmissionID,
			ParentOfferID: offer.ParentOfferID,
		}, nil

	case workflow.EntityJob:
		job, err := s.jobRepo.LockTx(ctx, tx, inst.TriggerID)
		if err != nil {
			return workflow.EntitySnapshot{}, s.asInconsistent(err, inst)
		}
		return workflow.EntitySnapshot{
			Type:      workflow.EntityJob,
			ID:        job.ID,
			ProgramID: job.ProgramID,
			Status:    job.Status,
		}, nil

	case workflow.EntitySubmission:
		sub, err := s.submissionRepo.LockTx(ctx, tx, inst.TriggerID)
		if err != nil {
			return workflow.EntitySnapshot{}, s.asInconsistent(err, inst)
		}
		return workflow.EntitySnapshot{
			Type:        workflow.EntitySubmission,
			ID:          sub.ID,
			ProgramID:   sub.ProgramID,
			Status:      sub.Status,
			CandidateID: sub.CandidateID,
			JobID:       sub.JobID,
		}, nil
	}
	return workflow.EntitySnapshot{}, apperrors.InconsistentState("workflow has unknown trigger type " + string(inst.TriggerType))
}

func (s *WorkflowService) asInconsistent(err error, inst *workflow.Instance) error {
	if apperrors.IsCode(err, apperrors.CodeNotFound) {
		s.log.Error().
			Str("workflow_id", inst.ID).
			Str("trigger_id", inst.TriggerID).
			Str("trigger_type", string(inst.TriggerType)).
			Msg("workflow references a missing trigger entity")
		return apperrors.InconsistentState("workflow trigger entity no longer exists")
	}
	return err
}

// applyProjectionTx writes the projected status onto the trigger entity and
// performs the counter-offer merge when requested, atomically with the
// caller's transaction.
func (s *WorkflowService) applyProjectionTx(ctx context.Context, tx pgx.Tx, snap workflow.EntitySnapshot, proj *workflow.Projection) error {
	switch snap.Type {
	case workflow.EntityOffer:
		if proj.MergeCounterOffer && snap.ParentOfferID != nil {
			if _, err := s.offerRepo.LockTx(ctx, tx, *snap.ParentOfferID); err != nil {
				return s.mergeInconsistent(err)
			}
			if err := s.offerRepo.MergeCounterOfferTx(ctx, tx, *snap.ParentOfferID, snap.ID, workflow.OfferClosedStatus); err != nil {
				return err
			}
		}
		if err := s.offerRepo.UpdateStatusTx(ctx, tx, snap.ID, proj.NewStatus); err != nil {
			return err
		}
		if proj.SubmissionStatus != "" && snap.SubmissionID != "" {
			if err := s.submissionRepo.UpdateStatusTx(ctx, tx, snap.SubmissionID, proj.SubmissionStatus); err != nil {
				return err
			}
		}
		return nil

	case workflow.EntityJob:
		return s.jobRepo.UpdateStatusTx(ctx, tx, snap.ID, proj.NewStatus)

	case workflow.EntitySubmission:
		return s.submissionRepo.UpdateStatusTx(ctx, tx, snap.ID, proj.NewStatus)
	}
	return apperrors.InconsistentState("cannot project status for unknown entity type " + string(snap.Type))
}

func (s *WorkflowService) mergeInconsistent(err error) error {
	if apperrors.IsCode(err, apperrors.CodeNotFound) {
		return apperrors.InconsistentState("counter offer references a missing parent offer")
	}
	return err
}
