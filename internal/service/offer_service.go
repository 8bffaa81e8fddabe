package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-st-sourcing/internal/apperrors"
	"github.com/pesio-ai/be-st-sourcing/internal/database"
	"github.com/pesio-ai/be-st-sourcing/internal/logger"
	"github.com/pesio-ai/be-st-sourcing/internal/repository"
	"github.com/pesio-ai/be-st-sourcing/internal/workflow"
)

// ModuleOffer is the workflow module id for offer events.
const ModuleOffer = "offer"

// OfferAcceptedStatus is the status of an offer the candidate accepted.
const OfferAcceptedStatus = "Accepted"

// OfferWithdrawnStatus is the status of an offer withdrawn by the program.
const OfferWithdrawnStatus = "Withdrawn"

// OfferService owns the offer lifecycle. Every status-changing operation
// runs the gating trigger inside the same transaction that mutates the
// offer row.
type OfferService struct {
	db             *database.DB
	offerRepo      *repository.OfferRepository
	submissionRepo *repository.SubmissionRepository
	workflowRepo   *repository.WorkflowRepository
	workflows      *WorkflowService
	log            *logger.Logger
}

// NewOfferService creates an OfferService.
func NewOfferService(
	db *database.DB,
	offerRepo *repository.OfferRepository,
	submissionRepo *repository.SubmissionRepository,
	workflowRepo *repository.WorkflowRepository,
	workflows *WorkflowService,
	log *logger.Logger,
) *OfferService {
	return &OfferService{
		db:             db,
		offerRepo:      offerRepo,
		submissionRepo: submissionRepo,
		workflowRepo:   workflowRepo,
		workflows:      workflows,
		log:            log,
	}
}

// CreateOfferRequest carries the fields of a new offer.
type CreateOfferRequest struct {
	ProgramID    string
	JobID        string
	CandidateID  string
	SubmissionID string
	HierarchyIDs []string
	CustomFields map[string]interface{}
	StartDate    *time.Time
	EndDate      *time.Time
	CreatedBy    string
}

func (r CreateOfferRequest) validate() error {
	switch {
	case r.ProgramID == "":
		return apperrors.InvalidInput("program_id", "program id is required")
	case r.JobID == "":
		return apperrors.InvalidInput("job_id", "job id is required")
	case r.CandidateID == "":
		return apperrors.InvalidInput("candidate_id", "candidate id is required")
	case r.CreatedBy == "":
		return apperrors.InvalidInput("created_by", "acting user is required")
	}
	return nil
}

// CreateOffer creates an offer and runs the create_offer gate. The offer's
// initial status is whatever the projection decides: released straight to
// Pending Acceptance when no config matches, or parked behind a pending
// workflow.
func (s *OfferService) CreateOffer(ctx context.Context, req CreateOfferRequest) (*repository.Offer, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	return s.createGated(ctx, req, nil, workflow.EventCreateOffer)
}

// CounterOffer creates a counter offer against an existing offer and runs
// the counter_offer gate. When the counter releases, the parent closes and
// the counter's custom fields supersede it in the same transaction.
func (s *OfferService) CounterOffer(ctx context.Context, parentOfferID string, req CreateOfferRequest) (*repository.Offer, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if parentOfferID == "" {
		return nil, apperrors.InvalidInput("parent_offer_id", "parent offer id is required")
	}
	return s.createGated(ctx, req, &parentOfferID, workflow.EventCounterOffer)
}

func (s *OfferService) createGated(ctx context.Context, req CreateOfferRequest, parentOfferID *string, event string) (*repository.Offer, error) {
	offer := &repository.Offer{
		ProgramID:     req.ProgramID,
		JobID:         req.JobID,
		CandidateID:   req.CandidateID,
		SubmissionID:  req.SubmissionID,
		ParentOfferID: parentOfferID,
		Status:        "Draft",
		HierarchyIDs:  req.HierarchyIDs,
		CustomFields:  req.CustomFields,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		CreatedBy:     req.CreatedBy,
	}

	var effects []workflow.SideEffect
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if parentOfferID != nil {
			parent, err := s.offerRepo.LockTx(ctx, tx, *parentOfferID)
			if err != nil {
				return err
			}
			if parent.ProgramID != req.ProgramID {
				return apperrors.NotFound("offer", *parentOfferID)
			}
		}

		if err := s.offerRepo.CreateTx(ctx, tx, offer); err != nil {
			return err
		}

		_, proj, err := s.workflows.TriggerTx(ctx, tx, workflow.TriggerInput{
			ProgramID:    req.ProgramID,
			ModuleID:     ModuleOffer,
			Event:        event,
			TriggerID:    offer.ID,
			TriggerType:  workflow.EntityOffer,
			HierarchyIDs: req.HierarchyIDs,
		}, s.snapshotOf(offer))
		if err != nil {
			return err
		}
		offer.Status = proj.NewStatus
		effects = proj.SideEffects
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.workflows.Dispatch(ctx, effects, req.CreatedBy)
	return offer, nil
}

// UpdateOfferRequest carries the editable fields of an offer.
type UpdateOfferRequest struct {
	ProgramID    string
	CustomFields map[string]interface{}
	StartDate    *time.Time
	EndDate      *time.Time
	UpdatedBy    string
}

// UpdateOffer edits an offer and re-runs the update_offer gate. Any prior
// enabled workflow on the offer is superseded: it is disabled and a fresh
// instance is materialized from current config, atomically.
func (s *OfferService) UpdateOffer(ctx context.Context, offerID string, req UpdateOfferRequest) (*repository.Offer, error) {
	if req.UpdatedBy == "" {
		return nil, apperrors.InvalidInput("updated_by", "acting user is required")
	}

	var (
		offer   *repository.Offer
		effects []workflow.SideEffect
	)
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		offer, err = s.offerRepo.LockTx(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if offer.ProgramID != req.ProgramID {
			return apperrors.NotFound("offer", offerID)
		}
		if offer.Status == workflow.OfferClosedStatus || offer.Status == OfferWithdrawnStatus {
			return apperrors.PreconditionFailed("offer is " + offer.Status + " and can no longer be edited")
		}

		if req.CustomFields != nil {
			offer.CustomFields = req.CustomFields
		}
		if req.StartDate != nil {
			offer.StartDate = req.StartDate
		}
		if req.EndDate != nil {
			offer.EndDate = req.EndDate
		}
		if err := s.updateFieldsTx(ctx, tx, offer); err != nil {
			return err
		}

		_, proj, err := s.workflows.TriggerTx(ctx, tx, workflow.TriggerInput{
			ProgramID:    offer.ProgramID,
			ModuleID:     ModuleOffer,
			Event:        workflow.EventUpdateOffer,
			TriggerID:    offer.ID,
			TriggerType:  workflow.EntityOffer,
			HierarchyIDs: offer.HierarchyIDs,
			IsUpdated:    true,
		}, s.snapshotOf(offer))
		if err != nil {
			return err
		}
		offer.Status = proj.NewStatus
		effects = proj.SideEffects
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.workflows.Dispatch(ctx, effects, req.UpdatedBy)
	return offer, nil
}

// AcceptOffer records the candidate's acceptance. Only an offer that has
// cleared its gates (Pending Acceptance) can be accepted.
func (s *OfferService) AcceptOffer(ctx context.Context, offerID, programID, actedBy string) (*repository.Offer, error) {
	var offer *repository.Offer
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		offer, err = s.offerRepo.LockTx(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if offer.ProgramID != programID {
			return apperrors.NotFound("offer", offerID)
		}
		if offer.Status != "Pending Acceptance" {
			return apperrors.PreconditionFailed("offer must be Pending Acceptance to accept, got " + offer.Status)
		}

		if err := s.offerRepo.UpdateStatusTx(ctx, tx, offer.ID, OfferAcceptedStatus); err != nil {
			return err
		}
		offer.Status = OfferAcceptedStatus
		if offer.SubmissionID != "" {
			if err := s.submissionRepo.UpdateStatusTx(ctx, tx, offer.SubmissionID, "Offer Accepted"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.workflows.Dispatch(ctx, []workflow.SideEffect{
		{
			Kind:      workflow.EffectNotification,
			EventCode: "offer_accepted",
			Payload:   s.effectPayload(offer),
		},
		{
			Kind:      workflow.EffectCandidateHistory,
			EventCode: "offer_accepted",
			Payload:   s.historyPayload(offer, "Pending Acceptance", OfferAcceptedStatus),
		},
	}, actedBy)
	return offer, nil
}

// WithdrawOffer withdraws an offer, disabling any in-flight workflow so no
// late decision can resurrect it, and terminates the candidate's onboarding.
func (s *OfferService) WithdrawOffer(ctx context.Context, offerID, programID, actedBy string) (*repository.Offer, error) {
	var (
		offer      *repository.Offer
		oldStatus  string
		workflowID string
	)
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		offer, err = s.offerRepo.LockTx(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if offer.ProgramID != programID {
			return apperrors.NotFound("offer", offerID)
		}
		if offer.Status == OfferWithdrawnStatus || offer.Status == workflow.OfferClosedStatus {
			return apperrors.PreconditionFailed("offer is already " + offer.Status)
		}
		oldStatus = offer.Status

		if inst, err := s.workflowRepo.GetActiveByTriggerIDTx(ctx, tx, offer.ID); err != nil {
			return err
		} else if inst != nil {
			workflowID = inst.ID
		}
		if err := s.workflowRepo.DisableByTriggerIDTx(ctx, tx, offer.ID); err != nil {
			return err
		}

		if err := s.offerRepo.UpdateStatusTx(ctx, tx, offer.ID, OfferWithdrawnStatus); err != nil {
			return err
		}
		offer.Status = OfferWithdrawnStatus
		return nil
	})
	if err != nil {
		return nil, err
	}

	effects := []workflow.SideEffect{
		{
			Kind:      workflow.EffectNotification,
			EventCode: "offer_withdrawn",
			Payload:   s.effectPayload(offer),
		},
		{
			Kind:      workflow.EffectCandidateHistory,
			EventCode: "offer_withdrawn",
			Payload:   s.historyPayload(offer, oldStatus, OfferWithdrawnStatus),
		},
	}
	if workflowID != "" {
		payload := s.effectPayload(offer)
		payload["workflow_id"] = workflowID
		effects = append(effects, workflow.SideEffect{
			Kind:      workflow.EffectCredentialingTerminate,
			EventCode: "offer_withdrawn",
			Payload:   payload,
		})
	}
	s.workflows.Dispatch(ctx, effects, actedBy)
	return offer, nil
}

// GetOffer returns an offer by id.
func (s *OfferService) GetOffer(ctx context.Context, offerID, programID string) (*repository.Offer, error) {
	return s.offerRepo.GetByID(ctx, offerID, programID)
}

// ListOffers returns a page of program offers with an optional status filter.
func (s *OfferService) ListOffers(ctx context.Context, programID string, status *string, page, pageSize int) ([]*repository.Offer, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.offerRepo.List(ctx, programID, status, page, pageSize)
}

// ── internals ─────────────────────────────────────────────────────────────────

func (s *OfferService) updateFieldsTx(ctx context.Context, tx pgx.Tx, offer *repository.Offer) error {
	query := `
		UPDATE offers
		SET custom_fields = $2,
		    start_date    = $3,
		    end_date      = $4,
		    updated_at    = NOW()
		WHERE id = $1
	`
	fieldsJSON, err := json.Marshal(offer.CustomFields)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal offer custom fields")
	}
	if _, err := tx.Exec(ctx, query, offer.ID, fieldsJSON, offer.StartDate, offer.EndDate); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to update offer fields")
	}
	return nil
}

func (s *OfferService) snapshotOf(offer *repository.Offer) workflow.EntitySnapshot {
	return workflow.EntitySnapshot{
		Type:          workflow.EntityOffer,
		ID:            offer.ID,
		ProgramID:     offer.ProgramID,
		Status:        offer.Status,
		CandidateID:   offer.CandidateID,
		JobID:         offer.JobID,
		SubmissionID:  offer.SubmissionID,
		ParentOfferID: offer.ParentOfferID,
	}
}

func (s *OfferService) effectPayload(offer *repository.Offer) map[string]any {
	return map[string]any{
		"program_id":   offer.ProgramID,
		"entity_type":  string(workflow.EntityOffer),
		"entity_id":    offer.ID,
		"candidate_id": offer.CandidateID,
		"job_id":       offer.JobID,
	}
}

func (s *OfferService) historyPayload(offer *repository.Offer, oldStatus, newStatus string) map[string]any {
	payload := s.effectPayload(offer)
	payload["old_status"] = oldStatus
	payload["new_status"] = newStatus
	return payload
}
