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

// ModuleSubmission is the workflow module id for submission events.
const ModuleSubmission = "submission"

// SubmissionService owns candidate submissions against jobs.
type SubmissionService struct {
	db             *database.DB
	submissionRepo *repository.SubmissionRepository
	jobRepo        *repository.JobRepository
	historyRepo    *repository.CandidateHistoryRepository
	workflows      *WorkflowService
	log            *logger.Logger
}

// NewSubmissionService creates a SubmissionService.
func NewSubmissionService(
	db *database.DB,
	submissionRepo *repository.SubmissionRepository,
	jobRepo *repository.JobRepository,
	historyRepo *repository.CandidateHistoryRepository,
	workflows *WorkflowService,
	log *logger.Logger,
) *SubmissionService {
	return &SubmissionService{
		db:             db,
		submissionRepo: submissionRepo,
		jobRepo:        jobRepo,
		historyRepo:    historyRepo,
		workflows:      workflows,
		log:            log,
	}
}

// SubmitCandidateRequest carries the fields of a new submission.
type SubmitCandidateRequest struct {
	ProgramID    string
	JobID        string
	CandidateID  string
	HierarchyIDs []string
	CreatedBy    string
}

// SubmitCandidate submits a candidate against a job and runs the
// submit_candidate gate. The job must exist and be open to submissions.
func (s *SubmissionService) SubmitCandidate(ctx context.Context, req SubmitCandidateRequest) (*repository.SubmissionCandidate, error) {
	switch {
	case req.ProgramID == "":
		return nil, apperrors.InvalidInput("program_id", "program id is required")
	case req.JobID == "":
		return nil, apperrors.InvalidInput("job_id", "job id is required")
	case req.CandidateID == "":
		return nil, apperrors.InvalidInput("candidate_id", "candidate id is required")
	case req.CreatedBy == "":
		return nil, apperrors.InvalidInput("created_by", "acting user is required")
	}

	sub := &repository.SubmissionCandidate{
		ProgramID:    req.ProgramID,
		JobID:        req.JobID,
		CandidateID:  req.CandidateID,
		Status:       "Draft",
		HierarchyIDs: req.HierarchyIDs,
		CreatedBy:    req.CreatedBy,
	}

	var effects []workflow.SideEffect
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		job, err := s.jobRepo.LockTx(ctx, tx, req.JobID)
		if err != nil {
			return err
		}
		if job.ProgramID != req.ProgramID {
			return apperrors.NotFound("job", req.JobID)
		}
		if job.Status != "OPEN" {
			return apperrors.PreconditionFailed("job must be OPEN to accept submissions, got " + job.Status)
		}

		if err := s.submissionRepo.CreateTx(ctx, tx, sub); err != nil {
			return err
		}

		_, proj, err := s.workflows.TriggerTx(ctx, tx, workflow.TriggerInput{
			ProgramID:    req.ProgramID,
			ModuleID:     ModuleSubmission,
			Event:        workflow.EventSubmitCandidate,
			TriggerID:    sub.ID,
			TriggerType:  workflow.EntitySubmission,
			HierarchyIDs: req.HierarchyIDs,
		}, workflow.EntitySnapshot{
			Type:        workflow.EntitySubmission,
			ID:          sub.ID,
			ProgramID:   sub.ProgramID,
			Status:      sub.Status,
			CandidateID: sub.CandidateID,
			JobID:       sub.JobID,
		})
		if err != nil {
			return err
		}
		sub.Status = proj.NewStatus
		effects = proj.SideEffects
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.workflows.Dispatch(ctx, effects, req.CreatedBy)
	return sub, nil
}

// GetSubmission returns a submission by id.
func (s *SubmissionService) GetSubmission(ctx context.Context, id, programID string) (*repository.SubmissionCandidate, error) {
	return s.submissionRepo.GetByID(ctx, id, programID)
}

// CandidateHistory returns a candidate's audit trail, newest first.
func (s *SubmissionService) CandidateHistory(ctx context.Context, programID, candidateID string) ([]*repository.CandidateHistoryEntry, error) {
	if candidateID == "" {
		return nil, apperrors.InvalidInput("candidate_id", "candidate id is required")
	}
	return s.historyRepo.GetByCandidate(ctx, programID, candidateID)
}
