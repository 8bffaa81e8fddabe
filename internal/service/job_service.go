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

// ModuleJob is the workflow module id for job events.
const ModuleJob = "job"

// JobService owns the job lifecycle.
type JobService struct {
	db        *database.DB
	jobRepo   *repository.JobRepository
	workflows *WorkflowService
	log       *logger.Logger
}

// NewJobService creates a JobService.
func NewJobService(db *database.DB, jobRepo *repository.JobRepository, workflows *WorkflowService, log *logger.Logger) *JobService {
	return &JobService{db: db, jobRepo: jobRepo, workflows: workflows, log: log}
}

// CreateJobRequest carries the fields of a new job.
type CreateJobRequest struct {
	ProgramID    string
	Title        string
	HierarchyIDs []string
	CreatedBy    string
}

// CreateJob creates a job and runs the create_job gate. The job opens
// immediately when no config matches, otherwise it waits in the flow type's
// pending status.
func (s *JobService) CreateJob(ctx context.Context, req CreateJobRequest) (*repository.Job, error) {
	switch {
	case req.ProgramID == "":
		return nil, apperrors.InvalidInput("program_id", "program id is required")
	case req.Title == "":
		return nil, apperrors.InvalidInput("title", "job title is required")
	case req.CreatedBy == "":
		return nil, apperrors.InvalidInput("created_by", "acting user is required")
	}

	job := &repository.Job{
		ProgramID:    req.ProgramID,
		Title:        req.Title,
		Status:       "DRAFT",
		HierarchyIDs: req.HierarchyIDs,
		CreatedBy:    req.CreatedBy,
	}

	var effects []workflow.SideEffect
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.jobRepo.CreateTx(ctx, tx, job); err != nil {
			return err
		}

		_, proj, err := s.workflows.TriggerTx(ctx, tx, workflow.TriggerInput{
			ProgramID:    req.ProgramID,
			ModuleID:     ModuleJob,
			Event:        workflow.EventCreateJob,
			TriggerID:    job.ID,
			TriggerType:  workflow.EntityJob,
			HierarchyIDs: req.HierarchyIDs,
		}, workflow.EntitySnapshot{
			Type:      workflow.EntityJob,
			ID:        job.ID,
			ProgramID: job.ProgramID,
			Status:    job.Status,
		})
		if err != nil {
			return err
		}
		job.Status = proj.NewStatus
		effects = proj.SideEffects
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.workflows.Dispatch(ctx, effects, req.CreatedBy)
	return job, nil
}

// GetJob returns a job by id.
func (s *JobService) GetJob(ctx context.Context, jobID, programID string) (*repository.Job, error) {
	return s.jobRepo.GetByID(ctx, jobID, programID)
}
