package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-st-sourcing/internal/apperrors"
	"github.com/pesio-ai/be-st-sourcing/internal/database"
)

// SubmissionRepository persists submitted candidates.
type SubmissionRepository struct {
	db *database.DB
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(db *database.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `
	id, program_id, job_id, candidate_id, status, hierarchy_ids,
	created_by, is_deleted, created_at, updated_at
`

// CreateTx inserts a new submission.
func (r *SubmissionRepository) CreateTx(ctx context.Context, q database.Querier, sub *SubmissionCandidate) error {
	query := `
		INSERT INTO submission_candidates
		    (program_id, job_id, candidate_id, status, hierarchy_ids, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		sub.ProgramID,
		sub.JobID,
		sub.CandidateID,
		sub.Status,
		sub.HierarchyIDs,
		sub.CreatedBy,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create submission")
	}
	return nil
}

// GetByID retrieves a submission by primary key.
func (r *SubmissionRepository) GetByID(ctx context.Context, id, programID string) (*SubmissionCandidate, error) {
	query := `SELECT ` + submissionColumns + ` FROM submission_candidates WHERE id = $1 AND program_id = $2 AND is_deleted = FALSE`

	sub, err := r.scanSubmission(r.db.QueryRow(ctx, query, id, programID))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("submission", id)
	}
	return sub, err
}

// LockTx loads a submission under FOR UPDATE.
func (r *SubmissionRepository) LockTx(ctx context.Context, q database.Querier, id string) (*SubmissionCandidate, error) {
	query := `SELECT ` + submissionColumns + ` FROM submission_candidates WHERE id = $1 AND is_deleted = FALSE FOR UPDATE`

	sub, err := r.scanSubmission(q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("submission", id)
	}
	return sub, err
}

// UpdateStatusTx sets the submission status.
func (r *SubmissionRepository) UpdateStatusTx(ctx context.Context, q database.Querier, id, status string) error {
	query := `
		UPDATE submission_candidates
		SET status     = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, id, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("submission", id)
	}
	return err
}

type submissionScanner interface {
	Scan(dest ...any) error
}

func (r *SubmissionRepository) scanSubmission(sc submissionScanner) (*SubmissionCandidate, error) {
	sub := &SubmissionCandidate{}
	err := sc.Scan(
		&sub.ID,
		&sub.ProgramID,
		&sub.JobID,
		&sub.CandidateID,
		&sub.Status,
		&sub.HierarchyIDs,
		&sub.CreatedBy,
		&sub.IsDeleted,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
