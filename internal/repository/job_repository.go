package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-st-sourcing/internal/apperrors"
	"github.com/pesio-ai/be-st-sourcing/internal/database"
)

// JobRepository persists job requisitions.
type JobRepository struct {
	db *database.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *database.DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `
	id, program_id, title, status, hierarchy_ids,
	created_by, is_deleted, created_at, updated_at
`

// CreateTx inserts a new job.
func (r *JobRepository) CreateTx(ctx context.Context, q database.Querier, job *Job) error {
	query := `
		INSERT INTO jobs
		    (program_id, title, status, hierarchy_ids, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		job.ProgramID,
		job.Title,
		job.Status,
		job.HierarchyIDs,
		job.CreatedBy,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create job")
	}
	return nil
}

// GetByID retrieves a job by primary key.
func (r *JobRepository) GetByID(ctx context.Context, id, programID string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 AND program_id = $2 AND is_deleted = FALSE`

	job, err := r.scanJob(r.db.QueryRow(ctx, query, id, programID))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("job", id)
	}
	return job, err
}

// LockTx loads a job under FOR UPDATE.
func (r *JobRepository) LockTx(ctx context.Context, q database.Querier, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 AND is_deleted = FALSE FOR UPDATE`

	job, err := r.scanJob(q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("job", id)
	}
	return job, err
}

// UpdateStatusTx sets the job status.
func (r *JobRepository) UpdateStatusTx(ctx context.Context, q database.Querier, id, status string) error {
	query := `
		UPDATE jobs
		SET status     = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, id, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("job", id)
	}
	return err
}

type jobScanner interface {
	Scan(dest ...any) error
}

func (r *JobRepository) scanJob(sc jobScanner) (*Job, error) {
	job := &Job{}
	err := sc.Scan(
		&job.ID,
		&job.ProgramID,
		&job.Title,
		&job.Status,
		&job.HierarchyIDs,
		&job.CreatedBy,
		&job.IsDeleted,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}
