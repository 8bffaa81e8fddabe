package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-st-sourcing/internal/apperrors"
	"github.com/pesio-ai/be-st-sourcing/internal/database"
)

// OfferRepository persists offers. Status transitions always run inside a
// caller-owned transaction holding the offer's row lock.
type OfferRepository struct {
	db *database.DB
}

// NewOfferRepository creates a new OfferRepository.
func NewOfferRepository(db *database.DB) *OfferRepository {
	return &OfferRepository{db: db}
}

const offerColumns = `
	id, program_id, job_id, candidate_id, submission_id, parent_offer_id,
	status, hierarchy_ids, custom_fields, start_date, end_date,
	created_by, is_deleted, created_at, updated_at
`

// CreateTx inserts a new offer.
func (r *OfferRepository) CreateTx(ctx context.Context, q database.Querier, offer *Offer) error {
	fieldsJSON, err := json.Marshal(offer.CustomFields)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal offer custom fields")
	}

	query := `
		INSERT INTO offers
		    (program_id, job_id, candidate_id, submission_id, parent_offer_id,
		     status, hierarchy_ids, custom_fields, start_date, end_date, created_by)
		VALUES ($1, $2, $3, $4, $5,
		        $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	err = q.QueryRow(ctx, query,
		offer.ProgramID,
		offer.JobID,
		offer.CandidateID,
		offer.SubmissionID,
		offer.ParentOfferID,
		offer.Status,
		offer.HierarchyIDs,
		fieldsJSON,
		offer.StartDate,
		offer.EndDate,
		offer.CreatedBy,
	).Scan(&offer.ID, &offer.CreatedAt, &offer.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create offer")
	}
	return nil
}

// GetByID retrieves an offer by primary key.
func (r *OfferRepository) GetByID(ctx context.Context, id, programID string) (*Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1 AND program_id = $2 AND is_deleted = FALSE`

	offer, err := r.scanOffer(r.db.QueryRow(ctx, query, id, programID))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("offer", id)
	}
	return offer, err
}

// LockTx loads an offer under FOR UPDATE, serializing concurrent workflow
// decisions on it.
func (r *OfferRepository) LockTx(ctx context.Context, q database.Querier, id string) (*Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1 AND is_deleted = FALSE FOR UPDATE`

	offer, err := r.scanOffer(q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("offer", id)
	}
	return offer, err
}

// UpdateStatusTx sets the offer status.
func (r *OfferRepository) UpdateStatusTx(ctx context.Context, q database.Querier, id, status string) error {
	query := `
		UPDATE offers
		SET status     = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, id, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("offer", id)
	}
	return err
}

// MergeCounterOfferTx closes the parent offer and supersedes its custom
// fields with the counter's, in the caller's transaction. Both rows must
// already be locked; the two updates are atomic with the counter's own
// status transition.
func (r *OfferRepository) MergeCounterOfferTx(ctx context.Context, q database.Querier, parentID, counterID, closedStatus string) error {
	query := `
		UPDATE offers AS parent
		SET status        = $3,
		    custom_fields = counter.custom_fields,
		    start_date    = counter.start_date,
		    end_date      = counter.end_date,
		    updated_at    = NOW()
		FROM offers AS counter
		WHERE parent.id  = $1
		  AND counter.id = $2
		RETURNING parent.id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, parentID, counterID, closedStatus).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.InconsistentState("counter offer references a parent offer that no longer exists")
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to merge counter offer")
	}
	return nil
}

// List returns offers for a program with optional status filter.
func (r *OfferRepository) List(ctx context.Context, programID string, status *string, page, pageSize int) ([]*Offer, int64, error) {
	countQuery := `SELECT COUNT(*) FROM offers WHERE program_id = $1 AND is_deleted = FALSE AND ($2::text IS NULL OR status = $2)`

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, programID, status).Scan(&total); err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeInternal, "failed to count offers")
	}

	query := `
		SELECT ` + offerColumns + `
		FROM offers
		WHERE program_id = $1
		  AND is_deleted = FALSE
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, programID, status, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list offers")
	}
	defer rows.Close()

	var offers []*Offer
	for rows.Next() {
		offer, err := r.scanOffer(rows)
		if err != nil {
			return nil, 0, err
		}
		offers = append(offers, offer)
	}
	return offers, total, rows.Err()
}

// ── scan helper ───────────────────────────────────────────────────────────────

type offerScanner interface {
	Scan(dest ...any) error
}

func (r *OfferRepository) scanOffer(sc offerScanner) (*Offer, error) {
	offer := &Offer{}
	var fieldsJSON []byte

	err := sc.Scan(
		&offer.ID,
		&offer.ProgramID,
		&offer.JobID,
		&offer.CandidateID,
		&offer.SubmissionID,
		&offer.ParentOfferID,
		&offer.Status,
		&offer.HierarchyIDs,
		&fieldsJSON,
		&offer.StartDate,
		&offer.EndDate,
		&offer.CreatedBy,
		&offer.IsDeleted,
		&offer.CreatedAt,
		&offer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &offer.CustomFields); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to unmarshal offer custom fields")
		}
	}
	return offer, nil
}
