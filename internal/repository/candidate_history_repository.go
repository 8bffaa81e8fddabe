package repository

import (
	"context"
	"encoding/json"

	"github.com/pesio-ai/be-st-sourcing/internal/apperrors"
	"github.com/pesio-ai/be-st-sourcing/internal/database"
)

// CandidateHistoryRepository appends and reads immutable candidate history
// entries. Append is the only mutation exposed.
type CandidateHistoryRepository struct {
	db *database.DB
}

// NewCandidateHistoryRepository creates a new CandidateHistoryRepository.
func NewCandidateHistoryRepository(db *database.DB) *CandidateHistoryRepository {
	return &CandidateHistoryRepository{db: db}
}

// Append inserts one history entry.
func (r *CandidateHistoryRepository) Append(ctx context.Context, entry *CandidateHistoryEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal history metadata")
		}
	}

	query := `
		INSERT INTO candidate_history
		    (program_id, candidate_id, entity_type, entity_id,
		     action, old_status, new_status, performed_by, metadata)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7, $8, $9)
		RETURNING id, performed_at
	`

	return r.db.QueryRow(ctx, query,
		entry.ProgramID,
		entry.CandidateID,
		entry.EntityType,
		entry.EntityID,
		entry.Action,
		entry.OldStatus,
		entry.NewStatus,
		entry.PerformedBy,
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
}

// GetByCandidate returns the trail for a candidate ordered oldest-first.
func (r *CandidateHistoryRepository) GetByCandidate(ctx context.Context, programID, candidateID string) ([]*CandidateHistoryEntry, error) {
	query := `
		SELECT id, program_id, candidate_id, entity_type, entity_id,
		       action, old_status, new_status, performed_by, performed_at,
		       metadata
		FROM candidate_history
		WHERE program_id = $1 AND candidate_id = $2
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, programID, candidateID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get candidate history")
	}
	defer rows.Close()

	var entries []*CandidateHistoryEntry
	for rows.Next() {
		entry := &CandidateHistoryEntry{}
		var metadataJSON []byte
		err := rows.Scan(
			&entry.ID,
			&entry.ProgramID,
			&entry.CandidateID,
			&entry.EntityType,
			&entry.EntityID,
			&entry.Action,
			&entry.OldStatus,
			&entry.NewStatus,
			&entry.PerformedBy,
			&entry.PerformedAt,
			&metadataJSON,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan history entry")
		}
		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to unmarshal history metadata")
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
