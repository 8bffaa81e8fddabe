package repository

import "time"

// ── Domain types for sourcing entities ───────────────────────────────────────

// Offer is an offer extended to a submitted candidate. Counter offers point
// at their parent via ParentOfferID. These structs go out over HTTP as-is,
// so the tags are part of the API surface.
type Offer struct {
	ID            string                 `json:"id"`
	ProgramID     string                 `json:"program_id"`
	JobID         string                 `json:"job_id"`
	CandidateID   string                 `json:"candidate_id"`
	SubmissionID  string                 `json:"submission_id,omitempty"`
	ParentOfferID *string                `json:"parent_offer_id,omitempty"`
	Status        string                 `json:"status"`
	HierarchyIDs  []string               `json:"hierarchy_ids,omitempty"`
	CustomFields  map[string]interface{} `json:"custom_fields,omitempty"` // arbitrary program-defined fields
	StartDate     *time.Time             `json:"start_date,omitempty"`
	EndDate       *time.Time             `json:"end_date,omitempty"`
	CreatedBy     string                 `json:"created_by"`
	IsDeleted     bool                   `json:"is_deleted"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// Job is a staffing job requisition.
type Job struct {
	ID           string    `json:"id"`
	ProgramID    string    `json:"program_id"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	HierarchyIDs []string  `json:"hierarchy_ids,omitempty"`
	CreatedBy    string    `json:"created_by"`
	IsDeleted    bool      `json:"is_deleted"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SubmissionCandidate is a candidate submitted against a job.
type SubmissionCandidate struct {
	ID           string    `json:"id"`
	ProgramID    string    `json:"program_id"`
	JobID        string    `json:"job_id"`
	CandidateID  string    `json:"candidate_id"`
	Status       string    `json:"status"`
	HierarchyIDs []string  `json:"hierarchy_ids,omitempty"`
	CreatedBy    string    `json:"created_by"`
	IsDeleted    bool      `json:"is_deleted"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CandidateHistoryEntry is one immutable record in the candidate history
// audit trail.
type CandidateHistoryEntry struct {
	ID          string                 `json:"id"`
	ProgramID   string                 `json:"program_id"`
	CandidateID string                 `json:"candidate_id"`
	EntityType  string                 `json:"entity_type"`
	EntityID    string                 `json:"entity_id"`
	Action      string                 `json:"action"`
	OldStatus   *string                `json:"old_status,omitempty"`
	NewStatus   *string                `json:"new_status,omitempty"`
	PerformedBy string                 `json:"performed_by"`
	PerformedAt time.Time              `json:"performed_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}
