// Package workflow implements the approval workflow engine: config
// selection, instance materialization, the level gate evaluator, decision
// application and status projection. Everything in this package is pure —
// persistence and side-effect dispatch belong to the service layer.
package workflow

import "time"

// FlowType distinguishes review flows from approval flows. Review is
// preferred when both are configured for an event.
type FlowType string

const (
	FlowReview   FlowType = "Review"
	FlowApproval FlowType = "Approval"
)

// InstanceStatus is the aggregate workflow status.
type InstanceStatus string

const (
	InstancePending   InstanceStatus = "pending"
	InstanceCompleted InstanceStatus = "completed"
)

// LevelStatus is the status of one sequential gate.
type LevelStatus string

const (
	LevelPending   LevelStatus = "pending"
	LevelCompleted LevelStatus = "completed"
	LevelBypassed  LevelStatus = "bypassed"
)

// RecipientStatus is the status of one approver slot.
type RecipientStatus string

const (
	RecipientPending  RecipientStatus = "pending"
	RecipientApproved RecipientStatus = "approved"
	RecipientRejected RecipientStatus = "rejected"
	RecipientBypassed RecipientStatus = "bypassed"
)

// Decision is a recipient's action on a level.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionBypass  Decision = "bypass"
)

// EntityType identifies the kind of business entity a workflow gates.
type EntityType string

const (
	EntityOffer      EntityType = "offer"
	EntityJob        EntityType = "job"
	EntitySubmission EntityType = "submission"
)

// Event slugs for gated entity mutations.
const (
	EventCreateOffer     = "create_offer"
	EventUpdateOffer     = "update_offer"
	EventCounterOffer    = "counter_offer"
	EventCreateJob       = "create_job"
	EventSubmitCandidate = "submit_candidate"
)

// Recipient is one approver slot within a level. MetaData holds the user
// ids entitled to act; a non-empty ReplacedBy supersedes MetaData entirely.
// JSON tags define the persisted shape of the levels column and must not
// change.
type Recipient struct {
	Status     RecipientStatus `json:"status"`
	MetaData   []string        `json:"meta_data"`
	ReplacedBy *string         `json:"replaced_by"`
	Role       string          `json:"role,omitempty"`
	ActedBy    *string         `json:"acted_by,omitempty"`
	ActedAt    *time.Time      `json:"acted_at,omitempty"`
}

// Level is one sequential gate within a workflow instance.
type Level struct {
	PlacementOrder int         `json:"placement_order"`
	Status         LevelStatus `json:"status"`
	Recipients     []Recipient `json:"recipient_types"`
}

// Instance is one gated approval episode attached to a trigger entity. It
// is returned over HTTP as-is, so the tags are part of the API surface.
type Instance struct {
	ID          string         `json:"id"`
	ProgramID   string         `json:"program_id"`
	TriggerID   string         `json:"workflow_trigger_id"`
	TriggerType EntityType     `json:"trigger_type"`
	Event       string         `json:"events"`
	FlowType    FlowType       `json:"flow_type"`
	Status      InstanceStatus `json:"status"`
	IsEnabled   bool           `json:"is_enabled"`
	IsDeleted   bool           `json:"is_deleted"`
	Levels      []Level        `json:"levels"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ConfigRecipient is a recipient template inside a workflow config level.
// Role is resolved to concrete user ids when a workflow is instantiated.
type ConfigRecipient struct {
	Role string `json:"role"`
}

// ConfigLevel is a level template inside a workflow config.
type ConfigLevel struct {
	PlacementOrder int               `json:"placement_order"`
	Recipients     []ConfigRecipient `json:"recipient_types"`
}

// Config is a workflow template owned by program configuration. Read-only
// to the engine.
type Config struct {
	ID             string
	ProgramID      string
	ModuleID       string
	EventID        string
	FlowType       FlowType
	Hierarchies    []string
	AllHierarchies bool
	IsEnabled      bool
	IsDeleted      bool
	Levels         []ConfigLevel
	CreatedOn      time.Time
}

// EntitySnapshot is the projector's view of the trigger entity at the time
// of a transition.
type EntitySnapshot struct {
	Type          EntityType
	ID            string
	ProgramID     string
	Status        string
	CandidateID   string
	JobID         string
	SubmissionID  string
	ParentOfferID *string
}

// Result is what the trigger or advancer hands to the status projector.
// A nil Instance means no config matched and no gating applies. Decision is
// empty for trigger results.
type Result struct {
	Instance *Instance
	Status   InstanceStatus
	Decision Decision
}
