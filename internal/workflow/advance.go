package workflow

import (
	"time"

	"github.com/pesio-ai/be-st-sourcing/internal/apperrors"
)

// AdvanceInput is one recipient decision on one level of an instance.
type AdvanceInput struct {
	PlacementOrder int
	UserID         string
	Decision       Decision
	ImpersonatorID string
}

// AdvanceOutcome is the state after applying a decision. Idempotent is set
// when the decision had already been recorded and nothing changed.
type AdvanceOutcome struct {
	Instance   *Instance
	Level      *Level
	Status     InstanceStatus
	Decision   Decision
	Idempotent bool
}

func decisionStatus(d Decision) (RecipientStatus, bool) {
	switch d {
	case DecisionApprove:
		return RecipientApproved, true
	case DecisionReject:
		return RecipientRejected, true
	case DecisionBypass:
		return RecipientBypassed, true
	}
	return "", false
}

// Apply mutates inst with the recipient's decision and recomputes level and
// workflow status through the gate evaluator.
//
// A reject terminates the workflow: everyone still pending is bypassed, so
// the instance completes with the reject as its deciding outcome and no
// later approval can override it.
//
// Re-submitting a decision already recorded for the user's recipient is an
// idempotent no-op; any other violation of the actionability preconditions
// is a precondition failure. Callers persist the instance (and project the
// entity status) inside the same transaction that loaded it under lock.
func Apply(inst *Instance, in AdvanceInput) (*AdvanceOutcome, error) {
	target, ok := decisionStatus(in.Decision)
	if !ok {
		return nil, apperrors.InvalidInput("decision", "must be approve, reject or bypass")
	}
	if !inst.IsEnabled || inst.IsDeleted {
		return nil, apperrors.PreconditionFailed("workflow is no longer active")
	}

	inst.Levels = SortedLevels(inst.Levels)

	level := findLevel(inst.Levels, in.PlacementOrder)
	if level == nil {
		return nil, apperrors.InconsistentState("workflow has no level at the requested placement order")
	}

	recipient := findEligibleRecipient(level, in.UserID)
	if recipient == nil {
		return nil, apperrors.PreconditionFailed("user is not an eligible recipient on this level")
	}

	// Retried request: the recipient already carries this decision.
	if recipient.Status == target {
		return &AdvanceOutcome{
			Instance:   inst,
			Level:      level,
			Status:     inst.Status,
			Decision:   in.Decision,
			Idempotent: true,
		}, nil
	}
	if recipient.Status != RecipientPending {
		return nil, apperrors.PreconditionFailed("recipient has already resolved with a different decision")
	}
	if !IsLevelActionable(inst.Levels, in.PlacementOrder, in.UserID) {
		return nil, apperrors.PreconditionFailed("level is not actionable for this user")
	}

	now := time.Now().UTC()
	actor := in.UserID
	if in.ImpersonatorID != "" {
		actor = in.ImpersonatorID
	}
	recipient.Status = target
	recipient.ActedBy = &actor
	recipient.ActedAt = &now

	if in.Decision == DecisionReject {
		// A reject terminates the workflow. Everyone still pending, on this
		// level and every later one, is bypassed so no later approval can
		// override the rejection.
		bypassPending(level)
		level.Status = LevelCompleted
		for i := range inst.Levels {
			l := &inst.Levels[i]
			if l.PlacementOrder > level.PlacementOrder && l.Status == LevelPending {
				bypassPending(l)
				l.Status = LevelBypassed
			}
		}
	} else if !hasPendingRecipient(level) {
		if in.Decision == DecisionBypass {
			level.Status = LevelBypassed
		} else {
			level.Status = LevelCompleted
		}
	}

	inst.Status = ComputeStatus(inst.Levels)
	inst.UpdatedAt = now

	return &AdvanceOutcome{
		Instance: inst,
		Level:    level,
		Status:   inst.Status,
		Decision: in.Decision,
	}, nil
}

func findLevel(levels []Level, placementOrder int) *Level {
	for i := range levels {
		if levels[i].PlacementOrder == placementOrder {
			return &levels[i]
		}
	}
	return nil
}

func findEligibleRecipient(level *Level, userID string) *Recipient {
	for i := range level.Recipients {
		if Eligible(level.Recipients[i], userID) {
			return &level.Recipients[i]
		}
	}
	return nil
}

func hasPendingRecipient(level *Level) bool {
	for _, r := range level.Recipients {
		if r.Status == RecipientPending {
			return true
		}
	}
	return false
}

func bypassPending(level *Level) {
	for i := range level.Recipients {
		if level.Recipients[i].Status == RecipientPending {
			level.Recipients[i].Status = RecipientBypassed
		}
	}
}
