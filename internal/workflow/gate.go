package workflow

import "sort"

// The level gate evaluator. These functions are the single source of truth
// for actionability: the advancer's preconditions and the pending-action
// read path both call them, so the two can never drift apart.

// Eligible reports whether userID may act on the recipient. A non-empty
// ReplacedBy delegates the slot: only the delegate may act. Otherwise any
// user in MetaData may act.
func Eligible(r Recipient, userID string) bool {
	if userID == "" {
		return false
	}
	if r.ReplacedBy != nil && *r.ReplacedBy != "" {
		return *r.ReplacedBy == userID
	}
	for _, u := range r.MetaData {
		if u == userID {
			return true
		}
	}
	return false
}

// levelSatisfied reports whether the level no longer blocks later levels.
// A level with zero recipients is vacuously satisfied.
func levelSatisfied(l Level) bool {
	if len(l.Recipients) == 0 {
		return true
	}
	return l.Status == LevelCompleted || l.Status == LevelBypassed
}

// priorLevelsClear reports whether every level ordered before placement k
// is satisfied.
func priorLevelsClear(levels []Level, k int) bool {
	for _, l := range levels {
		if l.PlacementOrder < k && !levelSatisfied(l) {
			return false
		}
	}
	return true
}

// IsLevelActionable reports whether the level at placement order k is
// currently actionable by userID: the level is pending, at least one
// pending recipient is eligible for the user, and no prior level with
// recipients remains ungated.
func IsLevelActionable(levels []Level, k int, userID string) bool {
	for _, l := range levels {
		if l.PlacementOrder != k {
			continue
		}
		if l.Status != LevelPending {
			return false
		}
		if !priorLevelsClear(levels, k) {
			return false
		}
		for _, r := range l.Recipients {
			if r.Status == RecipientPending && Eligible(r, userID) {
				return true
			}
		}
		return false
	}
	return false
}

// FirstActionableLevel returns the lowest-ordered level actionable by
// userID, or nil when the user has nothing to act on.
func FirstActionableLevel(levels []Level, userID string) *Level {
	ordered := SortedLevels(levels)
	for i := range ordered {
		if IsLevelActionable(ordered, ordered[i].PlacementOrder, userID) {
			return &ordered[i]
		}
	}
	return nil
}

// ComputeStatus derives the aggregate workflow status: completed iff every
// level is satisfied. A workflow with zero levels, or whose levels all have
// zero recipients, is completed immediately.
func ComputeStatus(levels []Level) InstanceStatus {
	for _, l := range levels {
		if !levelSatisfied(l) {
			return InstancePending
		}
	}
	return InstanceCompleted
}

// HasActionableWork reports whether any recipient anywhere in the workflow
// still needs to act. Used at instantiation time to decide whether a new
// workflow gates anything at all.
func HasActionableWork(levels []Level) bool {
	return ComputeStatus(levels) == InstancePending
}

// SortedLevels returns a copy of levels ordered by placement. Loaders call
// this defensively; the engine assumes ascending order everywhere else.
func SortedLevels(levels []Level) []Level {
	out := make([]Level, len(levels))
	copy(out, levels)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PlacementOrder < out[j].PlacementOrder
	})
	return out
}
