package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingRecipient(users ...string) Recipient {
	return Recipient{Status: RecipientPending, MetaData: users}
}

func strPtr(s string) *string { return &s }

func TestEligible(t *testing.T) {
	t.Run("member of meta_data", func(t *testing.T) {
		r := pendingRecipient("user-1", "user-2")
		assert.True(t, Eligible(r, "user-1"))
		assert.True(t, Eligible(r, "user-2"))
		assert.False(t, Eligible(r, "user-3"))
	})

	t.Run("replaced_by supersedes meta_data", func(t *testing.T) {
		r := pendingRecipient("user-1")
		r.ReplacedBy = strPtr("user-9")
		assert.True(t, Eligible(r, "user-9"))
		assert.False(t, Eligible(r, "user-1"))
	})

	t.Run("empty replaced_by falls back to meta_data", func(t *testing.T) {
		r := pendingRecipient("user-1")
		r.ReplacedBy = strPtr("")
		assert.True(t, Eligible(r, "user-1"))
	})

	t.Run("empty user never eligible", func(t *testing.T) {
		assert.False(t, Eligible(pendingRecipient("user-1"), ""))
	})
}

func TestIsLevelActionable_SequentialGating(t *testing.T) {
	levels := []Level{
		{PlacementOrder: 0, Status: LevelPending, Recipients: []Recipient{pendingRecipient("user-a")}},
		{PlacementOrder: 1, Status: LevelPending, Recipients: []Recipient{pendingRecipient("user-b")}},
	}

	assert.True(t, IsLevelActionable(levels, 0, "user-a"))
	assert.False(t, IsLevelActionable(levels, 1, "user-b"), "level 1 blocked until level 0 resolves")
	assert.False(t, IsLevelActionable(levels, 1, "user-a"))

	levels[0].Recipients[0].Status = RecipientApproved
	levels[0].Status = LevelCompleted

	assert.False(t, IsLevelActionable(levels, 0, "user-a"), "completed level no longer actionable")
	assert.True(t, IsLevelActionable(levels, 1, "user-b"))

	levels[1].Recipients[0].Status = RecipientApproved
	levels[1].Status = LevelCompleted
	assert.Equal(t, InstanceCompleted, ComputeStatus(levels))
}

func TestIsLevelActionable_BypassedPriorLevelUnblocks(t *testing.T) {
	levels := []Level{
		{PlacementOrder: 0, Status: LevelBypassed, Recipients: []Recipient{pendingRecipient("user-a")}},
		{PlacementOrder: 1, Status: LevelPending, Recipients: []Recipient{pendingRecipient("user-b")}},
	}
	assert.True(t, IsLevelActionable(levels, 1, "user-b"))
}

func TestIsLevelActionable_EmptyPriorLevelDoesNotBlock(t *testing.T) {
	levels := []Level{
		{PlacementOrder: 0, Status: LevelPending},
		{PlacementOrder: 1, Status: LevelPending, Recipients: []Recipient{pendingRecipient("user-b")}},
	}
	assert.True(t, IsLevelActionable(levels, 1, "user-b"), "recipient-less level must not gate later levels")
}

func TestIsLevelActionable_MissingLevel(t *testing.T) {
	levels := []Level{
		{PlacementOrder: 0, Status: LevelPending, Recipients: []Recipient{pendingRecipient("user-a")}},
	}
	assert.False(t, IsLevelActionable(levels, 7, "user-a"))
}

func TestComputeStatus_VacuousCompletion(t *testing.T) {
	assert.Equal(t, InstanceCompleted, ComputeStatus(nil), "zero levels complete immediately")

	levels := []Level{
		{PlacementOrder: 0, Status: LevelPending},
		{PlacementOrder: 1, Status: LevelPending},
	}
	assert.Equal(t, InstanceCompleted, ComputeStatus(levels), "all-empty levels complete immediately")
	assert.False(t, HasActionableWork(levels))
}

func TestComputeStatus_PendingWhileAnyLevelUnresolved(t *testing.T) {
	levels := []Level{
		{PlacementOrder: 0, Status: LevelCompleted, Recipients: []Recipient{{Status: RecipientApproved, MetaData: []string{"user-a"}}}},
		{PlacementOrder: 1, Status: LevelPending, Recipients: []Recipient{pendingRecipient("user-b")}},
	}
	assert.Equal(t, InstancePending, ComputeStatus(levels))
	assert.True(t, HasActionableWork(levels))
}

func TestFirstActionableLevel(t *testing.T) {
	levels := []Level{
		// Deliberately out of order; the evaluator sorts defensively.
		{PlacementOrder: 2, Status: LevelPending, Recipients: []Recipient{pendingRecipient("user-c")}},
		{PlacementOrder: 0, Status: LevelCompleted, Recipients: []Recipient{{Status: RecipientApproved, MetaData: []string{"user-a"}}}},
		{PlacementOrder: 1, Status: LevelPending, Recipients: []Recipient{pendingRecipient("user-b", "user-c")}},
	}

	first := FirstActionableLevel(levels, "user-c")
	require.NotNil(t, first)
	assert.Equal(t, 1, first.PlacementOrder, "user-c is in level 1 and level 2, only level 1 is unblocked")

	assert.Nil(t, FirstActionableLevel(levels, "user-a"), "user-a already acted, nothing pending for them")
	assert.Nil(t, FirstActionableLevel(levels, "stranger"))
}

func TestSequentialGatingProperty(t *testing.T) {
	// If level k has recipients and is unresolved, no later level is
	// actionable for anyone.
	levels := []Level{
		{PlacementOrder: 0, Status: LevelPending, Recipients: []Recipient{pendingRecipient("user-a")}},
		{PlacementOrder: 1, Status: LevelPending, Recipients: []Recipient{pendingRecipient("user-b")}},
		{PlacementOrder: 2, Status: LevelPending, Recipients: []Recipient{pendingRecipient("user-c")}},
	}
	for _, u := range []string{"user-a", "user-b", "user-c"} {
		assert.False(t, IsLevelActionable(levels, 1, u))
		assert.False(t, IsLevelActionable(levels, 2, u))
	}
}
