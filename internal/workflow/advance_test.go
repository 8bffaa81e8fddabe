package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-st-sourcing/internal/apperrors"
)

func twoLevelInstance() *Instance {
	return &Instance{
		ID:          "wf-1",
		ProgramID:   "prog-1",
		TriggerID:   "offer-1",
		TriggerType: EntityOffer,
		Event:       EventCreateOffer,
		FlowType:    FlowApproval,
		Status:      InstancePending,
		IsEnabled:   true,
		Levels: []Level{
			{PlacementOrder: 0, Status: LevelPending, Recipients: []Recipient{pendingRecipient("user-a")}},
			{PlacementOrder: 1, Status: LevelPending, Recipients: []Recipient{pendingRecipient("user-b")}},
		},
	}
}

func TestApply_ApproveThroughBothLevels(t *testing.T) {
	inst := twoLevelInstance()

	out, err := Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "user-a", Decision: DecisionApprove})
	require.NoError(t, err)
	assert.False(t, out.Idempotent)
	assert.Equal(t, LevelCompleted, out.Level.Status)
	assert.Equal(t, InstancePending, out.Status)
	require.NotNil(t, out.Level.Recipients[0].ActedBy)
	assert.Equal(t, "user-a", *out.Level.Recipients[0].ActedBy)

	out, err = Apply(inst, AdvanceInput{PlacementOrder: 1, UserID: "user-b", Decision: DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, InstanceCompleted, out.Status)
}

func TestApply_OutOfOrderRejected(t *testing.T) {
	inst := twoLevelInstance()

	_, err := Apply(inst, AdvanceInput{PlacementOrder: 1, UserID: "user-b", Decision: DecisionApprove})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodePreconditionFailed))
}

func TestApply_IneligibleUserRejected(t *testing.T) {
	inst := twoLevelInstance()

	_, err := Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "stranger", Decision: DecisionApprove})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodePreconditionFailed))
}

func TestApply_Idempotent(t *testing.T) {
	inst := twoLevelInstance()

	first, err := Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "user-a", Decision: DecisionApprove})
	require.NoError(t, err)

	second, err := Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "user-a", Decision: DecisionApprove})
	require.NoError(t, err)
	assert.True(t, second.Idempotent)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Instance.Levels, second.Instance.Levels, "replay must not flip any status")
}

func TestApply_ConflictingDecisionAfterResolution(t *testing.T) {
	inst := twoLevelInstance()

	_, err := Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "user-a", Decision: DecisionApprove})
	require.NoError(t, err)

	_, err = Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "user-a", Decision: DecisionReject})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodePreconditionFailed))
}

func TestApply_RejectCompletesWorkflow(t *testing.T) {
	inst := twoLevelInstance()
	inst.Levels = inst.Levels[:1]
	inst.Status = ComputeStatus(inst.Levels)

	out, err := Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "user-a", Decision: DecisionReject})
	require.NoError(t, err)
	assert.Equal(t, DecisionReject, out.Decision)
	assert.Equal(t, LevelCompleted, out.Level.Status)
	assert.Equal(t, InstanceCompleted, out.Status)
}

func TestApply_RejectAtFirstLevelTerminatesWholeWorkflow(t *testing.T) {
	inst := twoLevelInstance()

	out, err := Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "user-a", Decision: DecisionReject})
	require.NoError(t, err)
	assert.Equal(t, DecisionReject, out.Decision)
	assert.Equal(t, InstanceCompleted, out.Status, "reject must not leave later levels to decide the outcome")
	assert.Equal(t, LevelBypassed, inst.Levels[1].Status)
	assert.Equal(t, RecipientBypassed, inst.Levels[1].Recipients[0].Status)

	// The second approver cannot act after the rejection, let alone
	// override it.
	assert.False(t, IsLevelActionable(inst.Levels, 1, "user-b"))
	_, err = Apply(inst, AdvanceInput{PlacementOrder: 1, UserID: "user-b", Decision: DecisionApprove})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodePreconditionFailed))

	proj, err := Project(&Result{Instance: inst, Status: out.Status, Decision: out.Decision}, inst.Event, offerSnapshot())
	require.NoError(t, err)
	assert.Equal(t, "Rejected", proj.NewStatus)
}

func TestApply_RejectBypassesSiblingRecipients(t *testing.T) {
	inst := twoLevelInstance()
	inst.Levels[0].Recipients = []Recipient{
		pendingRecipient("user-a"),
		pendingRecipient("user-x"),
	}

	out, err := Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "user-a", Decision: DecisionReject})
	require.NoError(t, err)
	assert.Equal(t, InstanceCompleted, out.Status)
	assert.Equal(t, RecipientRejected, inst.Levels[0].Recipients[0].Status)
	assert.Equal(t, RecipientBypassed, inst.Levels[0].Recipients[1].Status)

	_, err = Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "user-x", Decision: DecisionApprove})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodePreconditionFailed))
}

func TestApply_BypassMarksLevelBypassed(t *testing.T) {
	inst := twoLevelInstance()

	out, err := Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "user-a", Decision: DecisionBypass})
	require.NoError(t, err)
	assert.Equal(t, LevelBypassed, out.Level.Status)

	// Bypassing level 0 unblocks level 1.
	assert.True(t, IsLevelActionable(inst.Levels, 1, "user-b"))
}

func TestApply_MultiRecipientLevelWaitsForAll(t *testing.T) {
	inst := twoLevelInstance()
	inst.Levels[0].Recipients = []Recipient{
		pendingRecipient("user-a"),
		pendingRecipient("user-x"),
	}

	out, err := Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "user-a", Decision: DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, LevelPending, out.Level.Status, "level stays pending until every recipient resolves")
	assert.False(t, IsLevelActionable(inst.Levels, 1, "user-b"))

	out, err = Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "user-x", Decision: DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, LevelCompleted, out.Level.Status)
	assert.True(t, IsLevelActionable(inst.Levels, 1, "user-b"))
}

func TestApply_DelegatedRecipient(t *testing.T) {
	inst := twoLevelInstance()
	inst.Levels[0].Recipients[0].ReplacedBy = strPtr("user-9")

	_, err := Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "user-a", Decision: DecisionApprove})
	require.Error(t, err, "original recipient superseded by delegate")

	out, err := Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "user-9", Decision: DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, LevelCompleted, out.Level.Status)
}

func TestApply_DisabledInstance(t *testing.T) {
	inst := twoLevelInstance()
	inst.IsEnabled = false

	_, err := Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "user-a", Decision: DecisionApprove})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodePreconditionFailed))
}

func TestApply_UnknownLevelIsInconsistentState(t *testing.T) {
	inst := twoLevelInstance()

	_, err := Apply(inst, AdvanceInput{PlacementOrder: 5, UserID: "user-a", Decision: DecisionApprove})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInconsistentState))
}

func TestApply_ImpersonatorRecordedAsActor(t *testing.T) {
	inst := twoLevelInstance()

	out, err := Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "user-a", Decision: DecisionApprove, ImpersonatorID: "admin-1"})
	require.NoError(t, err)
	require.NotNil(t, out.Level.Recipients[0].ActedBy)
	assert.Equal(t, "admin-1", *out.Level.Recipients[0].ActedBy)
}

// Read/write parity: FirstActionableLevel agrees with what Apply accepts,
// across a walk of reachable states.
func TestReadWriteParity(t *testing.T) {
	inst := twoLevelInstance()
	users := []string{"user-a", "user-b", "stranger"}

	checkParity := func() {
		for _, u := range users {
			actionable := FirstActionableLevel(inst.Levels, u)
			for _, l := range inst.Levels {
				clone := cloneInstance(inst)
				out, err := Apply(clone, AdvanceInput{PlacementOrder: l.PlacementOrder, UserID: u, Decision: DecisionApprove})
				// An idempotent replay is accepted but records no new
				// decision, so it does not count as actionable work.
				accepts := err == nil && !out.Idempotent
				expected := actionable != nil && actionable.PlacementOrder == l.PlacementOrder
				assert.Equal(t, expected, accepts,
					"parity broken for user %s at level %d", u, l.PlacementOrder)
			}
		}
	}

	checkParity()

	_, err := Apply(inst, AdvanceInput{PlacementOrder: 0, UserID: "user-a", Decision: DecisionApprove})
	require.NoError(t, err)
	checkParity()

	_, err = Apply(inst, AdvanceInput{PlacementOrder: 1, UserID: "user-b", Decision: DecisionApprove})
	require.NoError(t, err)
	checkParity()
}

func cloneInstance(in *Instance) *Instance {
	cp := *in
	cp.Levels = make([]Level, len(in.Levels))
	for i, l := range in.Levels {
		lc := l
		lc.Recipients = make([]Recipient, len(l.Recipients))
		copy(lc.Recipients, l.Recipients)
		cp.Levels[i] = lc
	}
	return &cp
}
