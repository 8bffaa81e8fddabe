package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offerSnapshot() EntitySnapshot {
	return EntitySnapshot{
		Type:        EntityOffer,
		ID:          "offer-1",
		ProgramID:   "prog-1",
		Status:      "Draft",
		CandidateID: "cand-1",
		JobID:       "job-1",
	}
}

func effectKinds(p *Projection) []SideEffectKind {
	kinds := make([]SideEffectKind, 0, len(p.SideEffects))
	for _, e := range p.SideEffects {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestProject_NoWorkflowReleasesImmediately(t *testing.T) {
	p, err := Project(nil, EventCreateOffer, offerSnapshot())
	require.NoError(t, err)
	assert.Equal(t, "Pending Acceptance", p.NewStatus)
	assert.Equal(t, "Offer Pending Acceptance", p.SubmissionStatus)
	assert.False(t, p.MergeCounterOffer)
	assert.Contains(t, effectKinds(p), EffectCredentialingPush)
	assert.Contains(t, effectKinds(p), EffectNotification)
	assert.Contains(t, effectKinds(p), EffectCandidateHistory)
}

func TestProject_PendingWorkflowGatesByFlowType(t *testing.T) {
	for _, tc := range []struct {
		flow FlowType
		want string
	}{
		{FlowReview, "Pending Review"},
		{FlowApproval, "Pending Approval"},
	} {
		res := &Result{
			Instance: &Instance{ID: "wf-1", FlowType: tc.flow},
			Status:   InstancePending,
		}
		p, err := Project(res, EventCreateOffer, offerSnapshot())
		require.NoError(t, err)
		assert.Equal(t, tc.want, p.NewStatus)
		assert.Empty(t, p.SubmissionStatus, "no submission mirror while gated")
	}
}

func TestProject_CompletedWorkflowReleases(t *testing.T) {
	res := &Result{
		Instance: &Instance{ID: "wf-1", FlowType: FlowApproval},
		Status:   InstanceCompleted,
	}
	p, err := Project(res, EventCreateOffer, offerSnapshot())
	require.NoError(t, err)
	assert.Equal(t, "Pending Acceptance", p.NewStatus)
	assert.Equal(t, "Offer Pending Acceptance", p.SubmissionStatus)
	assert.Contains(t, effectKinds(p), EffectCredentialingAppendSteps)
}

func TestProject_RejectedCompletionTerminatesOnboarding(t *testing.T) {
	res := &Result{
		Instance: &Instance{ID: "wf-1", FlowType: FlowApproval},
		Status:   InstanceCompleted,
		Decision: DecisionReject,
	}
	p, err := Project(res, EventCreateOffer, offerSnapshot())
	require.NoError(t, err)
	assert.Equal(t, "Rejected", p.NewStatus)
	assert.Contains(t, effectKinds(p), EffectCredentialingTerminate)
	assert.NotContains(t, effectKinds(p), EffectCredentialingAppendSteps)
}

func TestProject_CounterOfferCompletionRequestsMerge(t *testing.T) {
	res := &Result{
		Instance: &Instance{ID: "wf-1", FlowType: FlowReview},
		Status:   InstanceCompleted,
	}
	snap := offerSnapshot()
	snap.ParentOfferID = strPtr("offer-parent")

	p, err := Project(res, EventCounterOffer, snap)
	require.NoError(t, err)
	assert.True(t, p.MergeCounterOffer)
	assert.Equal(t, "Pending Acceptance", p.NewStatus)
}

func TestProject_CounterOfferPendingDoesNotMerge(t *testing.T) {
	res := &Result{
		Instance: &Instance{ID: "wf-1", FlowType: FlowReview},
		Status:   InstancePending,
	}
	p, err := Project(res, EventCounterOffer, offerSnapshot())
	require.NoError(t, err)
	assert.False(t, p.MergeCounterOffer)
	assert.Equal(t, "Pending Review", p.NewStatus)
}

func TestProject_JobVocabulary(t *testing.T) {
	snap := EntitySnapshot{Type: EntityJob, ID: "job-1", ProgramID: "prog-1", Status: "DRAFT"}

	p, err := Project(nil, EventCreateJob, snap)
	require.NoError(t, err)
	assert.Equal(t, "OPEN", p.NewStatus)
	assert.Empty(t, p.SubmissionStatus)
	assert.NotContains(t, effectKinds(p), EffectCredentialingPush, "credentialing is offer-only")

	res := &Result{Instance: &Instance{ID: "wf-1", FlowType: FlowApproval}, Status: InstancePending}
	p, err = Project(res, EventCreateJob, snap)
	require.NoError(t, err)
	assert.Equal(t, "PENDING APPROVAL", p.NewStatus)
}

func TestProject_SubmissionVocabulary(t *testing.T) {
	snap := EntitySnapshot{Type: EntitySubmission, ID: "sub-1", ProgramID: "prog-1", Status: "Draft"}

	p, err := Project(nil, EventSubmitCandidate, snap)
	require.NoError(t, err)
	assert.Equal(t, "Submitted", p.NewStatus)
}

func TestProject_UnknownEvent(t *testing.T) {
	_, err := Project(nil, "rename_offer", offerSnapshot())
	require.Error(t, err)
}

func TestProject_AlwaysAppendsCandidateHistory(t *testing.T) {
	cases := []*Result{
		nil,
		{Instance: &Instance{ID: "wf-1", FlowType: FlowReview}, Status: InstancePending},
		{Instance: &Instance{ID: "wf-1", FlowType: FlowReview}, Status: InstanceCompleted},
		{Instance: &Instance{ID: "wf-1", FlowType: FlowReview}, Status: InstanceCompleted, Decision: DecisionReject},
	}
	for _, res := range cases {
		p, err := Project(res, EventCreateOffer, offerSnapshot())
		require.NoError(t, err)
		assert.Contains(t, effectKinds(p), EffectCandidateHistory)

		var history *SideEffect
		for i := range p.SideEffects {
			if p.SideEffects[i].Kind == EffectCandidateHistory {
				history = &p.SideEffects[i]
			}
		}
		require.NotNil(t, history)
		assert.Equal(t, "Draft", history.Payload["old_status"])
		assert.Equal(t, p.NewStatus, history.Payload["new_status"])
	}
}
