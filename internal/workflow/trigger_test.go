package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRoleResolver maps role names to fixed user sets.
type fakeRoleResolver struct {
	users map[string][]string
}

func (f *fakeRoleResolver) ResolveUsers(ctx context.Context, programID, role string, hierarchyIDs []string) ([]string, error) {
	return f.users[role], nil
}

func triggerFixture(configs []Config, users map[string][]string) *Trigger {
	sel := NewSelector(&fakeConfigStore{configs: configs}, 0, zerolog.Nop())
	return NewTrigger(sel, &fakeRoleResolver{users: users}, zerolog.Nop())
}

func offerTriggerInput() TriggerInput {
	return TriggerInput{
		ProgramID:    "prog-1",
		ModuleID:     "offer",
		Event:        EventCreateOffer,
		TriggerID:    "offer-1",
		TriggerType:  EntityOffer,
		HierarchyIDs: []string{"h1"},
	}
}

func configWithLevels(id string, ft FlowType, roles ...string) Config {
	cfg := fixtureConfig(id, ft, time.Now(), "h1")
	for i, role := range roles {
		cfg.Levels = append(cfg.Levels, ConfigLevel{
			PlacementOrder: i,
			Recipients:     []ConfigRecipient{{Role: role}},
		})
	}
	return cfg
}

func TestBuild_NoConfigMeansNoGating(t *testing.T) {
	trg := triggerFixture(nil, nil)

	res, err := trg.Build(context.Background(), offerTriggerInput())
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestBuild_MaterializesLevelsAndRecipients(t *testing.T) {
	trg := triggerFixture(
		[]Config{configWithLevels("cfg-1", FlowApproval, "manager", "director")},
		map[string][]string{
			"manager":  {"user-1", "user-2"},
			"director": {"user-3"},
		},
	)

	res, err := trg.Build(context.Background(), offerTriggerInput())
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotNil(t, res.Instance)

	inst := res.Instance
	assert.Equal(t, InstancePending, inst.Status)
	assert.Equal(t, FlowApproval, inst.FlowType)
	assert.Equal(t, "offer-1", inst.TriggerID)
	assert.True(t, inst.IsEnabled)
	require.Len(t, inst.Levels, 2)
	assert.Equal(t, []string{"user-1", "user-2"}, inst.Levels[0].Recipients[0].MetaData)
	assert.Equal(t, []string{"user-3"}, inst.Levels[1].Recipients[0].MetaData)
	assert.True(t, IsLevelActionable(inst.Levels, 0, "user-1"))
	assert.False(t, IsLevelActionable(inst.Levels, 1, "user-3"))
}

func TestBuild_VacuousCompletion(t *testing.T) {
	// Roles resolve to nobody: every level ends up recipient-less and the
	// instance is completed at creation.
	trg := triggerFixture(
		[]Config{configWithLevels("cfg-1", FlowApproval, "manager")},
		map[string][]string{},
	)

	res, err := trg.Build(context.Background(), offerTriggerInput())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, InstanceCompleted, res.Status)
	assert.Equal(t, InstanceCompleted, res.Instance.Status)
}

func TestBuild_ReviewWithNoActionableLevelsFallsBackToApproval(t *testing.T) {
	trg := triggerFixture(
		[]Config{
			configWithLevels("cfg-review", FlowReview, "reviewer"),
			configWithLevels("cfg-approval", FlowApproval, "manager"),
		},
		map[string][]string{
			// Reviewer role resolves to nobody, manager does not.
			"manager": {"user-1"},
		},
	)

	res, err := trg.Build(context.Background(), offerTriggerInput())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, FlowApproval, res.Instance.FlowType)
	assert.Equal(t, InstancePending, res.Status)
}

func TestBuild_ReviewFallbackWithoutApprovalConfigStaysCompleted(t *testing.T) {
	trg := triggerFixture(
		[]Config{configWithLevels("cfg-review", FlowReview, "reviewer")},
		map[string][]string{},
	)

	res, err := trg.Build(context.Background(), offerTriggerInput())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, FlowReview, res.Instance.FlowType)
	assert.Equal(t, InstanceCompleted, res.Status)
}

func TestBuild_RequiresTriggerID(t *testing.T) {
	trg := triggerFixture(nil, nil)
	in := offerTriggerInput()
	in.TriggerID = ""

	_, err := trg.Build(context.Background(), in)
	require.Error(t, err)
}
