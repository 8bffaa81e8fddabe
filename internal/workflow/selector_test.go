package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConfigStore implements ConfigStore over a fixture slice.
type fakeConfigStore struct {
	configs []Config
	calls   int
	err     error
}

func (f *fakeConfigStore) ListConfigs(ctx context.Context, programID, moduleID, eventID string) ([]Config, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []Config
	for _, c := range f.configs {
		if c.ProgramID == programID && c.ModuleID == moduleID && c.EventID == eventID {
			out = append(out, c)
		}
	}
	return out, nil
}

func fixtureConfig(id string, ft FlowType, createdOn time.Time, hierarchies ...string) Config {
	return Config{
		ID:          id,
		ProgramID:   "prog-1",
		ModuleID:    "offer",
		EventID:     EventCreateOffer,
		FlowType:    ft,
		Hierarchies: hierarchies,
		IsEnabled:   true,
		CreatedOn:   createdOn,
	}
}

func TestSelect_PrefersReviewOverApproval(t *testing.T) {
	now := time.Now()
	store := &fakeConfigStore{configs: []Config{
		fixtureConfig("cfg-approval", FlowApproval, now, "h1"),
		fixtureConfig("cfg-review", FlowReview, now.Add(-time.Hour), "h1"),
	}}
	sel := NewSelector(store, 0, zerolog.Nop())

	cfg, err := sel.Select(context.Background(), "prog-1", "offer", EventCreateOffer, []string{"h1"}, "")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "cfg-review", cfg.ID, "review wins even when approval is newer")
}

func TestSelect_FallsBackToApproval(t *testing.T) {
	store := &fakeConfigStore{configs: []Config{
		fixtureConfig("cfg-approval", FlowApproval, time.Now(), "h1"),
	}}
	sel := NewSelector(store, 0, zerolog.Nop())

	cfg, err := sel.Select(context.Background(), "prog-1", "offer", EventCreateOffer, []string{"h1"}, "")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "cfg-approval", cfg.ID)
}

func TestSelect_NoMatchReturnsNil(t *testing.T) {
	sel := NewSelector(&fakeConfigStore{}, 0, zerolog.Nop())

	cfg, err := sel.Select(context.Background(), "prog-1", "offer", EventCreateOffer, []string{"h1"}, "")
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestSelect_HierarchyFiltering(t *testing.T) {
	now := time.Now()
	all := fixtureConfig("cfg-all", FlowApproval, now)
	all.AllHierarchies = true

	store := &fakeConfigStore{configs: []Config{
		fixtureConfig("cfg-h2", FlowApproval, now.Add(time.Minute), "h2"),
		all,
	}}
	sel := NewSelector(store, 0, zerolog.Nop())

	// No intersection with h2, but the all-hierarchy config matches.
	cfg, err := sel.Select(context.Background(), "prog-1", "offer", EventCreateOffer, []string{"h9"}, "")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "cfg-all", cfg.ID)

	cfg, err = sel.Select(context.Background(), "prog-1", "offer", EventCreateOffer, []string{"h2"}, "")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "cfg-h2", cfg.ID, "h2 config is newer than the all-hierarchy one")
}

func TestSelect_RecencyTiebreak(t *testing.T) {
	now := time.Now()
	store := &fakeConfigStore{configs: []Config{
		fixtureConfig("cfg-old", FlowApproval, now.Add(-time.Hour), "h1"),
		fixtureConfig("cfg-new", FlowApproval, now, "h1"),
	}}
	sel := NewSelector(store, 0, zerolog.Nop())

	cfg, err := sel.Select(context.Background(), "prog-1", "offer", EventCreateOffer, []string{"h1"}, "")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "cfg-new", cfg.ID)
}

func TestSelect_SkipsDisabledAndDeleted(t *testing.T) {
	now := time.Now()
	disabled := fixtureConfig("cfg-disabled", FlowReview, now, "h1")
	disabled.IsEnabled = false
	deleted := fixtureConfig("cfg-deleted", FlowReview, now, "h1")
	deleted.IsDeleted = true

	store := &fakeConfigStore{configs: []Config{
		disabled,
		deleted,
		fixtureConfig("cfg-ok", FlowApproval, now, "h1"),
	}}
	sel := NewSelector(store, 0, zerolog.Nop())

	cfg, err := sel.Select(context.Background(), "prog-1", "offer", EventCreateOffer, []string{"h1"}, "")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "cfg-ok", cfg.ID)
}

func TestSelect_PreferredFlowTypeOnly(t *testing.T) {
	now := time.Now()
	store := &fakeConfigStore{configs: []Config{
		fixtureConfig("cfg-review", FlowReview, now, "h1"),
	}}
	sel := NewSelector(store, 0, zerolog.Nop())

	cfg, err := sel.Select(context.Background(), "prog-1", "offer", EventCreateOffer, []string{"h1"}, FlowApproval)
	require.NoError(t, err)
	assert.Nil(t, cfg, "explicit approval preference must not fall back to review")
}

func TestSelect_CachesStoreReads(t *testing.T) {
	store := &fakeConfigStore{configs: []Config{
		fixtureConfig("cfg-review", FlowReview, time.Now(), "h1"),
	}}
	sel := NewSelector(store, time.Minute, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := sel.Select(context.Background(), "prog-1", "offer", EventCreateOffer, []string{"h1"}, "")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.calls)

	sel.Invalidate("prog-1", "offer", EventCreateOffer)
	_, err := sel.Select(context.Background(), "prog-1", "offer", EventCreateOffer, []string{"h1"}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}
