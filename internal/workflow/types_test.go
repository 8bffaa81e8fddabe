package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceSerializesWithSnakeCaseKeys(t *testing.T) {
	inst := Instance{
		ID:          "wf-1",
		ProgramID:   "prog-1",
		TriggerID:   "offer-1",
		TriggerType: EntityOffer,
		Event:       EventCreateOffer,
		FlowType:    FlowApproval,
		Status:      InstancePending,
		IsEnabled:   true,
		Levels: []Level{
			{PlacementOrder: 0, Status: LevelPending, Recipients: []Recipient{
				{Status: RecipientPending, MetaData: []string{"user-a"}},
			}},
		},
	}

	data, err := json.Marshal(inst)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{"id", "program_id", "workflow_trigger_id", "flow_type", "is_enabled", "levels"} {
		assert.Contains(t, m, key)
	}
	assert.NotContains(t, m, "ID")
	assert.NotContains(t, m, "ProgramID")
}
