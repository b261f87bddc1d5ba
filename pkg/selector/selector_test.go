package selector

import (
	"context"
	"testing"

	"github.com/cuemby/sokovan/pkg/types"
	"github.com/stretchr/testify/require"
)

func agent(id string, cpu, mem int64) types.Agent {
	return types.Agent{
		ID:             types.AgentID(id),
		Status:         types.AgentAlive,
		Schedulable:    true,
		AvailableSlots: types.ResourceSlot{types.MustSlotName("cpu"): types.NewDecimalInt(cpu), types.MustSlotName("mem"): types.NewDecimalInt(mem)},
		OccupiedSlots:  types.ResourceSlot{},
	}
}

func occupy(a *types.Agent, cpu, mem int64) {
	a.OccupiedSlots = a.OccupiedSlots.Add(types.ResourceSlot{
		types.MustSlotName("cpu"): types.NewDecimalInt(cpu),
		types.MustSlotName("mem"): types.NewDecimalInt(mem),
	})
}

// scenario 2: round-robin skips over-committed agents.
func TestRoundRobinSkipsOvercommittedAgents(t *testing.T) {
	ctx := context.Background()
	agents := []types.Agent{
		agent("i-001", 8, 4096),
		agent("i-002", 4, 2048),
		agent("i-003", 2, 1024),
		agent("i-004", 1, 512),
	}
	byID := map[types.AgentID]*types.Agent{}
	for i := range agents {
		byID[agents[i].ID] = &agents[i]
	}

	sel := &RoundRobinSelector{State: NewMemoryStateStore()}
	req := types.ResourceSlot{types.MustSlotName("cpu"): types.NewDecimalInt(2), types.MustSlotName("mem"): types.NewDecimalInt(500)}

	var got []string
	for i := 0; i < 8; i++ {
		snapshot := make([]types.Agent, len(agents))
		copy(snapshot, agents)
		id, err := sel.Select(ctx, "sg", snapshot, Request{RequestedSlots: req})
		if err != nil {
			got = append(got, "None")
			continue
		}
		got = append(got, string(id))
		occupy(byID[id], 2, 500)
	}

	require.Equal(t, []string{"i-001", "i-002", "i-003", "i-001", "i-002", "i-001", "i-001", "None"}, got)
}

// scenario 3: concentrated + spread-replicas on inference.
type fakeReplicaLookup struct {
	counts map[types.AgentID]int
}

func (f fakeReplicaLookup) EndpointReplicaCounts(ctx context.Context, endpointID types.EndpointID, candidates []types.Agent) (map[types.AgentID]int, error) {
	return f.counts, nil
}

func TestConcentratedSpreadsEndpointReplicas(t *testing.T) {
	ctx := context.Background()
	agents := []types.Agent{
		agent("i-001", 1, 512),
		agent("i-002", 4, 2048),
		agent("i-003", 4, 2048),
	}
	sel := &ConcentratedSelector{
		ResourcePriority:                types.DefaultResourcePriority,
		EnforceSpreadingEndpointReplica: true,
		Replicas:                        fakeReplicaLookup{counts: map[types.AgentID]int{"i-001": 2, "i-002": 1, "i-003": 2}},
	}
	ep := types.EndpointID("ep-1")
	id, err := sel.Select(ctx, "sg", agents, Request{
		RequestedSlots: types.ResourceSlot{types.MustSlotName("cpu"): types.NewDecimalInt(1), types.MustSlotName("mem"): types.NewDecimalInt(100)},
		SessionType:    types.SessionInference,
		EndpointID:     &ep,
	})
	require.NoError(t, err)
	require.Equal(t, types.AgentID("i-002"), id)
}

func TestConcentratedPacksLeastFreeCapacity(t *testing.T) {
	ctx := context.Background()
	agents := []types.Agent{agent("small", 2, 1024), agent("big", 8, 4096)}
	sel := &ConcentratedSelector{ResourcePriority: types.DefaultResourcePriority}
	id, err := sel.Select(ctx, "sg", agents, Request{RequestedSlots: types.ResourceSlot{types.MustSlotName("cpu"): types.NewDecimalInt(1)}})
	require.NoError(t, err)
	require.Equal(t, types.AgentID("small"), id)
}

func TestDispersedPicksLargestFreeCapacity(t *testing.T) {
	ctx := context.Background()
	agents := []types.Agent{agent("small", 2, 1024), agent("big", 8, 4096)}
	sel := &DispersedSelector{ResourcePriority: types.DefaultResourcePriority}
	id, err := sel.Select(ctx, "sg", agents, Request{RequestedSlots: types.ResourceSlot{types.MustSlotName("cpu"): types.NewDecimalInt(1)}})
	require.NoError(t, err)
	require.Equal(t, types.AgentID("big"), id)
}

func TestNoSuitableAgent(t *testing.T) {
	ctx := context.Background()
	agents := []types.Agent{agent("a", 1, 128)}
	sel := &ConcentratedSelector{ResourcePriority: types.DefaultResourcePriority}
	_, err := sel.Select(ctx, "sg", agents, Request{RequestedSlots: types.ResourceSlot{types.MustSlotName("cpu"): types.NewDecimalInt(2)}})
	require.ErrorIs(t, err, types.ErrNoSuitableAgent)
}
