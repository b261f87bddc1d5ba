package ledger

import (
	"context"
	"testing"

	"github.com/cuemby/sokovan/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *BoltLedger {
	t.Helper()
	l, err := NewBoltLedger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// scenario 5: allocate {cpu:2}, free twice, second call is a no-op.
func TestFreeResourcesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	cpu := types.MustSlotName("cpu")
	agentID := types.AgentID("A")
	kernelID := types.KernelID("K")

	require.NoError(t, l.UpsertAgentCapacity(ctx, agentID, cpu, types.NewDecimalInt(4)))
	require.NoError(t, l.RequestResources(ctx, kernelID, types.ResourceSlot{cpu: types.NewDecimalInt(2)}))
	require.NoError(t, l.AllocateResources(ctx, kernelID, agentID, types.ResourceSlot{cpu: types.NewDecimalInt(2)}))

	occ, err := l.GetAgentOccupancy(ctx, []types.AgentID{agentID})
	require.NoError(t, err)
	require.True(t, occ[agentID].Get(cpu).Cmp(types.NewDecimalInt(2)) == 0)

	require.NoError(t, l.FreeResources(ctx, kernelID, agentID))
	occ, err = l.GetAgentOccupancy(ctx, []types.AgentID{agentID})
	require.NoError(t, err)
	require.True(t, occ[agentID].Get(cpu).IsZero())

	// second call: no change.
	require.NoError(t, l.FreeResources(ctx, kernelID, agentID))
	occ, err = l.GetAgentOccupancy(ctx, []types.AgentID{agentID})
	require.NoError(t, err)
	require.True(t, occ[agentID].Get(cpu).IsZero())
}

// scenario 6: agent A has cpu capacity 4, used 3; allocating 2 more for K
// must raise ErrCapacityExceeded and leave used at 3 with no allocation
// row marked used.
func TestAllocateResourcesRollsBackOnCapacityExceeded(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	cpu := types.MustSlotName("cpu")
	agentID := types.AgentID("A")
	occupant := types.KernelID("existing")
	kernelID := types.KernelID("K")

	require.NoError(t, l.UpsertAgentCapacity(ctx, agentID, cpu, types.NewDecimalInt(4)))
	require.NoError(t, l.RequestResources(ctx, occupant, types.ResourceSlot{cpu: types.NewDecimalInt(3)}))
	require.NoError(t, l.AllocateResources(ctx, occupant, agentID, types.ResourceSlot{cpu: types.NewDecimalInt(3)}))

	require.NoError(t, l.RequestResources(ctx, kernelID, types.ResourceSlot{cpu: types.NewDecimalInt(2)}))
	err := l.AllocateResources(ctx, kernelID, agentID, types.ResourceSlot{cpu: types.NewDecimalInt(2)})
	require.ErrorIs(t, err, types.ErrCapacityExceeded)

	occ, err := l.GetAgentOccupancy(ctx, []types.AgentID{agentID})
	require.NoError(t, err)
	require.True(t, occ[agentID].Get(cpu).Cmp(types.NewDecimalInt(3)) == 0)
}

func TestRequestResourcesRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	cpu := types.MustSlotName("cpu")
	kernelID := types.KernelID("K")

	require.NoError(t, l.RequestResources(ctx, kernelID, types.ResourceSlot{cpu: types.NewDecimalInt(2)}))
	err := l.RequestResources(ctx, kernelID, types.ResourceSlot{cpu: types.NewDecimalInt(2)})
	require.ErrorIs(t, err, ErrDuplicateAllocation)
}

func TestGetSlotTypeNotFound(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	_, err := l.GetSlotType(ctx, types.MustSlotName("cpu"))
	require.ErrorIs(t, err, types.ErrSlotTypeNotFound)
}
