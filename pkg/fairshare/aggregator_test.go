package fairshare

import (
	"testing"
	"time"

	"github.com/cuemby/sokovan/pkg/types"
	"github.com/stretchr/testify/require"
)

func at(hh, mm, ss int) time.Time {
	return time.Date(2024, 1, 1, hh, mm, ss, 0, time.UTC)
}

func TestFloorToBoundaryIsIdempotent(t *testing.T) {
	tm := at(7, 47, 12)
	floored := FloorToBoundary(tm)
	require.Equal(t, floored, FloorToBoundary(floored))
	require.Equal(t, at(7, 45, 0), floored)
}

// scenario 4: partial start + boundary + partial end.
func TestPrepareSliceGeneration(t *testing.T) {
	kernelID := types.KernelID("K")
	starts := at(7, 42, 30)
	occupied := types.ResourceSlot{
		types.MustSlotName("cpu"): types.NewDecimalInt(2),
		types.MustSlotName("mem"): types.NewDecimalInt(4096),
	}

	k := KernelInfo{KernelID: kernelID, StartsAt: starts, OccupiedSlots: occupied}

	slices, observed := Prepare([]KernelInfo{k}, "sg", at(7, 47, 0))
	require.Len(t, slices, 1)
	require.Equal(t, starts, slices[0].PeriodStart)
	require.Equal(t, at(7, 45, 0), slices[0].PeriodEnd)
	require.True(t, slices[0].ResourceUsage.Get(types.MustSlotName("cpu")).Cmp(types.NewDecimalInt(300)) == 0)
	require.True(t, slices[0].ResourceUsage.Get(types.MustSlotName("mem")).Cmp(types.NewDecimalInt(614400)) == 0)
	lastObserved := observed[kernelID]
	k.LastObservedAt = &lastObserved

	slices, observed = Prepare([]KernelInfo{k}, "sg", at(7, 48, 0))
	require.Empty(t, slices)
	lastObserved = observed[kernelID]
	k.LastObservedAt = &lastObserved
	require.Equal(t, at(7, 45, 0), lastObserved)

	slices, observed = Prepare([]KernelInfo{k}, "sg", at(7, 52, 0))
	require.Len(t, slices, 1)
	require.Equal(t, at(7, 45, 0), slices[0].PeriodStart)
	require.Equal(t, at(7, 50, 0), slices[0].PeriodEnd)
	lastObserved = observed[kernelID]
	k.LastObservedAt = &lastObserved

	terminatedAt := at(7, 53, 30)
	k.TerminatedAt = &terminatedAt
	slices, observed = Prepare([]KernelInfo{k}, "sg", at(7, 55, 0))
	require.Len(t, slices, 1)
	require.Equal(t, at(7, 50, 0), slices[0].PeriodStart)
	require.Equal(t, terminatedAt, slices[0].PeriodEnd)
	require.Equal(t, terminatedAt, observed[kernelID])
}

func TestPrepareSlicesAreContiguous(t *testing.T) {
	kernelID := types.KernelID("K")
	starts := at(7, 0, 0)
	k := KernelInfo{KernelID: kernelID, StartsAt: starts, OccupiedSlots: types.ResourceSlot{
		types.MustSlotName("cpu"): types.NewDecimalInt(1),
	}}

	slices, _ := Prepare([]KernelInfo{k}, "sg", at(7, 17, 0))
	require.Len(t, slices, 3)
	for i := 1; i < len(slices); i++ {
		require.Equal(t, slices[i-1].PeriodEnd, slices[i].PeriodStart)
	}
}
