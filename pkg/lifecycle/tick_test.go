package lifecycle

import (
	"context"
	"testing"

	"github.com/cuemby/sokovan/pkg/agentrpc"
	"github.com/cuemby/sokovan/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarker struct {
	calls map[types.SessionID][]types.KernelID
}

func newFakeMarker() *fakeMarker {
	return &fakeMarker{calls: make(map[types.SessionID][]types.KernelID)}
}

func (m *fakeMarker) MarkKernelsPreparing(ctx context.Context, sessionID types.SessionID, kernelIDs []types.KernelID) error {
	m.calls[sessionID] = kernelIDs
	return nil
}

func TestTickGroupsKernelsByAgent(t *testing.T) {
	fake := agentrpc.NewFakeClient()
	marker := newFakeMarker()
	tick := &Tick{Clients: newTestClients(map[types.AgentID]*agentrpc.FakeClient{"agent-1": fake}), Marker: marker}

	errs := tick.Run(context.Background(), []ScheduledSession{
		{
			SessionID: "sess-1",
			Kernels: []ScheduledKernel{
				{Spec: agentrpc.KernelSpec{KernelID: "kern-1"}, AgentID: "agent-1", AgentAddr: "agent-1:6001"},
				{Spec: agentrpc.KernelSpec{KernelID: "kern-2"}, AgentID: "agent-1", AgentAddr: "agent-1:6001"},
			},
		},
	})

	assert.Empty(t, errs)
	require.Len(t, fake.CreateKernelsCalls, 1, "both kernels on the same agent should be a single create_kernels call")
	assert.ElementsMatch(t, []types.KernelID{"kern-1", "kern-2"}, marker.calls["sess-1"])
}

func TestTickIssuesOneCallPerAgent(t *testing.T) {
	fakeA := agentrpc.NewFakeClient()
	fakeB := agentrpc.NewFakeClient()
	marker := newFakeMarker()
	tick := &Tick{
		Clients: newTestClients(map[types.AgentID]*agentrpc.FakeClient{"agent-1": fakeA, "agent-2": fakeB}),
		Marker:  marker,
	}

	errs := tick.Run(context.Background(), []ScheduledSession{
		{
			SessionID: "sess-1",
			Kernels: []ScheduledKernel{
				{Spec: agentrpc.KernelSpec{KernelID: "kern-1"}, AgentID: "agent-1", AgentAddr: "agent-1:6001"},
				{Spec: agentrpc.KernelSpec{KernelID: "kern-2"}, AgentID: "agent-2", AgentAddr: "agent-2:6001"},
			},
		},
	})

	assert.Empty(t, errs)
	assert.Len(t, fakeA.CreateKernelsCalls, 1)
	assert.Len(t, fakeB.CreateKernelsCalls, 1)
	assert.ElementsMatch(t, []types.KernelID{"kern-1", "kern-2"}, marker.calls["sess-1"])
}

func TestTickRecordsErrorPerSessionWithoutAbortingOthers(t *testing.T) {
	failing := agentrpc.NewFakeClient()
	failing.CreateKernelsErr = assert.AnError
	ok := agentrpc.NewFakeClient()
	marker := newFakeMarker()
	tick := &Tick{
		Clients: newTestClients(map[types.AgentID]*agentrpc.FakeClient{"agent-1": failing, "agent-2": ok}),
		Marker:  marker,
	}

	errs := tick.Run(context.Background(), []ScheduledSession{
		{SessionID: "sess-1", Kernels: []ScheduledKernel{{Spec: agentrpc.KernelSpec{KernelID: "kern-1"}, AgentID: "agent-1", AgentAddr: "a"}}},
		{SessionID: "sess-2", Kernels: []ScheduledKernel{{Spec: agentrpc.KernelSpec{KernelID: "kern-2"}, AgentID: "agent-2", AgentAddr: "b"}}},
	})

	require.Error(t, errs["sess-1"])
	assert.NoError(t, errs["sess-2"])
	assert.Equal(t, []types.KernelID{"kern-2"}, marker.calls["sess-2"])
	_, stillPending := marker.calls["sess-1"]
	assert.False(t, stillPending)
}
