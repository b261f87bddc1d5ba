package hooks

import (
	"context"
	"testing"

	"github.com/cuemby/sokovan/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakeSessionRunningUpdater struct {
	sessionID types.SessionID
	occupying types.ResourceSlot
}

func (f *fakeSessionRunningUpdater) UpdateSessionsToRunning(ctx context.Context, sessionID types.SessionID, occupyingSlots types.ResourceSlot) error {
	f.sessionID = sessionID
	f.occupying = occupyingSlots
	return nil
}

type fakeBatchTrigger struct {
	called   bool
	agentID  types.AgentID
	kernelID types.KernelID
}

func (f *fakeBatchTrigger) TriggerBatchExecution(ctx context.Context, agentID types.AgentID, sessionID types.SessionID, kernelID types.KernelID, startupCommand string, batchTimeout *float64) error {
	f.called = true
	f.agentID = agentID
	f.kernelID = kernelID
	return nil
}

type fakeEndpoints struct {
	updated []types.EndpointID
}

func (f *fakeEndpoints) UpdateEndpointRouteInfo(ctx context.Context, endpointID types.EndpointID) error {
	f.updated = append(f.updated, endpointID)
	return nil
}

type fakeEvents struct {
	emitted []types.EndpointID
}

func (f *fakeEvents) EmitEndpointRouteListUpdated(ctx context.Context, endpointID types.EndpointID) error {
	f.emitted = append(f.emitted, endpointID)
	return nil
}

func TestRunningHookBatchTriggersStartup(t *testing.T) {
	agentID := types.AgentID("agent-1")
	kernelID := types.KernelID("k-main")
	session := SessionWithKernels{
		Session: types.Session{ID: "s1", SessionType: types.SessionBatch},
		Kernels: []types.Kernel{
			{ID: kernelID, ClusterRole: types.ClusterRoleMain, AgentID: &agentID, OccupiedSlots: types.ResourceSlot{types.MustSlotName("cpu"): types.NewDecimalInt(2)}},
		},
	}

	sessions := &fakeSessionRunningUpdater{}
	batch := &fakeBatchTrigger{}
	hook := &RunningTransitionHook{Sessions: sessions, Batch: batch}

	require.NoError(t, hook.Execute(context.Background(), session))
	require.Equal(t, types.SessionID("s1"), sessions.sessionID)
	require.True(t, sessions.occupying.Get(types.MustSlotName("cpu")).Cmp(types.NewDecimalInt(2)) == 0)
	require.True(t, batch.called)
	require.Equal(t, agentID, batch.agentID)
	require.Equal(t, kernelID, batch.kernelID)
}

func TestRunningHookInferenceEmitsRouteUpdate(t *testing.T) {
	endpointID := types.EndpointID("ep-1")
	session := SessionWithKernels{
		Session: types.Session{ID: "s1", SessionType: types.SessionInference, EndpointID: &endpointID},
	}

	sessions := &fakeSessionRunningUpdater{}
	endpoints := &fakeEndpoints{}
	events := &fakeEvents{}
	hook := &RunningTransitionHook{Sessions: sessions, Endpoints: endpoints, Events: events}

	require.NoError(t, hook.Execute(context.Background(), session))
	require.Equal(t, []types.EndpointID{endpointID}, endpoints.updated)
	require.Equal(t, []types.EndpointID{endpointID}, events.emitted)
}

func TestTerminatedHookNoOpForNonInference(t *testing.T) {
	session := SessionWithKernels{Session: types.Session{ID: "s1", SessionType: types.SessionInteractive}}
	endpoints := &fakeEndpoints{}
	events := &fakeEvents{}
	hook := &TerminatedTransitionHook{Endpoints: endpoints, Events: events}

	require.NoError(t, hook.Execute(context.Background(), session))
	require.Empty(t, endpoints.updated)
	require.Empty(t, events.emitted)
}

func TestRegistryDispatchesByStatus(t *testing.T) {
	sessions := &fakeSessionRunningUpdater{}
	running := &RunningTransitionHook{Sessions: sessions}
	terminated := &TerminatedTransitionHook{}
	reg := NewRegistry(running, terminated)

	session := SessionWithKernels{Session: types.Session{ID: "s1", SessionType: types.SessionInteractive}}
	require.NoError(t, reg.Dispatch(context.Background(), types.SessionRunning, session))
	require.Equal(t, types.SessionID("s1"), sessions.sessionID)
	require.NoError(t, reg.Dispatch(context.Background(), types.SessionPending, session))
}
