package queue

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/sokovan/pkg/ledger"
	"github.com/cuemby/sokovan/pkg/selector"
	"github.com/cuemby/sokovan/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	pending        []PendingSession
	scheduled      []PendingSession
	agents         []types.Agent
	kernelRequests map[types.SessionID][]KernelRequest
	clusterMode    types.ClusterMode
	sessionType    types.SessionType

	scheduledCalls []types.SessionID
	stillPending   []types.SessionID
	cancelled      []types.SessionID
}

func (f *fakeRepo) LoadPending(ctx context.Context, sg types.ScalingGroupName) ([]PendingSession, error) {
	return f.pending, nil
}

func (f *fakeRepo) LoadScheduledButNotRunning(ctx context.Context, sg types.ScalingGroupName) ([]PendingSession, error) {
	return f.scheduled, nil
}

func (f *fakeRepo) KernelRequests(ctx context.Context, sessionID types.SessionID) (types.ClusterMode, types.SessionType, *types.EndpointID, []KernelRequest, error) {
	return f.clusterMode, f.sessionType, nil, f.kernelRequests[sessionID], nil
}

func (f *fakeRepo) Agents(ctx context.Context, sg types.ScalingGroupName) ([]types.Agent, error) {
	return f.agents, nil
}

func (f *fakeRepo) AgentAddr(ctx context.Context, agentID types.AgentID) (string, error) {
	return string(agentID) + ":6001", nil
}

func (f *fakeRepo) MarkScheduled(ctx context.Context, sessionID types.SessionID, assignments []KernelAssignment) error {
	f.scheduledCalls = append(f.scheduledCalls, sessionID)
	// Once scheduled, the session leaves the pending set for subsequent
	// LoadPending calls within the same tick loop.
	var remaining []PendingSession
	for _, p := range f.pending {
		if p.SessionID != sessionID {
			remaining = append(remaining, p)
		}
	}
	f.pending = remaining
	return nil
}

func (f *fakeRepo) MarkStillPending(ctx context.Context, sessionID types.SessionID, statusInfo string) error {
	f.stillPending = append(f.stillPending, sessionID)
	return nil
}

func (f *fakeRepo) CancelPendingTimeout(ctx context.Context, sessionID types.SessionID) error {
	f.cancelled = append(f.cancelled, sessionID)
	var remaining []PendingSession
	for _, p := range f.pending {
		if p.SessionID != sessionID {
			remaining = append(remaining, p)
		}
	}
	f.pending = remaining
	return nil
}

func newTestLedgerForQueue(t *testing.T) ledger.Ledger {
	t.Helper()
	l, err := ledger.NewBoltLedger(t.TempDir())
	require.NoError(t, err)
	return l
}

// scenario 1: single FIFO pick on an empty cluster.
func TestTickSchedulesSingleSessionOnEmptyCluster(t *testing.T) {
	ctx := context.Background()
	l := newTestLedgerForQueue(t)
	require.NoError(t, l.UpsertAgentCapacity(ctx, "i-001", types.MustSlotName("cpu"), types.NewDecimalInt(4)))
	require.NoError(t, l.UpsertAgentCapacity(ctx, "i-001", types.MustSlotName("mem"), types.NewDecimalInt(4096)))

	repo := &fakeRepo{
		pending: []PendingSession{pendingAt("S1", base, 0)},
		agents: []types.Agent{
			{ID: "i-001", Status: types.AgentAlive, Schedulable: true, AvailableSlots: slots(4, 4096)},
		},
		kernelRequests: map[types.SessionID][]KernelRequest{
			"S1": {{KernelID: "k1", RequestedSlots: slots(2, 1024)}},
		},
	}

	tick := &Tick{
		Repo:          repo,
		Scheduler:     FIFOScheduler{},
		AgentSelector: &selector.LegacySelector{},
		Ledger:        l,
	}

	err := tick.Run(ctx, "default", base.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, []types.SessionID{"S1"}, repo.scheduledCalls)
	occ, err := l.GetAgentOccupancy(ctx, []types.AgentID{"i-001"})
	require.NoError(t, err)
	assert.Equal(t, 0, occ["i-001"].Get(types.MustSlotName("cpu")).Cmp(types.NewDecimalInt(2)))
	assert.Equal(t, 0, occ["i-001"].Get(types.MustSlotName("mem")).Cmp(types.NewDecimalInt(1024)))
}

func TestTickLeavesSessionPendingWhenNoAgentFits(t *testing.T) {
	ctx := context.Background()
	l := newTestLedgerForQueue(t)

	repo := &fakeRepo{
		pending: []PendingSession{pendingAt("S1", base, 0)},
		agents: []types.Agent{
			{ID: "i-001", Status: types.AgentAlive, Schedulable: true, AvailableSlots: slots(1, 300)},
			{ID: "i-002", Status: types.AgentAlive, Schedulable: true, AvailableSlots: slots(1, 300)},
		},
		kernelRequests: map[types.SessionID][]KernelRequest{
			"S1": {{KernelID: "k1", RequestedSlots: slots(2, 500)}},
		},
	}

	tick := &Tick{Repo: repo, Scheduler: FIFOScheduler{}, AgentSelector: &selector.LegacySelector{}, Ledger: l}
	err := tick.Run(ctx, "default", base.Add(time.Hour))
	require.NoError(t, err)

	assert.Empty(t, repo.scheduledCalls)
	assert.Equal(t, []types.SessionID{"S1"}, repo.stillPending)
}

func TestTickCancelsTimedOutSessionsBeforePicking(t *testing.T) {
	ctx := context.Background()
	l := newTestLedgerForQueue(t)

	repo := &fakeRepo{
		pending: []PendingSession{pendingAt("S1", base, 0)},
		agents:  []types.Agent{{ID: "i-001", Status: types.AgentAlive, Schedulable: true, AvailableSlots: slots(4, 4096)}},
	}

	tick := &Tick{
		Repo:           repo,
		Scheduler:      FIFOScheduler{},
		AgentSelector:  &selector.LegacySelector{},
		Ledger:         l,
		PendingTimeout: time.Minute,
	}

	err := tick.Run(ctx, "default", base.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, []types.SessionID{"S1"}, repo.cancelled)
	assert.Empty(t, repo.scheduledCalls)
}
