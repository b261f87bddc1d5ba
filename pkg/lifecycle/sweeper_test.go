package lifecycle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cuemby/sokovan/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvictor struct {
	evicted map[types.AgentID][]types.SessionID
	errFor  map[types.AgentID]error
}

func newFakeEvictor() *fakeEvictor {
	return &fakeEvictor{evicted: make(map[types.AgentID][]types.SessionID), errFor: make(map[types.AgentID]error)}
}

func (f *fakeEvictor) EvictAgent(ctx context.Context, agentID types.AgentID, sessionIDs []types.SessionID) error {
	if err := f.errFor[agentID]; err != nil {
		return err
	}
	f.evicted[agentID] = sessionIDs
	return nil
}

func TestSweeperEvictsPastDwell(t *testing.T) {
	evictor := newFakeEvictor()
	sweeper := NewSweeper(evictor, 5*time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	evicted, err := sweeper.Sweep(context.Background(), now, []LostAgent{
		{AgentID: "agent-1", LostAt: now.Add(-6 * time.Minute), Sessions: []types.SessionID{"sess-1"}},
	})

	require.NoError(t, err)
	assert.Equal(t, []types.AgentID{"agent-1"}, evicted)
	assert.Equal(t, []types.SessionID{"sess-1"}, evictor.evicted["agent-1"])
}

func TestSweeperLeavesAgentsWithinDwell(t *testing.T) {
	evictor := newFakeEvictor()
	sweeper := NewSweeper(evictor, 5*time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	evicted, err := sweeper.Sweep(context.Background(), now, []LostAgent{
		{AgentID: "agent-1", LostAt: now.Add(-4 * time.Minute), Sessions: []types.SessionID{"sess-1"}},
	})

	require.NoError(t, err)
	assert.Empty(t, evicted)
	assert.Empty(t, evictor.evicted)
}

func TestSweeperDefaultsDwellToFiveMinutes(t *testing.T) {
	sweeper := NewSweeper(newFakeEvictor(), 0)
	assert.Equal(t, types.DefaultLostAgentDwell, sweeper.Dwell)
}

func TestSweeperContinuesAfterEvictionError(t *testing.T) {
	evictor := newFakeEvictor()
	evictor.errFor["agent-1"] = fmt.Errorf("storage unavailable")
	sweeper := NewSweeper(evictor, 5*time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	evicted, err := sweeper.Sweep(context.Background(), now, []LostAgent{
		{AgentID: "agent-1", LostAt: now.Add(-10 * time.Minute)},
		{AgentID: "agent-2", LostAt: now.Add(-10 * time.Minute), Sessions: []types.SessionID{"sess-2"}},
	})

	require.NoError(t, err)
	assert.Equal(t, []types.AgentID{"agent-2"}, evicted)
}
