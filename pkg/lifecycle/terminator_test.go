package lifecycle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cuemby/sokovan/pkg/agentrpc"
	"github.com/cuemby/sokovan/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClients(fakes map[types.AgentID]*agentrpc.FakeClient) *agentrpc.Pool {
	pool := agentrpc.NewPool(nil)
	for id, c := range fakes {
		pool.Put(id, c)
	}
	return pool
}

func TestTerminateSessionsNoSessions(t *testing.T) {
	term := NewTerminator(newTestClients(nil), 0)
	result := term.TerminateSessions(context.Background(), nil)
	assert.Empty(t, result.Succeeded)
	assert.Empty(t, result.KernelErr)
}

func TestTerminateSessionsEmptyKernelList(t *testing.T) {
	term := NewTerminator(newTestClients(nil), 0)
	result := term.TerminateSessions(context.Background(), []TerminatingSession{
		{SessionID: "sess-1", Reason: "user requested"},
	})
	assert.True(t, result.Succeeded["sess-1"])
}

func TestTerminateSessionsSingleSuccess(t *testing.T) {
	fake := agentrpc.NewFakeClient()
	term := NewTerminator(newTestClients(map[types.AgentID]*agentrpc.FakeClient{"agent-1": fake}), 0)

	result := term.TerminateSessions(context.Background(), []TerminatingSession{
		{
			SessionID: "sess-1",
			Reason:    "user requested",
			Kernels: []TerminatingKernel{
				{KernelID: "kern-1", AgentID: "agent-1", AgentAddr: "agent-1:6001"},
			},
		},
	})

	assert.True(t, result.Succeeded["sess-1"])
	assert.Equal(t, []types.KernelID{"kern-1"}, fake.DestroyedKernels)
}

func TestTerminateSessionsMultipleKernels(t *testing.T) {
	fake := agentrpc.NewFakeClient()
	term := NewTerminator(newTestClients(map[types.AgentID]*agentrpc.FakeClient{"agent-1": fake}), 0)

	result := term.TerminateSessions(context.Background(), []TerminatingSession{
		{
			SessionID: "sess-1",
			Reason:    "user requested",
			Kernels: []TerminatingKernel{
				{KernelID: "kern-1", AgentID: "agent-1", AgentAddr: "agent-1:6001"},
				{KernelID: "kern-2", AgentID: "agent-1", AgentAddr: "agent-1:6001"},
				{KernelID: "kern-3", AgentID: "agent-1", AgentAddr: "agent-1:6001"},
			},
		},
	})

	assert.True(t, result.Succeeded["sess-1"])
	assert.ElementsMatch(t, []types.KernelID{"kern-1", "kern-2", "kern-3"}, fake.DestroyedKernels)
}

func TestTerminateSessionsPartialFailure(t *testing.T) {
	fake := agentrpc.NewFakeClient()
	fake.DestroyErr["kern-2"] = fmt.Errorf("agent unreachable")
	term := NewTerminator(newTestClients(map[types.AgentID]*agentrpc.FakeClient{"agent-1": fake}), 0)

	result := term.TerminateSessions(context.Background(), []TerminatingSession{
		{
			SessionID: "sess-1",
			Reason:    "user requested",
			Kernels: []TerminatingKernel{
				{KernelID: "kern-1", AgentID: "agent-1", AgentAddr: "agent-1:6001"},
				{KernelID: "kern-2", AgentID: "agent-1", AgentAddr: "agent-1:6001"},
			},
		},
	})

	assert.False(t, result.Succeeded["sess-1"])
	require.Error(t, result.KernelErr["kern-2"])
}

// slowFakeClient sleeps on every destroy call so TestTerminateSessionsConcurrentExecution
// can assert on wall-clock time, matching the original's concurrency timing test.
type slowFakeClient struct {
	*agentrpc.FakeClient
	delay time.Duration
}

func (s *slowFakeClient) DestroyKernel(ctx context.Context, kernelID types.KernelID, sessionID types.SessionID, reason string, suppressEvents bool) error {
	time.Sleep(s.delay)
	return s.FakeClient.DestroyKernel(ctx, kernelID, sessionID, reason, suppressEvents)
}

func TestTerminateSessionsConcurrentExecution(t *testing.T) {
	fake := &slowFakeClient{FakeClient: agentrpc.NewFakeClient(), delay: 100 * time.Millisecond}
	term := NewTerminator(newTestClients(map[types.AgentID]*agentrpc.FakeClient{}), 16)
	term.Clients = poolWith(fake)

	var kernels []TerminatingKernel
	for i := 0; i < 6; i++ {
		kernels = append(kernels, TerminatingKernel{
			KernelID: types.KernelID(fmt.Sprintf("kern-%d", i)),
			AgentID:  "agent-1",
			AgentAddr: "agent-1:6001",
		})
	}

	start := time.Now()
	result := term.TerminateSessions(context.Background(), []TerminatingSession{
		{SessionID: "sess-1", Reason: "user requested", Kernels: kernels},
	})
	elapsed := time.Since(start)

	assert.True(t, result.Succeeded["sess-1"])
	assert.Less(t, elapsed, 400*time.Millisecond, "6 kernels at 100ms each must run concurrently, not serially (would be 600ms)")
}

type fixedClients struct {
	client agentrpc.Client
}

func (f fixedClients) Acquire(ctx context.Context, agentID types.AgentID, addr string) (agentrpc.Client, error) {
	return f.client, nil
}

func poolWith(c agentrpc.Client) AgentClients {
	return fixedClients{client: c}
}
