package lifecycle

import (
	"context"
	"fmt"

	"github.com/cuemby/sokovan/pkg/agentrpc"
	"github.com/cuemby/sokovan/pkg/types"
)

// ScheduledKernel is one kernel in SCHEDULED, grouped by agent for the
// create_kernels fan-out.
type ScheduledKernel struct {
	Spec      agentrpc.KernelSpec
	AgentID   types.AgentID
	AgentAddr string
}

// ScheduledSession is one session in SCHEDULED with its kernels, ready
// for the lifecycle tick's create_kernels step.
type ScheduledSession struct {
	SessionID types.SessionID
	Kernels   []ScheduledKernel
}

// KernelPreparingMarker persists a kernel's transition to PREPARING after
// a successful create_kernels call.
type KernelPreparingMarker interface {
	MarkKernelsPreparing(ctx context.Context, sessionID types.SessionID, kernelIDs []types.KernelID) error
}

// Tick drives SCHEDULED -> PREPARING by grouping each session's kernels
// by agent and calling create_kernels once per agent group. Agent events
// eventually push kernels on to RUNNING; this tick does not wait for that.
type Tick struct {
	Clients AgentClients
	Marker  KernelPreparingMarker
}

// Run processes every session in sessions, returning the first fatal
// error encountered per session without aborting the others.
func (t *Tick) Run(ctx context.Context, sessions []ScheduledSession) map[types.SessionID]error {
	errs := make(map[types.SessionID]error)
	for _, s := range sessions {
		if err := t.runOne(ctx, s); err != nil {
			errs[s.SessionID] = err
		}
	}
	return errs
}

func (t *Tick) runOne(ctx context.Context, s ScheduledSession) error {
	byAgent := make(map[types.AgentID][]ScheduledKernel)
	addrs := make(map[types.AgentID]string)
	for _, k := range s.Kernels {
		byAgent[k.AgentID] = append(byAgent[k.AgentID], k)
		addrs[k.AgentID] = k.AgentAddr
	}

	var preparing []types.KernelID
	for agentID, kernels := range byAgent {
		client, err := t.Clients.Acquire(ctx, agentID, addrs[agentID])
		if err != nil {
			return fmt.Errorf("acquire client for agent %s: %w", agentID, err)
		}
		specs := make([]agentrpc.KernelSpec, len(kernels))
		ids := make([]types.KernelID, len(kernels))
		for i, k := range kernels {
			specs[i] = k.Spec
			ids[i] = k.Spec.KernelID
		}
		if err := client.CreateKernels(ctx, s.SessionID, specs); err != nil {
			return fmt.Errorf("create_kernels on agent %s: %w", agentID, err)
		}
		preparing = append(preparing, ids...)
	}

	if err := t.Marker.MarkKernelsPreparing(ctx, s.SessionID, preparing); err != nil {
		return fmt.Errorf("mark kernels preparing: %w", err)
	}
	return nil
}
