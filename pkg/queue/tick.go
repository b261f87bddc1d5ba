package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/sokovan/pkg/ledger"
	"github.com/cuemby/sokovan/pkg/selector"
	"github.com/cuemby/sokovan/pkg/types"
)

// KernelRequest is one kernel a session needs scheduled, in placement
// order (main kernel first).
type KernelRequest struct {
	KernelID       types.KernelID
	RequestedSlots types.ResourceSlot
}

// KernelAssignment is the agent the selector picked for one kernel.
type KernelAssignment struct {
	KernelID  types.KernelID
	AgentID   types.AgentID
	AgentAddr string
	Slots     types.ResourceSlot
}

// Repository is the IO boundary for the scheduling tick: everything the
// tick reads or writes about sessions, kernels, and agents goes through
// this interface so the tick itself stays storage-agnostic.
type Repository interface {
	LoadPending(ctx context.Context, sg types.ScalingGroupName) ([]PendingSession, error)
	LoadScheduledButNotRunning(ctx context.Context, sg types.ScalingGroupName) ([]PendingSession, error)
	KernelRequests(ctx context.Context, sessionID types.SessionID) (clusterMode types.ClusterMode, sessionType types.SessionType, endpointID *types.EndpointID, requests []KernelRequest, err error)
	Agents(ctx context.Context, sg types.ScalingGroupName) ([]types.Agent, error)
	AgentAddr(ctx context.Context, agentID types.AgentID) (string, error)

	MarkScheduled(ctx context.Context, sessionID types.SessionID, assignments []KernelAssignment) error
	MarkStillPending(ctx context.Context, sessionID types.SessionID, statusInfo string) error
	CancelPendingTimeout(ctx context.Context, sessionID types.SessionID) error
}

// Tick drives one resource group's scheduler -> selector -> ledger loop
// to completion. It is re-entered on every scheduling tick; callers
// are expected to serialize ticks per scaling group (an advisory lock).
type Tick struct {
	Repo           Repository
	Scheduler      Scheduler
	AgentSelector  selector.AgentSelector
	Ledger         ledger.Ledger
	Limits         map[types.AccessKey]KeypairLimits
	PendingTimeout time.Duration
}

// Run drives one scaling group's scheduling pass to completion, stopping
// when pick_session has nothing left to admit or no agent fits.
func (t *Tick) Run(ctx context.Context, sg types.ScalingGroupName, now time.Time) error {
	if err := t.expireTimeouts(ctx, sg, now); err != nil {
		return fmt.Errorf("queue timeout pass for %s: %w", sg, err)
	}

	for {
		picked, err := t.tryPickAndSchedule(ctx, sg)
		if err != nil {
			return err
		}
		if !picked {
			return nil
		}
	}
}

func (t *Tick) expireTimeouts(ctx context.Context, sg types.ScalingGroupName, now time.Time) error {
	if t.PendingTimeout <= 0 {
		return nil
	}
	pending, err := t.Repo.LoadPending(ctx, sg)
	if err != nil {
		return fmt.Errorf("load pending: %w", err)
	}
	for _, s := range pending {
		if now.Sub(s.CreatedAt) >= t.PendingTimeout {
			if err := t.Repo.CancelPendingTimeout(ctx, s.SessionID); err != nil {
				return fmt.Errorf("cancel %s: %w", s.SessionID, err)
			}
		}
	}
	return nil
}

// tryPickAndSchedule runs one iteration of the loop: load, pick, select,
// allocate. Returns picked=false once pick_session has nothing left.
func (t *Tick) tryPickAndSchedule(ctx context.Context, sg types.ScalingGroupName) (bool, error) {
	pending, err := t.Repo.LoadPending(ctx, sg)
	if err != nil {
		return false, fmt.Errorf("load pending: %w", err)
	}
	if len(pending) == 0 {
		return false, nil
	}

	scheduledButNotRunning, err := t.Repo.LoadScheduledButNotRunning(ctx, sg)
	if err != nil {
		return false, fmt.Errorf("load scheduled-but-not-running: %w", err)
	}
	usage := aggregateUsage(pending, scheduledButNotRunning)

	agents, err := t.Repo.Agents(ctx, sg)
	if err != nil {
		return false, fmt.Errorf("load agents: %w", err)
	}
	totalCapacity := aggregateFreeCapacity(agents)

	session, ok := PickSession(t.Scheduler, pending, totalCapacity, usage, t.Limits)
	if !ok {
		return false, nil
	}

	clusterMode, sessionType, endpointID, requests, err := t.Repo.KernelRequests(ctx, session.SessionID)
	if err != nil {
		return false, fmt.Errorf("load kernel requests for %s: %w", session.SessionID, err)
	}

	kernelSlots := make([]types.ResourceSlot, len(requests))
	for i, r := range requests {
		kernelSlots[i] = r.RequestedSlots
	}

	agentIDs, err := selector.SelectForSession(ctx, t.AgentSelector, sg, agents, clusterMode, sessionType, endpointID, kernelSlots)
	if err != nil {
		if err := t.Repo.MarkStillPending(ctx, session.SessionID, "no-available-instances"); err != nil {
			return false, fmt.Errorf("mark %s still pending: %w", session.SessionID, err)
		}
		// No agent fit this session; it stays PENDING but the loop must
		// not spin forever trying the same session, so stop this tick.
		return false, nil
	}

	assignments := make([]KernelAssignment, len(requests))
	var allocated int
	for i, r := range requests {
		addr, err := t.Repo.AgentAddr(ctx, agentIDs[i])
		if err != nil {
			t.rollback(ctx, assignments[:allocated])
			_ = t.Repo.MarkStillPending(ctx, session.SessionID, "no-available-instances")
			return false, fmt.Errorf("resolve address for agent %s: %w", agentIDs[i], err)
		}
		assignments[i] = KernelAssignment{KernelID: r.KernelID, AgentID: agentIDs[i], AgentAddr: addr, Slots: r.RequestedSlots}

		if err := t.Ledger.RequestResources(ctx, r.KernelID, r.RequestedSlots); err != nil {
			t.rollback(ctx, assignments[:allocated])
			_ = t.Repo.MarkStillPending(ctx, session.SessionID, "no-available-instances")
			return false, nil
		}
		if err := t.Ledger.AllocateResources(ctx, r.KernelID, agentIDs[i], r.RequestedSlots); err != nil {
			t.rollback(ctx, assignments[:allocated])
			_ = t.Repo.MarkStillPending(ctx, session.SessionID, "no-available-instances")
			return false, nil
		}
		allocated++
	}

	if err := t.Repo.MarkScheduled(ctx, session.SessionID, assignments); err != nil {
		t.rollback(ctx, assignments)
		return false, fmt.Errorf("mark %s scheduled: %w", session.SessionID, err)
	}
	return true, nil
}

// rollback frees every already-allocated kernel in assignments. Used when
// a later kernel in the same session fails to schedule, so a session
// never ends up with some kernels allocated and others not.
func (t *Tick) rollback(ctx context.Context, assignments []KernelAssignment) {
	for _, a := range assignments {
		_ = t.Ledger.FreeResources(ctx, a.KernelID, a.AgentID)
	}
}

func aggregateUsage(pending, scheduledButNotRunning []PendingSession) map[types.AccessKey]KeypairUsage {
	usage := make(map[types.AccessKey]KeypairUsage)
	bump := func(s PendingSession, pendingDelta, concurrentDelta int) {
		u := usage[s.AccessKey]
		u.PendingSessionCount += pendingDelta
		if s.IsSFTP {
			u.ConcurrentSFTPSessions += concurrentDelta
		} else {
			u.ConcurrentSessions += concurrentDelta
		}
		usage[s.AccessKey] = u
	}
	for _, s := range pending {
		bump(s, 1, 0)
	}
	for _, s := range scheduledButNotRunning {
		bump(s, 0, 1)
	}
	return usage
}

func aggregateFreeCapacity(agents []types.Agent) types.ResourceSlot {
	total := types.ResourceSlot{}
	for _, a := range agents {
		total = total.Add(a.Free())
	}
	return total
}
