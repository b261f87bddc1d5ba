package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/sokovan/pkg/ledger"
	"github.com/cuemby/sokovan/pkg/queue"
	"github.com/cuemby/sokovan/pkg/storage"
	"github.com/cuemby/sokovan/pkg/types"
)

// scheduledButNotRunningStatuses are the statuses a session occupies
// between being admitted off the pending queue and reaching RUNNING: its
// requested slots already count against a keypair's concurrency limits
// even though no ledger capacity check has resolved them to occupied
// slots yet.
var scheduledButNotRunningStatuses = []types.SessionStatus{
	types.SessionScheduled,
	types.SessionPreparing,
	types.SessionPulling,
	types.SessionPrepared,
	types.SessionCreating,
}

// storeRepository adapts storage.Store to pkg/queue's Repository
// interface, the IO boundary the scheduling tick reads and writes
// through.
type storeRepository struct {
	store  storage.Store
	ledger ledger.Ledger
}

func newStoreRepository(store storage.Store, l ledger.Ledger) *storeRepository {
	return &storeRepository{store: store, ledger: l}
}

func (r *storeRepository) LoadPending(ctx context.Context, sg types.ScalingGroupName) ([]queue.PendingSession, error) {
	sessions, err := r.store.ListSessionsByScalingGroupAndStatus(sg, types.SessionPending)
	if err != nil {
		return nil, err
	}
	out := make([]queue.PendingSession, 0, len(sessions))
	for _, s := range sessions {
		satisfied, err := r.dependenciesSatisfied(s)
		if err != nil {
			return nil, err
		}
		if s.Status == types.SessionCancelled {
			continue
		}
		out = append(out, toPendingSession(s, satisfied))
	}
	return out, nil
}

func (r *storeRepository) LoadScheduledButNotRunning(ctx context.Context, sg types.ScalingGroupName) ([]queue.PendingSession, error) {
	var out []queue.PendingSession
	for _, status := range scheduledButNotRunningStatuses {
		sessions, err := r.store.ListSessionsByScalingGroupAndStatus(sg, status)
		if err != nil {
			return nil, err
		}
		for _, s := range sessions {
			out = append(out, toPendingSession(s, true))
		}
	}
	return out, nil
}

// dependenciesSatisfied reports whether every session in DependsOn has
// reached TERMINATED with TerminationSuccess. A dependency that ended
// (TERMINATED or CANCELLED) with TerminationFailure cancels the dependent
// with status_info "dependency-failed" instead of leaving it pending
// forever; LoadPending then leaves the cancelled session out.
func (r *storeRepository) dependenciesSatisfied(s *types.Session) (bool, error) {
	for _, depID := range s.DependsOn {
		dep, err := r.store.GetSession(depID)
		if err != nil {
			return false, fmt.Errorf("load dependency %s: %w", depID, err)
		}
		if (dep.Status == types.SessionTerminated || dep.Status == types.SessionCancelled) && dep.TerminationResult == types.TerminationFailure {
			s.Status = types.SessionCancelled
			s.StatusInfo = "dependency-failed"
			now := time.Now()
			s.TerminatedAt = &now
			s.TerminationResult = types.TerminationFailure
			return false, r.store.UpdateSession(s)
		}
		if dep.Status != types.SessionTerminated || dep.TerminationResult != types.TerminationSuccess {
			return false, nil
		}
	}
	return true, nil
}

func toPendingSession(s *types.Session, depsSatisfied bool) queue.PendingSession {
	return queue.PendingSession{
		SessionID:             s.ID,
		AccessKey:             s.AccessKey,
		ScalingGroup:          s.ScalingGroup,
		CreatedAt:             s.CreatedAt,
		Priority:              s.Priority,
		RequestedSlots:        s.RequestedSlots,
		ClusterMode:           s.ClusterMode,
		SessionType:           s.SessionType,
		IsSFTP:                s.SessionType == types.SessionSFTP,
		DependenciesSatisfied: depsSatisfied,
	}
}

func (r *storeRepository) KernelRequests(ctx context.Context, sessionID types.SessionID) (types.ClusterMode, types.SessionType, *types.EndpointID, []queue.KernelRequest, error) {
	session, err := r.store.GetSession(sessionID)
	if err != nil {
		return "", "", nil, nil, err
	}
	kernels, err := r.store.ListKernelsBySession(sessionID)
	if err != nil {
		return "", "", nil, nil, err
	}
	requests := make([]queue.KernelRequest, 0, len(kernels))
	// Main kernel first: the selector's per-session call places it before
	// any sub kernels.
	for _, k := range kernels {
		if k.ClusterRole == types.ClusterRoleMain {
			requests = append(requests, queue.KernelRequest{KernelID: k.ID, RequestedSlots: k.RequestedSlots})
		}
	}
	for _, k := range kernels {
		if k.ClusterRole != types.ClusterRoleMain {
			requests = append(requests, queue.KernelRequest{KernelID: k.ID, RequestedSlots: k.RequestedSlots})
		}
	}
	return session.ClusterMode, session.SessionType, session.EndpointID, requests, nil
}

// Agents returns every schedulable, live agent in sg with OccupiedSlots
// overlaid from the ledger's live view rather than the stored row, which
// is only as fresh as the last agent heartbeat. Without this overlay the
// scheduler and selector would see every agent as it was at enrollment
// time and keep re-picking an agent the ledger has already filled within
// the same tick.
func (r *storeRepository) Agents(ctx context.Context, sg types.ScalingGroupName) ([]types.Agent, error) {
	agents, err := r.store.ListAgentsByScalingGroup(sg)
	if err != nil {
		return nil, err
	}
	out := make([]types.Agent, 0, len(agents))
	ids := make([]types.AgentID, 0, len(agents))
	for _, a := range agents {
		if a.Status == types.AgentAlive && a.Schedulable {
			out = append(out, *a)
			ids = append(ids, a.ID)
		}
	}
	if len(out) == 0 {
		return out, nil
	}
	occupancy, err := r.ledger.GetAgentOccupancy(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load agent occupancy: %w", err)
	}
	for i := range out {
		if occ, ok := occupancy[out[i].ID]; ok {
			out[i].OccupiedSlots = occ
		}
	}
	return out, nil
}

func (r *storeRepository) AgentAddr(ctx context.Context, agentID types.AgentID) (string, error) {
	agent, err := r.store.GetAgent(agentID)
	if err != nil {
		return "", err
	}
	return agent.Addr, nil
}

func (r *storeRepository) MarkScheduled(ctx context.Context, sessionID types.SessionID, assignments []queue.KernelAssignment) error {
	session, err := r.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	byKernel := make(map[types.KernelID]queue.KernelAssignment, len(assignments))
	for _, a := range assignments {
		byKernel[a.KernelID] = a
	}

	kernels, err := r.store.ListKernelsBySession(sessionID)
	if err != nil {
		return err
	}
	for _, k := range kernels {
		a, ok := byKernel[k.ID]
		if !ok {
			continue
		}
		agentID := a.AgentID
		agentAddr := a.AgentAddr
		k.AgentID = &agentID
		k.AgentAddr = &agentAddr
		k.Status = types.KernelScheduled
		k.StatusChanged = time.Now()
		if err := r.store.UpdateKernel(k); err != nil {
			return err
		}
	}

	session.Status = types.SessionScheduled
	session.StatusInfo = ""
	if err := r.store.UpdateSession(session); err != nil {
		return err
	}
	return nil
}

func (r *storeRepository) MarkStillPending(ctx context.Context, sessionID types.SessionID, statusInfo string) error {
	session, err := r.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	session.StatusInfo = statusInfo
	return r.store.UpdateSession(session)
}

func (r *storeRepository) CancelPendingTimeout(ctx context.Context, sessionID types.SessionID) error {
	session, err := r.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	session.Status = types.SessionCancelled
	session.StatusInfo = "pending-timeout"
	now := time.Now()
	session.TerminatedAt = &now
	session.TerminationResult = types.TerminationFailure
	return r.store.UpdateSession(session)
}
