package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/sokovan/pkg/agentrpc"
	"github.com/cuemby/sokovan/pkg/events"
	"github.com/cuemby/sokovan/pkg/lifecycle"
	"github.com/cuemby/sokovan/pkg/security"
	"github.com/cuemby/sokovan/pkg/storage"
	"github.com/cuemby/sokovan/pkg/types"
)

// lifecycleRepository adapts storage.Store to the read/write shapes
// lifecycle.Tick, Terminator and Sweeper need.
type lifecycleRepository struct {
	store   storage.Store
	emitter *events.Emitter
	secrets *security.SecretsManager
}

func newLifecycleRepository(store storage.Store, emitter *events.Emitter, secrets *security.SecretsManager) *lifecycleRepository {
	return &lifecycleRepository{store: store, emitter: emitter, secrets: secrets}
}

// ScheduledSessions loads every SCHEDULED session in sg along with its
// kernels, shaped for lifecycle.Tick's create_kernels fan-out.
func (r *lifecycleRepository) ScheduledSessions(sg types.ScalingGroupName) ([]lifecycle.ScheduledSession, error) {
	sessions, err := r.store.ListSessionsByScalingGroupAndStatus(sg, types.SessionScheduled)
	if err != nil {
		return nil, err
	}
	out := make([]lifecycle.ScheduledSession, 0, len(sessions))
	for _, s := range sessions {
		kernels, err := r.store.ListKernelsBySession(s.ID)
		if err != nil {
			return nil, err
		}
		scheduled := lifecycle.ScheduledSession{SessionID: s.ID}
		for _, k := range kernels {
			if k.AgentID == nil || k.AgentAddr == nil {
				continue
			}
			bootstrap, err := r.encryptField([]byte(k.BootstrapScript))
			if err != nil {
				return nil, fmt.Errorf("encrypt bootstrap_script for kernel %s: %w", k.ID, err)
			}
			environ, err := r.encryptField(encodeEnviron(k.Environ))
			if err != nil {
				return nil, fmt.Errorf("encrypt environ for kernel %s: %w", k.ID, err)
			}
			scheduled.Kernels = append(scheduled.Kernels, lifecycle.ScheduledKernel{
				Spec: agentrpc.KernelSpec{
					KernelID:        k.ID,
					ClusterRole:     k.ClusterRole,
					ClusterIdx:      k.ClusterIdx,
					ImageRef:        k.ImageRef,
					Architecture:    k.Architecture,
					RequestedSlots:  k.RequestedSlots,
					BootstrapScript: bootstrap,
					Environ:         environ,
				},
				AgentID:   *k.AgentID,
				AgentAddr: *k.AgentAddr,
			})
		}
		out = append(out, scheduled)
	}
	return out, nil
}

// encryptField seals plaintext with the cluster's secrets manager before it
// crosses pkg/agentrpc. A kernel with no bootstrap script or no environ
// entries has nothing to seal, so an empty plaintext passes through as nil
// rather than erroring on SecretsManager's empty-input check.
func (r *lifecycleRepository) encryptField(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, nil
	}
	return r.secrets.EncryptSecret(plaintext)
}

// encodeEnviron serializes a kernel's environment into the plaintext that
// encryptField seals before it is shipped to the agent.
func encodeEnviron(environ map[string]string) []byte {
	if len(environ) == 0 {
		return nil
	}
	data, err := json.Marshal(environ)
	if err != nil {
		return nil
	}
	return data
}

// MarkKernelsPreparing satisfies lifecycle.KernelPreparingMarker.
func (r *lifecycleRepository) MarkKernelsPreparing(ctx context.Context, sessionID types.SessionID, kernelIDs []types.KernelID) error {
	ids := make(map[types.KernelID]bool, len(kernelIDs))
	for _, id := range kernelIDs {
		ids[id] = true
	}
	kernels, err := r.store.ListKernelsBySession(sessionID)
	if err != nil {
		return err
	}
	for _, k := range kernels {
		if !ids[k.ID] {
			continue
		}
		k.Status = types.KernelPreparing
		k.StatusChanged = time.Now()
		if err := r.store.UpdateKernel(k); err != nil {
			return err
		}
	}

	session, err := r.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	session.Status = types.SessionPreparing
	if err := r.store.UpdateSession(session); err != nil {
		return err
	}
	r.emitter.EmitSessionStatusChanged(sessionID, types.SessionPreparing, "")
	return nil
}

// TerminatingSessions loads every TERMINATING session with its kernels,
// shaped for lifecycle.Terminator's destroy_kernel fan-out.
func (r *lifecycleRepository) TerminatingSessions(sg types.ScalingGroupName) ([]lifecycle.TerminatingSession, error) {
	sessions, err := r.store.ListSessionsByScalingGroupAndStatus(sg, types.SessionTerminating)
	if err != nil {
		return nil, err
	}
	out := make([]lifecycle.TerminatingSession, 0, len(sessions))
	for _, s := range sessions {
		kernels, err := r.store.ListKernelsBySession(s.ID)
		if err != nil {
			return nil, err
		}
		terminating := lifecycle.TerminatingSession{SessionID: s.ID, Reason: s.StatusInfo}
		for _, k := range kernels {
			if k.AgentID == nil || k.AgentAddr == nil {
				continue
			}
			terminating.Kernels = append(terminating.Kernels, lifecycle.TerminatingKernel{
				KernelID:  k.ID,
				AgentID:   *k.AgentID,
				AgentAddr: *k.AgentAddr,
			})
		}
		out = append(out, terminating)
	}
	return out, nil
}

// ApplyTerminationResult marks every kernel of a successfully terminated
// session TERMINATED, then the session itself, dispatching the
// TERMINATED hook.
func (r *lifecycleRepository) ApplyTerminationResult(ctx context.Context, sessionID types.SessionID, hooks *hookDispatcher) error {
	session, err := r.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	kernels, err := r.store.ListKernelsBySession(sessionID)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, k := range kernels {
		k.Status = types.KernelTerminated
		k.StatusChanged = now
		k.TerminatedAt = &now
		if err := r.store.UpdateKernel(k); err != nil {
			return err
		}
	}
	session.Status = types.SessionTerminated
	session.TerminatedAt = &now
	if session.TerminationResult == "" {
		session.TerminationResult = types.TerminationSuccess
	}
	if err := r.store.UpdateSession(session); err != nil {
		return err
	}
	r.emitter.EmitSessionStatusChanged(sessionID, types.SessionTerminated, session.StatusInfo)

	kernelViews := make([]types.Kernel, len(kernels))
	for i, k := range kernels {
		kernelViews[i] = *k
	}
	return hooks.dispatch(ctx, types.SessionTerminated, *session, kernelViews)
}

// EvictAgent satisfies lifecycle.AgentEvictor: force-terminates every
// session the lost agent was running, as part of the LOST-agent sweep.
func (r *lifecycleRepository) EvictAgent(ctx context.Context, agentID types.AgentID, sessionIDs []types.SessionID) error {
	kernels, err := r.store.ListKernelsByAgent(agentID)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, k := range kernels {
		k.Status = types.KernelTerminated
		k.StatusChanged = now
		k.TerminatedAt = &now
		if err := r.store.UpdateKernel(k); err != nil {
			return err
		}
	}
	for _, sessionID := range sessionIDs {
		session, err := r.store.GetSession(sessionID)
		if err != nil {
			return fmt.Errorf("load session %s during eviction: %w", sessionID, err)
		}
		session.Status = types.SessionTerminated
		session.StatusInfo = "agent-lost"
		session.TerminationResult = types.TerminationFailure
		session.TerminatedAt = &now
		if err := r.store.UpdateSession(session); err != nil {
			return err
		}
		r.emitter.EmitSessionStatusChanged(sessionID, types.SessionTerminated, "agent-lost")
	}

	agent, err := r.store.GetAgent(agentID)
	if err != nil {
		return fmt.Errorf("load agent %s during eviction: %w", agentID, err)
	}
	agent.Status = types.AgentTerminated
	if err := r.store.UpdateAgent(agent); err != nil {
		return err
	}
	r.emitter.EmitAgentEvicted(agentID)
	return nil
}
