// Package hooks implements the transition hook registry: a status-keyed
// table of side effects run after a session successfully enters a target
// status. Dispatch is a plain Go map keyed by status rather than an
// interface-per-status hierarchy.
package hooks

import (
	"context"
	"fmt"

	"github.com/cuemby/sokovan/pkg/types"
)

// SessionWithKernels is the read-only view a hook needs: the session row
// plus its kernels, as they stand at the moment the hook runs.
type SessionWithKernels struct {
	Session types.Session
	Kernels []types.Kernel
}

// MainKernel returns the session's main kernel, or false if none is
// present in Kernels (a caller bug — every session has exactly one).
func (s SessionWithKernels) MainKernel() (types.Kernel, bool) {
	for _, k := range s.Kernels {
		if k.ClusterRole == types.ClusterRoleMain {
			return k, true
		}
	}
	return types.Kernel{}, false
}

// SessionRunningUpdater persists the occupying_slots sum computed when a
// session enters RUNNING.
type SessionRunningUpdater interface {
	UpdateSessionsToRunning(ctx context.Context, sessionID types.SessionID, occupyingSlots types.ResourceSlot) error
}

// BatchTrigger starts a BATCH session's main kernel command once the
// session is RUNNING.
type BatchTrigger interface {
	TriggerBatchExecution(ctx context.Context, agentID types.AgentID, sessionID types.SessionID, kernelID types.KernelID, startupCommand string, batchTimeout *float64) error
}

// EndpointRouteUpdater refreshes an inference endpoint's route table.
type EndpointRouteUpdater interface {
	UpdateEndpointRouteInfo(ctx context.Context, endpointID types.EndpointID) error
}

// EventProducer emits events for external collaborators (the app proxy)
// to observe.
type EventProducer interface {
	EmitEndpointRouteListUpdated(ctx context.Context, endpointID types.EndpointID) error
}

// TransitionHook runs after a session has successfully entered its target
// status. Hooks must be idempotent: a failed hook is retried on the next
// lifecycle tick.
type TransitionHook interface {
	Execute(ctx context.Context, session SessionWithKernels) error
}

// Registry maps a session status to the hook that runs once a session
// enters it.
type Registry struct {
	hooks map[types.SessionStatus]TransitionHook
}

// NewRegistry builds a Registry with the RUNNING and TERMINATED hooks
// wired.
func NewRegistry(running *RunningTransitionHook, terminated *TerminatedTransitionHook) *Registry {
	return &Registry{
		hooks: map[types.SessionStatus]TransitionHook{
			types.SessionRunning:    running,
			types.SessionTerminated: terminated,
		},
	}
}

// Dispatch runs the hook registered for status, if any. A status with no
// registered hook is a no-op, not an error.
func (r *Registry) Dispatch(ctx context.Context, status types.SessionStatus, session SessionWithKernels) error {
	hook, ok := r.hooks[status]
	if !ok {
		return nil
	}
	if err := hook.Execute(ctx, session); err != nil {
		return fmt.Errorf("transition hook for %s: %w", status, err)
	}
	return nil
}
