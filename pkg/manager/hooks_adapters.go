package manager

import (
	"context"

	"github.com/cuemby/sokovan/pkg/hooks"
	"github.com/cuemby/sokovan/pkg/storage"
	"github.com/cuemby/sokovan/pkg/types"
)

// hookDispatcher wraps hooks.Registry with the types.Session/types.Kernel
// view the rest of pkg/manager works with, translating it into the
// package's narrower SessionWithKernels shape at the call boundary.
type hookDispatcher struct {
	registry *hooks.Registry
}

func (d *hookDispatcher) dispatch(ctx context.Context, status types.SessionStatus, session types.Session, kernels []types.Kernel) error {
	if d == nil || d.registry == nil {
		return nil
	}
	return d.registry.Dispatch(ctx, status, hooks.SessionWithKernels{Session: session, Kernels: kernels})
}

// sessionRunningUpdater satisfies hooks.SessionRunningUpdater by summing
// occupying_slots straight into storage.
type sessionRunningUpdater struct {
	store storage.Store
}

func (u *sessionRunningUpdater) UpdateSessionsToRunning(ctx context.Context, sessionID types.SessionID, occupyingSlots types.ResourceSlot) error {
	session, err := u.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	session.OccupyingSlots = occupyingSlots
	session.Status = types.SessionRunning
	return u.store.UpdateSession(session)
}

// endpointRouteUpdater satisfies hooks.EndpointRouteUpdater. The actual
// route table lives in the external app proxy; this recomputes the
// per-agent replica counts the proxy needs and leaves shipping them to
// whatever transport the proxy polls or subscribes over. That transport
// is out of this core's scope.
type endpointRouteUpdater struct {
	store storage.Store
}

func (e *endpointRouteUpdater) UpdateEndpointRouteInfo(ctx context.Context, endpointID types.EndpointID) error {
	agents, err := e.store.ListAgents()
	if err != nil {
		return err
	}
	candidates := make([]types.Agent, len(agents))
	for i, a := range agents {
		candidates[i] = *a
	}
	_, err = e.store.EndpointReplicaCounts(ctx, endpointID, candidates)
	return err
}
