package hooks

import (
	"context"
	"fmt"

	"github.com/cuemby/sokovan/pkg/types"
)

// TerminatedTransitionHook runs when a session transitions to TERMINATED.
// Only INFERENCE sessions have work to do here: the now-dead route is
// removed from the proxy. Other session types are a no-op.
type TerminatedTransitionHook struct {
	Endpoints EndpointRouteUpdater
	Events    EventProducer
}

func (h *TerminatedTransitionHook) Execute(ctx context.Context, session SessionWithKernels) error {
	if session.Session.SessionType != types.SessionInference {
		return nil
	}
	if session.Session.EndpointID == nil {
		return nil
	}
	endpointID := *session.Session.EndpointID
	if err := h.Endpoints.UpdateEndpointRouteInfo(ctx, endpointID); err != nil {
		return fmt.Errorf("update endpoint route info for %s: %w", endpointID, err)
	}
	if err := h.Events.EmitEndpointRouteListUpdated(ctx, endpointID); err != nil {
		return fmt.Errorf("emit route update event for %s: %w", endpointID, err)
	}
	return nil
}
