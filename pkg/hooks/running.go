package hooks

import (
	"context"
	"fmt"

	"github.com/cuemby/sokovan/pkg/types"
)

// RunningTransitionHook runs when a session transitions to RUNNING:
// it sums occupying_slots across kernels, then dispatches by session type
// (BATCH triggers the startup command, INFERENCE refreshes routes).
type RunningTransitionHook struct {
	Sessions     SessionRunningUpdater
	Batch        BatchTrigger
	Endpoints    EndpointRouteUpdater
	Events       EventProducer
}

func (h *RunningTransitionHook) Execute(ctx context.Context, session SessionWithKernels) error {
	total := types.ResourceSlot{}
	for _, k := range session.Kernels {
		total = total.Add(k.OccupiedSlots)
	}
	if err := h.Sessions.UpdateSessionsToRunning(ctx, session.Session.ID, total); err != nil {
		return fmt.Errorf("update occupying_slots: %w", err)
	}

	switch session.Session.SessionType {
	case types.SessionBatch:
		return h.executeBatch(ctx, session)
	case types.SessionInference:
		return h.executeInference(ctx, session)
	default:
		return nil
	}
}

func (h *RunningTransitionHook) executeBatch(ctx context.Context, session SessionWithKernels) error {
	main, ok := session.MainKernel()
	if !ok || main.AgentID == nil {
		return fmt.Errorf("main kernel has no agent assigned for session %s", session.Session.ID)
	}

	var batchTimeout *float64
	if main.BatchTimeout != nil {
		seconds := main.BatchTimeout.Seconds()
		batchTimeout = &seconds
	}
	if err := h.Batch.TriggerBatchExecution(ctx, *main.AgentID, session.Session.ID, main.ID, main.StartupCommand, batchTimeout); err != nil {
		return fmt.Errorf("trigger batch execution on agent %s: %w", *main.AgentID, err)
	}
	return nil
}

func (h *RunningTransitionHook) executeInference(ctx context.Context, session SessionWithKernels) error {
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
