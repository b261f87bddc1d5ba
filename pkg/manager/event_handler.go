package manager

import (
	"context"
	"time"

	"github.com/cuemby/sokovan/pkg/agentrpc"
	"github.com/cuemby/sokovan/pkg/events"
	"github.com/cuemby/sokovan/pkg/storage"
	"github.com/cuemby/sokovan/pkg/types"
)

// kernelEventHandler satisfies agentrpc.EventHandler: it folds a kernel
// status push from an agent into the kernel row, recomputes the owning
// session's aggregate status per types.SessionStatusFromKernels, and
// dispatches the matching transition hook when the session's status
// actually changes.
type kernelEventHandler struct {
	store   storage.Store
	emitter *events.Emitter
	hooks   *hookDispatcher
}

func newKernelEventHandler(store storage.Store, emitter *events.Emitter, hooks *hookDispatcher) *kernelEventHandler {
	return &kernelEventHandler{store: store, emitter: emitter, hooks: hooks}
}

func (h *kernelEventHandler) HandleKernelEvent(ctx context.Context, ev agentrpc.KernelEvent) error {
	kernel, err := h.store.GetKernel(ev.KernelID)
	if err != nil {
		return err
	}
	kernel.Status = ev.Status
	kernel.StatusChanged = time.Now()
	if ev.Status == types.KernelTerminated {
		now := time.Now()
		kernel.TerminatedAt = &now
	}
	if ev.Status == types.KernelRunning && kernel.StartsAt == nil {
		now := time.Now()
		kernel.StartsAt = &now
	}
	if err := h.store.UpdateKernel(kernel); err != nil {
		return err
	}

	session, err := h.store.GetSession(kernel.SessionID)
	if err != nil {
		return err
	}
	kernels, err := h.store.ListKernelsBySession(session.ID)
	if err != nil {
		return err
	}

	mainStatus := kernel.Status
	statuses := make([]types.KernelStatus, len(kernels))
	kernelViews := make([]types.Kernel, len(kernels))
	for i, k := range kernels {
		statuses[i] = k.Status
		kernelViews[i] = *k
		if k.ClusterRole == types.ClusterRoleMain {
			mainStatus = k.Status
		}
	}

	newStatus := types.SessionStatusFromKernels(mainStatus, statuses)
	if newStatus == session.Status {
		return nil
	}
	session.Status = newStatus
	session.StatusInfo = ev.Reason
	if err := h.store.UpdateSession(session); err != nil {
		return err
	}
	h.emitter.EmitSessionStatusChanged(session.ID, newStatus, ev.Reason)

	return h.hooks.dispatch(ctx, newStatus, *session, kernelViews)
}
