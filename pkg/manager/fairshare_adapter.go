package manager

import (
	"time"

	"github.com/cuemby/sokovan/pkg/fairshare"
	"github.com/cuemby/sokovan/pkg/storage"
	"github.com/cuemby/sokovan/pkg/types"
)

// fairShareAdapter bridges storage.Store to pkg/fairshare's pure
// Prepare function: it loads every kernel that has occupied resources
// since its last observed point, runs the aggregator, and persists the
// resulting slices plus each kernel's new LastObservedAt.
//
// Domain/Project/User are not modeled anywhere in this store's schema
// (there is no domain/project registry keyed by access key), so User is
// taken from the owning session's AccessKey and Domain/Project are left
// blank.
type fairShareAdapter struct {
	store storage.Store
}

func newFairShareAdapter(store storage.Store) *fairShareAdapter {
	return &fairShareAdapter{store: store}
}

// Run emits and persists every due fair-share slice for sg as of now.
func (a *fairShareAdapter) Run(sg types.ScalingGroupName, now time.Time) error {
	infos, err := a.kernelInfos(sg)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		return nil
	}

	slices, observed := fairshare.Prepare(infos, sg, now)
	for _, slice := range slices {
		s := slice
		if err := a.store.CreateFairShareSlice(&s); err != nil {
			return err
		}
	}
	for kernelID, lastObserved := range observed {
		kernel, err := a.store.GetKernel(kernelID)
		if err != nil {
			continue
		}
		t := lastObserved
		kernel.LastObservedAt = &t
		_ = a.store.UpdateKernel(kernel)
	}
	return nil
}

// kernelInfos collects fairshare.KernelInfo for every kernel that has
// ever occupied resources in sg: RUNNING kernels plus any still-unswept
// TERMINATED kernel whose final slice has not yet been emitted.
func (a *fairShareAdapter) kernelInfos(sg types.ScalingGroupName) ([]fairshare.KernelInfo, error) {
	var infos []fairshare.KernelInfo
	for _, status := range []types.KernelStatus{types.KernelRunning, types.KernelTerminated} {
		kernels, err := a.store.ListKernelsByStatus(status)
		if err != nil {
			return nil, err
		}
		for _, k := range kernels {
			if k.StartsAt == nil {
				continue
			}
			session, err := a.store.GetSession(k.SessionID)
			if err != nil || session.ScalingGroup != sg {
				continue
			}
			if status == types.KernelTerminated && k.TerminatedAt != nil && k.LastObservedAt != nil &&
				!k.LastObservedAt.Before(*k.TerminatedAt) {
				continue // already swept its final slice
			}
			infos = append(infos, fairshare.KernelInfo{
				KernelID:       k.ID,
				StartsAt:       *k.StartsAt,
				LastObservedAt: k.LastObservedAt,
				TerminatedAt:   k.TerminatedAt,
				OccupiedSlots:  k.OccupiedSlots,
				User:           string(session.AccessKey),
			})
		}
	}
	return infos, nil
}
