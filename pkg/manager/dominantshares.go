package manager

import (
	"strconv"

	"github.com/cuemby/sokovan/pkg/storage"
	"github.com/cuemby/sokovan/pkg/types"
)

// storeDominantShares satisfies queue.DominantShares: an access key's
// dominant share is the largest per-slot fraction of scaling-group
// capacity occupied by its own RUNNING and scheduled-but-not-running
// sessions. Deliberately kept a narrow, swappable adapter rather than a
// scheduler feature baked into queue itself.
type storeDominantShares struct {
	store storage.Store
	sg    types.ScalingGroupName
}

func newStoreDominantShares(store storage.Store, sg types.ScalingGroupName) *storeDominantShares {
	return &storeDominantShares{store: store, sg: sg}
}

func (d *storeDominantShares) DominantShare(accessKey types.AccessKey) float64 {
	agents, err := d.store.ListAgentsByScalingGroup(d.sg)
	if err != nil {
		return 0
	}
	total := types.ResourceSlot{}
	for _, a := range agents {
		total = total.Add(a.AvailableSlots)
	}

	occupied := types.ResourceSlot{}
	for _, status := range append(append([]types.SessionStatus{}, scheduledButNotRunningStatuses...), types.SessionRunning) {
		sessions, err := d.store.ListSessionsByScalingGroupAndStatus(d.sg, status)
		if err != nil {
			continue
		}
		for _, s := range sessions {
			if s.AccessKey != accessKey {
				continue
			}
			occupied = occupied.Add(s.RequestedSlots)
		}
	}

	var maxShare float64
	for name, used := range occupied {
		cap := total.Get(name)
		if cap.IsZero() {
			continue
		}
		usedF, err1 := strconv.ParseFloat(used.String(), 64)
		capF, err2 := strconv.ParseFloat(cap.String(), 64)
		if err1 != nil || err2 != nil || capF == 0 {
			continue
		}
		share := usedF / capF
		if share > maxShare {
			maxShare = share
		}
	}
	return maxShare
}
