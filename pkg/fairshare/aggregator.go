// Package fairshare implements the fair-share aggregator: converting live
// kernel occupancy into immutable 5-minute usage slices per kernel. The
// aggregator is a pure
// function — it never queries agents or the ledger; the caller supplies a
// snapshot and persists whatever slices come back.
package fairshare

import (
	"time"

	"github.com/cuemby/sokovan/pkg/types"
)

// SliceDuration is the wall-clock-aligned bucket width.
const SliceDuration = 300 * time.Second

// KernelInfo is the read-only view of a kernel the aggregator needs. It
// deliberately carries only lifecycle and occupancy fields, not the full
// types.Kernel, to keep the aggregator's dependency surface narrow.
type KernelInfo struct {
	KernelID       types.KernelID
	StartsAt       time.Time
	LastObservedAt *time.Time
	TerminatedAt   *time.Time
	OccupiedSlots  types.ResourceSlot
	Domain         string
	Project        string
	User           string
}

// FloorToBoundary returns the largest 5-minute wall-clock boundary <= t.
// Idempotent: FloorToBoundary(FloorToBoundary(t)) == FloorToBoundary(t).
func FloorToBoundary(t time.Time) time.Time {
	t = t.Truncate(time.Second)
	secondsSinceHour := t.Minute()*60 + t.Second()
	flooredSeconds := (secondsSinceHour / int(SliceDuration.Seconds())) * int(SliceDuration.Seconds())
	delta := time.Duration(secondsSinceHour-flooredSeconds) * time.Second
	return t.Add(-delta)
}

// Prepare computes, for every kernel in kernels, the usage slices that have
// become due as of now and the kernel's new LastObservedAt. It never
// mutates its inputs.
//
// Rules:
//  1. The first slice for a kernel may start at StartsAt (non-boundary
//     allowed).
//  2. Intermediate slices run boundary to boundary exactly.
//  3. The last slice (only when TerminatedAt is set) may end at
//     TerminatedAt (non-boundary allowed).
//  4. No partial slices anywhere else: if the next boundary after the
//     kernel's last observed point is still in the future, nothing is
//     emitted for that kernel this tick.
func Prepare(kernels []KernelInfo, scalingGroup types.ScalingGroupName, now time.Time) ([]types.FairShareSlice, map[types.KernelID]time.Time) {
	var slices []types.FairShareSlice
	observed := make(map[types.KernelID]time.Time, len(kernels))

	for _, k := range kernels {
		cursor := k.StartsAt
		if k.LastObservedAt != nil {
			cursor = *k.LastObservedAt
		}

		final := false
		limit := FloorToBoundary(now)
		if k.TerminatedAt != nil && !k.TerminatedAt.After(now) {
			limit = *k.TerminatedAt
			final = true
		}

		for {
			nextBoundary := FloorToBoundary(cursor).Add(SliceDuration)

			var end time.Time
			lastSlice := false
			switch {
			case final && limit.Before(nextBoundary):
				end, lastSlice = limit, true
			case !nextBoundary.After(limit):
				end = nextBoundary
			default:
				end = cursor // next boundary not yet reached; nothing to emit
			}

			if !end.After(cursor) {
				break
			}
			slices = append(slices, types.FairShareSlice{
				KernelID:      k.KernelID,
				ScalingGroup:  scalingGroup,
				PeriodStart:   cursor,
				PeriodEnd:     end,
				ResourceUsage: resourceSeconds(k.OccupiedSlots, end.Sub(cursor)),
				Domain:        k.Domain,
				Project:       k.Project,
				User:          k.User,
			})
			cursor = end
			if lastSlice {
				break
			}
		}

		observed[k.KernelID] = cursor
	}

	return slices, observed
}

// resourceSeconds scales occupied by duration's whole seconds, component
// by component.
func resourceSeconds(occupied types.ResourceSlot, d time.Duration) types.ResourceSlot {
	seconds := int64(d / time.Second)
	out := make(types.ResourceSlot, len(occupied))
	for name, qty := range occupied {
		out[name] = qty.MulInt64(seconds)
	}
	return out
}
