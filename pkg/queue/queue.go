// Package queue implements the pending-queue scheduler: picking the
// next admissible session per resource group under priority, dependency,
// and keypair-concurrency constraints.
package queue

import (
	"sort"
	"time"

	"github.com/cuemby/sokovan/pkg/types"
)

// PendingSession is one row from the pending queue, trimmed to what
// pick_session needs. DependenciesSatisfied is precomputed by the caller
// (all dependency sessions TERMINATED with result=SUCCESS).
type PendingSession struct {
	SessionID             types.SessionID
	AccessKey             types.AccessKey
	ScalingGroup          types.ScalingGroupName
	CreatedAt             time.Time
	Priority              int
	RequestedSlots        types.ResourceSlot
	ClusterMode           types.ClusterMode
	SessionType           types.SessionType
	IsSFTP                bool
	DependenciesSatisfied bool
}

// KeypairUsage is an access key's current load against its limits,
// aggregated across PENDING and scheduled-but-not-running sessions.
type KeypairUsage struct {
	ConcurrentSessions     int
	ConcurrentSFTPSessions int
	PendingSessionCount    int
}

// KeypairLimits caps one access key's concurrency. A zero value for any
// field means "unlimited".
type KeypairLimits struct {
	MaxConcurrentSessions     int
	MaxConcurrentSFTPSessions int
	MaxPendingSessionCount    int
}

func within(used, max int) bool {
	return max <= 0 || used < max
}

// Scheduler orders the pending queue before pick_session walks it. FIFO
// and LIFO differ only in created_at direction; DRF re-ranks within the
// priority bucket by dominant share.
type Scheduler interface {
	Order(pending []PendingSession) []PendingSession
}

// pickFrom applies pick_session's three filters in
// order, returning the first session that survives all of them.
func pickFrom(ordered []PendingSession, totalCapacity types.ResourceSlot, usage map[types.AccessKey]KeypairUsage, limits map[types.AccessKey]KeypairLimits) (*PendingSession, bool) {
	for i := range ordered {
		s := &ordered[i]
		if !s.DependenciesSatisfied {
			continue
		}

		u := usage[s.AccessKey]
		l := limits[s.AccessKey]
		if s.IsSFTP {
			if !within(u.ConcurrentSFTPSessions, l.MaxConcurrentSFTPSessions) {
				continue
			}
		} else if !within(u.ConcurrentSessions, l.MaxConcurrentSessions) {
			continue
		}
		if !within(u.PendingSessionCount, l.MaxPendingSessionCount) {
			continue
		}

		if !totalCapacity.Contains(s.RequestedSlots) {
			continue
		}
		return s, true
	}
	return nil, false
}

// PickSession runs pick_session: it orders the
// queue with sched, then returns the first session whose dependencies
// are met, whose requester is under its concurrency caps, and whose
// requested_slots fit totalCapacity. Returns false if none qualify.
func PickSession(sched Scheduler, pending []PendingSession, totalCapacity types.ResourceSlot, usage map[types.AccessKey]KeypairUsage, limits map[types.AccessKey]KeypairLimits) (*PendingSession, bool) {
	ordered := sched.Order(pending)
	return pickFrom(ordered, totalCapacity, usage, limits)
}

// byPriorityThenCreatedThenID sorts by (-priority, created_at, id), the
// base ordering every scheduler policy starts from.
func byPriorityThenCreatedThenID(pending []PendingSession) []PendingSession {
	out := make([]PendingSession, len(pending))
	copy(out, pending)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}
