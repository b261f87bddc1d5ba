package queue

import "github.com/cuemby/sokovan/pkg/types"

// DominantShares reports each access key's current dominant resource
// share (its largest per-dimension usage fraction across all its running
// and scheduled sessions), used by DRFScheduler to re-rank within a
// priority bucket.
type DominantShares interface {
	DominantShare(accessKey types.AccessKey) float64
}

// DRFScheduler keeps FIFO's priority bucketing but, within a bucket,
// re-ranks by ascending dominant share so the least-served access key is
// picked first.
type DRFScheduler struct {
	Shares DominantShares
}

func (d DRFScheduler) Order(pending []PendingSession) []PendingSession {
	base := byPriorityThenCreatedThenID(pending)
	out := make([]PendingSession, len(base))
	copy(out, base)

	i := 0
	for i < len(out) {
		j := i
		for j < len(out) && out[j].Priority == out[i].Priority {
			j++
		}
		stableSortByShare(out[i:j], d.Shares)
		i = j
	}
	return out
}

func stableSortByShare(bucket []PendingSession, shares DominantShares) {
	// Insertion sort: buckets are small (one priority tier) and this
	// keeps the FIFO tiebreak stable for equal shares.
	for i := 1; i < len(bucket); i++ {
		for j := i; j > 0; j-- {
			a, b := bucket[j-1], bucket[j]
			if shares.DominantShare(a.AccessKey) <= shares.DominantShare(b.AccessKey) {
				break
			}
			bucket[j-1], bucket[j] = bucket[j], bucket[j-1]
		}
	}
}
