package queue

import (
	"testing"
	"time"

	"github.com/cuemby/sokovan/pkg/types"
	"github.com/stretchr/testify/assert"
)

func slots(cpu, mem int64) types.ResourceSlot {
	return types.ResourceSlot{
		types.MustSlotName("cpu"): types.NewDecimalInt(cpu),
		types.MustSlotName("mem"): types.NewDecimalInt(mem),
	}
}

func pendingAt(id string, createdAt time.Time, priority int) PendingSession {
	return PendingSession{
		SessionID:             types.SessionID(id),
		AccessKey:             types.AccessKey("ak-" + id),
		CreatedAt:             createdAt,
		Priority:              priority,
		RequestedSlots:        slots(2, 500),
		DependenciesSatisfied: true,
	}
}

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFIFOOrdersByPriorityThenCreatedAt(t *testing.T) {
	pending := []PendingSession{
		pendingAt("s3", base.Add(2*time.Minute), 0),
		pendingAt("s1", base, 0),
		pendingAt("s2", base.Add(1*time.Minute), 1),
	}
	ordered := FIFOScheduler{}.Order(pending)
	assert.Equal(t, []types.SessionID{"s2", "s1", "s3"}, ids(ordered))
}

func TestLIFOReversesWithinPriorityBucket(t *testing.T) {
	pending := []PendingSession{
		pendingAt("s1", base, 0),
		pendingAt("s2", base.Add(1*time.Minute), 0),
		pendingAt("s3", base.Add(2*time.Minute), 0),
	}
	ordered := LIFOScheduler{}.Order(pending)
	assert.Equal(t, []types.SessionID{"s3", "s2", "s1"}, ids(ordered))
}

func ids(sessions []PendingSession) []types.SessionID {
	out := make([]types.SessionID, len(sessions))
	for i, s := range sessions {
		out[i] = s.SessionID
	}
	return out
}

type fakeShares map[types.AccessKey]float64

func (f fakeShares) DominantShare(ak types.AccessKey) float64 { return f[ak] }

func TestDRFReranksByDominantShareWithinBucket(t *testing.T) {
	pending := []PendingSession{
		pendingAt("s1", base, 0),
		pendingAt("s2", base.Add(time.Minute), 0),
	}
	shares := fakeShares{"ak-s1": 0.8, "ak-s2": 0.1}
	ordered := DRFScheduler{Shares: shares}.Order(pending)
	assert.Equal(t, []types.SessionID{"s2", "s1"}, ids(ordered))
}

// scenario 1: single FIFO pick on an empty cluster.
func TestPickSessionSingleFIFOOnEmptyCluster(t *testing.T) {
	pending := []PendingSession{pendingAt("S1", base, 0)}
	totalCapacity := slots(4, 4096)

	picked, ok := PickSession(FIFOScheduler{}, pending, totalCapacity, nil, nil)
	assert.True(t, ok)
	assert.Equal(t, types.SessionID("S1"), picked.SessionID)
}

func TestPickSessionSkipsUnsatisfiedDependencies(t *testing.T) {
	blocked := pendingAt("s1", base, 0)
	blocked.DependenciesSatisfied = false
	ready := pendingAt("s2", base.Add(time.Minute), 0)

	picked, ok := PickSession(FIFOScheduler{}, []PendingSession{blocked, ready}, slots(4, 4096), nil, nil)
	assert.True(t, ok)
	assert.Equal(t, types.SessionID("s2"), picked.SessionID)
}

func TestPickSessionSkipsOverCapLimits(t *testing.T) {
	over := pendingAt("s1", base, 0)
	under := pendingAt("s2", base.Add(time.Minute), 0)
	under.AccessKey = "ak-under"

	usage := map[types.AccessKey]KeypairUsage{"ak-s1": {ConcurrentSessions: 5}}
	limits := map[types.AccessKey]KeypairLimits{"ak-s1": {MaxConcurrentSessions: 5}}

	picked, ok := PickSession(FIFOScheduler{}, []PendingSession{over, under}, slots(4, 4096), usage, limits)
	assert.True(t, ok)
	assert.Equal(t, types.SessionID("s2"), picked.SessionID)
}

func TestPickSessionSkipsSessionsThatDoNotFit(t *testing.T) {
	tooBig := pendingAt("s1", base, 0)
	tooBig.RequestedSlots = slots(100, 100)
	fits := pendingAt("s2", base.Add(time.Minute), 0)

	picked, ok := PickSession(FIFOScheduler{}, []PendingSession{tooBig, fits}, slots(4, 4096), nil, nil)
	assert.True(t, ok)
	assert.Equal(t, types.SessionID("s2"), picked.SessionID)
}

func TestPickSessionReturnsFalseWhenNoneQualify(t *testing.T) {
	tooBig := pendingAt("s1", base, 0)
	tooBig.RequestedSlots = slots(100, 100)

	_, ok := PickSession(FIFOScheduler{}, []PendingSession{tooBig}, slots(4, 4096), nil, nil)
	assert.False(t, ok)
}
