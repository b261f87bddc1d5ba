package selector

import (
	"context"
	"sync"

	"github.com/cuemby/sokovan/pkg/types"
)

// MemoryStateStore is an in-memory ResourceGroupStateStore. Acceptable for
// tests only — a restart loses the ROUNDROBIN cursor (see BoltStateStore
// for the durable implementation).
type MemoryStateStore struct {
	mu      sync.Mutex
	cursors map[types.ScalingGroupName]int
}

// NewMemoryStateStore returns an empty MemoryStateStore.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{cursors: make(map[types.ScalingGroupName]int)}
}

func (s *MemoryStateStore) RoundRobinCursor(ctx context.Context, scalingGroup types.ScalingGroupName) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[scalingGroup], nil
}

func (s *MemoryStateStore) SetRoundRobinCursor(ctx context.Context, scalingGroup types.ScalingGroupName, idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[scalingGroup] = idx
	return nil
}
