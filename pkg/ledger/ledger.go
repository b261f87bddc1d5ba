// Package ledger is the single source of truth for how much of each
// resource slot is in use on each agent, and which kernel owns it.
// No other package writes AgentResource.Used or ResourceAllocation rows
// directly.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/sokovan/pkg/types"
)

// Ledger is the resource-slot ledger interface. Implementations must
// make RequestResources/AllocateResources/FreeResources atomic: either
// every row changes or none does.
type Ledger interface {
	RequestResources(ctx context.Context, kernelID types.KernelID, slots types.ResourceSlot) error
	AllocateResources(ctx context.Context, kernelID types.KernelID, agentID types.AgentID, slots types.ResourceSlot) error
	FreeResources(ctx context.Context, kernelID types.KernelID, agentID types.AgentID) error
	UpsertAgentCapacity(ctx context.Context, agentID types.AgentID, slot types.SlotName, capacity types.Decimal) error
	GetAgentOccupancy(ctx context.Context, agentIDs []types.AgentID) (map[types.AgentID]types.ResourceSlot, error)
	AllSlotTypes(ctx context.Context) ([]types.SlotType, error)
	GetSlotType(ctx context.Context, name types.SlotName) (types.SlotType, error)
	RegisterSlotType(ctx context.Context, st types.SlotType) error
}

// ErrDuplicateAllocation is returned by RequestResources when a row already
// exists for (kernel_id, slot) — request_resources is idempotent only
// within the scope of a single kernel creation, not across repeats.
var ErrDuplicateAllocation = fmt.Errorf("resource allocation row already requested for this kernel/slot")

// agentLocks serialises allocate/free attempts per agent so the
// CHECK(used + q <= capacity) constraint isn't the only thing standing
// between two concurrent allocate calls on the same agent. This does not
// replace bbolt's single-writer transaction, which is the real atomicity
// guarantee; it only avoids needless retries under contention on the
// same agent.
type agentLocks struct {
	mu    sync.Mutex
	locks map[types.AgentID]*sync.Mutex
}

func newAgentLocks() *agentLocks {
	return &agentLocks{locks: make(map[types.AgentID]*sync.Mutex)}
}

func (a *agentLocks) forAgent(id types.AgentID) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[id]
	if !ok {
		l = &sync.Mutex{}
		a.locks[id] = l
	}
	return l
}

// nowFunc is overridable in tests that need deterministic timestamps.
var nowFunc = time.Now
