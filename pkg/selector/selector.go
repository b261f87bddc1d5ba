// Package selector implements the agent selector: given a session and
// a set of candidate agents, choose one agent id (or none). Selectors are
// pure functions of their inputs plus per-resource-group state held in an
// injected ResourceGroupStateStore; they never mutate the database.
package selector

import (
	"context"
	"sort"

	"github.com/cuemby/sokovan/pkg/types"
)

// Request is the input to a Select call: the resources one kernel (or,
// for SINGLE_NODE sessions, a whole session) needs, plus the session
// context the spreading rule needs.
type Request struct {
	RequestedSlots types.ResourceSlot
	SessionType    types.SessionType
	EndpointID     *types.EndpointID
}

// AgentSelector picks one agent id from candidates that fits req, or
// returns types.ErrNoSuitableAgent if none does.
type AgentSelector interface {
	Select(ctx context.Context, scalingGroup types.ScalingGroupName, candidates []types.Agent, req Request) (types.AgentID, error)
}

// ResourceGroupStateStore holds per-resource-group selector state that
// must survive manager restarts: today, only the ROUNDROBIN cursor.
// Endpoint replica counts are supplied by the caller (they come from
// session/endpoint storage, not selector state) via Request/candidate
// lookups in EndpointReplicaCounts.
type ResourceGroupStateStore interface {
	RoundRobinCursor(ctx context.Context, scalingGroup types.ScalingGroupName) (int, error)
	SetRoundRobinCursor(ctx context.Context, scalingGroup types.ScalingGroupName, idx int) error
}

// EndpointReplicaLookup resolves, for an inference endpoint, how many
// kernels are already running on each candidate agent. Used only by
// CONCENTRATED when EnforceSpreadingEndpointReplica is set.
type EndpointReplicaLookup interface {
	EndpointReplicaCounts(ctx context.Context, endpointID types.EndpointID, candidates []types.Agent) (map[types.AgentID]int, error)
}

// fits filters candidates down to those with enough free capacity for req.
func fits(candidates []types.Agent, req types.ResourceSlot) []types.Agent {
	out := make([]types.Agent, 0, len(candidates))
	for _, a := range candidates {
		if a.Fits(req) {
			out = append(out, a)
		}
	}
	return out
}

// freeByDevice sums an agent's free capacity across every slot whose
// device component matches name — resource priority is configured by
// device name (cuda, rocm, tpu, cpu, mem), not by full accelerator slot
// identity, so cuda.shares and cuda.device:mig-10g both count toward "cuda".
func freeByDevice(a types.Agent, device string) types.Decimal {
	total := types.Zero
	for name, qty := range a.Free() {
		if name.Device == device {
			total = total.Add(qty)
		}
	}
	return total
}

// compareFreeCapacity orders a, b by free capacity using priority, the
// first differing slot (by configured device order) deciding. Returns a
// negative number if a has less free capacity than b, 0 if equal across
// every priority device, positive if a has more.
func compareFreeCapacity(a, b types.Agent, priority []string) int {
	for _, device := range priority {
		fa := freeByDevice(a, device)
		fb := freeByDevice(b, device)
		if c := fa.Cmp(fb); c != 0 {
			return c
		}
	}
	return 0
}

// sortByFreeCapacity sorts agents ascending (least free first) or
// descending (most free first) by the priority order, with a stable
// tiebreak on agent id so ties are deterministic.
func sortByFreeCapacity(agents []types.Agent, priority []string, ascending bool) {
	sort.SliceStable(agents, func(i, j int) bool {
		c := compareFreeCapacity(agents[i], agents[j], priority)
		if c == 0 {
			return agents[i].ID < agents[j].ID
		}
		if ascending {
			return c < 0
		}
		return c > 0
	})
}
