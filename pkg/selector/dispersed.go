package selector

import (
	"context"

	"github.com/cuemby/sokovan/pkg/types"
)

// DispersedSelector picks the agent with the largest free capacity,
// spreading load evenly rather than packing it.
type DispersedSelector struct {
	ResourcePriority []string
}

func (s *DispersedSelector) Select(ctx context.Context, scalingGroup types.ScalingGroupName, candidates []types.Agent, req Request) (types.AgentID, error) {
	fit := fits(candidates, req.RequestedSlots)
	if len(fit) == 0 {
		return "", types.ErrNoSuitableAgent
	}
	sortByFreeCapacity(fit, s.ResourcePriority, false)
	return fit[0].ID, nil
}
