package selector

import (
	"context"
	"sort"

	"github.com/cuemby/sokovan/pkg/types"
)

// ConcentratedSelector packs onto the agent with the least free capacity
// that still fits, leaving large free agents available for large jobs.
// When EnforceSpreadingEndpointReplica is set and the request is for an
// INFERENCE session with a known endpoint, the ranking is reversed within
// that endpoint: the agent with the fewest existing replicas wins, ties
// broken by the CONCENTRATED rule.
type ConcentratedSelector struct {
	ResourcePriority                []string
	EnforceSpreadingEndpointReplica bool
	Replicas                        EndpointReplicaLookup
}

func (s *ConcentratedSelector) Select(ctx context.Context, scalingGroup types.ScalingGroupName, candidates []types.Agent, req Request) (types.AgentID, error) {
	fit := fits(candidates, req.RequestedSlots)
	if len(fit) == 0 {
		return "", types.ErrNoSuitableAgent
	}

	if s.EnforceSpreadingEndpointReplica && req.SessionType == types.SessionInference && req.EndpointID != nil && s.Replicas != nil {
		counts, err := s.Replicas.EndpointReplicaCounts(ctx, *req.EndpointID, fit)
		if err != nil {
			return "", err
		}
		sort.SliceStable(fit, func(i, j int) bool {
			ci, cj := counts[fit[i].ID], counts[fit[j].ID]
			if ci != cj {
				return ci < cj
			}
			return compareFreeCapacity(fit[i], fit[j], s.ResourcePriority) < 0
		})
		return fit[0].ID, nil
	}

	sortByFreeCapacity(fit, s.ResourcePriority, true)
	return fit[0].ID, nil
}
