package selector

import (
	"context"

	"github.com/cuemby/sokovan/pkg/types"
)

// SelectForSession resolves an agent per kernel for one session, honoring
// the cluster-mode rule: SINGLE_NODE calls Select once for the sum of
// every kernel's requested slots and assigns the result to
// all of them; MULTI_NODE calls Select once per kernel, excluding
// already-picked agents from the candidate list passed to the next call so
// peers spread across distinct agents.
//
// kernelRequests must be in the order kernels should be placed (main
// kernel first, by convention). The returned slice has one entry per
// kernelRequests entry in the same order.
func SelectForSession(ctx context.Context, sel AgentSelector, scalingGroup types.ScalingGroupName, candidates []types.Agent, clusterMode types.ClusterMode, sessionType types.SessionType, endpointID *types.EndpointID, kernelRequests []types.ResourceSlot) ([]types.AgentID, error) {
	if clusterMode == types.ClusterModeSingleNode {
		sum := types.ResourceSlot{}
		for _, r := range kernelRequests {
			sum = sum.Add(r)
		}
		agentID, err := sel.Select(ctx, scalingGroup, candidates, Request{RequestedSlots: sum, SessionType: sessionType, EndpointID: endpointID})
		if err != nil {
			return nil, err
		}
		out := make([]types.AgentID, len(kernelRequests))
		for i := range out {
			out[i] = agentID
		}
		return out, nil
	}

	remaining := append([]types.Agent(nil), candidates...)
	picked := make([]types.AgentID, 0, len(kernelRequests))
	for _, req := range kernelRequests {
		agentID, err := sel.Select(ctx, scalingGroup, remaining, Request{RequestedSlots: req, SessionType: sessionType, EndpointID: endpointID})
		if err != nil {
			return nil, err
		}
		picked = append(picked, agentID)
		remaining = excludeAgent(remaining, agentID)
	}
	return picked, nil
}

func excludeAgent(agents []types.Agent, id types.AgentID) []types.Agent {
	out := make([]types.Agent, 0, len(agents))
	for _, a := range agents {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}
