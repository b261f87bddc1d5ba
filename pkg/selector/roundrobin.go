package selector

import (
	"context"

	"github.com/cuemby/sokovan/pkg/types"
)

// RoundRobinSelector rotates over the candidate list, advancing a cursor
// persisted per resource group. Agents that cannot fit the request are
// skipped and the cursor still advances past them.
type RoundRobinSelector struct {
	State ResourceGroupStateStore
}

func (s *RoundRobinSelector) Select(ctx context.Context, scalingGroup types.ScalingGroupName, candidates []types.Agent, req Request) (types.AgentID, error) {
	if len(candidates) == 0 {
		return "", types.ErrNoSuitableAgent
	}
	cursor, err := s.State.RoundRobinCursor(ctx, scalingGroup)
	if err != nil {
		return "", err
	}

	n := len(candidates)
	for i := 0; i < n; i++ {
		idx := (cursor + i) % n
		agent := candidates[idx]
		if agent.Fits(req.RequestedSlots) {
			if err := s.State.SetRoundRobinCursor(ctx, scalingGroup, (idx+1)%n); err != nil {
				return "", err
			}
			return agent.ID, nil
		}
	}
	// No candidate fit; advance the cursor past the whole list so the next
	// call resumes where this one started, matching the "skip and advance"
	// rule even on total failure.
	if err := s.State.SetRoundRobinCursor(ctx, scalingGroup, cursor%n); err != nil {
		return "", err
	}
	return "", types.ErrNoSuitableAgent
}
