package selector

import (
	"context"

	"github.com/cuemby/sokovan/pkg/types"
)

// LegacySelector is the implementation-defined fallback strategy, kept
// for backward compatibility but considered deprecated: first fitting
// agent in candidate order, no packing or spreading preference.
type LegacySelector struct{}

func (s *LegacySelector) Select(ctx context.Context, scalingGroup types.ScalingGroupName, candidates []types.Agent, req Request) (types.AgentID, error) {
	for _, a := range candidates {
		if a.Fits(req.RequestedSlots) {
			return a.ID, nil
		}
	}
	return "", types.ErrNoSuitableAgent
}
