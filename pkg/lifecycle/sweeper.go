package lifecycle

import (
	"context"
	"time"

	"github.com/cuemby/sokovan/pkg/log"
	"github.com/cuemby/sokovan/pkg/types"
	"github.com/rs/zerolog"
)

// LostAgent is one agent the sweeper must judge for dwell-time expiry.
type LostAgent struct {
	AgentID  types.AgentID
	LostAt   time.Time
	Sessions []types.SessionID
}

// AgentEvictor marks every kernel on an evicted agent and every session
// still bound to it TERMINATED. Freeing the kernels' ledger rows is the
// caller's business; the sweeper only decides *when* to evict.
type AgentEvictor interface {
	EvictAgent(ctx context.Context, agentID types.AgentID, sessionIDs []types.SessionID) error
}

// Sweeper demotes agents that have sat in LOST past their scaling group's
// dwell time: a configurable grace period, default 5 minutes.
type Sweeper struct {
	Evictor AgentEvictor
	Dwell   time.Duration
	logger  zerolog.Logger
}

// NewSweeper builds a Sweeper with dwell, or types.DefaultLostAgentDwell
// if dwell is <= 0.
func NewSweeper(evictor AgentEvictor, dwell time.Duration) *Sweeper {
	if dwell <= 0 {
		dwell = types.DefaultLostAgentDwell
	}
	return &Sweeper{
		Evictor: evictor,
		Dwell:   dwell,
		logger:  log.WithComponent("sweeper"),
	}
}

// Sweep evicts every agent in lost whose dwell has elapsed as of now,
// returning the agent ids it evicted. Agents still within their dwell
// window are left alone; the next sweep will re-check them.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time, lost []LostAgent) ([]types.AgentID, error) {
	var evicted []types.AgentID
	for _, agent := range lost {
		if now.Sub(agent.LostAt) < s.Dwell {
			continue
		}
		if err := s.Evictor.EvictAgent(ctx, agent.AgentID, agent.Sessions); err != nil {
			s.logger.Error().Err(err).Str("agent_id", string(agent.AgentID)).Msg("failed to evict agent past dwell")
			continue
		}
		s.logger.Warn().
			Str("agent_id", string(agent.AgentID)).
			Dur("dwell", now.Sub(agent.LostAt)).
			Int("sessions_evicted", len(agent.Sessions)).
			Msg("agent exceeded lost dwell, evicting")
		evicted = append(evicted, agent.AgentID)
	}
	return evicted, nil
}
