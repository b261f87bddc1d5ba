package health

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/sokovan/pkg/types"
)

// AgentMonitor tracks per-agent TCP reachability and the moment each
// agent first became LOST, so pkg/lifecycle's Sweeper can apply a dwell
// time before demoting it. The monitor itself never evicts anything; it
// is a pure Status tracker over a set of Checkers.
type AgentMonitor struct {
	mu       sync.Mutex
	config   Config
	statuses map[types.AgentID]*Status
	addrs    map[types.AgentID]string
	lostAt   map[types.AgentID]time.Time
}

// NewAgentMonitor builds an AgentMonitor using config for every agent's
// retry/timeout thresholds.
func NewAgentMonitor(config Config) *AgentMonitor {
	return &AgentMonitor{
		config:   config,
		statuses: make(map[types.AgentID]*Status),
		addrs:    make(map[types.AgentID]string),
		lostAt:   make(map[types.AgentID]time.Time),
	}
}

// Register starts tracking agentID at addr. A no-op if already registered
// with the same address.
func (m *AgentMonitor) Register(agentID types.AgentID, addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.statuses[agentID]; ok {
		m.addrs[agentID] = addr
		return
	}
	m.statuses[agentID] = NewStatus()
	m.addrs[agentID] = addr
}

// Unregister stops tracking agentID, e.g. on TERMINATED.
func (m *AgentMonitor) Unregister(agentID types.AgentID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, agentID)
	delete(m.addrs, agentID)
	delete(m.lostAt, agentID)
}

// Poll probes every registered agent once and updates its Status. Checks
// run sequentially; callers wanting concurrency should shard agents
// across multiple AgentMonitor instances or call Poll from a worker pool.
func (m *AgentMonitor) Poll(ctx context.Context) {
	m.mu.Lock()
	type target struct {
		id   types.AgentID
		addr string
	}
	targets := make([]target, 0, len(m.addrs))
	for id, addr := range m.addrs {
		if status := m.statuses[id]; status != nil && status.InStartPeriod(m.config) {
			continue
		}
		targets = append(targets, target{id, addr})
	}
	m.mu.Unlock()

	for _, tg := range targets {
		checker := NewTCPChecker(tg.addr).WithTimeout(m.config.Timeout)
		result := checker.Check(ctx)

		m.mu.Lock()
		status := m.statuses[tg.id]
		if status == nil {
			m.mu.Unlock()
			continue
		}
		wasHealthy := status.Healthy
		status.Update(result, m.config)
		if wasHealthy && !status.Healthy {
			m.lostAt[tg.id] = result.CheckedAt
		} else if status.Healthy {
			delete(m.lostAt, tg.id)
		}
		m.mu.Unlock()
	}
}

// LostAgents returns every agent currently considered unhealthy, paired
// with the time of the check that marked it unhealthy (the failure that
// reached Config.Retries consecutive failures).
func (m *AgentMonitor) LostAgents() map[types.AgentID]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[types.AgentID]time.Time, len(m.lostAt))
	for id, at := range m.lostAt {
		out[id] = at
	}
	return out
}
