package manager

import (
	"time"

	"github.com/cuemby/sokovan/pkg/metrics"
	"github.com/cuemby/sokovan/pkg/types"
)

// MetricsCollector periodically samples manager state into Prometheus
// gauges. It runs on every replica, not just the leader: agent/session/
// kernel counts and Raft state are meaningful to report regardless of who
// holds the scheduling lease.
type MetricsCollector struct {
	manager *Manager
	stopCh  chan struct{}
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(mgr *Manager) *MetricsCollector {
	return &MetricsCollector{
		manager: mgr,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *MetricsCollector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *MetricsCollector) Stop() {
	close(c.stopCh)
}

func (c *MetricsCollector) collect() {
	c.collectAgentMetrics()
	c.collectSessionAndKernelMetrics()
	c.collectRaftMetrics()
}

func (c *MetricsCollector) collectAgentMetrics() {
	agents, err := c.manager.store.ListAgents()
	if err != nil {
		return
	}

	counts := make(map[types.AgentStatus]int)
	for _, agent := range agents {
		counts[agent.Status]++
	}
	for status, count := range counts {
		metrics.AgentsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *MetricsCollector) collectSessionAndKernelMetrics() {
	kernelCounts := make(map[types.KernelStatus]int)

	for _, status := range types.AllSessionStatuses() {
		sessions, err := c.manager.store.ListSessionsByStatus(status)
		if err != nil {
			continue
		}
		metrics.SessionsTotal.WithLabelValues(string(status)).Set(float64(len(sessions)))

		for _, session := range sessions {
			kernels, err := c.manager.store.ListKernelsBySession(session.ID)
			if err != nil {
				continue
			}
			for _, kernel := range kernels {
				kernelCounts[kernel.Status]++
			}
		}
	}

	for status, count := range kernelCounts {
		metrics.KernelsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *MetricsCollector) collectRaftMetrics() {
	// Check if leader
	if c.manager.IsLeader() {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}

	// Get Raft stats
	stats := c.manager.GetRaftStats()
	if stats != nil {
		if lastIndex, ok := stats["last_log_index"].(uint64); ok {
			metrics.RaftLogIndex.Set(float64(lastIndex))
		}
		if appliedIndex, ok := stats["applied_index"].(uint64); ok {
			metrics.RaftAppliedIndex.Set(float64(appliedIndex))
		}
		if peers, ok := stats["peers"].(uint64); ok {
			metrics.RaftPeers.Set(float64(peers))
		}
	}
}
