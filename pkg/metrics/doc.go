/*
Package metrics provides Prometheus metrics collection and exposition for
sokovan's scheduling core.

Metrics are defined and registered at package init using the Prometheus
client library, giving visibility into cluster health, the Raft log,
scheduling/lifecycle tick latency, and ledger allocation outcomes.
Metrics are exposed via an HTTP endpoint for scraping by Prometheus
servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Cluster: agents, sessions, kernels         │          │
	│  │  Raft: leader status, log index, peers      │          │
	│  │  Scheduling: tick duration, scheduled count │          │
	│  │  Lifecycle: tick duration, terminated count │          │
	│  │  Ledger: allocate duration, failures        │          │
	│  │  Fair-share: slices emitted                 │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

Cluster Metrics:

sokovan_agents_total{status}:
  - Type: Gauge
  - Description: Registered agents by status

sokovan_sessions_total{status}:
  - Type: Gauge
  - Description: Sessions by status

sokovan_kernels_total{status}:
  - Type: Gauge
  - Description: Kernels by status

Raft Metrics:

sokovan_raft_is_leader:
  - Type: Gauge
  - Description: Whether this node is Raft leader (1=leader, 0=follower)

sokovan_raft_peers_total:
  - Type: Gauge
  - Description: Total Raft peers in cluster

sokovan_raft_log_index / sokovan_raft_applied_index:
  - Type: Gauge
  - Description: Current and last-applied Raft log index

sokovan_raft_apply_duration_seconds / sokovan_raft_commit_duration_seconds:
  - Type: Histogram
  - Description: Time to apply/commit a Raft log entry

Scheduling Metrics:

sokovan_scheduling_tick_duration_seconds:
  - Type: Histogram
  - Description: Time to run one pending-queue scheduling tick

sokovan_sessions_scheduled_total / sokovan_sessions_pending_timeout_total:
  - Type: Counter
  - Description: Sessions successfully placed, and sessions dropped for
    exceeding their pending timeout

Lifecycle Metrics:

sokovan_lifecycle_tick_duration_seconds:
  - Type: Histogram
  - Description: Time to run one lifecycle pass: the SCHEDULED-to-PREPARING
    fan-out followed by the terminator's DestroyKernel fan-out

sokovan_kernels_create_failed_total / sokovan_sessions_terminated_total / sokovan_agents_evicted_total:
  - Type: Counter
  - Description: Kernel creation failures, sessions torn down, agents
    evicted by the lost-agent sweeper

Ledger and Fair-share Metrics:

sokovan_ledger_allocate_duration_seconds / sokovan_ledger_allocate_failed_total:
  - Type: Histogram / Counter
  - Description: Resource-slot allocation latency and failure count

sokovan_fairshare_slices_emitted_total:
  - Type: Counter
  - Description: Fair-share usage slices persisted per aggregation run

# Usage

	import "github.com/cuemby/sokovan/pkg/metrics"

	metrics.AgentsTotal.WithLabelValues("ALIVE").Set(5)
	metrics.SessionsScheduledTotal.Inc()

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.SchedulingTickDuration)

	http.Handle("/metrics", metrics.Handler())

# Integration Points

This package integrates with:

  - pkg/manager: updates the cluster and Raft gauges, the scheduling and
    lifecycle tick histograms, the Raft commit histogram, and the
    sessions-terminated and agents-evicted counters
  - Prometheus: scrapes /metrics

The sessions-scheduled, pending-timeout, kernel-create-failure, ledger
allocate, fair-share slice, Raft apply and API metrics are registered and
exposed, but nothing in this module updates them; they stay at zero.

# Design Patterns

Package Init Registration:
  - All metrics registered in init()
  - MustRegister panics on duplicate registration

Timer Pattern:
  - Create a timer at operation start, observe duration to a histogram
  - Supports both plain and label-vector histograms

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
