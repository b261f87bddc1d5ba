package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	AgentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sokovan_agents_total",
			Help: "Total number of agents by status",
		},
		[]string{"status"},
	)

	SessionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sokovan_sessions_total",
			Help: "Total number of sessions by status",
		},
		[]string{"status"},
	)

	KernelsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sokovan_kernels_total",
			Help: "Total number of kernels by status",
		},
		[]string{"status"},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sokovan_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sokovan_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sokovan_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sokovan_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sokovan_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RaftCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sokovan_raft_commit_duration_seconds",
			Help:    "Time taken to commit a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sokovan_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sokovan_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Scheduling tick metrics
	SchedulingTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sokovan_scheduling_tick_duration_seconds",
			Help:    "Time taken for a single scheduling tick of one scaling group",
			Buckets: prometheus.DefBuckets,
		},
	)

	SessionsScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sokovan_sessions_scheduled_total",
			Help: "Total number of sessions moved from PENDING to SCHEDULED",
		},
	)

	SessionsPendingTimeoutTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sokovan_sessions_pending_timeout_total",
			Help: "Total number of sessions cancelled for exceeding the pending timeout",
		},
	)

	// Lifecycle tick metrics
	LifecycleTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sokovan_lifecycle_tick_duration_seconds",
			Help:    "Time taken for a single lifecycle tick (SCHEDULED to PREPARING fan-out and termination fan-out)",
			Buckets: prometheus.DefBuckets,
		},
	)

	KernelsCreateFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sokovan_kernels_create_failed_total",
			Help: "Total number of kernel creation RPCs that failed during a lifecycle tick",
		},
	)

	SessionsTerminatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sokovan_sessions_terminated_total",
			Help: "Total number of sessions that completed termination",
		},
	)

	AgentsEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sokovan_agents_evicted_total",
			Help: "Total number of agents force-evicted after exceeding the lost-agent dwell time",
		},
	)

	// Resource ledger metrics
	LedgerAllocateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sokovan_ledger_allocate_duration_seconds",
			Help:    "Time taken to allocate resource slots on an agent",
			Buckets: prometheus.DefBuckets,
		},
	)

	LedgerAllocateFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sokovan_ledger_allocate_failed_total",
			Help: "Total number of resource slot allocation attempts that failed capacity checks",
		},
	)

	// Fair-share metrics
	FairShareSlicesEmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sokovan_fairshare_slices_emitted_total",
			Help: "Total number of 5-minute fair-share usage slices recorded",
		},
	)
)

func init() {
	prometheus.MustRegister(AgentsTotal)
	prometheus.MustRegister(SessionsTotal)
	prometheus.MustRegister(KernelsTotal)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(RaftCommitDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(SchedulingTickDuration)
	prometheus.MustRegister(SessionsScheduledTotal)
	prometheus.MustRegister(SessionsPendingTimeoutTotal)
	prometheus.MustRegister(LifecycleTickDuration)
	prometheus.MustRegister(KernelsCreateFailedTotal)
	prometheus.MustRegister(SessionsTerminatedTotal)
	prometheus.MustRegister(AgentsEvictedTotal)
	prometheus.MustRegister(LedgerAllocateDuration)
	prometheus.MustRegister(LedgerAllocateFailedTotal)
	prometheus.MustRegister(FairShareSlicesEmittedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
