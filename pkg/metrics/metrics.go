package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Raft node metrics
	RaftIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conflux_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftTerm = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conflux_raft_current_term",
			Help: "Current Raft term observed by this node",
		},
	)

	RaftLastLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conflux_raft_last_log_index",
			Help: "Index of the last entry in this node's Raft log",
		},
	)

	RaftLastApplied = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conflux_raft_last_applied",
			Help: "Index of the last log entry applied to the state machine",
		},
	)

	RaftLeadershipChanges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conflux_raft_leadership_changes_total",
			Help: "Total number of times this node observed a leadership change",
		},
	)

	RaftElectionTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conflux_raft_election_timeouts_total",
			Help: "Total number of election timeouts observed by this node",
		},
	)

	RaftVotesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conflux_raft_votes_received_total",
			Help: "Total number of votes this node has received as a candidate",
		},
	)

	RaftVotesGranted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conflux_raft_votes_granted_total",
			Help: "Total number of votes this node has granted to candidates",
		},
	)

	// Cluster-wide metrics
	ClusterSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conflux_cluster_size",
			Help: "Number of members in the Raft cluster as last observed",
		},
	)

	ClusterHealthyNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conflux_cluster_healthy_nodes",
			Help: "Number of cluster members last observed healthy",
		},
	)

	ClusterStability = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conflux_cluster_stability",
			Help: "Fraction of cluster members last observed healthy, in [0,1]",
		},
	)

	// Write/read path metrics
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conflux_request_duration_seconds",
			Help:    "Duration of client write/read requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conflux_requests_total",
			Help: "Total number of client requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	ReplicationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conflux_replication_latency_seconds",
			Help:    "Time for a write to be acknowledged by a quorum of followers",
			Buckets: prometheus.DefBuckets,
		},
	)

	NetworkRTT = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "conflux_peer_network_rtt_seconds",
			Help: "Last observed round-trip time to a peer",
		},
		[]string{"peer"},
	)

	// Storage metrics
	ObjectStoreSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conflux_object_store_size_bytes",
			Help: "Approximate size in bytes of the persistent object store",
		},
	)

	LogStoreSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conflux_log_store_size_bytes",
			Help: "Approximate size in bytes of the Raft log store",
		},
	)

	SnapshotSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conflux_snapshot_size_bytes",
			Help: "Size in bytes of the most recent snapshot",
		},
	)

	SnapshotsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conflux_snapshots_total",
			Help: "Total number of snapshots this node has created",
		},
	)

	// Resource limiter metrics
	LimiterRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conflux_limiter_rejections_total",
			Help: "Total number of requests rejected by the resource limiter, by reason",
		},
		[]string{"reason"},
	)

	LimiterInFlightMemoryBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conflux_limiter_in_flight_memory_bytes",
			Help: "Current in-flight request memory accounted for by the resource limiter",
		},
	)

	// Config/release metrics
	ConfigsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conflux_configs_total",
			Help: "Total number of configs known to this node's state machine",
		},
	)

	ReleaseResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conflux_release_resolutions_total",
			Help: "Total number of release resolutions by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		RaftIsLeader,
		RaftTerm,
		RaftLastLogIndex,
		RaftLastApplied,
		RaftLeadershipChanges,
		RaftElectionTimeouts,
		RaftVotesReceived,
		RaftVotesGranted,
		ClusterSize,
		ClusterHealthyNodes,
		ClusterStability,
		RequestDuration,
		RequestsTotal,
		ReplicationLatency,
		NetworkRTT,
		ObjectStoreSizeBytes,
		LogStoreSizeBytes,
		SnapshotSizeBytes,
		SnapshotsTotal,
		LimiterRejectionsTotal,
		LimiterInFlightMemoryBytes,
		ConfigsTotal,
		ReleaseResolutionsTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer, starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
