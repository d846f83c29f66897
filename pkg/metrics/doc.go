/*
Package metrics provides Prometheus metrics collection and exposition for
Conflux, plus a push-style Collector that tracks Raft and performance figures
in-process for the health endpoints and the admin read path.

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
	│  │              Collector                       │          │
	│  │  - Push-style: raftnode/statemachine call    │          │
	│  │    UpdateNodeMetrics, RecordRequest, etc.    │          │
	│  │  - EMA-smooths latency (alpha=0.1)           │          │
	│  │  - Bridges onto the Prometheus vars below    │          │
	│  │  - NodeHealth() scores 0-100                 │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Endpoints                      │          │
	│  │  - /metrics: Handler() -> promhttp.Handler() │          │
	│  │  - /health, /ready, /live: health.go          │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Prometheus variables (metrics.go):
  - Raft: RaftIsLeader, RaftTerm, RaftLastLogIndex, RaftLastApplied,
    RaftLeadershipChanges, RaftElectionTimeouts, RaftVotesReceived,
    RaftVotesGranted
  - Cluster: ClusterSize, ClusterHealthyNodes, ClusterStability
  - Requests: RequestDuration, RequestsTotal, ReplicationLatency, NetworkRTT
  - Storage: ObjectStoreSizeBytes, LogStoreSizeBytes, SnapshotSizeBytes,
    SnapshotsTotal
  - Limiter: LimiterRejectionsTotal, LimiterInFlightMemoryBytes
  - Config/release: ConfigsTotal, ReleaseResolutionsTotal

Collector (collector.go):
  - NodeMetrics, ClusterMetrics, PerformanceMetrics: point-in-time snapshots
    returned by *Snapshot() methods, always defensive copies
  - NodeStatus / HealthStatus: small string enums for cluster membership and
    health verdicts
  - NodeHealth(): derives a 0-100 score and a HealthStatus from failure rate,
    heartbeat staleness, and cluster stability

Health checker (health.go):
  - HealthChecker tracks named component health (e.g. "raft", "store")
  - GetReadiness() requires raft and store to both be registered and healthy
  - HealthHandler/ReadyHandler/LivenessHandler: net/http handlers

# Usage

	import "github.com/conflux/conflux/pkg/metrics"

	collector := metrics.NewCollector(nodeID)
	collector.UpdateNodeMetrics(term, lastLogIndex, lastApplied, isLeader, leaderID)
	collector.RecordRequest("write", elapsed, err == nil)

	metrics.RegisterComponent("raft", true, "")
	metrics.RegisterComponent("store", true, "")

	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())
	http.HandleFunc("/live", metrics.LivenessHandler())

# Integration Points

This package integrates with:

  - pkg/raftnode: pushes term/log/leadership and membership (ReportMetrics)
    and write latency
  - pkg/statemachine: pushes apply latency
  - cmd/confluxd: registers component health and serves the HTTP endpoints

The vote/election, storage-size, snapshot and limiter metrics are defined
and registered, but no package in this module pushes them.

# Design Patterns

Push over pull:
  - The Collector is called directly by the code that observes each event,
    rather than polling a manager type on a ticker. This avoids a circular
    import between metrics and the raft driver package and matches the
    push-based shape of the Rust reference implementation's metrics
    collector.

Defensive snapshots:
  - *Snapshot() methods copy maps before returning, so callers can hold and
    inspect the result without a lock and without racing the collector.

# Security

Log and metric content:
  - Never attach config version content or credentials as metric label
    values; only bounded-cardinality identifiers (operation names, peer IDs,
    rejection reasons) belong in labels.
*/
package metrics
