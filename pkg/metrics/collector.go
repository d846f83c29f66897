package metrics

import (
	"fmt"
	"sync"
	"time"
)

// emaAlpha is the exponential-moving-average smoothing factor used across
// this collector: new = (1-emaAlpha)*old + emaAlpha*sample. Matches
// original_source/src/raft/metrics.rs's RaftMetricsCollector exactly.
const emaAlpha = 0.1

// NodeStatus classifies a cluster member as this node's metrics last
// observed it.
type NodeStatus string

const (
	NodeActive    NodeStatus = "Active"
	NodeSuspected NodeStatus = "Suspected"
	NodeDown      NodeStatus = "Down"
	NodeJoining   NodeStatus = "Joining"
	NodeLeaving   NodeStatus = "Leaving"
)

// HealthStatus is a coarse health verdict derived from NodeHealth.
type HealthStatus string

const (
	Healthy   HealthStatus = "Healthy"
	Degraded  HealthStatus = "Degraded"
	Unhealthy HealthStatus = "Unhealthy"
)

// NodeMetrics describes this node's own Raft participation.
type NodeMetrics struct {
	NodeID            uint64
	CurrentTerm       uint64
	LastLogIndex      uint64
	LastApplied       uint64
	LeaderID          *uint64
	IsLeader          bool
	LeadershipChanges uint64
	VotesReceived     uint64
	VotesGranted      uint64
	LastHeartbeat     time.Time
	ElectionTimeouts  uint64
	Uptime            time.Duration
}

// ClusterMetrics describes the cluster as this node currently observes it.
type ClusterMetrics struct {
	ClusterSize            int
	HealthyNodes           int
	Membership             map[uint64]NodeStatus
	TotalLeadershipChanges uint64
	ClusterStability       float64
	LastMembershipChange   time.Time
	MembershipChanges      uint64
}

// PerformanceMetrics tracks EMA-smoothed latency and throughput figures.
type PerformanceMetrics struct {
	AvgRequestLatency     time.Duration
	RequestThroughput     float64
	TotalRequests         uint64
	FailedRequests        uint64
	AvgReplicationLatency time.Duration
	NetworkRTT            map[uint64]time.Duration
	MemoryUsage           uint64
	LogStorageUsage       uint64
	SnapshotSize          uint64
	LastSnapshotTime      time.Time

	windowStart time.Time
	windowCount uint64
}

// Collector is the Metrics Collector: a push-style accumulator that the
// raft node and statemachine call into as events happen, EMA-smoothing
// latency samples and bridging the result onto the Prometheus gauges in
// metrics.go. Grounded on original_source/src/raft/metrics.rs's
// RaftMetricsCollector; the teacher's pull-style Collector (which polled a
// *manager.Manager on a ticker) does not fit Conflux's single-writer FSM, so
// this is a from-scratch adaptation of the teacher's Prometheus wiring
// style applied to the source's push-based metric shape.
type Collector struct {
	mu sync.Mutex

	node      NodeMetrics
	cluster   ClusterMetrics
	perf      PerformanceMetrics
	startTime time.Time
}

// NewCollector creates a Collector for nodeID.
func NewCollector(nodeID uint64) *Collector {
	now := time.Now()
	return &Collector{
		node: NodeMetrics{
			NodeID:        nodeID,
			LastHeartbeat: now,
		},
		cluster: ClusterMetrics{
			Membership:       make(map[uint64]NodeStatus),
			ClusterStability: 1.0,
		},
		perf: PerformanceMetrics{
			NetworkRTT:  make(map[uint64]time.Duration),
			windowStart: now,
		},
		startTime: now,
	}
}

// UpdateNodeMetrics records this node's current Raft term, log position,
// and leadership state.
func (c *Collector) UpdateNodeMetrics(term, lastLogIndex, lastApplied uint64, isLeader bool, leaderID *uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if isLeader != c.node.IsLeader {
		c.node.LeadershipChanges++
		c.cluster.TotalLeadershipChanges++
		RaftLeadershipChanges.Inc()
	}
	c.node.CurrentTerm = term
	c.node.LastLogIndex = lastLogIndex
	c.node.LastApplied = lastApplied
	c.node.IsLeader = isLeader
	c.node.LeaderID = leaderID
	c.node.Uptime = time.Since(c.startTime)

	RaftTerm.Set(float64(term))
	RaftLastLogIndex.Set(float64(lastLogIndex))
	RaftLastApplied.Set(float64(lastApplied))
	if isLeader {
		RaftIsLeader.Set(1)
	} else {
		RaftIsLeader.Set(0)
	}
}

// RecordElectionTimeout increments the election-timeout counter.
func (c *Collector) RecordElectionTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.node.ElectionTimeouts++
	RaftElectionTimeouts.Inc()
}

// RecordVoteReceived increments the votes-received counter (this node as
// candidate).
func (c *Collector) RecordVoteReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.node.VotesReceived++
	RaftVotesReceived.Inc()
}

// RecordVoteGranted increments the votes-granted counter (this node
// granting another candidate's request).
func (c *Collector) RecordVoteGranted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.node.VotesGranted++
	RaftVotesGranted.Inc()
}

// RecordHeartbeat timestamps the most recent heartbeat seen or sent.
func (c *Collector) RecordHeartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.node.LastHeartbeat = time.Now()
}

// UpdateClusterMetrics replaces the membership snapshot and recomputes
// cluster size, healthy count, and stability.
func (c *Collector) UpdateClusterMetrics(membership map[uint64]NodeStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	healthy := 0
	for _, status := range membership {
		if status == NodeActive {
			healthy++
		}
	}

	if len(membership) != c.cluster.ClusterSize {
		c.cluster.MembershipChanges++
		c.cluster.LastMembershipChange = time.Now()
	}

	c.cluster.Membership = membership
	c.cluster.ClusterSize = len(membership)
	c.cluster.HealthyNodes = healthy
	if c.cluster.ClusterSize > 0 {
		c.cluster.ClusterStability = float64(healthy) / float64(c.cluster.ClusterSize)
	} else {
		c.cluster.ClusterStability = 1.0
	}

	ClusterSize.Set(float64(c.cluster.ClusterSize))
	ClusterHealthyNodes.Set(float64(c.cluster.HealthyNodes))
	ClusterStability.Set(c.cluster.ClusterStability)
}

// RecordRequest EMA-smooths latency into AvgRequestLatency and updates the
// rolling throughput window.
func (c *Collector) RecordRequest(operation string, latency time.Duration, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.perf.TotalRequests++
	if !success {
		c.perf.FailedRequests++
	}
	c.perf.AvgRequestLatency = emaBlend(c.perf.AvgRequestLatency, latency)
	c.perf.windowCount++
	if elapsed := time.Since(c.perf.windowStart); elapsed >= time.Second {
		c.perf.RequestThroughput = float64(c.perf.windowCount) / elapsed.Seconds()
		c.perf.windowCount = 0
		c.perf.windowStart = time.Now()
	}

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	RequestsTotal.WithLabelValues(operation, outcome).Inc()
	RequestDuration.WithLabelValues(operation).Observe(latency.Seconds())
}

// RecordReplicationLatency EMA-smooths the time a write took to reach
// quorum.
func (c *Collector) RecordReplicationLatency(latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perf.AvgReplicationLatency = emaBlend(c.perf.AvgReplicationLatency, latency)
	ReplicationLatency.Observe(latency.Seconds())
}

// UpdateNetworkRTT records the last observed round-trip time to peerID.
func (c *Collector) UpdateNetworkRTT(peerID uint64, rtt time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perf.NetworkRTT[peerID] = rtt
	NetworkRTT.WithLabelValues(fmt.Sprintf("%d", peerID)).Set(rtt.Seconds())
}

// UpdateStorageMetrics records the current on-disk footprint of the object
// store and the log store.
func (c *Collector) UpdateStorageMetrics(objectStoreBytes, logStoreBytes uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perf.MemoryUsage = objectStoreBytes
	c.perf.LogStorageUsage = logStoreBytes
	ObjectStoreSizeBytes.Set(float64(objectStoreBytes))
	LogStoreSizeBytes.Set(float64(logStoreBytes))
}

// RecordSnapshotCreation records a just-completed snapshot's size.
func (c *Collector) RecordSnapshotCreation(sizeBytes uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perf.SnapshotSize = sizeBytes
	c.perf.LastSnapshotTime = time.Now()
	SnapshotSizeBytes.Set(float64(sizeBytes))
	SnapshotsTotal.Inc()
}

// NodeMetricsSnapshot returns a copy of the current node metrics.
func (c *Collector) NodeMetricsSnapshot() NodeMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := c.node
	snapshot.Uptime = time.Since(c.startTime)
	return snapshot
}

// ClusterMetricsSnapshot returns a copy of the current cluster metrics.
func (c *Collector) ClusterMetricsSnapshot() ClusterMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	membership := make(map[uint64]NodeStatus, len(c.cluster.Membership))
	for k, v := range c.cluster.Membership {
		membership[k] = v
	}
	snapshot := c.cluster
	snapshot.Membership = membership
	return snapshot
}

// PerformanceMetricsSnapshot returns a copy of the current performance
// metrics.
func (c *Collector) PerformanceMetricsSnapshot() PerformanceMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	rtt := make(map[uint64]time.Duration, len(c.perf.NetworkRTT))
	for k, v := range c.perf.NetworkRTT {
		rtt[k] = v
	}
	snapshot := c.perf
	snapshot.NetworkRTT = rtt
	return snapshot
}

// NodeHealth scores this node's health 0-100 from failure rate, heartbeat
// staleness, and cluster stability, matching
// original_source/src/raft/metrics.rs's get_node_health.
func (c *Collector) NodeHealth() (HealthStatus, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	score := 100

	if c.perf.TotalRequests > 0 {
		failureRate := float64(c.perf.FailedRequests) / float64(c.perf.TotalRequests)
		score -= int(failureRate * 40)
	}

	staleness := time.Since(c.node.LastHeartbeat)
	switch {
	case staleness > 10*time.Second:
		score -= 30
	case staleness > 3*time.Second:
		score -= 15
	}

	score -= int((1 - c.cluster.ClusterStability) * 30)

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	switch {
	case score >= 80:
		return Healthy, score
	case score >= 50:
		return Degraded, score
	default:
		return Unhealthy, score
	}
}

func emaBlend(old, sample time.Duration) time.Duration {
	if old == 0 {
		return sample
	}
	return time.Duration((1-emaAlpha)*float64(old) + emaAlpha*float64(sample))
}
