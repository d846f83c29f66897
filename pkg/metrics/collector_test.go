package metrics

import (
	"testing"
	"time"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector(1)

	snap := c.NodeMetricsSnapshot()
	if snap.NodeID != 1 {
		t.Errorf("expected node id 1, got %d", snap.NodeID)
	}

	cluster := c.ClusterMetricsSnapshot()
	if cluster.ClusterStability != 1.0 {
		t.Errorf("expected initial stability 1.0, got %f", cluster.ClusterStability)
	}
}

func TestUpdateNodeMetricsTracksLeadershipChanges(t *testing.T) {
	c := NewCollector(1)

	c.UpdateNodeMetrics(1, 10, 10, false, nil)
	snap := c.NodeMetricsSnapshot()
	if snap.LeadershipChanges != 0 {
		t.Errorf("expected 0 leadership changes, got %d", snap.LeadershipChanges)
	}

	leader := uint64(1)
	c.UpdateNodeMetrics(2, 11, 11, true, &leader)
	snap = c.NodeMetricsSnapshot()
	if snap.LeadershipChanges != 1 {
		t.Errorf("expected 1 leadership change, got %d", snap.LeadershipChanges)
	}
	if !snap.IsLeader {
		t.Error("expected node to be leader")
	}
	if snap.CurrentTerm != 2 {
		t.Errorf("expected term 2, got %d", snap.CurrentTerm)
	}

	// No transition when state doesn't change.
	c.UpdateNodeMetrics(2, 12, 12, true, &leader)
	snap = c.NodeMetricsSnapshot()
	if snap.LeadershipChanges != 1 {
		t.Errorf("expected leadership changes to stay at 1, got %d", snap.LeadershipChanges)
	}
}

func TestRecordElectionAndVoteCounters(t *testing.T) {
	c := NewCollector(1)

	c.RecordElectionTimeout()
	c.RecordElectionTimeout()
	c.RecordVoteReceived()
	c.RecordVoteGranted()
	c.RecordVoteGranted()

	snap := c.NodeMetricsSnapshot()
	if snap.ElectionTimeouts != 2 {
		t.Errorf("expected 2 election timeouts, got %d", snap.ElectionTimeouts)
	}
	if snap.VotesReceived != 1 {
		t.Errorf("expected 1 vote received, got %d", snap.VotesReceived)
	}
	if snap.VotesGranted != 2 {
		t.Errorf("expected 2 votes granted, got %d", snap.VotesGranted)
	}
}

func TestRecordHeartbeatUpdatesTimestamp(t *testing.T) {
	c := NewCollector(1)
	before := c.NodeMetricsSnapshot().LastHeartbeat

	time.Sleep(time.Millisecond)
	c.RecordHeartbeat()

	after := c.NodeMetricsSnapshot().LastHeartbeat
	if !after.After(before) {
		t.Error("expected heartbeat timestamp to advance")
	}
}

func TestUpdateClusterMetricsComputesStability(t *testing.T) {
	c := NewCollector(1)

	membership := map[uint64]NodeStatus{
		1: NodeActive,
		2: NodeActive,
		3: NodeSuspected,
		4: NodeDown,
	}
	c.UpdateClusterMetrics(membership)

	cluster := c.ClusterMetricsSnapshot()
	if cluster.ClusterSize != 4 {
		t.Errorf("expected cluster size 4, got %d", cluster.ClusterSize)
	}
	if cluster.HealthyNodes != 2 {
		t.Errorf("expected 2 healthy nodes, got %d", cluster.HealthyNodes)
	}
	if cluster.ClusterStability != 0.5 {
		t.Errorf("expected stability 0.5, got %f", cluster.ClusterStability)
	}

	// Every membership size change is tracked: 0->4 above, then 4->1 here.
	c.UpdateClusterMetrics(map[uint64]NodeStatus{1: NodeActive})
	cluster = c.ClusterMetricsSnapshot()
	if cluster.MembershipChanges != 2 {
		t.Errorf("expected 2 membership changes, got %d", cluster.MembershipChanges)
	}
}

func TestClusterMetricsSnapshotIsDefensiveCopy(t *testing.T) {
	c := NewCollector(1)
	c.UpdateClusterMetrics(map[uint64]NodeStatus{1: NodeActive})

	snap := c.ClusterMetricsSnapshot()
	snap.Membership[2] = NodeDown

	snap2 := c.ClusterMetricsSnapshot()
	if _, ok := snap2.Membership[2]; ok {
		t.Error("mutating a snapshot's membership map should not affect the collector")
	}
}

func TestRecordRequestTracksTotalsAndFailures(t *testing.T) {
	c := NewCollector(1)

	c.RecordRequest("write", 10*time.Millisecond, true)
	c.RecordRequest("write", 20*time.Millisecond, false)

	perf := c.PerformanceMetricsSnapshot()
	if perf.TotalRequests != 2 {
		t.Errorf("expected 2 total requests, got %d", perf.TotalRequests)
	}
	if perf.FailedRequests != 1 {
		t.Errorf("expected 1 failed request, got %d", perf.FailedRequests)
	}
	if perf.AvgRequestLatency == 0 {
		t.Error("expected non-zero average latency")
	}
}

func TestEmaBlendFirstSampleIsExact(t *testing.T) {
	result := emaBlend(0, 100*time.Millisecond)
	if result != 100*time.Millisecond {
		t.Errorf("expected first sample to set the average exactly, got %v", result)
	}
}

func TestEmaBlendWeightsTowardOld(t *testing.T) {
	old := 100 * time.Millisecond
	sample := 200 * time.Millisecond

	result := emaBlend(old, sample)
	expected := time.Duration(0.9*float64(old) + 0.1*float64(sample))
	if result != expected {
		t.Errorf("expected %v, got %v", expected, result)
	}

	// Should move toward the sample but stay closer to old.
	if result <= old {
		t.Error("expected blended value to increase toward sample")
	}
	if result >= sample {
		t.Error("expected blended value to remain below the new sample")
	}
}

func TestUpdateNetworkRTT(t *testing.T) {
	c := NewCollector(1)
	c.UpdateNetworkRTT(2, 5*time.Millisecond)
	c.UpdateNetworkRTT(3, 7*time.Millisecond)

	perf := c.PerformanceMetricsSnapshot()
	if perf.NetworkRTT[2] != 5*time.Millisecond {
		t.Errorf("unexpected rtt for peer 2: %v", perf.NetworkRTT[2])
	}
	if perf.NetworkRTT[3] != 7*time.Millisecond {
		t.Errorf("unexpected rtt for peer 3: %v", perf.NetworkRTT[3])
	}
}

func TestUpdateStorageMetrics(t *testing.T) {
	c := NewCollector(1)
	c.UpdateStorageMetrics(1024, 2048)

	perf := c.PerformanceMetricsSnapshot()
	if perf.MemoryUsage != 1024 {
		t.Errorf("expected memory usage 1024, got %d", perf.MemoryUsage)
	}
	if perf.LogStorageUsage != 2048 {
		t.Errorf("expected log storage usage 2048, got %d", perf.LogStorageUsage)
	}
}

func TestRecordSnapshotCreation(t *testing.T) {
	c := NewCollector(1)
	c.RecordSnapshotCreation(4096)

	perf := c.PerformanceMetricsSnapshot()
	if perf.SnapshotSize != 4096 {
		t.Errorf("expected snapshot size 4096, got %d", perf.SnapshotSize)
	}
	if perf.LastSnapshotTime.IsZero() {
		t.Error("expected last snapshot time to be set")
	}
}

func TestNodeHealthFreshAndStable(t *testing.T) {
	c := NewCollector(1)
	c.RecordHeartbeat()
	c.UpdateClusterMetrics(map[uint64]NodeStatus{1: NodeActive, 2: NodeActive})

	status, score := c.NodeHealth()
	if status != Healthy {
		t.Errorf("expected Healthy, got %s (score %d)", status, score)
	}
	if score < 80 {
		t.Errorf("expected score >= 80, got %d", score)
	}
}

func TestNodeHealthDegradedOnStaleHeartbeat(t *testing.T) {
	c := NewCollector(1)
	c.mu.Lock()
	c.node.LastHeartbeat = time.Now().Add(-15 * time.Second)
	c.mu.Unlock()
	c.UpdateClusterMetrics(map[uint64]NodeStatus{1: NodeActive, 2: NodeActive})

	status, score := c.NodeHealth()
	if status == Healthy {
		t.Errorf("expected degraded health with stale heartbeat, got %s (score %d)", status, score)
	}
}

func TestNodeHealthUnhealthyOnHighFailureRateAndInstability(t *testing.T) {
	c := NewCollector(1)
	for i := 0; i < 10; i++ {
		c.RecordRequest("write", time.Millisecond, false)
	}
	c.mu.Lock()
	c.node.LastHeartbeat = time.Now().Add(-20 * time.Second)
	c.mu.Unlock()
	c.UpdateClusterMetrics(map[uint64]NodeStatus{1: NodeDown, 2: NodeActive})

	status, score := c.NodeHealth()
	if status != Unhealthy {
		t.Errorf("expected Unhealthy, got %s (score %d)", status, score)
	}
}

func TestNodeHealthScoreClampedToRange(t *testing.T) {
	c := NewCollector(1)
	for i := 0; i < 100; i++ {
		c.RecordRequest("write", time.Millisecond, false)
	}
	c.mu.Lock()
	c.node.LastHeartbeat = time.Now().Add(-1 * time.Hour)
	c.mu.Unlock()
	c.UpdateClusterMetrics(map[uint64]NodeStatus{1: NodeDown})

	_, score := c.NodeHealth()
	if score < 0 || score > 100 {
		t.Errorf("expected score in [0,100], got %d", score)
	}
}
