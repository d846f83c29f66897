package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeIDRange(t *testing.T) {
	v := New(DefaultOptions())
	require.NoError(t, v.NodeID(1))
	require.NoError(t, v.NodeID(65535))
	assert.Error(t, v.NodeID(0))
	assert.Error(t, v.NodeID(65536))
}

func TestAddress(t *testing.T) {
	v := New(DefaultOptions())
	require.NoError(t, v.Address("127.0.0.1:9002"))
	assert.Error(t, v.Address("not-an-address"))
	assert.Error(t, v.Address("0.0.0.0:9002"))
	assert.Error(t, v.Address("255.255.255.255:9002"))
	assert.Error(t, v.Address("224.0.0.1:9002"))
}

func TestAddressLoopbackAndPrivateConfigurable(t *testing.T) {
	opts := DefaultOptions()
	v := New(opts)
	assert.NoError(t, v.Address("127.0.0.1:9002"))

	opts.RejectLoopback = true
	v = New(opts)
	assert.Error(t, v.Address("127.0.0.1:9002"))
}

func TestClusterSize(t *testing.T) {
	v := New(DefaultOptions())
	require.NoError(t, v.ClusterSize(1, 1, 0))
	assert.Error(t, v.ClusterSize(1, 0, 1), "removing the last node must fail")
	require.NoError(t, v.ClusterSize(2, 0, 1))

	opts := DefaultOptions()
	opts.MaxClusterSize = 3
	v = New(opts)
	assert.Error(t, v.ClusterSize(3, 1, 0))
}

func TestUniqueness(t *testing.T) {
	v := New(DefaultOptions())
	members := []Member{{NodeID: 1, Address: "127.0.0.1:9001"}}
	assert.Error(t, v.Uniqueness(members, Member{NodeID: 1, Address: "127.0.0.1:9002"}))
	assert.Error(t, v.Uniqueness(members, Member{NodeID: 2, Address: "127.0.0.1:9001"}))
	assert.NoError(t, v.Uniqueness(members, Member{NodeID: 2, Address: "127.0.0.1:9002"}))
}

func TestTimeoutTriple(t *testing.T) {
	v := New(DefaultOptions())
	require.NoError(t, v.Timeouts(150*time.Millisecond, 300*time.Millisecond, 600*time.Millisecond))

	assert.Error(t, v.Timeouts(0, 300*time.Millisecond, 600*time.Millisecond))
	assert.Error(t, v.Timeouts(600*time.Millisecond, 300*time.Millisecond, 900*time.Millisecond),
		"heartbeat >= election_min must be rejected")
	assert.Error(t, v.Timeouts(100*time.Millisecond, 600*time.Millisecond, 300*time.Millisecond),
		"election_min >= election_max must be rejected")
}
