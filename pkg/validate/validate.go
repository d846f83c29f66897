// Package validate implements the Input Validator: rejects malformed
// cluster-management inputs before they reach consensus. Grounded on
// original_source/src/raft/node/config.rs's NodeConfig::validate /
// ResourceLimits::validate, generalized from single-field checks into the
// five rules spec.md §4.6 names (node id range, address sanity,
// cluster-size bounds, membership uniqueness, timeout-triple ordering).
package validate

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/conflux/conflux/pkg/errs"
)

// Options bounds the otherwise-open checks (node id range, port range,
// cluster size, timeout ceilings). Zero-value Options falls back to
// DefaultOptions via Validator.
type Options struct {
	MinNodeID uint64
	MaxNodeID uint64

	MinPort uint16
	MaxPort uint16

	MaxClusterSize int

	MaxHeartbeat    time.Duration
	MaxElectionMin  time.Duration
	MaxElectionMax  time.Duration

	RejectLoopback bool
	RejectPrivate  bool
}

// DefaultOptions matches the ranges implied by the source's defaults
// (node_id starts at 1; a 1..=65535 range covers any plausible single
// cluster) plus the upper timeout bounds spec.md §4.6 calls "absurd values".
func DefaultOptions() Options {
	return Options{
		MinNodeID:      1,
		MaxNodeID:      65535,
		MinPort:        1,
		MaxPort:        65535,
		MaxClusterSize: 31,
		MaxHeartbeat:   10 * time.Second,
		MaxElectionMin: 30 * time.Second,
		MaxElectionMax: 60 * time.Second,
	}
}

// Validator applies Options to the five input classes §4.6 names.
type Validator struct {
	opts Options
}

// New constructs a Validator. A zero Options uses DefaultOptions.
func New(opts Options) *Validator {
	if opts == (Options{}) {
		opts = DefaultOptions()
	}
	return &Validator{opts: opts}
}

// Member is the minimal shape the validator needs to check uniqueness and
// cluster size against the existing membership set.
type Member struct {
	NodeID  uint64
	Address string
}

// NodeID checks id is within [MinNodeID, MaxNodeID].
func (v *Validator) NodeID(id uint64) error {
	if id < v.opts.MinNodeID || id > v.opts.MaxNodeID {
		return errs.New(errs.Validation, fmt.Sprintf("node_id %d out of range [%d, %d]", id, v.opts.MinNodeID, v.opts.MaxNodeID))
	}
	return nil
}

// Address checks addr parses as host:port, the port is in range, and the
// host is not a wildcard, broadcast, or multicast address. Loopback and
// private addresses are rejected only when configured to.
func (v *Validator) Address(addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return errs.Wrap(errs.Validation, fmt.Sprintf("address %q is not host:port", addr), err)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return errs.Wrap(errs.Validation, fmt.Sprintf("address %q has a non-numeric port", addr), err)
	}
	if uint16(port) < v.opts.MinPort || uint16(port) > v.opts.MaxPort {
		return errs.New(errs.Validation, fmt.Sprintf("port %d out of range [%d, %d]", port, v.opts.MinPort, v.opts.MaxPort))
	}

	ip := net.ParseIP(host)
	if ip != nil {
		if ip.IsUnspecified() {
			return errs.New(errs.Validation, fmt.Sprintf("address %q is a wildcard host", addr))
		}
		if ip.IsMulticast() {
			return errs.New(errs.Validation, fmt.Sprintf("address %q is a multicast host", addr))
		}
		if isIPv4Broadcast(ip) {
			return errs.New(errs.Validation, fmt.Sprintf("address %q is a broadcast host", addr))
		}
		if v.opts.RejectLoopback && ip.IsLoopback() {
			return errs.New(errs.Validation, fmt.Sprintf("address %q is loopback", addr))
		}
		if v.opts.RejectPrivate && ip.IsPrivate() {
			return errs.New(errs.Validation, fmt.Sprintf("address %q is a private address", addr))
		}
	}
	return nil
}

func isIPv4Broadcast(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	return v4[0] == 255 && v4[1] == 255 && v4[2] == 255 && v4[3] == 255
}

// ClusterSize checks that current+adding does not exceed the configured
// ceiling, and that a removal never drops below 1 remaining member.
func (v *Validator) ClusterSize(current, adding, removing int) error {
	if removing > 0 && current-removing < 1 {
		return errs.New(errs.Validation, "cannot remove the last remaining node")
	}
	if current+adding-removing > v.opts.MaxClusterSize {
		return errs.New(errs.Validation, fmt.Sprintf("cluster size %d would exceed max %d", current+adding-removing, v.opts.MaxClusterSize))
	}
	return nil
}

// Uniqueness checks that candidate's node id and address do not already
// appear in members.
func (v *Validator) Uniqueness(members []Member, candidate Member) error {
	for _, m := range members {
		if m.NodeID == candidate.NodeID {
			return errs.New(errs.Validation, fmt.Sprintf("node_id %d already a member", candidate.NodeID))
		}
		if m.Address == candidate.Address {
			return errs.New(errs.Validation, fmt.Sprintf("address %q already a member", candidate.Address))
		}
	}
	return nil
}

// Timeouts checks the (heartbeat, election_min, election_max) triple: all
// non-zero, heartbeat < election_min < election_max, and none exceeding the
// configured ceilings.
func (v *Validator) Timeouts(heartbeat, electionMin, electionMax time.Duration) error {
	if heartbeat <= 0 || electionMin <= 0 || electionMax <= 0 {
		return errs.New(errs.Validation, "timeouts must all be greater than zero")
	}
	if heartbeat >= electionMin {
		return errs.New(errs.Validation, "heartbeat must be less than election_timeout_min")
	}
	if electionMin >= electionMax {
		return errs.New(errs.Validation, "election_timeout_min must be less than election_timeout_max")
	}
	if heartbeat > v.opts.MaxHeartbeat {
		return errs.New(errs.Validation, fmt.Sprintf("heartbeat %s exceeds max %s", heartbeat, v.opts.MaxHeartbeat))
	}
	if electionMin > v.opts.MaxElectionMin {
		return errs.New(errs.Validation, fmt.Sprintf("election_timeout_min %s exceeds max %s", electionMin, v.opts.MaxElectionMin))
	}
	if electionMax > v.opts.MaxElectionMax {
		return errs.New(errs.Validation, fmt.Sprintf("election_timeout_max %s exceeds max %s", electionMax, v.opts.MaxElectionMax))
	}
	return nil
}
