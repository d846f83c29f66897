// Package confluxconfig loads and validates the node-bootstrap configuration
// file a confluxd process starts from: node identity, bind addresses, data
// directory, initial peers, and the resource-limiter/timeout tuning knobs.
// Grounded on cmd/warren/apply.go's YAML-resource pattern (os.ReadFile +
// yaml.Unmarshal) generalized from a one-off apply payload into the process's
// own startup config, with go-playground/validator/v10 struct tags added for
// the field-presence/format checks the way
// ipiton-alert-history-service/go-app's webhook validator and
// nabbar-golib validate their request DTOs.
package confluxconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	confluxvalidate "github.com/conflux/conflux/pkg/validate"
)

// PeerConfig describes a cluster member known at bootstrap time.
type PeerConfig struct {
	NodeID  uint64 `yaml:"nodeId" validate:"required,gt=0"`
	Address string `yaml:"address" validate:"required,hostname_port"`
}

// LimiterConfig tunes the per-node Resource Limiter.
type LimiterConfig struct {
	MaxRequestsPerSecond int   `yaml:"maxRequestsPerSecond" validate:"gte=0"`
	MaxRequestBytes      int64 `yaml:"maxRequestBytes" validate:"gte=0"`
	MaxInFlightBytes     int64 `yaml:"maxInFlightBytes" validate:"gte=0"`
	MaxConcurrent        int64 `yaml:"maxConcurrent" validate:"gte=0"`
}

// TimeoutConfig tunes the Raft timing triple plus the commit timeout.
type TimeoutConfig struct {
	Heartbeat    time.Duration `yaml:"heartbeat"`
	ElectionMin  time.Duration `yaml:"electionMin"`
	ElectionMax  time.Duration `yaml:"electionMax"`
	CommitPeriod time.Duration `yaml:"commitPeriod"`
}

// Config is the top-level shape of a confluxd bootstrap file.
type Config struct {
	APIVersion string `yaml:"apiVersion" validate:"required"`
	Kind       string `yaml:"kind" validate:"required,eq=Node"`

	NodeID   uint64 `yaml:"nodeId" validate:"required,gt=0"`
	BindAddr string `yaml:"bindAddr" validate:"required,hostname_port"`
	DataDir  string `yaml:"dataDir" validate:"required"`

	// Bootstrap is true only for the node that first forms a one-member
	// cluster; every other node starts un-bootstrapped and waits to be
	// admitted by an existing leader's AddNode.
	Bootstrap bool `yaml:"bootstrap"`

	// JoinAddr, when set, names an existing member's address. confluxd
	// only logs it; it does not dial that address to request membership.
	JoinAddr string `yaml:"joinAddr" validate:"omitempty,hostname_port"`

	Peers []PeerConfig `yaml:"peers" validate:"dive"`

	Limiter  LimiterConfig `yaml:"limiter"`
	Timeouts TimeoutConfig `yaml:"timeouts"`

	LogLevel  string `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error"`
	LogJSON   bool   `yaml:"logJSON"`
	MetricsAddr string `yaml:"metricsAddr" validate:"omitempty,hostname_port"`
}

// DefaultTimeouts mirrors manager.go's raft.Config tuning, reused as the
// zero-value fallback when a bootstrap file omits the timeouts block.
func DefaultTimeouts() TimeoutConfig {
	return TimeoutConfig{
		Heartbeat:    250 * time.Millisecond,
		ElectionMin:  500 * time.Millisecond,
		ElectionMax:  1000 * time.Millisecond,
		CommitPeriod: 50 * time.Millisecond,
	}
}

// Load reads and parses a YAML bootstrap file, applies timeout defaults for
// anything left zero, and runs both the struct-tag checks and the
// cross-field checks that struct tags cannot express.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Timeouts == (TimeoutConfig{}) {
		cfg.Timeouts = DefaultTimeouts()
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct-tag validation and then the hand-written cross-field
// rules (timeout ordering, cluster-size ceiling, bootstrap/join exclusivity)
// that go-playground/validator/v10 tags cannot express.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if cfg.Bootstrap && cfg.JoinAddr != "" {
		return fmt.Errorf("config validation: bootstrap and joinAddr are mutually exclusive")
	}
	if !cfg.Bootstrap && cfg.JoinAddr == "" && len(cfg.Peers) == 0 {
		return fmt.Errorf("config validation: a non-bootstrap node needs joinAddr or a non-empty peers list")
	}

	cv := confluxvalidate.New(confluxvalidate.DefaultOptions())
	if err := cv.NodeID(cfg.NodeID); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := cv.Address(cfg.BindAddr); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := cv.Timeouts(cfg.Timeouts.Heartbeat, cfg.Timeouts.ElectionMin, cfg.Timeouts.ElectionMax); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := cv.ClusterSize(len(cfg.Peers), 1, 0); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	members := make([]confluxvalidate.Member, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		if err := cv.NodeID(p.NodeID); err != nil {
			return fmt.Errorf("config validation: peer %d: %w", p.NodeID, err)
		}
		if err := cv.Address(p.Address); err != nil {
			return fmt.Errorf("config validation: peer %d: %w", p.NodeID, err)
		}
		candidate := confluxvalidate.Member{NodeID: p.NodeID, Address: p.Address}
		if err := cv.Uniqueness(members, candidate); err != nil {
			return fmt.Errorf("config validation: %w", err)
		}
		members = append(members, candidate)
	}

	return nil
}
