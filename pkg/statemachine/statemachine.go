// Package statemachine implements Conflux's deterministic Raft state
// machine: the single-threaded-per-entry Apply dispatch that turns committed
// confluxtypes.Command log entries into Persistent Object Store mutations,
// plus the pointer-only snapshot contract decided in DESIGN.md.
//
// Grounded on the teacher's pkg/manager/fsm.go WarrenFSM: one sync.RWMutex,
// a Command{Op, Data} envelope, and an Apply(*raft.Log) interface{} switch.
// The switch itself is rebuilt from scratch for Conflux's six commands
// rather than reused verbatim, since warren's nine entity kinds do not map
// onto configs/versions/releases. Snapshot/Restore diverge from warren's
// full-materialization WarrenSnapshot: this package snapshots only
// (last_applied_index, last_membership), matching
// original_source/src/raft/node/state_machine.rs's ConfluxStateMachine,
// because the object store already persists every row Raft would otherwise
// have to re-ship.
package statemachine

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/raft"

	"github.com/conflux/conflux/pkg/changenotify"
	"github.com/conflux/conflux/pkg/confluxtypes"
	"github.com/conflux/conflux/pkg/metrics"
)

// ApplySink is the narrow persistence contract Apply needs. pkg/storage.Store
// satisfies this interface structurally; this package never imports
// pkg/storage, which is what breaks the store<->state-machine import cycle
// spec.md §9 flags.
type ApplySink interface {
	NextConfigID() uint64
	FindConfigByID(id uint64) (*confluxtypes.Config, bool)
	FindConfigByName(ns confluxtypes.Namespace, name string) (*confluxtypes.Config, bool)
	ListConfigsInNamespace(ns confluxtypes.Namespace) []*confluxtypes.Config
	NextVersionID(configID uint64) uint64
	GetVersion(configID, versionID uint64) (*confluxtypes.ConfigVersion, bool)
	ListVersions(configID uint64) []*confluxtypes.ConfigVersion
	PersistConfig(cfg *confluxtypes.Config) error
	PersistVersion(v *confluxtypes.ConfigVersion) error
	DeleteConfig(configID uint64) error
	DeleteVersions(configID uint64, versionIDs []uint64) (int, error)
}

// StateMachine implements raft.FSM and raft.ConfigurationStore.
type StateMachine struct {
	mu      sync.RWMutex
	sink    ApplySink
	broker  *changenotify.Broker
	metrics *metrics.Collector

	lastAppliedIndex uint64
	lastMembership   raft.Configuration
}

// New constructs a StateMachine over sink. broker and collector are both
// optional (nil is a valid no-op for either).
func New(sink ApplySink, broker *changenotify.Broker, collector *metrics.Collector) *StateMachine {
	return &StateMachine{sink: sink, broker: broker, metrics: collector}
}

// LastAppliedIndex returns the index of the most recently applied log entry
// or stored configuration, whichever is larger in Raft index terms.
func (s *StateMachine) LastAppliedIndex() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAppliedIndex
}

// LastMembership returns the most recently observed cluster configuration.
func (s *StateMachine) LastMembership() raft.Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMembership
}

// Apply applies one committed log entry. Every outcome, including a
// business-rule rejection (unknown config, orphaned version, duplicate
// name), is returned as a *confluxtypes.CommandResponse with Success=false
// rather than a Go error: per spec.md §4.11, state-machine errors are
// committed successfully and surfaced inside the response, not treated as
// Raft-level apply failures. Malformed log data is the one case with no
// well-formed command to report against, and is still returned as a failure
// response rather than panicking or erroring the apply.
func (s *StateMachine) Apply(log *raft.Log) interface{} {
	start := time.Now()

	var cmd confluxtypes.Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		s.recordApply(start, false)
		return confluxtypes.NewFailureResponse(fmt.Sprintf("malformed command envelope: %v", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if log.Index > s.lastAppliedIndex {
		s.lastAppliedIndex = log.Index
	}

	var resp *confluxtypes.CommandResponse
	switch cmd.Op {
	case confluxtypes.OpCreateConfig:
		resp = s.applyCreateConfig(cmd.Data, cmd.Timestamp)
	case confluxtypes.OpCreateVersion:
		resp = s.applyCreateVersion(cmd.Data, cmd.Timestamp)
	case confluxtypes.OpUpdateReleaseRules:
		resp = s.applyUpdateReleaseRules(cmd.Data, cmd.Timestamp)
	case confluxtypes.OpReleaseVersion:
		resp = s.applyReleaseVersion(cmd.Data, cmd.Timestamp)
	case confluxtypes.OpDeleteConfig:
		resp = s.applyDeleteConfig(cmd.Data)
	case confluxtypes.OpDeleteVersions:
		resp = s.applyDeleteVersions(cmd.Data)
	default:
		resp = confluxtypes.NewFailureResponse(fmt.Sprintf("unknown command op %q", cmd.Op))
	}

	s.recordApply(start, resp.Success)
	return resp
}

func (s *StateMachine) recordApply(start time.Time, success bool) {
	if s.metrics != nil {
		s.metrics.RecordRequest("apply", time.Since(start), success)
	}
}

func (s *StateMachine) applyCreateConfig(data json.RawMessage, now time.Time) *confluxtypes.CommandResponse {
	var cmd confluxtypes.CreateConfigCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("malformed create_config payload: %v", err))
	}
	if _, exists := s.sink.FindConfigByName(cmd.Namespace, cmd.Name); exists {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("config %q already exists in %s", cmd.Name, cmd.Namespace))
	}

	configID := s.sink.NextConfigID()
	versionID := s.sink.NextVersionID(configID)

	version := confluxtypes.NewConfigVersion(versionID, configID, cmd.Content, cmd.Format, cmd.CreatorID, cmd.Description, now)
	cfg := &confluxtypes.Config{
		ID:              configID,
		Namespace:       cmd.Namespace,
		Name:            cmd.Name,
		LatestVersionID: versionID,
		Releases:        []confluxtypes.Release{{VersionID: versionID}},
		Schema:          cmd.Schema,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.sink.PersistVersion(version); err != nil {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("persist version: %v", err))
	}
	if err := s.sink.PersistConfig(cfg); err != nil {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("persist config: %v", err))
	}

	s.publish(cfg, versionID, confluxtypes.ChangeCreated)
	return confluxtypes.NewCommandResponse(configID, "config created", map[string]any{"version_id": versionID})
}

func (s *StateMachine) applyCreateVersion(data json.RawMessage, now time.Time) *confluxtypes.CommandResponse {
	var cmd confluxtypes.CreateVersionCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("malformed create_version payload: %v", err))
	}
	cfg, ok := s.sink.FindConfigByID(cmd.ConfigID)
	if !ok {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("config %d not found", cmd.ConfigID))
	}

	format := cmd.Format
	if format == nil {
		inherited := confluxtypes.FormatJSON
		if latest, ok := s.sink.GetVersion(cmd.ConfigID, cfg.LatestVersionID); ok {
			inherited = latest.Format
		}
		format = &inherited
	}

	versionID := s.sink.NextVersionID(cmd.ConfigID)
	version := confluxtypes.NewConfigVersion(versionID, cmd.ConfigID, cmd.Content, *format, cmd.CreatorID, cmd.Description, now)
	if err := s.sink.PersistVersion(version); err != nil {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("persist version: %v", err))
	}

	cfg.LatestVersionID = versionID
	cfg.UpdatedAt = now
	if err := s.sink.PersistConfig(cfg); err != nil {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("persist config: %v", err))
	}

	s.publish(cfg, versionID, confluxtypes.ChangeUpdated)
	return confluxtypes.NewCommandResponse(cfg.ID, "version created", map[string]any{"version_id": versionID})
}

func (s *StateMachine) applyUpdateReleaseRules(data json.RawMessage, now time.Time) *confluxtypes.CommandResponse {
	var cmd confluxtypes.UpdateReleaseRulesCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("malformed update_release_rules payload: %v", err))
	}
	cfg, ok := s.sink.FindConfigByID(cmd.ConfigID)
	if !ok {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("config %d not found", cmd.ConfigID))
	}

	for _, r := range cmd.Releases {
		if _, ok := s.sink.GetVersion(cmd.ConfigID, r.VersionID); !ok {
			return confluxtypes.NewFailureResponse(fmt.Sprintf("release rule targets unknown version %d", r.VersionID))
		}
	}

	cfg.Releases = cmd.Releases
	cfg.UpdatedAt = now
	if err := s.sink.PersistConfig(cfg); err != nil {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("persist config: %v", err))
	}

	s.publish(cfg, cfg.LatestVersionID, confluxtypes.ChangeReleaseUpdated)
	return confluxtypes.NewCommandResponse(cfg.ID, "release rules updated", nil)
}

func (s *StateMachine) applyReleaseVersion(data json.RawMessage, now time.Time) *confluxtypes.CommandResponse {
	var cmd confluxtypes.ReleaseVersionCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("malformed release_version payload: %v", err))
	}
	cfg, ok := s.sink.FindConfigByID(cmd.ConfigID)
	if !ok {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("config %d not found", cmd.ConfigID))
	}
	if _, ok := s.sink.GetVersion(cmd.ConfigID, cmd.VersionID); !ok {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("version %d not found on config %d", cmd.VersionID, cmd.ConfigID))
	}

	replaced := false
	for i := range cfg.Releases {
		if cfg.Releases[i].IsDefault() {
			cfg.Releases[i].VersionID = cmd.VersionID
			replaced = true
			break
		}
	}
	if !replaced {
		cfg.Releases = append(cfg.Releases, confluxtypes.Release{VersionID: cmd.VersionID})
	}
	cfg.UpdatedAt = now
	if err := s.sink.PersistConfig(cfg); err != nil {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("persist config: %v", err))
	}

	s.publish(cfg, cmd.VersionID, confluxtypes.ChangeReleaseUpdated)
	return confluxtypes.NewCommandResponse(cfg.ID, "default release updated", map[string]any{"version_id": cmd.VersionID})
}

func (s *StateMachine) applyDeleteConfig(data json.RawMessage) *confluxtypes.CommandResponse {
	var cmd confluxtypes.DeleteConfigCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("malformed delete_config payload: %v", err))
	}
	cfg, ok := s.sink.FindConfigByID(cmd.ConfigID)
	if !ok {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("config %d not found", cmd.ConfigID))
	}
	if err := s.sink.DeleteConfig(cmd.ConfigID); err != nil {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("delete config: %v", err))
	}

	s.publish(cfg, 0, confluxtypes.ChangeDeleted)
	return confluxtypes.NewCommandResponse(cmd.ConfigID, "config deleted", nil)
}

// applyDeleteVersions enforces the orphan check spec.md §4.3 requires:
// neither latest_version_id nor any version a release rule targets may be
// deleted.
func (s *StateMachine) applyDeleteVersions(data json.RawMessage) *confluxtypes.CommandResponse {
	var cmd confluxtypes.DeleteVersionsCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("malformed delete_versions payload: %v", err))
	}
	cfg, ok := s.sink.FindConfigByID(cmd.ConfigID)
	if !ok {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("config %d not found", cmd.ConfigID))
	}

	referenced := make(map[uint64]bool, len(cfg.Releases)+1)
	referenced[cfg.LatestVersionID] = true
	for _, r := range cfg.Releases {
		referenced[r.VersionID] = true
	}
	for _, id := range cmd.VersionIDs {
		if referenced[id] {
			return confluxtypes.NewFailureResponse(fmt.Sprintf("version %d is referenced by latest_version_id or a release rule and cannot be deleted", id))
		}
	}

	count, err := s.sink.DeleteVersions(cmd.ConfigID, cmd.VersionIDs)
	if err != nil {
		return confluxtypes.NewFailureResponse(fmt.Sprintf("delete versions: %v", err))
	}

	s.publish(cfg, cfg.LatestVersionID, confluxtypes.ChangeUpdated)
	return confluxtypes.NewCommandResponse(cmd.ConfigID, "versions deleted", map[string]any{"deleted_count": count})
}

func (s *StateMachine) publish(cfg *confluxtypes.Config, versionID uint64, changeType confluxtypes.ChangeType) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(confluxtypes.ChangeEvent{
		ConfigID:   cfg.ID,
		Namespace:  cfg.Namespace,
		Name:       cfg.Name,
		VersionID:  versionID,
		ChangeType: changeType,
		Timestamp:  time.Now().UTC(),
	})
}

// StoreConfiguration implements raft.ConfigurationStore, letting the state
// machine track the last membership as Raft applies configuration changes,
// without having to replay raft.Configuration log entries by hand.
func (s *StateMachine) StoreConfiguration(index uint64, configuration raft.Configuration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index > s.lastAppliedIndex {
		s.lastAppliedIndex = index
	}
	s.lastMembership = configuration
}

// snapshot is the pointer-only payload persisted for a Raft snapshot:
// (last_applied_log, last_membership), per DESIGN.md's Open Question
// decision. The object store's rows are not part of this payload; a node
// installing this snapshot must already hold the corresponding bbolt rows,
// which holds for every node that reaches this snapshot by replaying the
// log up to lastIndex first.
type snapshot struct {
	LastIndex uint64        `json:"last_index"`
	Servers   []raft.Server `json:"servers"`
}

// Snapshot returns the current pointer-only snapshot.
func (s *StateMachine) Snapshot() (raft.FSMSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &snapshot{
		LastIndex: s.lastAppliedIndex,
		Servers:   append([]raft.Server(nil), s.lastMembership.Servers...),
	}, nil
}

// Persist writes the snapshot as JSON.
func (s *snapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

// Release is a no-op; the snapshot holds no resources to free.
func (s *snapshot) Release() {}

// Restore updates the bookkeeping pointers from a previously-persisted
// snapshot. It never touches the object store: pointer-only snapshots carry
// no row data, by design.
func (s *StateMachine) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAppliedIndex = snap.LastIndex
	s.lastMembership = raft.Configuration{Servers: snap.Servers}
	return nil
}
