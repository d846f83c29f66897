package confluxtypes

import (
	"encoding/json"
	"time"
)

// CommandOp tags the variant of a Command carried as the payload of a Raft
// log entry. Implementers SHOULD version the encoding for forward
// compatibility; Op doubles as that version tag today.
type CommandOp string

const (
	OpCreateConfig       CommandOp = "CreateConfig"
	OpCreateVersion      CommandOp = "CreateVersion"
	OpUpdateReleaseRules CommandOp = "UpdateReleaseRules"
	OpReleaseVersion     CommandOp = "ReleaseVersion"
	OpDeleteConfig       CommandOp = "DeleteConfig"
	OpDeleteVersions     CommandOp = "DeleteVersions"
)

// Command is the envelope proposed to Raft. The encoding is internal but
// deterministic: json.Marshal writes struct fields in declaration order and
// map keys (such as Release.Labels) in sorted order, so equal payloads always
// encode to equal bytes.
//
// Timestamp is stamped by the proposer (pkg/raftnode.ClientWrite) before the
// command ever reaches raft.Apply, and is the only source of wall-clock time
// the state machine's Apply is allowed to use. Every replica applies the
// same log entry, so every replica sees the same Timestamp; the state
// machine never calls time.Now() itself, which is what keeps applying the
// same log prefix byte-identical across nodes.
type Command struct {
	Op        CommandOp       `json:"op"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// CreateConfigCommand creates a config and its first version atomically.
type CreateConfigCommand struct {
	Namespace   Namespace    `json:"namespace"`
	Name        string       `json:"name"`
	Content     []byte       `json:"content"`
	Format      ConfigFormat `json:"format"`
	Schema      string       `json:"schema,omitempty"`
	CreatorID   uint64       `json:"creator_id"`
	Description string       `json:"description"`
}

// CreateVersionCommand appends a new version to an existing config. Format
// is a pointer so omission (nil) is distinguishable from an explicit value,
// triggering format inheritance from the config's latest version.
type CreateVersionCommand struct {
	ConfigID    uint64        `json:"config_id"`
	Content     []byte        `json:"content"`
	Format      *ConfigFormat `json:"format,omitempty"`
	CreatorID   uint64        `json:"creator_id"`
	Description string        `json:"description"`
}

// UpdateReleaseRulesCommand replaces a config's release rules wholesale.
type UpdateReleaseRulesCommand struct {
	ConfigID uint64    `json:"config_id"`
	Releases []Release `json:"releases"`
}

// ReleaseVersionCommand ensures a default release targets VersionID.
type ReleaseVersionCommand struct {
	ConfigID  uint64 `json:"config_id"`
	VersionID uint64 `json:"version_id"`
}

// DeleteConfigCommand removes a config, its versions, and its name-index
// entry atomically.
type DeleteConfigCommand struct {
	ConfigID uint64 `json:"config_id"`
}

// DeleteVersionsCommand selectively trims versions; the state machine must
// reject deletions that would orphan latest_version_id or a release target.
type DeleteVersionsCommand struct {
	ConfigID   uint64   `json:"config_id"`
	VersionIDs []uint64 `json:"version_ids"`
}

// CommandResponse is what the state machine returns from Apply, matching the
// spec's { success, message, config_id?, data? } shape.
type CommandResponse struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	ConfigID *uint64        `json:"config_id,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

func successResponse(configID uint64, message string, data map[string]any) *CommandResponse {
	id := configID
	return &CommandResponse{Success: true, Message: message, ConfigID: &id, Data: data}
}

func failureResponse(message string) *CommandResponse {
	return &CommandResponse{Success: false, Message: message}
}

// NewCommandResponse and NewFailureResponse are exported constructors used
// by the state machine so response construction stays in one place.
func NewCommandResponse(configID uint64, message string, data map[string]any) *CommandResponse {
	return successResponse(configID, message, data)
}

func NewFailureResponse(message string) *CommandResponse {
	return failureResponse(message)
}
