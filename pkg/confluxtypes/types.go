// Package confluxtypes defines the data model shared by every Conflux
// component: namespaces, configs, versions, release rules, and the change
// events the state machine emits when it mutates them.
package confluxtypes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Namespace is the (tenant, app, env) triple that scopes a configuration name.
type Namespace struct {
	Tenant string `json:"tenant"`
	App    string `json:"app"`
	Env    string `json:"env"`
}

// String renders the namespace as "{tenant}/{app}/{env}", the prefix it has
// in storage and name-index keys.
func (n Namespace) String() string {
	return fmt.Sprintf("%s/%s/%s", n.Tenant, n.App, n.Env)
}

// NameKey returns the name-index key for a config in this namespace:
// "{tenant}/{app}/{env}/{name}".
func (n Namespace) NameKey(name string) string {
	return fmt.Sprintf("%s/%s", n.String(), name)
}

// ConfigFormat tags a version's content; it is a hint only, content stays
// opaque either way.
type ConfigFormat string

const (
	FormatJSON       ConfigFormat = "JSON"
	FormatYAML       ConfigFormat = "YAML"
	FormatTOML       ConfigFormat = "TOML"
	FormatProperties ConfigFormat = "PROPERTIES"
	FormatXML        ConfigFormat = "XML"
)

// Release is a targeting rule: clients whose labels match get version_id.
// A Release with empty Labels is the default rule.
type Release struct {
	Labels    map[string]string `json:"labels"`
	VersionID uint64            `json:"version_id"`
	Priority  int32             `json:"priority"`
}

// IsDefault reports whether r has no label constraints and therefore matches
// every client.
func (r Release) IsDefault() bool {
	return len(r.Labels) == 0
}

// Matches reports whether every (k, v) pair in r.Labels is present with an
// equal value in labels. An empty-label release matches everything.
func (r Release) Matches(labels map[string]string) bool {
	for k, v := range r.Labels {
		if labels[k] != v {
			return false
		}
	}
	return true
}

// Config is the metadata row for a named configuration.
type Config struct {
	ID              uint64    `json:"id"`
	Namespace       Namespace `json:"namespace"`
	Name            string    `json:"name"`
	LatestVersionID uint64    `json:"latest_version_id"`
	Releases        []Release `json:"releases"`
	Schema          string    `json:"schema,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NameKey is the bijective name-index key for this config.
func (c *Config) NameKey() string {
	return c.Namespace.NameKey(c.Name)
}

// DefaultRelease returns the first release with empty labels, if any.
func (c *Config) DefaultRelease() (Release, bool) {
	for _, r := range c.Releases {
		if r.IsDefault() {
			return r, true
		}
	}
	return Release{}, false
}

// ConfigVersion is an immutable, content-addressed artifact belonging to a
// Config. Once written it is never mutated.
type ConfigVersion struct {
	ID          uint64       `json:"id"`
	ConfigID    uint64       `json:"config_id"`
	Content     []byte       `json:"content"`
	ContentHash string       `json:"content_hash"`
	Format      ConfigFormat `json:"format"`
	CreatorID   uint64       `json:"creator_id"`
	Description string       `json:"description"`
	CreatedAt   time.Time    `json:"created_at"`
}

// NewConfigVersion builds a version and computes its content hash, matching
// the invariant that content_hash == SHA256(content) from creation onward.
func NewConfigVersion(id, configID uint64, content []byte, format ConfigFormat, creatorID uint64, description string, createdAt time.Time) *ConfigVersion {
	return &ConfigVersion{
		ID:          id,
		ConfigID:    configID,
		Content:     content,
		ContentHash: HashContent(content),
		Format:      format,
		CreatorID:   creatorID,
		Description: description,
		CreatedAt:   createdAt,
	}
}

// HashContent returns the hex-encoded SHA-256 of content.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity reports whether v.ContentHash matches SHA256(v.Content).
func (v *ConfigVersion) VerifyIntegrity() bool {
	return v.ContentHash == HashContent(v.Content)
}

// ChangeType enumerates the kinds of mutation the state machine can emit a
// notification for.
type ChangeType string

const (
	ChangeCreated        ChangeType = "Created"
	ChangeUpdated        ChangeType = "Updated"
	ChangeDeleted        ChangeType = "Deleted"
	ChangeReleaseUpdated ChangeType = "ReleaseUpdated"
)

// ChangeEvent is published once per applied mutation, in applied order.
type ChangeEvent struct {
	ConfigID   uint64     `json:"config_id"`
	Namespace  Namespace  `json:"namespace"`
	Name       string     `json:"name"`
	VersionID  uint64     `json:"version_id"`
	ChangeType ChangeType `json:"change_type"`
	Timestamp  time.Time  `json:"timestamp"`
}
