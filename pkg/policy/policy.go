// Package policy defines the opaque authorization boundary the Raft Node
// calls before admitting membership changes and configuration mutations.
// The design deliberately keeps the RBAC/policy engine itself out of scope
// (spec.md §0 lists it as an external collaborator specified only by its
// boundary); this package is that boundary plus a permissive default so the
// rest of the module can depend on an interface instead of a decision it
// isn't responsible for making.
package policy

// Subject identifies the caller an authorization decision is made for.
// Raft Node operations that accept an optional caller identity pass it
// through unchanged to Checker.Check.
type Subject struct {
	ID     string
	Claims map[string]string
}

// Action names the operation being authorized. Callers in pkg/raftnode use
// the same strings as the command/operation names
// (e.g. "create_config", "add_node") so policy decisions and audit logs
// line up with the write-path vocabulary.
type Action string

const (
	ActionCreateConfig      Action = "create_config"
	ActionCreateVersion     Action = "create_version"
	ActionUpdateReleaseRule Action = "update_release_rules"
	ActionReleaseVersion    Action = "release_version"
	ActionDeleteConfig      Action = "delete_config"
	ActionDeleteVersions    Action = "delete_versions"
	ActionAddNode           Action = "add_node"
	ActionRemoveNode        Action = "remove_node"
	ActionChangeMembership  Action = "change_membership"
	ActionUpdateTimeouts    Action = "update_timeouts"
)

// Checker is the opaque authorization collaborator: check(subject, tenant,
// resource, action) -> bool. Resource is the fully-qualified identifier the
// action targets (a config name key, a node id, or "" for cluster-wide
// operations). A nil Subject means the caller supplied no identity; callers
// decide whether that is itself a denial.
type Checker interface {
	Check(subject *Subject, tenant string, resource string, action Action) bool
}

// AllowAll is the default Checker used when no policy engine is configured.
// It never denies, matching spec.md's treatment of policy enforcement as
// optional: a cluster with no policy engine wired in runs fully open.
type AllowAll struct{}

// Check always returns true.
func (AllowAll) Check(_ *Subject, _ string, _ string, _ Action) bool {
	return true
}

// DenyAll denies every request. Useful for tests that assert a write path
// correctly surfaces a policy rejection as errs.Unauthorized.
type DenyAll struct{}

// Check always returns false.
func (DenyAll) Check(_ *Subject, _ string, _ string, _ Action) bool {
	return false
}
