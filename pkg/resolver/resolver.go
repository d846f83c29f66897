// Package resolver implements the release-resolution algorithm: mapping a
// client's labels to the version a Config should serve. It is pure and
// side-effect-free, grounded on the original source's
// Store::get_published_config.
package resolver

import "github.com/conflux/conflux/pkg/confluxtypes"

// Resolve picks the version id a client with the given labels should
// receive for cfg, following §4.4 of the design:
//  1. Among releases matching labels, pick the highest priority; ties break
//     by first-declared (stable, insertion-order).
//  2. If none match, fall back to the default release (first with empty
//     labels).
//  3. If there is no default release either, fall back to latest_version_id.
//
// The second return value is false only when cfg is nil or has neither a
// matching release nor any version at all to fall back to.
func Resolve(cfg *confluxtypes.Config, labels map[string]string) (uint64, bool) {
	if cfg == nil {
		return 0, false
	}

	var (
		best     confluxtypes.Release
		haveBest bool
	)
	// Forward iteration plus "replace only on strictly greater priority"
	// keeps the first-declared release on ties, which is the stable
	// tiebreak the design requires.
	for _, r := range cfg.Releases {
		if !r.Matches(labels) {
			continue
		}
		if !haveBest || r.Priority > best.Priority {
			best, haveBest = r, true
		}
	}
	if haveBest {
		return best.VersionID, true
	}

	if def, ok := cfg.DefaultRelease(); ok {
		return def.VersionID, true
	}

	if cfg.LatestVersionID != 0 {
		return cfg.LatestVersionID, true
	}
	return 0, false
}
