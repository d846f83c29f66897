package resolver

import (
	"testing"

	"github.com/conflux/conflux/pkg/confluxtypes"
	"github.com/stretchr/testify/assert"
)

func TestResolveReleaseTargeting(t *testing.T) {
	cfg := &confluxtypes.Config{
		LatestVersionID: 1,
		Releases: []confluxtypes.Release{
			{Labels: map[string]string{"env": "production"}, VersionID: 2, Priority: 10},
			{Labels: map[string]string{}, VersionID: 1, Priority: 0},
		},
	}

	v, ok := Resolve(cfg, map[string]string{"env": "production", "region": "us-east-1"})
	assert.True(t, ok)
	assert.Equal(t, uint64(2), v)

	v, ok = Resolve(cfg, map[string]string{})
	assert.True(t, ok)
	assert.Equal(t, uint64(1), v)

	v, ok = Resolve(cfg, map[string]string{"env": "staging"})
	assert.True(t, ok)
	assert.Equal(t, uint64(1), v)
}

func TestResolvePriorityTiebreak(t *testing.T) {
	cfg := &confluxtypes.Config{
		Releases: []confluxtypes.Release{
			{Labels: map[string]string{"env": "prod"}, VersionID: 2, Priority: 5},
			{Labels: map[string]string{"env": "prod"}, VersionID: 3, Priority: 10},
		},
	}

	v, ok := Resolve(cfg, map[string]string{"env": "prod"})
	assert.True(t, ok)
	assert.Equal(t, uint64(3), v)
}

func TestResolveStableTiebreakOnEqualPriority(t *testing.T) {
	cfg := &confluxtypes.Config{
		Releases: []confluxtypes.Release{
			{Labels: map[string]string{"env": "prod"}, VersionID: 7, Priority: 10},
			{Labels: map[string]string{"env": "prod"}, VersionID: 9, Priority: 10},
		},
	}

	v, ok := Resolve(cfg, map[string]string{"env": "prod"})
	assert.True(t, ok)
	assert.Equal(t, uint64(7), v, "first-declared release should win ties")
}

func TestResolveNoMatchFallsBackToLatest(t *testing.T) {
	cfg := &confluxtypes.Config{
		LatestVersionID: 4,
		Releases: []confluxtypes.Release{
			{Labels: map[string]string{"env": "prod"}, VersionID: 2, Priority: 5},
		},
	}

	v, ok := Resolve(cfg, map[string]string{"env": "staging"})
	assert.True(t, ok)
	assert.Equal(t, uint64(4), v)
}

func TestResolveNilConfig(t *testing.T) {
	_, ok := Resolve(nil, nil)
	assert.False(t, ok)
}

func TestResolveAbsentEverything(t *testing.T) {
	_, ok := Resolve(&confluxtypes.Config{}, map[string]string{"env": "prod"})
	assert.False(t, ok)
}
