package storage

import (
	"testing"
	"time"

	"github.com/conflux/conflux/pkg/confluxtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ns := confluxtypes.Namespace{Tenant: "acme", App: "checkout", Env: "prod"}

	id := s.NextConfigID()
	cfg := &confluxtypes.Config{
		ID:        id,
		Namespace: ns,
		Name:      "db-url",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, s.PersistConfig(cfg))

	got, ok := s.FindConfigByID(id)
	require.True(t, ok)
	assert.Equal(t, "db-url", got.Name)

	got, ok = s.FindConfigByName(ns, "db-url")
	require.True(t, ok)
	assert.Equal(t, id, got.ID)

	list := s.ListConfigsInNamespace(ns)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
}

func TestNextConfigIDIsMonotonic(t *testing.T) {
	s := openTestStore(t)
	a := s.NextConfigID()
	b := s.NextConfigID()
	assert.Greater(t, b, a)
}

func TestVersionRoundTripAndOrdering(t *testing.T) {
	s := openTestStore(t)
	configID := s.NextConfigID()

	for i := 0; i < 3; i++ {
		vid := s.NextVersionID(configID)
		v := confluxtypes.NewConfigVersion(vid, configID, []byte("content"), confluxtypes.FormatJSON, 1, "", time.Now())
		require.NoError(t, s.PersistVersion(v))
	}

	versions := s.ListVersions(configID)
	require.Len(t, versions, 3)
	assert.Equal(t, uint64(1), versions[0].ID)
	assert.Equal(t, uint64(3), versions[2].ID)
}

func TestDeleteConfigCascadesVersions(t *testing.T) {
	s := openTestStore(t)
	ns := confluxtypes.Namespace{Tenant: "t", App: "a", Env: "e"}
	configID := s.NextConfigID()
	require.NoError(t, s.PersistConfig(&confluxtypes.Config{ID: configID, Namespace: ns, Name: "x"}))

	v := confluxtypes.NewConfigVersion(1, configID, []byte("v1"), confluxtypes.FormatJSON, 1, "", time.Now())
	require.NoError(t, s.PersistVersion(v))

	require.NoError(t, s.DeleteConfig(configID))

	_, ok := s.FindConfigByID(configID)
	assert.False(t, ok)
	_, ok = s.GetVersion(configID, 1)
	assert.False(t, ok)
}

func TestDeleteVersionsSkipsAbsentIDs(t *testing.T) {
	s := openTestStore(t)
	configID := s.NextConfigID()
	v := confluxtypes.NewConfigVersion(1, configID, []byte("v1"), confluxtypes.FormatJSON, 1, "", time.Now())
	require.NoError(t, s.PersistVersion(v))

	n, err := s.DeleteVersions(configID, []uint64{1, 99})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReopenRebuildsCachesFromDisk(t *testing.T) {
	dir := t.TempDir()
	ns := confluxtypes.Namespace{Tenant: "t", App: "a", Env: "e"}

	s1, err := NewBoltStore(dir)
	require.NoError(t, err)
	id := s1.NextConfigID()
	require.NoError(t, s1.PersistConfig(&confluxtypes.Config{ID: id, Namespace: ns, Name: "reopen"}))
	v := confluxtypes.NewConfigVersion(1, id, []byte("v1"), confluxtypes.FormatJSON, 1, "", time.Now())
	require.NoError(t, s1.PersistVersion(v))
	require.NoError(t, s1.Close())

	s2, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer s2.Close()

	got, ok := s2.FindConfigByName(ns, "reopen")
	require.True(t, ok)
	assert.Equal(t, id, got.ID)

	nextID := s2.NextConfigID()
	assert.Greater(t, nextID, id)

	versions := s2.ListVersions(id)
	require.Len(t, versions, 1)
}
