package readpath

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conflux/conflux/pkg/changenotify"
	"github.com/conflux/conflux/pkg/confluxtypes"
	"github.com/conflux/conflux/pkg/errs"
	"github.com/conflux/conflux/pkg/raftnode"
)

// fakeStore is a minimal in-memory storage.Store for exercising the read
// path without hashicorp/raft or bbolt in the loop.
type fakeStore struct {
	configs    map[uint64]*confluxtypes.Config
	nameIndex  map[string]uint64
	versions   map[uint64]map[uint64]*confluxtypes.ConfigVersion
	nextConfig uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		configs:   make(map[uint64]*confluxtypes.Config),
		nameIndex: make(map[string]uint64),
		versions:  make(map[uint64]map[uint64]*confluxtypes.ConfigVersion),
	}
}

func (s *fakeStore) NextConfigID() uint64 {
	s.nextConfig++
	return s.nextConfig
}

func (s *fakeStore) FindConfigByID(id uint64) (*confluxtypes.Config, bool) {
	cfg, ok := s.configs[id]
	return cfg, ok
}

func (s *fakeStore) FindConfigByName(ns confluxtypes.Namespace, name string) (*confluxtypes.Config, bool) {
	id, ok := s.nameIndex[ns.NameKey(name)]
	if !ok {
		return nil, false
	}
	return s.FindConfigByID(id)
}

func (s *fakeStore) ListConfigsInNamespace(ns confluxtypes.Namespace) []*confluxtypes.Config {
	var out []*confluxtypes.Config
	for _, cfg := range s.configs {
		if cfg.Namespace == ns {
			out = append(out, cfg)
		}
	}
	return out
}

func (s *fakeStore) NextVersionID(configID uint64) uint64 {
	return uint64(len(s.versions[configID]) + 1)
}

func (s *fakeStore) GetVersion(configID, versionID uint64) (*confluxtypes.ConfigVersion, bool) {
	v, ok := s.versions[configID][versionID]
	return v, ok
}

func (s *fakeStore) ListVersions(configID uint64) []*confluxtypes.ConfigVersion {
	var out []*confluxtypes.ConfigVersion
	for _, v := range s.versions[configID] {
		out = append(out, v)
	}
	return out
}

func (s *fakeStore) PersistConfig(cfg *confluxtypes.Config) error {
	s.configs[cfg.ID] = cfg
	s.nameIndex[cfg.NameKey()] = cfg.ID
	return nil
}

func (s *fakeStore) PersistVersion(v *confluxtypes.ConfigVersion) error {
	if s.versions[v.ConfigID] == nil {
		s.versions[v.ConfigID] = make(map[uint64]*confluxtypes.ConfigVersion)
	}
	s.versions[v.ConfigID][v.ID] = v
	return nil
}

func (s *fakeStore) DeleteConfig(configID uint64) error {
	if cfg, ok := s.configs[configID]; ok {
		delete(s.nameIndex, cfg.NameKey())
	}
	delete(s.configs, configID)
	delete(s.versions, configID)
	return nil
}

func (s *fakeStore) DeleteVersions(configID uint64, versionIDs []uint64) (int, error) {
	n := 0
	for _, id := range versionIDs {
		if _, ok := s.versions[configID][id]; ok {
			delete(s.versions[configID], id)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) Close() error { return nil }

var ns = confluxtypes.Namespace{Tenant: "acme", App: "api", Env: "prod"}

func newTestNode(t *testing.T, store *fakeStore) *raftnode.Node {
	t.Helper()
	node, err := raftnode.New(raftnode.Config{
		NodeID:   1,
		BindAddr: "127.0.0.1:19001",
		DataDir:  t.TempDir(),
	}, store, nil, nil, nil, nil, nil)
	require.NoError(t, err)
	return node
}

func seedConfig(store *fakeStore) *confluxtypes.Config {
	cfg := &confluxtypes.Config{
		ID:              1,
		Namespace:       ns,
		Name:            "db_url",
		LatestVersionID: 1,
		Releases: []confluxtypes.Release{
			{VersionID: 1},
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	store.PersistConfig(cfg)
	store.PersistVersion(confluxtypes.NewConfigVersion(1, 1, []byte("postgres://prod"), confluxtypes.FormatProperties, 7, "initial", time.Now()))
	return cfg
}

func TestGetConfigMissingReturnsNotFound(t *testing.T) {
	store := newFakeStore()
	node := newTestNode(t, store)
	r, err := New(store, node, nil, 0)
	require.NoError(t, err)

	_, err = r.GetConfig(ns, "missing", raftnode.Eventual)
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestGetConfigCachesAndServesFromCache(t *testing.T) {
	store := newFakeStore()
	seedConfig(store)
	node := newTestNode(t, store)
	r, err := New(store, node, nil, 0)
	require.NoError(t, err)

	cfg, err := r.GetConfig(ns, "db_url", raftnode.Eventual)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cfg.ID)

	// Replace the store's row directly: the cached copy must still be served.
	renamed := *store.configs[1]
	renamed.Name = "renamed"
	store.configs[1] = &renamed
	cached, err := r.GetConfig(ns, "db_url", raftnode.Eventual)
	require.NoError(t, err)
	assert.Equal(t, "db_url", cached.Name)
}

func TestChangeNotifierInvalidatesCache(t *testing.T) {
	store := newFakeStore()
	seedConfig(store)
	node := newTestNode(t, store)

	broker := changenotify.NewBroker()
	broker.Start()
	defer broker.Stop()

	r, err := New(store, node, broker, 0)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.GetConfig(ns, "db_url", raftnode.Eventual)
	require.NoError(t, err)

	renamed := *store.configs[1]
	renamed.Name = "renamed"
	store.configs[1] = &renamed
	broker.Publish(confluxtypes.ChangeEvent{
		ConfigID:   1,
		Namespace:  ns,
		Name:       "db_url",
		ChangeType: confluxtypes.ChangeUpdated,
		Timestamp:  time.Now(),
	})

	assert.Eventually(t, func() bool {
		cfg, err := r.GetConfig(ns, "db_url", raftnode.Eventual)
		return err == nil && cfg.Name == "renamed"
	}, time.Second, 5*time.Millisecond)
}

func TestResolveReleasePicksDefaultVersion(t *testing.T) {
	store := newFakeStore()
	seedConfig(store)
	node := newTestNode(t, store)
	r, err := New(store, node, nil, 0)
	require.NoError(t, err)

	v, err := r.ResolveRelease(ns, "db_url", map[string]string{"region": "us"}, raftnode.Eventual)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.ID)
}

func TestStrongConsistencyRejectsNonLeader(t *testing.T) {
	store := newFakeStore()
	seedConfig(store)
	node := newTestNode(t, store)
	r, err := New(store, node, nil, 0)
	require.NoError(t, err)

	_, err = r.GetConfig(ns, "db_url", raftnode.Strong)
	require.Error(t, err)
	assert.Equal(t, errs.NotLeader, errs.KindOf(err))
}
