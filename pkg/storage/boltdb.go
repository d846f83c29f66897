package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/conflux/conflux/pkg/confluxtypes"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketConfigs  = []byte("configs")
	bucketVersions = []byte("versions")
	bucketMeta     = []byte("meta")

	metaKeyNextConfigID = []byte("next_config_id")
)

// BoltStore implements Store using bbolt, with in-memory read-through
// caches rebuilt from disk on open — grounded on the teacher's
// pkg/storage/boltdb.go bucket pattern and on
// original_source/src/raft/store/mod.rs's load_from_disk, which scans
// configs computing max_config_id+1 and populates a name index the same
// way. Disk is the source of truth; the caches below are derived, never the
// reverse (spec.md §9).
type BoltStore struct {
	db *bolt.DB

	mu           sync.RWMutex
	configsByID  map[uint64]*confluxtypes.Config
	nameIndex    map[string]uint64 // "{tenant}/{app}/{env}/{name}" -> config id
	versions     map[uint64]map[uint64]*confluxtypes.ConfigVersion
	nextConfigID uint64
}

// NewBoltStore opens (creating if absent) the object-store database file
// under dataDir and rebuilds its in-memory caches.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "conflux-objects.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open object store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketConfigs, bucketVersions, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{
		db:          db,
		configsByID: make(map[uint64]*confluxtypes.Config),
		nameIndex:   make(map[string]uint64),
		versions:    make(map[uint64]map[uint64]*confluxtypes.ConfigVersion),
	}
	if err := s.loadFromDisk(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltStore) loadFromDisk() error {
	return s.db.View(func(tx *bolt.Tx) error {
		var maxConfigID uint64

		configs := tx.Bucket(bucketConfigs)
		if err := configs.ForEach(func(_, v []byte) error {
			var cfg confluxtypes.Config
			if err := json.Unmarshal(v, &cfg); err != nil {
				return fmt.Errorf("corrupt config row: %w", err)
			}
			s.configsByID[cfg.ID] = &cfg
			s.nameIndex[cfg.NameKey()] = cfg.ID
			if cfg.ID >= maxConfigID {
				maxConfigID = cfg.ID
			}
			return nil
		}); err != nil {
			return err
		}

		versions := tx.Bucket(bucketVersions)
		if err := versions.ForEach(func(_, v []byte) error {
			var ver confluxtypes.ConfigVersion
			if err := json.Unmarshal(v, &ver); err != nil {
				return fmt.Errorf("corrupt version row: %w", err)
			}
			byConfig, ok := s.versions[ver.ConfigID]
			if !ok {
				byConfig = make(map[uint64]*confluxtypes.ConfigVersion)
				s.versions[ver.ConfigID] = byConfig
			}
			byConfig[ver.ID] = &ver
			return nil
		}); err != nil {
			return err
		}

		meta := tx.Bucket(bucketMeta)
		if raw := meta.Get(metaKeyNextConfigID); raw != nil {
			s.nextConfigID = binary.BigEndian.Uint64(raw)
		} else {
			s.nextConfigID = maxConfigID + 1
		}
		if s.nextConfigID <= maxConfigID {
			s.nextConfigID = maxConfigID + 1
		}
		return nil
	})
}

// versionKey encodes (configID, versionID) as 16 bytes of concatenated
// big-endian integers, a byte-comparable key preserving (config_id,
// version_id) ordering per spec.md §6.
func versionKey(configID, versionID uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], configID)
	binary.BigEndian.PutUint64(key[8:], versionID)
	return key
}

// NextConfigID returns and reserves the next config id. Only the state
// machine, under its own per-entry serialization, should call this.
func (s *BoltStore) NextConfigID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextConfigID
	s.nextConfigID++
	if err := s.persistNextConfigIDLocked(); err != nil {
		// NextConfigID has no error return in the Store contract; on a
		// failed write the in-memory counter is rolled back and the id is
		// still returned.
		s.nextConfigID--
	}
	return id
}

func (s *BoltStore) persistNextConfigIDLocked() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, s.nextConfigID)
		return tx.Bucket(bucketMeta).Put(metaKeyNextConfigID, buf)
	})
}

// FindConfigByID returns a shared pointer to the cached config. Callers must
// treat it as read-only; mutation happens only via PersistConfig.
func (s *BoltStore) FindConfigByID(id uint64) (*confluxtypes.Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configsByID[id]
	return cfg, ok
}

func (s *BoltStore) FindConfigByName(ns confluxtypes.Namespace, name string) (*confluxtypes.Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.nameIndex[ns.NameKey(name)]
	if !ok {
		return nil, false
	}
	cfg, ok := s.configsByID[id]
	return cfg, ok
}

func (s *BoltStore) ListConfigsInNamespace(ns confluxtypes.Namespace) []*confluxtypes.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*confluxtypes.Config
	for _, cfg := range s.configsByID {
		if cfg.Namespace == ns {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *BoltStore) NextVersionID(configID uint64) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max uint64
	for id := range s.versions[configID] {
		if id > max {
			max = id
		}
	}
	return max + 1
}

func (s *BoltStore) GetVersion(configID, versionID uint64) (*confluxtypes.ConfigVersion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byConfig, ok := s.versions[configID]
	if !ok {
		return nil, false
	}
	v, ok := byConfig[versionID]
	return v, ok
}

func (s *BoltStore) ListVersions(configID uint64) []*confluxtypes.ConfigVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byConfig := s.versions[configID]
	out := make([]*confluxtypes.ConfigVersion, 0, len(byConfig))
	for _, v := range byConfig {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *BoltStore) PersistConfig(cfg *confluxtypes.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConfigs).Put([]byte(cfg.NameKey()), data)
	}); err != nil {
		return fmt.Errorf("failed to persist config: %w", err)
	}

	s.configsByID[cfg.ID] = cfg
	s.nameIndex[cfg.NameKey()] = cfg.ID
	return nil
}

func (s *BoltStore) PersistVersion(v *confluxtypes.ConfigVersion) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal version: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVersions).Put(versionKey(v.ConfigID, v.ID), data)
	}); err != nil {
		return fmt.Errorf("failed to persist version: %w", err)
	}

	byConfig, ok := s.versions[v.ConfigID]
	if !ok {
		byConfig = make(map[uint64]*confluxtypes.ConfigVersion)
		s.versions[v.ConfigID] = byConfig
	}
	byConfig[v.ID] = v
	return nil
}

func (s *BoltStore) DeleteConfig(configID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configsByID[configID]
	if !ok {
		return fmt.Errorf("config %d not found", configID)
	}
	versionIDs := make([]uint64, 0, len(s.versions[configID]))
	for id := range s.versions[configID] {
		versionIDs = append(versionIDs, id)
	}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketConfigs).Delete([]byte(cfg.NameKey())); err != nil {
			return err
		}
		vb := tx.Bucket(bucketVersions)
		for _, vid := range versionIDs {
			if err := vb.Delete(versionKey(configID, vid)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("failed to delete config: %w", err)
	}

	delete(s.configsByID, configID)
	delete(s.nameIndex, cfg.NameKey())
	delete(s.versions, configID)
	return nil
}

func (s *BoltStore) DeleteVersions(configID uint64, versionIDs []uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byConfig := s.versions[configID]
	var toDelete []uint64
	for _, vid := range versionIDs {
		if _, ok := byConfig[vid]; ok {
			toDelete = append(toDelete, vid)
		}
	}
	if len(toDelete) == 0 {
		return 0, nil
	}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		vb := tx.Bucket(bucketVersions)
		for _, vid := range toDelete {
			if err := vb.Delete(versionKey(configID, vid)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return 0, fmt.Errorf("failed to delete versions: %w", err)
	}

	for _, vid := range toDelete {
		delete(byConfig, vid)
	}
	return len(toDelete), nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
