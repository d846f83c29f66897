// Package readpath implements the Read Path Component: it gates every read
// behind the requested consistency level, delegates release targeting to
// pkg/resolver, and fronts the Persistent Object Store with a bounded,
// invalidation-driven cache so repeated reads of a hot config don't retrace
// the same lookup. The cache is speed-only -- it is invalidated by
// pkg/changenotify events, never consulted for consistency decisions, and a
// cache miss always falls through to the authoritative store.
package readpath

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/conflux/conflux/pkg/changenotify"
	"github.com/conflux/conflux/pkg/confluxtypes"
	"github.com/conflux/conflux/pkg/errs"
	"github.com/conflux/conflux/pkg/raftnode"
	"github.com/conflux/conflux/pkg/resolver"
	"github.com/conflux/conflux/pkg/storage"
)

// defaultCacheSize bounds the number of namespace-scoped configs the cache
// holds at once when the caller does not specify a size.
const defaultCacheSize = 4096

// Reader is the Read Path Component.
type Reader struct {
	store storage.Store
	node  *raftnode.Node

	cache  *lru.Cache[string, *confluxtypes.Config]
	broker *changenotify.Broker
	sub    changenotify.Subscriber
}

// New builds a Reader over store, gating consistency through node. If
// broker is non-nil, the Reader subscribes to it and invalidates cached
// entries as mutations are applied. cacheSize <= 0 uses defaultCacheSize.
func New(store storage.Store, node *raftnode.Node, broker *changenotify.Broker, cacheSize int) (*Reader, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, *confluxtypes.Config](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create read cache: %w", err)
	}

	r := &Reader{store: store, node: node, cache: cache, broker: broker}
	if broker != nil {
		r.sub = broker.Subscribe()
		go r.invalidateLoop()
	}
	return r, nil
}

func (r *Reader) invalidateLoop() {
	for event := range r.sub {
		r.cache.Remove(event.Namespace.NameKey(event.Name))
	}
}

// Close unsubscribes from the Change Notifier, if one was supplied to New.
func (r *Reader) Close() {
	if r.broker != nil && r.sub != nil {
		r.broker.Unsubscribe(r.sub)
	}
}

// GetConfig returns the config named (ns, name) at the requested consistency
// level, serving the cache when possible.
func (r *Reader) GetConfig(ns confluxtypes.Namespace, name string, level raftnode.Consistency) (*confluxtypes.Config, error) {
	if err := r.node.CheckConsistency(level); err != nil {
		return nil, err
	}

	key := ns.NameKey(name)
	if cfg, ok := r.cache.Get(key); ok {
		return cfg, nil
	}

	cfg, ok := r.store.FindConfigByName(ns, name)
	if !ok {
		return nil, errs.New(errs.NotFound, fmt.Sprintf("config %q not found", key))
	}
	r.cache.Add(key, cfg)
	return cfg, nil
}

// GetConfigByID returns the config with id at the requested consistency
// level. IDs bypass the name cache and always read through to the store,
// since the cache is keyed by name.
func (r *Reader) GetConfigByID(id uint64, level raftnode.Consistency) (*confluxtypes.Config, error) {
	if err := r.node.CheckConsistency(level); err != nil {
		return nil, err
	}
	cfg, ok := r.store.FindConfigByID(id)
	if !ok {
		return nil, errs.New(errs.NotFound, fmt.Sprintf("config id %d not found", id))
	}
	return cfg, nil
}

// ListConfigs returns every config in ns at the requested consistency level.
func (r *Reader) ListConfigs(ns confluxtypes.Namespace, level raftnode.Consistency) ([]*confluxtypes.Config, error) {
	if err := r.node.CheckConsistency(level); err != nil {
		return nil, err
	}
	return r.store.ListConfigsInNamespace(ns), nil
}

// GetVersion returns a specific version of configID at the requested
// consistency level.
func (r *Reader) GetVersion(configID, versionID uint64, level raftnode.Consistency) (*confluxtypes.ConfigVersion, error) {
	if err := r.node.CheckConsistency(level); err != nil {
		return nil, err
	}
	v, ok := r.store.GetVersion(configID, versionID)
	if !ok {
		return nil, errs.New(errs.NotFound, fmt.Sprintf("version %d of config %d not found", versionID, configID))
	}
	return v, nil
}

// ListVersions returns every version of configID, in id order, at the
// requested consistency level.
func (r *Reader) ListVersions(configID uint64, level raftnode.Consistency) ([]*confluxtypes.ConfigVersion, error) {
	if err := r.node.CheckConsistency(level); err != nil {
		return nil, err
	}
	return r.store.ListVersions(configID), nil
}

// ResolveRelease runs the release-resolution algorithm for (ns, name) against
// labels and returns the version it picks, at the requested consistency
// level. This is the path a running client actually polls.
func (r *Reader) ResolveRelease(ns confluxtypes.Namespace, name string, labels map[string]string, level raftnode.Consistency) (*confluxtypes.ConfigVersion, error) {
	cfg, err := r.GetConfig(ns, name, level)
	if err != nil {
		return nil, err
	}

	versionID, ok := resolver.Resolve(cfg, labels)
	if !ok {
		return nil, errs.New(errs.NotFound, fmt.Sprintf("config %q has no resolvable version", cfg.NameKey()))
	}
	return r.GetVersion(cfg.ID, versionID, level)
}
