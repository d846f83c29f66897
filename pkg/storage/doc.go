/*
Package storage provides BoltDB-backed state persistence for Conflux's
Persistent Object Store.

The storage package implements the Store interface using BoltDB as the
underlying database, providing ACID transactions over two entity kinds:
configs and their versions. All data is serialized as JSON and stored in
per-kind buckets; a third bucket holds a single piece of store metadata
(the next config id).

# Architecture

	┌──────────────────── BOLTDB OBJECT STORE ──────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            BoltStore                        │          │
	│  │  - File: <dataDir>/conflux-objects.db       │          │
	│  │  - Format: B+tree with MVCC                 │          │
	│  │  - Transactions: ACID with fsync             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Bucket Structure                │          │
	│  │  ┌────────────────────────────┐             │          │
	│  │  │ configs   (name-key JSON)  │             │          │
	│  │  │ versions  ((cfg,ver) key)  │             │          │
	│  │  │ meta      (next_config_id) │             │          │
	│  │  └────────────────────────────┘             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        In-memory read-through caches         │          │
	│  │  - configsByID, nameIndex, versions           │          │
	│  │  - rebuilt from disk on NewBoltStore           │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

The raft log itself is not in this file; hashicorp/raft-boltdb owns a
separate bbolt database under a different path (see pkg/logstore). Splitting
the log store and the object store across two bbolt files is what lets
pkg/statemachine's snapshot stay pointer-only (spec.md §9): the object store
rows a follower needs after a snapshot install are expected to already be
present from prior log replication, not shipped inside the snapshot.

# Core Components

BoltStore:
  - Implements the Store interface using BoltDB.
  - Single database file per node.
  - Automatic bucket creation on open.
  - In-memory caches protected by a single sync.RWMutex; bbolt's own
    transaction locking guards the on-disk side independently.

Buckets:
  - configs: one row per Config, keyed by its "{tenant}/{app}/{env}/{name}"
    name key so the name index and the on-disk key are the same string.
  - versions: one row per ConfigVersion, keyed by 16 bytes of
    (config_id, version_id) big-endian integers so a cursor scan of one
    config's versions is a contiguous byte range.
  - meta: a single "next_config_id" counter, so the id sequence survives a
    restart without rescanning (though a rescan is also safe and is what
    the bucket falls back to if the key happens to be missing).

Transaction Model:
  - Read transactions: db.View() - concurrent, consistent snapshots.
  - Write transactions: db.Update() - serialized, atomic commits.
  - Durability: fsync on commit.

# Operations

Config lifecycle:
  - NextConfigID reserves an id and persists the updated counter.
  - PersistConfig upserts both the configs bucket row and the two in-memory
    caches (configsByID, nameIndex) in the same critical section, so a
    concurrent reader never observes the disk write without the cache
    update or vice versa.
  - DeleteConfig removes the config row, every version row under it, and
    the corresponding cache entries, in one bbolt transaction.

Version lifecycle:
  - NextVersionID is max(existing version ids for configID)+1, derived
    purely from the in-memory cache — no disk read is needed on the common
    path.
  - PersistVersion and DeleteVersions follow the same locked
    disk-then-cache ordering as the config path. DeleteVersions treats
    already-absent ids as a no-op rather than an error: the orphan check
    that decides whether a version is safe to delete belongs to the state
    machine, not the store.
*/
package storage
