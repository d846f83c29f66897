// Package logstore owns the Log Store: hashicorp/raft's replicated log and
// term/vote bookkeeping, each backed by its own bbolt file, plus a
// raft.FileSnapshotStore for snapshots, all under the node's data directory.
// Grounded on the teacher's pkg/manager/manager.go Bootstrap/Join wiring
// (raftboltdb.NewBoltStore for the log and stable stores,
// raft.NewFileSnapshotStore for snapshots) and on
// original_source/src/raft/store/raft_storage.rs, whose
// RaftStorage<TypeConfig> impl (get_log_state, save_vote/read_vote,
// append_to_log, purge_logs_upto, last_applied_state) hashicorp/raft's own
// LogStore/StableStore/SnapshotStore interfaces cover. Open hands those
// interfaces back as they are; this package exports no functions under the
// source's names.
package logstore

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

const (
	logFileName     = "raft-log.db"
	stableFileName  = "raft-stable.db"
	snapshotRetain  = 2
	transportMaxPool = 3
	transportTimeout = 10 * time.Second
)

// Stores bundles the three durable components hashicorp/raft needs beyond
// the FSM itself: the log (entries), the stable store (term/vote, and
// hashicorp/raft-boltdb happens to multiplex both onto one bbolt file type),
// and the snapshot store.
type Stores struct {
	Log      raft.LogStore
	Stable   raft.StableStore
	Snapshot raft.SnapshotStore

	logDB    *raftboltdb.BoltStore
	stableDB *raftboltdb.BoltStore
}

// Open creates (or reopens) the log, stable, and snapshot stores under
// dataDir. dataDir must already exist.
func Open(dataDir string) (*Stores, error) {
	logDB, err := raftboltdb.NewBoltStore(filepath.Join(dataDir, logFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open raft log store: %w", err)
	}

	stableDB, err := raftboltdb.NewBoltStore(filepath.Join(dataDir, stableFileName))
	if err != nil {
		logDB.Close()
		return nil, fmt.Errorf("failed to open raft stable store: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(dataDir, snapshotRetain, os.Stderr)
	if err != nil {
		logDB.Close()
		stableDB.Close()
		return nil, fmt.Errorf("failed to open raft snapshot store: %w", err)
	}

	return &Stores{
		Log:      logDB,
		Stable:   stableDB,
		Snapshot: snapshotStore,
		logDB:    logDB,
		stableDB: stableDB,
	}, nil
}

// Close releases the underlying bbolt files. hashicorp/raft must have
// stopped using them first (i.e. the *raft.Raft built from them has shut
// down).
func (s *Stores) Close() error {
	if err := s.logDB.Close(); err != nil {
		return fmt.Errorf("failed to close raft log store: %w", err)
	}
	return s.stableDB.Close()
}

// NewTransport builds the TCP transport hashicorp/raft uses for RPCs
// between nodes, with the same pool size and timeout the teacher tunes.
func NewTransport(bindAddr string) (*raft.NetworkTransport, error) {
	addr, err := net.ResolveTCPAddr("tcp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(bindAddr, addr, transportMaxPool, transportTimeout, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create raft transport: %w", err)
	}
	return transport, nil
}
