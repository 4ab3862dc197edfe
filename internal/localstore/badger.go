package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore persists snapshots in an embedded Badger database under the
// data directory. One database serves all users; keys are per-user.
type BadgerStore struct {
	db     *badger.DB
	logger *log.Logger
}

// OpenBadger opens (or creates) the snapshot database at dir.
//
// An open failure is not fatal: the returned store is degraded (Available
// reports false, operations no-op) and a warning is logged once, matching
// the cache's local-store-unavailable error policy. If logger is nil, a
// default logger writing to stderr is used.
func OpenBadger(dir string, logger *log.Logger) *BadgerStore {
	if logger == nil {
		logger = log.New(os.Stderr, "[localstore] ", log.LstdFlags)
	}

	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithCompactL0OnClose(true)

	db, err := badger.Open(opts)
	if err != nil {
		logger.Printf("WARNING: local store unavailable, running in-memory only: %v", err)
		return &BadgerStore{logger: logger}
	}

	return &BadgerStore{db: db, logger: logger}
}

// Read implements Store.Read.
func (s *BadgerStore) Read(userID string) (*Snapshot, bool) {
	if s.db == nil {
		return nil, false
	}

	var snap Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			// Undecodable snapshots are discarded rather than surfaced.
			s.logger.Printf("WARNING: dropping unreadable snapshot for %s: %v", userID, err)
			_ = s.Delete(userID)
		}
		return nil, false
	}
	return &snap, true
}

// Write implements Store.Write.
func (s *BadgerStore) Write(userID string, snap *Snapshot) error {
	if s.db == nil {
		return nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot for %s: %w", userID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(userID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write snapshot for %s: %w", userID, err)
	}
	return nil
}

// Delete implements Store.Delete.
func (s *BadgerStore) Delete(userID string) error {
	if s.db == nil {
		return nil
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(snapshotKey(userID))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete snapshot for %s: %w", userID, err)
	}
	return nil
}

// Available implements Store.Available.
func (s *BadgerStore) Available() bool {
	return s.db != nil
}

// Close implements Store.Close.
func (s *BadgerStore) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close local store: %w", err)
	}
	s.db = nil
	return nil
}
