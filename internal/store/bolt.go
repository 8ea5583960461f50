// Package store persists the SDK's local state on disk: the per-client
// session id, the last-known-good workspace id, and the offline mutation
// queue. Everything lives in a single bbolt file so one open handle covers
// all durability concerns.
package store

import (
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketName = "synckit"

	keySessionID       = "session_id"
	keyLastWorkspaceID = "last_workspace_id"
	keyOfflineQueue    = "offline_queue"
)

// Store is a durable local key-value store backed by bbolt.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
	closed atomic.Bool
}

// Open opens (creating if needed) the store at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, NewStoreError("open", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, NewStoreError("init", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database file. Idempotent; every operation
// after Close returns ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// guard rejects operations on a closed store.
func (s *Store) guard() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (s *Store) get(key string) ([]byte, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})
	return value, err
}

func (s *Store) put(key string, value []byte) error {
	if err := s.guard(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), value)
	})
	if err != nil {
		return NewStoreError("put "+key, err)
	}
	return nil
}

// SessionID returns the persisted session id, or ErrNotFound when none has
// been created yet.
func (s *Store) SessionID() (string, error) {
	v, err := s.get(keySessionID)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// SetSessionID persists the session id. Written exactly once per store file;
// the tracker never regenerates an existing id.
func (s *Store) SetSessionID(id string) error {
	return s.put(keySessionID, []byte(id))
}

// LastWorkspaceID returns the last workspace id that joined successfully,
// or ErrNotFound. Used to recover from transient empty workspace lists.
func (s *Store) LastWorkspaceID() (string, error) {
	v, err := s.get(keyLastWorkspaceID)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// SetLastWorkspaceID records a workspace id known to have joined successfully.
func (s *Store) SetLastWorkspaceID(id string) error {
	return s.put(keyLastWorkspaceID, []byte(id))
}
