package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"courierdb/pkg/clock"
	"courierdb/pkg/connections"
	"courierdb/pkg/logger"
	"courierdb/pkg/models"
)

// Store is the durable message store backed by a Pebble database.
// One Store is constructed at startup and passed by reference to the
// components that need it; there is no package-level handle.
type Store struct {
	db   *pebble.DB
	path string

	clk   clock.Clock
	conns connections.Gateway

	locksMu sync.Mutex
	convs   map[string]*convState
}

// convState serializes writes within one conversation and carries the
// per-conversation sequence counter. Appends to different
// conversations never block each other.
type convState struct {
	mu        sync.Mutex
	seq       uint64
	seqLoaded bool
}

// Open opens (or creates) a Pebble database at the given path.
func Open(path string, clk clock.Clock, conns connections.Gateway) (*Store, error) {
	if clk == nil {
		clk = clock.System{}
	}
	if conns == nil {
		conns = connections.AllowAll{}
	}
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path)
	return &Store{
		db:    db,
		path:  path,
		clk:   clk,
		conns: conns,
		convs: make(map[string]*convState),
	}, nil
}

// Close closes the underlying pebble DB.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and usable.
func (s *Store) Ready() bool { return s != nil && s.db != nil }

// Path returns the on-disk location of the database.
func (s *Store) Path() string { return s.path }

// convLock returns the lock state for a conversation (creates if
// needed).
func (s *Store) convLock(convKey string) *convState {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if cs, ok := s.convs[convKey]; ok {
		return cs
	}
	cs := &convState{}
	s.convs[convKey] = cs
	return cs
}

// get reads and decodes a raw value. Pebble's not-found maps to the
// core's models.ErrNotFound.
func (s *Store) get(key string) ([]byte, error) {
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, nil
}
