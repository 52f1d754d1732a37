// Package store is the replica's local durable state: a Pebble database
// holding every applied WAL record and the confirmed LSN, updated together
// in one batch per record.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bft-labs/walfollow/pkg/log"
	"github.com/bft-labs/walfollow/pkg/wire"
)

const (
	prefixWAL    = "wal/"
	keyConfirmed = "meta/confirmed_lsn"
	dbDirName    = "replica.db"
)

var (
	// ErrStaleRecord is returned when a record is at or below the confirmed LSN.
	ErrStaleRecord = errors.New("store: record at or below confirmed lsn")

	// ErrNotFound is returned by Get for an LSN that was never applied.
	ErrNotFound = errors.New("store: record not found")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")
)

// Entry is the stored form of an applied record.
type Entry struct {
	LSN       int64   `msgpack:"lsn"`
	Tag       uint32  `msgpack:"tag"`
	Timestamp float64 `msgpack:"ts"`
	Payload   []byte  `msgpack:"payload"`
}

// Store is a Pebble-backed replica.Applier.
type Store struct {
	db        *pebble.DB
	path      string
	writeOpts *pebble.WriteOptions
	logger    log.Logger

	// mu serializes writes with Close; reads hold it shared.
	mu        sync.RWMutex
	confirmed atomic.Int64
	closed    atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithSyncWrites controls whether every Apply is fsynced. Defaults to true.
func WithSyncWrites(sync bool) Option {
	return func(s *Store) {
		if sync {
			s.writeOpts = pebble.Sync
		} else {
			s.writeOpts = pebble.NoSync
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open creates or opens the store under dataDir.
func Open(dataDir string, opts ...Option) (*Store, error) {
	s := &Store{
		path:      filepath.Join(dataDir, dbDirName),
		writeOpts: pebble.Sync,
		logger:    log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := pebble.Open(s.path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", s.path, err)
	}
	s.db = db

	if err := s.loadConfirmed(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load confirmed lsn: %w", err)
	}

	s.logger.Info("store opened",
		log.String("path", s.path),
		log.Int64("confirmed_lsn", s.confirmed.Load()),
	)
	return s, nil
}

func (s *Store) loadConfirmed() error {
	val, closer, err := s.db.Get([]byte(keyConfirmed))
	if errors.Is(err, pebble.ErrNotFound) {
		s.confirmed.Store(0)
		return nil
	}
	if err != nil {
		return err
	}
	defer closer.Close()

	if len(val) != 8 {
		return fmt.Errorf("invalid confirmed lsn length: %d", len(val))
	}
	s.confirmed.Store(int64(binary.BigEndian.Uint64(val)))
	return nil
}

// Path returns the database directory.
func (s *Store) Path() string {
	return s.path
}

// ConfirmedLSN returns the LSN of the last stored record.
func (s *Store) ConfirmedLSN() int64 {
	return s.confirmed.Load()
}

// Apply stores rec and advances the confirmed LSN in one batch.
// The payload is copied by the encoder.
func (s *Store) Apply(rec wire.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}
	if confirmed := s.confirmed.Load(); rec.LSN <= confirmed {
		return fmt.Errorf("%w: lsn %d, confirmed %d", ErrStaleRecord, rec.LSN, confirmed)
	}

	val, err := msgpack.Marshal(&Entry{
		LSN:       rec.LSN,
		Tag:       uint32(rec.Tag),
		Timestamp: rec.Timestamp,
		Payload:   rec.Payload,
	})
	if err != nil {
		return fmt.Errorf("encode lsn %d: %w", rec.LSN, err)
	}

	b := s.db.NewBatch()
	defer b.Close()

	if err := b.Set(walKey(rec.LSN), val, nil); err != nil {
		return err
	}
	if err := b.Set([]byte(keyConfirmed), encodeLSN(rec.LSN), nil); err != nil {
		return err
	}
	if err := b.Commit(s.writeOpts); err != nil {
		return fmt.Errorf("commit lsn %d: %w", rec.LSN, err)
	}

	s.confirmed.Store(rec.LSN)
	return nil
}

// Get returns the entry stored for lsn.
func (s *Store) Get(lsn int64) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed.Load() {
		return Entry{}, ErrClosed
	}

	val, closer, err := s.db.Get(walKey(lsn))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, fmt.Errorf("%w: lsn %d", ErrNotFound, lsn)
	}
	if err != nil {
		return Entry{}, err
	}
	defer closer.Close()

	var e Entry
	if err := msgpack.Unmarshal(val, &e); err != nil {
		return Entry{}, fmt.Errorf("decode lsn %d: %w", lsn, err)
	}
	return e, nil
}

// Scan calls fn for up to limit entries starting at from, in LSN order.
// A non-positive limit scans to the end.
func (s *Store) Scan(from int64, limit int, fn func(Entry) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed.Load() {
		return ErrClosed
	}

	prefix := []byte(prefixWAL)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: walKey(from),
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		if limit > 0 && n >= limit {
			break
		}
		val, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		var e Entry
		if err := msgpack.Unmarshal(val, &e); err != nil {
			return fmt.Errorf("decode %x: %w", iter.Key(), err)
		}
		if err := fn(e); err != nil {
			return err
		}
		n++
	}
	return iter.Error()
}

// FirstLSN returns the lowest stored LSN, or 0 when nothing is stored.
func (s *Store) FirstLSN() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed.Load() {
		return 0, ErrClosed
	}

	prefix := []byte(prefixWAL)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.First() {
		return 0, iter.Error()
	}
	key := iter.Key()
	if len(key) != len(prefix)+8 {
		return 0, fmt.Errorf("malformed key %x", key)
	}
	return int64(binary.BigEndian.Uint64(key[len(prefix):])), nil
}

// Prune deletes stored records with an LSN below before. The record at the
// confirmed LSN is always kept.
func (s *Store) Prune(before int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}
	if confirmed := s.confirmed.Load(); before > confirmed {
		before = confirmed
	}
	if before <= 0 {
		return nil
	}

	if err := s.db.DeleteRange([]byte(prefixWAL), walKey(before), s.writeOpts); err != nil {
		return fmt.Errorf("prune below %d: %w", before, err)
	}
	s.logger.Debug("store pruned", log.Int64("before", before))
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func walKey(lsn int64) []byte {
	return binary.BigEndian.AppendUint64([]byte(prefixWAL), uint64(lsn))
}

func encodeLSN(lsn int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(lsn))
}

func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end
		}
	}
	return nil
}
