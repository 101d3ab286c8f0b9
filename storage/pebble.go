package storage

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// Ensure PebbleStore implements KVStore
var _ KVStore = (*PebbleStore)(nil)

// PebbleStore implements KVStore using PebbleDB
type PebbleStore struct {
	db     *pebble.DB
	config *Config
	logger *zap.Logger
	closed atomic.Bool
}

// NewPebbleStore opens a PebbleDB-backed store at the configured path
func NewPebbleStore(cfg *Config, logger *zap.Logger) (*PebbleStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := &pebble.Options{
		Cache:            pebble.NewCache(int64(cfg.Cache) << 20), // Convert MB to bytes
		MaxOpenFiles:     cfg.MaxOpenFiles,
		ErrorIfExists:    false,
		ErrorIfNotExists: false,
	}
	if cfg.ReadOnly {
		opts.ReadOnly = true
	}

	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &PebbleStore{
		db:     db,
		config: cfg,
		logger: logger,
	}, nil
}

// ensureNotClosed checks if the store is closed
func (s *PebbleStore) ensureNotClosed() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// ensureNotReadOnly checks if the store is read-only
func (s *PebbleStore) ensureNotReadOnly() error {
	if s.config.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// Get retrieves a value by key
func (s *PebbleStore) Get(key []byte) ([]byte, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	value, closer, err := s.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	defer closer.Close()

	// Copy value since it's only valid until closer is closed
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// Set stores a key-value pair
func (s *PebbleStore) Set(key, value []byte) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if err := s.ensureNotReadOnly(); err != nil {
		return err
	}

	return s.db.Set(key, value, pebble.Sync)
}

// Delete removes a key
func (s *PebbleStore) Delete(key []byte) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if err := s.ensureNotReadOnly(); err != nil {
		return err
	}

	return s.db.Delete(key, pebble.Sync)
}

// Has checks if a key exists
func (s *PebbleStore) Has(key []byte) (bool, error) {
	if err := s.ensureNotClosed(); err != nil {
		return false, err
	}

	_, closer, err := s.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to check key: %w", err)
	}
	closer.Close()
	return true, nil
}

// NewIterator creates an iterator over keys in [start, end)
func (s *PebbleStore) NewIterator(start, end []byte) (Iterator, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	iter.First()
	return &pebbleIterator{iter: iter}, nil
}

// NewBatch creates a new batch for atomic writes
func (s *PebbleStore) NewBatch() Batch {
	return &pebbleBatch{batch: s.db.NewBatch()}
}

// Close closes the store and releases resources
func (s *PebbleStore) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// pebbleIterator implements Iterator for PebbleDB
type pebbleIterator struct {
	iter *pebble.Iterator
}

func (i *pebbleIterator) Valid() bool {
	return i.iter.Valid()
}

func (i *pebbleIterator) Next() {
	i.iter.Next()
}

func (i *pebbleIterator) Key() []byte {
	return i.iter.Key()
}

func (i *pebbleIterator) Value() []byte {
	return i.iter.Value()
}

func (i *pebbleIterator) Close() error {
	return i.iter.Close()
}

// pebbleBatch implements Batch for PebbleDB
type pebbleBatch struct {
	batch *pebble.Batch
	count int
}

func (b *pebbleBatch) Set(key, value []byte) error {
	b.count++
	return b.batch.Set(key, value, nil)
}

func (b *pebbleBatch) Delete(key []byte) error {
	b.count++
	return b.batch.Delete(key, nil)
}

func (b *pebbleBatch) Commit() error {
	return b.batch.Commit(pebble.Sync)
}

func (b *pebbleBatch) Count() int {
	return b.count
}

func (b *pebbleBatch) Close() error {
	return b.batch.Close()
}
