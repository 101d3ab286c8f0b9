package storage

import (
	"errors"

	"github.com/0xmhha/csm-sentinel/internal/constants"
)

// Common errors
var (
	// ErrNotFound is returned when a key is not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidData is returned when data cannot be decoded
	ErrInvalidData = errors.New("invalid data")

	// ErrClosed is returned when operating on a closed store
	ErrClosed = errors.New("store closed")

	// ErrReadOnly is returned when attempting to write to a read-only store
	ErrReadOnly = errors.New("store is read-only")
)

// KVStore defines the durable key-value store the bot state is built on.
type KVStore interface {
	// Get retrieves a value by key. Returns ErrNotFound if the key is absent.
	Get(key []byte) ([]byte, error)

	// Set stores a key-value pair durably.
	Set(key, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key []byte) error

	// Has checks if a key exists.
	Has(key []byte) (bool, error)

	// NewIterator creates an iterator over keys in [start, end).
	NewIterator(start, end []byte) (Iterator, error)

	// NewBatch creates a batch for atomic multi-key writes.
	NewBatch() Batch

	// Close closes the store and releases resources.
	Close() error
}

// Iterator provides ordered iteration over key-value pairs.
type Iterator interface {
	// Valid returns true if the iterator is positioned at a valid item
	Valid() bool

	// Next advances the iterator to the next item
	Next()

	// Key returns the current key
	Key() []byte

	// Value returns the current value
	Value() []byte

	// Close releases iterator resources
	Close() error
}

// Batch provides atomic batch write operations.
type Batch interface {
	// Set adds a set operation to the batch
	Set(key, value []byte) error

	// Delete adds a delete operation to the batch
	Delete(key []byte) error

	// Commit writes all batched operations atomically
	Commit() error

	// Count returns the number of operations in the batch
	Count() int

	// Close releases batch resources without committing
	Close() error
}

// Config holds store configuration
type Config struct {
	// Path to the database directory
	Path string

	// Cache size in MB (default: 128)
	Cache int

	// MaxOpenFiles is the maximum number of open files (default: 1000)
	MaxOpenFiles int

	// ReadOnly opens the database in read-only mode
	ReadOnly bool
}

// DefaultConfig returns a default configuration
func DefaultConfig(path string) *Config {
	return &Config{
		Path:         path,
		Cache:        constants.DefaultCacheSize,
		MaxOpenFiles: constants.DefaultMaxOpenFiles,
		ReadOnly:     false,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("path cannot be empty")
	}
	if c.Cache < 0 {
		return errors.New("cache size cannot be negative")
	}
	if c.MaxOpenFiles < 0 {
		return errors.New("max open files cannot be negative")
	}
	return nil
}
