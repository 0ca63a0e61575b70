// Package kv wraps the embedded BadgerDB instance shared by the ingestion
// worker and the HTTP query layer, and defines the archive key schema.
package kv

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// Store is a thin handle over BadgerDB. Badger's transactional handle is safe
// for concurrent use, so readers and the single writer share one Store; a
// write transaction makes the per-message record block all-or-nothing for
// readers.
type Store struct {
	db *badger.DB
}

// ErrStop aborts an iteration early from a scan callback without surfacing an
// error to the caller.
var ErrStop = errors.New("kv: stop iteration")

// badgerLogger adapts slog to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens (creating if necessary) the archive database rooted at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("create database directory %s: %w", path, err)
	}

	opts := badger.DefaultOptions(path).WithSyncWrites(true).WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a throwaway in-memory store for tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key, or found=false when absent.
func (s *Store) Get(key []byte) (val []byte, found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return val, found, nil
}

// Has reports whether key exists without reading its value.
func (s *Store) Has(key []byte) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("has %q: %w", key, err)
	}
	return found, nil
}

// Set writes a single key in its own transaction.
func (s *Store) Set(key, val []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Update runs fn inside a single read-write transaction. All writes commit
// together or not at all.
func (s *Store) Update(fn func(txn *badger.Txn) error) error {
	return s.db.Update(fn)
}

// ScanPrefix iterates every key starting with prefix in ascending order,
// invoking fn with the key and value. Returning ErrStop from fn ends the scan
// without error.
func (s *Store) ScanPrefix(prefix []byte, fn func(key, val []byte) error) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), val); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

// ScanRange iterates keys in [lo, hi), ascending when reverse is false and
// descending when true. Returning ErrStop from fn ends the scan without
// error.
func (s *Store) ScanRange(lo, hi []byte, reverse bool, fn func(key, val []byte) error) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		if reverse {
			it.Seek(hi)
		} else {
			it.Seek(lo)
		}
		for ; it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if reverse {
				// hi is exclusive; Seek lands on the first key <= hi.
				if bytes.Compare(key, hi) >= 0 {
					continue
				}
				if bytes.Compare(key, lo) < 0 {
					break
				}
			} else {
				if bytes.Compare(key, hi) >= 0 {
					break
				}
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(key, val); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}
