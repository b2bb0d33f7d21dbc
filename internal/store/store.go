// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

// Package store persists visit records in BadgerDB.
//
// Records are keyed by a store-assigned monotonic sequence number, so key
// order is insertion order. That property carries the whole design:
//   - List walks the keyspace in reverse for newest-first reads
//   - pruning deletes from the front for strict FIFO eviction
//
// The store is bounded: once the configured capacity is reached, every
// append evicts the oldest record in the same transaction. The sequence
// counter is recovered from the keyspace on open, so ordering survives
// restarts.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/footfall/internal/logging"
	"github.com/tomtom215/footfall/internal/metrics"
	"github.com/tomtom215/footfall/internal/models"
)

const (
	// visitKeyPrefix namespaces visit records in the keyspace.
	visitKeyPrefix = "visit:"

	// seqDigits is the zero-padded width of the sequence in keys. 20
	// digits holds any uint64, keeping lexicographic and numeric order
	// identical.
	seqDigits = 20

	// DefaultListLimit is the page size when the caller does not specify one.
	DefaultListLimit = 200

	// MaxListLimit caps a single read regardless of what the caller asks for.
	MaxListLimit = 1000
)

// VisitStore is the persistence interface consumed by the tracker and the
// read API.
type VisitStore interface {
	// Append persists a record, assigning its sequence number. When the
	// store is at capacity the oldest records are pruned in the same
	// transaction.
	Append(ctx context.Context, record *models.VisitRecord) error

	// List returns up to limit records, newest first. limit <= 0 selects
	// DefaultListLimit; anything above MaxListLimit is clamped.
	List(ctx context.Context, limit int) ([]models.VisitRecord, error)

	// Count returns the number of stored records.
	Count() int
}

// Store is the BadgerDB-backed VisitStore.
type Store struct {
	db         *badger.DB
	maxRecords int

	// mu serializes appends so the sequence counter, the write, and the
	// prune decision act on a consistent view.
	mu    sync.Mutex
	seq   uint64
	count int
}

// Open opens the BadgerDB database at the given path.
// Badger's own chatty logger is disabled; operational visibility comes from
// the store's structured logs and metrics.
func Open(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return db, nil
}

// New creates a Store over an open database and recovers the sequence
// counter and record count from the existing keyspace.
func New(db *badger.DB, maxRecords int) (*Store, error) {
	s := &Store{
		db:         db,
		maxRecords: maxRecords,
	}

	if err := s.recover(); err != nil {
		return nil, err
	}

	// A lowered cap since the last run leaves the store oversized; trim
	// before serving.
	if s.count > s.maxRecords {
		if err := s.pruneToCap(); err != nil {
			return nil, err
		}
	}

	metrics.StoredVisits.Set(float64(s.count))

	logging.Info().
		Int("records", s.count).
		Uint64("sequence", s.seq).
		Int("max_records", maxRecords).
		Msg("visit store opened")

	return s, nil
}

// recover scans the visit keyspace to restore count and the highest
// assigned sequence number.
func (s *Store) recover() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(visitKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			s.count++

			seq, err := parseVisitKey(it.Item().Key())
			if err != nil {
				return err
			}
			if seq > s.seq {
				s.seq = seq
			}
		}
		return nil
	})
}

// pruneToCap deletes the oldest records until the count fits maxRecords.
// Only called during New, before any concurrent access.
func (s *Store) pruneToCap() error {
	excess := s.count - s.maxRecords

	pruned := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(visitKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && pruned < excess; it.Next() {
			if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
				return fmt.Errorf("prune visit on open: %w", err)
			}
			pruned++
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.count -= pruned
	metrics.VisitsPruned.Add(float64(pruned))
	logging.Info().Int("pruned", pruned).Int("records", s.count).Msg("trimmed store to capacity on open")
	return nil
}

// visitKey builds the key for a sequence number.
func visitKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%0*d", visitKeyPrefix, seqDigits, seq))
}

// parseVisitKey extracts the sequence number from a visit key.
func parseVisitKey(key []byte) (uint64, error) {
	var seq uint64
	if _, err := fmt.Sscanf(string(key), visitKeyPrefix+"%d", &seq); err != nil {
		return 0, fmt.Errorf("malformed visit key %q: %w", key, err)
	}
	return seq, nil
}

// Append persists a record and prunes past-capacity records in the same
// transaction, so a crash can never leave the store over its cap.
func (s *Store) Append(ctx context.Context, record *models.VisitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.Sequence = s.seq + 1

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal visit: %w", err)
	}

	pruned := 0
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(visitKey(record.Sequence), data); err != nil {
			return fmt.Errorf("set visit: %w", err)
		}

		// Evict from the front until the new total fits the cap.
		excess := s.count + 1 - s.maxRecords
		if excess <= 0 {
			return nil
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(visitKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && pruned < excess; it.Next() {
			key := it.Item().KeyCopy(nil)
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("prune visit %q: %w", key, err)
			}
			pruned++
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.seq = record.Sequence
	s.count = s.count + 1 - pruned
	metrics.StoredVisits.Set(float64(s.count))

	if pruned > 0 {
		metrics.VisitsPruned.Add(float64(pruned))
		logging.Debug().Int("pruned", pruned).Int("records", s.count).Msg("pruned oldest visits")
	}

	return nil
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]models.VisitRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	records := make([]models.VisitRecord, 0, limit)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(visitKeyPrefix)
		// In reverse mode the seek key must sort after every visit key.
		seek := append([]byte(visitKeyPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(records) < limit; it.Next() {
			var record models.VisitRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return fmt.Errorf("unmarshal visit: %w", err)
			}

			seq, err := parseVisitKey(it.Item().Key())
			if err != nil {
				return err
			}
			record.Sequence = seq

			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.count
}
