// Package memstore provides an in-memory Store backend. It is intended
// for tests and for short-lived processes that do not need the cache to
// survive restarts.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/geometryos/imagecache"
)

// Store is a map-backed imagecache.Store. All records are deep-copied
// on the way in and out so callers cannot alias stored state. It is
// safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]*imagecache.Record
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string]*imagecache.Record)}
}

// Get returns the full record for id, including payload bytes.
func (s *Store) Get(ctx context.Context, id string) (*imagecache.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, imagecache.ErrNotFound)
	}
	return copyRecord(rec, true), nil
}

// Put stores or replaces the record for rec.ID.
func (s *Store) Put(ctx context.Context, rec *imagecache.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("record id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = copyRecord(rec, true)
	return nil
}

// Delete removes the record for id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%s: %w", id, imagecache.ErrNotFound)
	}
	delete(s.records, id)
	return nil
}

// GetAll returns metadata for every stored record, payloads omitted.
func (s *Store) GetAll(ctx context.Context) ([]*imagecache.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*imagecache.Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, copyRecord(rec, false))
	}
	return records, nil
}

// Clear removes all records and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := len(s.records)
	s.records = make(map[string]*imagecache.Record)
	return removed, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func copyRecord(rec *imagecache.Record, withPayload bool) *imagecache.Record {
	out := *rec
	if withPayload {
		out.Payload = append([]byte(nil), rec.Payload...)
	} else {
		out.Payload = nil
	}
	return &out
}
