// Package boltstore provides a durable Store backend on a single bbolt
// database file. Record metadata is stored as JSON in one bucket and
// payload bytes in another, keyed by entry id, so listing the cache
// never reads image data.
package boltstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/geometryos/imagecache"
)

var (
	bucketRecords  = []byte("records")
	bucketPayloads = []byte("payloads")
)

// Store is a bbolt-backed imagecache.Store. Every operation runs in its
// own transaction, which gives the per-key atomicity the engine
// requires. It is safe for concurrent use.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the database file at path. A database
// locked by another process or otherwise unusable surfaces
// imagecache.ErrStoreUnavailable.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", imagecache.ErrStoreUnavailable, path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRecords); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketPayloads)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initializing %s: %v", imagecache.ErrStoreUnavailable, path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file. The store cannot be used after
// Close.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the database file.
func (s *Store) Path() string {
	return s.db.Path()
}

// Get returns the full record for id, including payload bytes.
func (s *Store) Get(ctx context.Context, id string) (*imagecache.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *imagecache.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketRecords).Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("%s: %w", id, imagecache.ErrNotFound)
		}

		rec = &imagecache.Record{}
		if err := json.Unmarshal(raw, rec); err != nil {
			return fmt.Errorf("decoding record %s: %w", id, err)
		}

		// Bolt pages are only valid inside the transaction; copy out.
		if payload := tx.Bucket(bucketPayloads).Get([]byte(id)); payload != nil {
			rec.Payload = append([]byte(nil), payload...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Put stores or replaces the record for rec.ID. A full disk surfaces
// imagecache.ErrQuotaExceeded.
func (s *Store) Put(ctx context.Context, rec *imagecache.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("record id cannot be empty")
	}

	stored := *rec
	stored.PayloadRef = "payloads/" + rec.ID
	raw, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.ID, err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketRecords).Put([]byte(rec.ID), raw); err != nil {
			return err
		}
		return tx.Bucket(bucketPayloads).Put([]byte(rec.ID), rec.Payload)
	})
	if err != nil {
		return translateWriteErr(fmt.Errorf("storing %s: %w", rec.ID, err))
	}
	return nil
}

// Delete removes the record for id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		if records.Get([]byte(id)) == nil {
			return fmt.Errorf("%s: %w", id, imagecache.ErrNotFound)
		}
		if err := records.Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketPayloads).Delete([]byte(id))
	})
}

// GetAll returns metadata for every stored record, payloads omitted.
// Records that fail to decode are skipped rather than failing the
// listing, so one corrupt entry cannot take the cache offline.
func (s *Store) GetAll(ctx context.Context) ([]*imagecache.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []*imagecache.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(_, raw []byte) error {
			rec := &imagecache.Record{}
			if err := json.Unmarshal(raw, rec); err != nil {
				return nil
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Clear removes all records and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		removed = tx.Bucket(bucketRecords).Stats().KeyN
		for _, bucket := range [][]byte{bucketRecords, bucketPayloads} {
			if err := tx.DeleteBucket(bucket); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("clearing store: %w", err)
	}
	return removed, nil
}

// translateWriteErr maps a full disk onto the engine's quota sentinel.
func translateWriteErr(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", imagecache.ErrQuotaExceeded, err)
	}
	return err
}
