// Package fsstore provides a durable Store backend on a filesystem
// abstraction. Each entry is a pair of files under the root directory,
// metadata as JSON next to the raw payload, named by a digest of the
// entry id so arbitrary ids map to safe filenames.
//
// Backed by a local filesystem it persists across restarts; backed by
// an in-memory filesystem it doubles as a fast test store.
package fsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sync"
	"syscall"

	"github.com/jmgilman/go/fs/core"
	"github.com/opencontainers/go-digest"

	"github.com/geometryos/imagecache"
)

const (
	metaExt    = ".json"
	payloadExt = ".bin"
	tmpExt     = ".tmp"
)

// Store is a filesystem-backed imagecache.Store. Writes go through a
// temp file and rename so readers never observe a half-written entry.
// It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	fs   core.FS
	root string
}

// New creates a store rooted at dir on the given filesystem, creating
// the directory if needed.
func New(fsys core.FS, dir string) (*Store, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", imagecache.ErrStoreUnavailable, dir, err)
	}
	return &Store{fs: fsys, root: dir}, nil
}

// Get returns the full record for id, including payload bytes.
func (s *Store) Get(ctx context.Context, id string) (*imagecache.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.readMeta(id)
	if err != nil {
		return nil, err
	}

	payload, err := s.fs.ReadFile(s.payloadPath(id))
	if err != nil {
		return nil, fmt.Errorf("reading payload for %s: %w", id, err)
	}
	rec.Payload = payload
	return rec, nil
}

// Put stores or replaces the record for rec.ID. The payload lands
// before the metadata, so a crash mid-write leaves at worst an orphan
// payload file, never a record pointing at missing data. A full disk
// surfaces imagecache.ErrQuotaExceeded.
func (s *Store) Put(ctx context.Context, rec *imagecache.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("record id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payloadPath := s.payloadPath(rec.ID)
	if err := s.writeAtomic(payloadPath, rec.Payload); err != nil {
		return translateWriteErr(fmt.Errorf("storing payload for %s: %w", rec.ID, err))
	}

	stored := *rec
	stored.PayloadRef = path.Base(payloadPath)
	raw, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.ID, err)
	}
	if err := s.writeAtomic(s.metaPath(rec.ID), raw); err != nil {
		return translateWriteErr(fmt.Errorf("storing record %s: %w", rec.ID, err))
	}
	return nil
}

// Delete removes the record for id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Metadata first: once it is gone the entry no longer exists even if
	// payload removal fails.
	if err := s.fs.Remove(s.metaPath(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", id, imagecache.ErrNotFound)
		}
		return fmt.Errorf("deleting %s: %w", id, err)
	}
	if err := s.fs.Remove(s.payloadPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting payload for %s: %w", id, err)
	}
	return nil
}

// GetAll returns metadata for every stored record, payloads omitted.
// Files that fail to decode are skipped rather than failing the
// listing, so one corrupt entry cannot take the cache offline.
func (s *Store) GetAll(ctx context.Context) ([]*imagecache.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.fs.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", imagecache.ErrStoreUnavailable, s.root, err)
	}

	var records []*imagecache.Record
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != metaExt {
			continue
		}
		raw, err := s.fs.ReadFile(path.Join(s.root, entry.Name()))
		if err != nil {
			continue
		}
		rec := &imagecache.Record{}
		if err := json.Unmarshal(raw, rec); err != nil || rec.ID == "" {
			continue
		}
		records = append(records, rec)
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

	entries, err := s.fs.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("%w: listing %s: %v", imagecache.ErrStoreUnavailable, s.root, err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if path.Ext(entry.Name()) == metaExt {
			removed++
		}
		if err := s.fs.Remove(path.Join(s.root, entry.Name())); err != nil {
			return removed, fmt.Errorf("clearing store: %w", err)
		}
	}
	return removed, nil
}

// writeAtomic writes data to a sibling temp file and renames it into
// place.
func (s *Store) writeAtomic(dest string, data []byte) error {
	tmp := dest + tmpExt
	if err := s.fs.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, dest); err != nil {
		s.fs.Remove(tmp)
		return err
	}
	return nil
}

func (s *Store) readMeta(id string) (*imagecache.Record, error) {
	raw, err := s.fs.ReadFile(s.metaPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", id, imagecache.ErrNotFound)
		}
		return nil, fmt.Errorf("reading record %s: %w", id, err)
	}
	rec := &imagecache.Record{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", id, err)
	}
	return rec, nil
}

// fileKey maps an arbitrary entry id onto a fixed-length safe filename.
func fileKey(id string) string {
	return digest.FromString(id).Encoded()
}

func (s *Store) metaPath(id string) string {
	return path.Join(s.root, fileKey(id)+metaExt)
}

func (s *Store) payloadPath(id string) string {
	return path.Join(s.root, fileKey(id)+payloadExt)
}

// translateWriteErr maps a full disk onto the engine's quota sentinel.
func translateWriteErr(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", imagecache.ErrQuotaExceeded, err)
	}
	return err
}
