// Package imagecache provides container image caching and retrieval.
// This file contains the cache manager: the single source of truth for
// which container images are available locally, how fresh they are, and
// how much space they occupy.
package imagecache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Manager owns all cached entries. It layers content hashing,
// verification, size accounting, LRU eviction, and staleness policy on
// top of an injected Store.
//
// All mutating operations serialize on one mutex, which doubles as the
// critical section for size accounting; concurrent writers to the same
// id therefore cannot corrupt the accounting. Manager is safe for
// concurrent use.
type Manager struct {
	mu      sync.RWMutex
	store   Store
	hasher  Hasher
	config  Config
	logger  *Logger
	metrics *Metrics
	events  *Events
	clock   func() time.Time
}

// NewManager creates a cache manager on top of the given store.
// The store being unreachable is not an error: the manager starts cold
// and read operations keep degrading to empty results until the store
// recovers.
func NewManager(ctx context.Context, store Store, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}

	m := &Manager{
		store:   store,
		hasher:  DefaultHasher(),
		config:  DefaultConfig(),
		logger:  NewNopLogger(),
		metrics: NewMetrics(),
		events:  NewEvents(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.config.SetDefaults()
	if err := m.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}

	// Probe the store so a misconfigured backend shows up in the logs at
	// startup rather than as silent misses later.
	if _, err := store.GetAll(ctx); err != nil {
		m.logger.Warn(ctx, "store unavailable at startup, cache starts cold", "error", err)
	}

	return m, nil
}

// Set stores payload under id, computing its content hash and, when an
// expected hash is supplied, its verification status. Before writing it
// reclaims enough space through LRU eviction to keep the total payload
// size within MaxSize; the write itself is never rejected for size.
//
// A verification mismatch is not an error here: the result reports
// Verified false and the entry is retained flagged (or purged when
// Config.PurgeFailed is set). Errors are returned only when the store
// rejects the write; ErrQuotaExceeded passes through unwrapped in the
// chain so callers can surface the required size.
func (m *Manager) Set(ctx context.Context, id string, payload []byte, meta PutMetadata) (*SetResult, error) {
	if id == "" {
		return nil, errors.New("id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	logger := m.logger.WithOperation("set").WithKey(id)

	computed := hashPayload(m.hasher, payload)
	status := VerificationPending
	if meta.ExpectedHash != "" {
		if hashesEqual(computed, meta.ExpectedHash) {
			status = VerificationVerified
		} else {
			status = VerificationFailed
		}
	}

	result := &SetResult{
		Hash:     computed,
		Status:   status,
		Verified: status == VerificationVerified,
	}

	if status == VerificationFailed && m.config.PurgeFailed {
		if err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			logger.Warn(ctx, "failed to purge prior entry", "error", err)
		}
		m.metrics.RecordError()
		logger.Warn(ctx, "verification failed, entry purged",
			"computed", computed, "expected", meta.ExpectedHash)
		return result, nil
	}

	records, err := m.store.GetAll(ctx)
	if err != nil {
		m.metrics.RecordError()
		return nil, fmt.Errorf("listing store: %w", err)
	}

	var current, prior int64
	for _, rec := range records {
		current += rec.Size
		if rec.ID == id {
			prior = rec.Size
		}
	}

	size := int64(len(payload))
	delta := size - prior
	if current+delta > m.config.MaxSize {
		result.Evicted, result.BytesFreed = m.evictLocked(ctx, records, delta, id)
	}

	now := m.clock()
	rec := &Record{
		ID:           id,
		Payload:      payload,
		Size:         size,
		ETag:         meta.ETag,
		SourceURL:    meta.SourceURL,
		ContentHash:  computed,
		Status:       status,
		CachedAt:     now,
		LastAccessed: now,
	}
	if err := m.store.Put(ctx, rec); err != nil {
		m.metrics.RecordError()
		return nil, fmt.Errorf("storing %q: %w", id, err)
	}
	result.Stored = true
	m.metrics.RecordPut(size)

	if status == VerificationFailed {
		logger.Warn(ctx, "content hash mismatch, entry retained",
			"computed", computed, "expected", meta.ExpectedHash)
	} else {
		logger.WithSize(size).Debug(ctx, "entry stored", "hash", computed, "status", string(status))
	}

	return result, nil
}

// Get returns the cached entry for id, or nil when absent. The read
// touches LastAccessed, which establishes the LRU order. With
// Config.VerifyOnRead the content hash is recomputed and the status
// downgraded to failed on mismatch; the entry is not removed.
//
// Store failures degrade to a nil entry: a broken cache behaves like a
// cold one. The error return is reserved for context cancellation.
func (m *Manager) Get(ctx context.Context, id string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.getLocked(ctx, id)
}

func (m *Manager) getLocked(ctx context.Context, id string) (*Entry, error) {
	logger := m.logger.WithOperation("get").WithKey(id)

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.metrics.RecordMiss()
			return nil, nil
		}
		m.metrics.RecordError()
		logger.Warn(ctx, "store read failed, treating as miss", "error", err)
		return nil, nil
	}

	if m.config.VerifyOnRead && rec.ContentHash != "" {
		if computed := hashPayload(m.hasher, rec.Payload); !hashesEqual(computed, rec.ContentHash) {
			rec.Status = VerificationFailed
			m.metrics.RecordError()
			logger.Warn(ctx, "verify-on-read mismatch, status downgraded",
				"stored", rec.ContentHash, "computed", computed)
		}
	}

	rec.LastAccessed = m.clock()
	if err := m.store.Put(ctx, rec); err != nil {
		logger.Warn(ctx, "failed to update access time", "error", err)
	}

	m.metrics.RecordHit(rec.Size)
	return entryFromRecord(rec), nil
}

// GetWithVerification loads the entry and always recomputes its content
// hash, reporting the comparison explicitly. Callers that must know the
// integrity status before use (for example, before booting an image)
// use this instead of Get. A mismatch downgrades the stored status to
// failed; a match never upgrades a failed status, since that records a
// write-time mismatch against an external hash.
func (m *Manager) GetWithVerification(ctx context.Context, id string) (*VerificationReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	logger := m.logger.WithOperation("get_with_verification").WithKey(id)

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.metrics.RecordError()
			logger.Warn(ctx, "store read failed, treating as miss", "error", err)
		} else {
			m.metrics.RecordMiss()
		}
		return nil, nil
	}

	computed := hashPayload(m.hasher, rec.Payload)
	verified := rec.ContentHash != "" && hashesEqual(computed, rec.ContentHash)
	if !verified {
		rec.Status = VerificationFailed
		m.metrics.RecordError()
		logger.Warn(ctx, "integrity re-check failed",
			"stored", rec.ContentHash, "computed", computed)
	}

	rec.LastAccessed = m.clock()
	if err := m.store.Put(ctx, rec); err != nil {
		logger.Warn(ctx, "failed to update access time", "error", err)
	}

	m.metrics.RecordHit(rec.Size)
	return &VerificationReport{
		Entry:        entryFromRecord(rec),
		Verified:     verified,
		ComputedHash: computed,
		StoredHash:   rec.ContentHash,
	}, nil
}

// VerificationStatusOf reports the stored verification status for id
// without loading the payload. Unknown ids (and a failed store) report
// VerificationNotFound.
func (m *Manager) VerificationStatusOf(ctx context.Context, id string) VerificationStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec := m.findMetadataLocked(ctx, id)
	if rec == nil {
		return VerificationNotFound
	}
	return rec.Status
}

// Delete removes the entry for id, reporting whether it existed.
func (m *Manager) Delete(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.store.Delete(ctx, id)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrNotFound):
		return false
	default:
		m.metrics.RecordError()
		m.logger.WithOperation("delete").WithKey(id).Warn(ctx, "store delete failed", "error", err)
		return false
	}
}

// Has reports whether id is cached, without touching LastAccessed.
func (m *Manager) Has(ctx context.Context, id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.findMetadataLocked(ctx, id) != nil
}

// Clear removes every entry and returns how many were removed. A second
// call returns 0.
func (m *Manager) Clear(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count, err := m.store.Clear(ctx)
	if err != nil {
		m.metrics.RecordError()
		m.logger.WithOperation("clear").Warn(ctx, "store clear failed", "error", err)
		return 0
	}
	return count
}

// All returns metadata for every cached entry, ordered oldest-cached
// first. Payload bytes are never included.
func (m *Manager) All(ctx context.Context) []EntryInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.listLocked(ctx)
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CachedAt.Equal(records[j].CachedAt) {
			return records[i].CachedAt.Before(records[j].CachedAt)
		}
		return records[i].ID < records[j].ID
	})

	infos := make([]EntryInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, infoFromRecord(rec))
	}
	return infos
}

// Stats summarizes the cache contents together with the operational
// counters.
func (m *Manager) Stats(ctx context.Context) Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.listLocked(ctx)
	snapshot := m.metrics.Snapshot()

	stats := Stats{
		EntryCount: len(records),
		MaxSize:    m.config.MaxSize,
		Hits:       snapshot.Hits,
		Misses:     snapshot.Misses,
		HitRate:    snapshot.HitRate,
		Evictions:  snapshot.Evictions,
		Errors:     snapshot.Errors,
	}
	for _, rec := range records {
		stats.TotalSize += rec.Size
		if stats.OldestEntry.IsZero() || rec.CachedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = rec.CachedAt
		}
		if rec.CachedAt.After(stats.NewestEntry) {
			stats.NewestEntry = rec.CachedAt
		}
	}
	return stats
}

// Size returns the total payload size of all cached entries.
func (m *Manager) Size(ctx context.Context) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, rec := range m.listLocked(ctx) {
		total += rec.Size
	}
	return total
}

// MaxSize returns the configured size budget.
func (m *Manager) MaxSize() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.MaxSize
}

// SetMaxSize changes the size budget. Shrinking below the current usage
// evicts immediately so the size invariant holds unconditionally.
func (m *Manager) SetMaxSize(ctx context.Context, maxSize int64) error {
	if maxSize <= 0 {
		return fmt.Errorf("max size must be greater than 0, got %d", maxSize)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.config.MaxSize = maxSize
	records, err := m.store.GetAll(ctx)
	if err != nil {
		m.metrics.RecordError()
		m.logger.WithOperation("set_max_size").Warn(ctx, "store list failed, deferred eviction", "error", err)
		return nil
	}
	m.evictLocked(ctx, records, 0, "")
	return nil
}

// EvictLRU removes least-recently-used entries until at least
// bytesNeeded of headroom exists below MaxSize, returning the evicted
// ids in eviction order. An EvictionEvent is published when anything
// was removed.
func (m *Manager) EvictLRU(ctx context.Context, bytesNeeded int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.store.GetAll(ctx)
	if err != nil {
		m.metrics.RecordError()
		m.logger.WithOperation("evict").Warn(ctx, "store list failed, nothing evicted", "error", err)
		return nil
	}
	evicted, _ := m.evictLocked(ctx, records, bytesNeeded, "")
	return evicted
}

// EvictionCandidates previews the next count entries that would be
// evicted, in eviction order. UI layers use it for low-space warnings.
func (m *Manager) EvictionCandidates(ctx context.Context, count int) []EntryInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := lruOrder(m.listLocked(ctx), "")
	if count >= 0 && len(candidates) > count {
		candidates = candidates[:count]
	}
	infos := make([]EntryInfo, 0, len(candidates))
	for _, rec := range candidates {
		infos = append(infos, infoFromRecord(rec))
	}
	return infos
}

// evictLocked deletes entries in LRU order until the remaining size
// fits within MaxSize minus bytesNeeded. The skip id is never evicted
// (its replacement is already accounted through the caller's delta).
// Caller must hold the write lock.
func (m *Manager) evictLocked(ctx context.Context, records []*Record, bytesNeeded int64, skip string) ([]string, int64) {
	var current int64
	for _, rec := range records {
		current += rec.Size
	}
	target := m.config.MaxSize - bytesNeeded
	if current <= target {
		return nil, 0
	}

	logger := m.logger.WithOperation("evict")

	var evicted []string
	var freed int64
	for _, rec := range lruOrder(records, skip) {
		if current-freed <= target {
			break
		}
		if err := m.store.Delete(ctx, rec.ID); err != nil {
			m.metrics.RecordError()
			logger.WithKey(rec.ID).Warn(ctx, "failed to evict entry", "error", err)
			continue
		}
		evicted = append(evicted, rec.ID)
		freed += rec.Size
	}

	if len(evicted) > 0 {
		m.metrics.RecordEviction(len(evicted), freed)
		m.events.publishEviction(EvictionEvent{IDs: evicted, BytesFreed: freed, At: m.clock()})
		logger.Info(ctx, "entries evicted", "count", len(evicted), "bytes_freed", freed)
	}
	return evicted, freed
}

// findMetadataLocked returns the metadata record for id, or nil when
// absent or the store is unreachable. Caller must hold at least the
// read lock.
func (m *Manager) findMetadataLocked(ctx context.Context, id string) *Record {
	for _, rec := range m.listLocked(ctx) {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

// listLocked lists metadata records, degrading to an empty slice when
// the store is unreachable. Caller must hold at least the read lock.
func (m *Manager) listLocked(ctx context.Context) []*Record {
	records, err := m.store.GetAll(ctx)
	if err != nil {
		m.metrics.RecordError()
		m.logger.Warn(ctx, "store list failed, treating cache as empty", "error", err)
		return nil
	}
	return records
}

// Metrics returns the manager's metrics collector.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// Events returns the event bus the manager publishes to.
func (m *Manager) Events() *Events {
	return m.events
}
