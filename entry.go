package imagecache

import "time"

// VerificationStatus describes the outcome of comparing an entry's
// content hash against an externally supplied expected hash.
type VerificationStatus string

const (
	// VerificationPending means no expected hash was supplied, so the
	// entry has never been checked against an external reference.
	VerificationPending VerificationStatus = "pending"

	// VerificationVerified means the computed content hash matched the
	// expected hash at write time (or on a later re-check).
	VerificationVerified VerificationStatus = "verified"

	// VerificationFailed means an expected hash was supplied and did not
	// match. The entry is retained but flagged; callers that require
	// verified data must check this status before use.
	VerificationFailed VerificationStatus = "failed"

	// VerificationNotFound is reported by status queries for ids that
	// are not present in the cache.
	VerificationNotFound VerificationStatus = "not-found"
)

// Entry is a cached container image together with its provenance and
// verification metadata.
type Entry struct {
	// ID is the stable content key, unique within the store. Typically a
	// catalog entry identifier or a hash of the source URL.
	ID string

	// Payload is the opaque container image data.
	Payload []byte

	// Size is the byte length of Payload and the source of truth for
	// cache size accounting.
	Size int64

	// ETag is the HTTP entity tag reported by the origin, if any.
	// It is opaque to the cache.
	ETag string

	// SourceURL records where the payload was fetched from, if known.
	SourceURL string

	// ContentHash is the hex-encoded SHA-256 digest computed over
	// Payload at write time.
	ContentHash string

	// Status is the verification status of the entry.
	Status VerificationStatus

	// CachedAt is when the entry was written.
	CachedAt time.Time

	// LastAccessed is updated on every successful read and establishes
	// the LRU eviction order.
	LastAccessed time.Time
}

// EntryInfo is entry metadata without the payload bytes. Listing
// operations return EntryInfo so UI callers never transfer image data
// they did not ask for.
type EntryInfo struct {
	ID           string             `json:"id"`
	Size         int64              `json:"size"`
	ETag         string             `json:"etag,omitempty"`
	SourceURL    string             `json:"source,omitempty"`
	ContentHash  string             `json:"content_hash,omitempty"`
	Status       VerificationStatus `json:"verification_status"`
	CachedAt     time.Time          `json:"cached_at"`
	LastAccessed time.Time          `json:"last_accessed"`
}

// Record is the persisted shape of a cache entry. Store backends decide
// how the payload bytes are laid out (inline, separate bucket, separate
// file) and record that decision in PayloadRef.
type Record struct {
	ID           string             `json:"id"`
	Payload      []byte             `json:"-"`
	PayloadRef   string             `json:"payload_ref,omitempty"`
	Size         int64              `json:"size"`
	ETag         string             `json:"etag,omitempty"`
	SourceURL    string             `json:"source,omitempty"`
	ContentHash  string             `json:"content_hash,omitempty"`
	Status       VerificationStatus `json:"verification_status"`
	CachedAt     time.Time          `json:"cached_at"`
	LastAccessed time.Time          `json:"last_accessed"`
}

// PutMetadata carries the provenance supplied alongside a payload on
// write. All fields are optional.
type PutMetadata struct {
	// ETag is the origin entity tag to persist with the entry.
	ETag string

	// ExpectedHash, when non-empty, is compared against the computed
	// content hash and determines the entry's verification status.
	// Accepted forms are the bare hex digest or "sha256:<hex>".
	ExpectedHash string

	// SourceURL records the download source.
	SourceURL string
}

// SetResult reports the outcome of a Manager.Set call.
type SetResult struct {
	// Hash is the hex-encoded content hash computed over the payload.
	Hash string

	// Status is the verification status assigned to the entry.
	Status VerificationStatus

	// Verified is true when an expected hash was supplied and matched.
	Verified bool

	// Stored is false when the entry was not persisted, which happens
	// only when verification failed and Config.PurgeFailed is set.
	Stored bool

	// Evicted lists the ids removed to make room for this write, in
	// eviction order. Empty when no eviction was needed.
	Evicted []string

	// BytesFreed is the total payload size reclaimed by eviction.
	BytesFreed int64
}

// VerificationReport is the result of an explicit integrity re-check.
type VerificationReport struct {
	Entry        *Entry
	Verified     bool
	ComputedHash string
	StoredHash   string
}

// StaleStatus describes where an entry sits in the freshness policy.
type StaleStatus struct {
	// IsStale is true once the entry's age exceeds Config.MaxAge.
	IsStale bool

	// NeedsRevalidation is true once the age also exceeds the
	// stale-while-revalidate grace period; the entry must then be
	// refreshed before use.
	NeedsRevalidation bool

	// Age is how long ago the entry was cached.
	Age time.Duration

	// RemainingTTL is the time left until the entry turns stale.
	// Zero once the entry is already stale.
	RemainingTTL time.Duration
}

// Stats summarizes the cache contents and observed behavior.
type Stats struct {
	EntryCount  int       `json:"entry_count"`
	TotalSize   int64     `json:"total_size_bytes"`
	MaxSize     int64     `json:"max_size_bytes"`
	OldestEntry time.Time `json:"oldest_entry,omitzero"`
	NewestEntry time.Time `json:"newest_entry,omitzero"`

	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Evictions int64   `json:"evictions"`
	Errors    int64   `json:"errors"`
}

// infoFromRecord projects a persisted record onto its metadata view.
func infoFromRecord(rec *Record) EntryInfo {
	return EntryInfo{
		ID:           rec.ID,
		Size:         rec.Size,
		ETag:         rec.ETag,
		SourceURL:    rec.SourceURL,
		ContentHash:  rec.ContentHash,
		Status:       rec.Status,
		CachedAt:     rec.CachedAt,
		LastAccessed: rec.LastAccessed,
	}
}

// entryFromRecord materializes a full entry, including payload bytes.
func entryFromRecord(rec *Record) *Entry {
	return &Entry{
		ID:           rec.ID,
		Payload:      rec.Payload,
		Size:         rec.Size,
		ETag:         rec.ETag,
		SourceURL:    rec.SourceURL,
		ContentHash:  rec.ContentHash,
		Status:       rec.Status,
		CachedAt:     rec.CachedAt,
		LastAccessed: rec.LastAccessed,
	}
}
