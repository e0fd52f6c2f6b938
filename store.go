package imagecache

import "context"

// Store is the durable keyed storage medium the Manager is built on.
// Each operation must be atomic with respect to its single key; the
// engine never assumes multi-key transactions.
//
// Implementations must return ErrNotFound (possibly wrapped) from Get
// and Delete when the id is absent, ErrQuotaExceeded when a write is
// rejected for lack of space, and ErrStoreUnavailable when the backing
// medium cannot be used at all.
type Store interface {
	// Get returns the full record for id, including payload bytes.
	Get(ctx context.Context, id string) (*Record, error)

	// Put stores or replaces the record for rec.ID.
	Put(ctx context.Context, rec *Record) error

	// Delete removes the record for id.
	Delete(ctx context.Context, id string) error

	// GetAll returns metadata for every stored record. Implementations
	// omit payload bytes; callers needing payload use Get.
	GetAll(ctx context.Context) ([]*Record, error)

	// Clear removes all records and returns how many were removed.
	Clear(ctx context.Context) (int, error)
}
