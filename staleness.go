// Package imagecache provides container image caching and retrieval.
// This file contains the freshness policy: a fresh window of MaxAge
// followed by a stale-while-revalidate grace period.
package imagecache

import "context"

// IsStale reports whether the entry's age exceeds MaxAge. A stale entry
// that has not yet exceeded the grace period may still be served.
func (m *Manager) IsStale(e *Entry) bool {
	if e == nil {
		return false
	}
	return m.clock().Sub(e.CachedAt) > m.config.MaxAge
}

// NeedsRevalidation reports whether the entry's age exceeds MaxAge plus
// the stale-while-revalidate grace period, at which point it must be
// refreshed before use.
func (m *Manager) NeedsRevalidation(e *Entry) bool {
	if e == nil {
		return false
	}
	return m.clock().Sub(e.CachedAt) > m.config.MaxAge+m.config.StaleWhileRevalidate
}

// StaleStatus reports where the entry for id sits in the freshness
// policy. The boolean is false when the id is not cached.
func (m *Manager) StaleStatus(ctx context.Context, id string) (*StaleStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec := m.findMetadataLocked(ctx, id)
	if rec == nil {
		return nil, false
	}

	age := m.clock().Sub(rec.CachedAt)
	status := &StaleStatus{
		IsStale:           age > m.config.MaxAge,
		NeedsRevalidation: age > m.config.MaxAge+m.config.StaleWhileRevalidate,
		Age:               age,
	}
	if remaining := m.config.MaxAge - age; remaining > 0 {
		status.RemainingTTL = remaining
	}
	return status, true
}
