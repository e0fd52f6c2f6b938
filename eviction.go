package imagecache

import "sort"

// lruOrder returns the records sorted into eviction order: ascending
// LastAccessed, with CachedAt and then ID breaking ties so the order is
// deterministic. The skip id is excluded.
func lruOrder(records []*Record, skip string) []*Record {
	ordered := make([]*Record, 0, len(records))
	for _, rec := range records {
		if rec.ID == skip {
			continue
		}
		ordered = append(ordered, rec)
	}

	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.LastAccessed.Equal(b.LastAccessed) {
			return a.LastAccessed.Before(b.LastAccessed)
		}
		if !a.CachedAt.Equal(b.CachedAt) {
			return a.CachedAt.Before(b.CachedAt)
		}
		return a.ID < b.ID
	})

	return ordered
}
