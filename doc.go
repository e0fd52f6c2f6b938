// Package imagecache provides durable caching and retrieval of container
// images downloaded from remote servers.
//
// The package is built from two cooperating components:
//   - Manager owns all cached entries: content hashing, verification,
//     size accounting, LRU eviction, and staleness policy.
//   - Fetcher performs streaming, resumable, retrying HTTP downloads and
//     persists completed payloads through the Manager.
//
// Persistence is delegated to a pluggable Store. Two backends ship with
// the module: boltstore (single-file bbolt database) and fsstore
// (file-per-entry over a filesystem abstraction). The memstore backend
// provides an in-memory store for tests.
//
// Basic usage:
//
//	store, err := boltstore.Open("/var/lib/imagecache/cache.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	manager, err := imagecache.NewManager(ctx, store)
//	if err != nil {
//	    return err
//	}
//
//	fetcher := imagecache.NewFetcher(manager)
//	result, err := fetcher.Fetch(ctx, imagecache.FetchRequest{
//	    ID:           "alpine-3.19",
//	    URL:          "https://images.example.com/alpine-3.19.img",
//	    ExpectedHash: expectedHash,
//	})
//
// Cache failures are never fatal: read operations degrade to empty
// results when the underlying store is unreachable, so callers can
// always treat a broken cache as a cold one.
package imagecache
