// Package imagecache provides container image caching and retrieval.
// This file contains functional options for the Manager and Fetcher.
package imagecache

import (
	"net/http"
	"time"
)

// ManagerOption is a functional option for configuring the Manager.
type ManagerOption func(*Manager)

// WithConfig sets the cache configuration. Zero fields are filled with
// defaults; see Config.SetDefaults.
func WithConfig(cfg Config) ManagerOption {
	return func(m *Manager) {
		m.config = cfg
	}
}

// WithHasher injects a custom hashing capability. The default is
// chunked SHA-256.
func WithHasher(h Hasher) ManagerOption {
	return func(m *Manager) {
		if h != nil {
			m.hasher = h
		}
	}
}

// WithLogger sets the structured logger. The default discards all
// records.
func WithLogger(l *Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics injects a shared metrics collector, letting callers
// aggregate manager and fetcher counters in one place.
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithEvents attaches the event bus eviction events are published to.
func WithEvents(events *Events) ManagerOption {
	return func(m *Manager) {
		if events != nil {
			m.events = events
		}
	}
}

// WithClock overrides the time source. Used by tests to pin staleness
// boundaries.
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// FetcherOption is a functional option for configuring the Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the HTTP client used for downloads. The default
// client applies a 30 second dial/header timeout but no overall request
// deadline, since image downloads are long-running.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithRetryPolicy sets the maximum number of retries after the initial
// attempt and the base backoff. Backoff doubles per retry and carries
// jitter, so the defaults (3, 1s) produce waits of roughly 1s, 2s, 4s.
func WithRetryPolicy(maxRetries int, backoffBase time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if maxRetries >= 0 {
			f.maxRetries = maxRetries
		}
		if backoffBase > 0 {
			f.backoffBase = backoffBase
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithFetcherLogger sets the fetcher's structured logger.
func WithFetcherLogger(l *Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithFetcherEvents attaches the event bus progress events are
// published to.
func WithFetcherEvents(events *Events) FetcherOption {
	return func(f *Fetcher) {
		if events != nil {
			f.events = events
		}
	}
}
