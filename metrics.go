package imagecache

import (
	"sync"
	"time"
)

// Metrics collects operational counters for the cache and fetcher.
// All methods are safe for concurrent use.
type Metrics struct {
	mu sync.Mutex

	hits      int64
	misses    int64
	evictions int64
	errors    int64

	bytesStored     int64 // payload bytes written into the cache
	bytesServed     int64 // payload bytes returned from cache hits
	bytesDownloaded int64 // payload bytes pulled over the network
	bytesEvicted    int64 // payload bytes reclaimed by eviction

	startTime time.Time
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Hits            int64         `json:"hits"`
	Misses          int64         `json:"misses"`
	HitRate         float64       `json:"hit_rate"`
	Evictions       int64         `json:"evictions"`
	Errors          int64         `json:"errors"`
	BytesStored     int64         `json:"bytes_stored"`
	BytesServed     int64         `json:"bytes_served"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	BytesEvicted    int64         `json:"bytes_evicted"`
	BandwidthSaved  int64         `json:"bandwidth_saved"`
	Uptime          time.Duration `json:"uptime"`
}

// NewMetrics creates a zeroed metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordHit records a cache hit serving the given number of bytes.
func (m *Metrics) RecordHit(bytesServed int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
	m.bytesServed += bytesServed
}

// RecordMiss records a cache miss.
func (m *Metrics) RecordMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

// RecordPut records payload bytes written into the cache.
func (m *Metrics) RecordPut(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytesStored += bytes
}

// RecordEviction records evicted entries and the bytes they freed.
func (m *Metrics) RecordEviction(count int, bytesFreed int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictions += int64(count)
	m.bytesEvicted += bytesFreed
}

// RecordError records a store or verification failure.
func (m *Metrics) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

// RecordDownload records payload bytes fetched over the network.
func (m *Metrics) RecordDownload(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytesDownloaded += bytes
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var hitRate float64
	if total := m.hits + m.misses; total > 0 {
		hitRate = float64(m.hits) / float64(total)
	}

	return MetricsSnapshot{
		Hits:            m.hits,
		Misses:          m.misses,
		HitRate:         hitRate,
		Evictions:       m.evictions,
		Errors:          m.errors,
		BytesStored:     m.bytesStored,
		BytesServed:     m.bytesServed,
		BytesDownloaded: m.bytesDownloaded,
		BytesEvicted:    m.bytesEvicted,
		BandwidthSaved:  m.bytesServed,
		Uptime:          time.Since(m.startTime),
	}
}
