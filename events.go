package imagecache

import (
	"sync"
	"time"
)

// EvictionEvent is published after entries are removed to reclaim
// space. UI layers subscribe to it to explain sudden cache shrinkage.
type EvictionEvent struct {
	// IDs lists the evicted entries in eviction order.
	IDs []string

	// BytesFreed is the total payload size reclaimed.
	BytesFreed int64

	// At is when the eviction completed.
	At time.Time
}

// ProgressEvent is published as download bytes arrive.
type ProgressEvent struct {
	// ID is the cache key being fetched.
	ID string

	// URL is the remote source.
	URL string

	// BytesDone is how many bytes have been received so far.
	BytesDone int64

	// BytesTotal is the expected payload size, or -1 when the origin
	// did not report one.
	BytesTotal int64
}

// EventSink receives engine events. Implementations must not block;
// events are delivered synchronously from the publishing goroutine.
type EventSink interface {
	OnEviction(EvictionEvent)
	OnDownloadProgress(ProgressEvent)
}

// Events is an explicit, typed event bus. The Manager and Fetcher
// publish to it and callers subscribe explicitly; there is no ambient
// global emitter.
type Events struct {
	mu    sync.RWMutex
	sinks []EventSink
}

// NewEvents creates an empty event bus.
func NewEvents() *Events {
	return &Events{}
}

// Subscribe registers a sink for all subsequent events.
func (e *Events) Subscribe(sink EventSink) {
	if sink == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
}

func (e *Events) publishEviction(ev EvictionEvent) {
	if e == nil {
		return
	}
	e.mu.RLock()
	sinks := e.sinks
	e.mu.RUnlock()
	for _, s := range sinks {
		s.OnEviction(ev)
	}
}

func (e *Events) publishProgress(ev ProgressEvent) {
	if e == nil {
		return
	}
	e.mu.RLock()
	sinks := e.sinks
	e.mu.RUnlock()
	for _, s := range sinks {
		s.OnDownloadProgress(ev)
	}
}
