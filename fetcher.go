// Package imagecache provides container image caching and retrieval.
// This file contains the fetcher: streaming, resumable, retrying HTTP
// downloads that populate the cache.
package imagecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// defaultMaxRetries bounds how many times a transient failure is
	// retried after the initial attempt.
	defaultMaxRetries = 3

	// defaultBackoffBase is the first retry delay; it doubles per retry.
	defaultBackoffBase = time.Second

	// defaultUserAgent identifies the engine to origin servers.
	defaultUserAgent = "geometryos-imagecache/1"

	// fetchChunkSize is the read granularity for streaming downloads and
	// the cadence of progress reporting.
	fetchChunkSize = 32 * 1024
)

// FetchRequest describes a download. Catalog callers supply the id and
// expected hash; both are optional.
type FetchRequest struct {
	// ID is the cache key for the payload. When empty, a stable key is
	// derived from the URL.
	ID string

	// URL is the remote source. Required.
	URL string

	// ExpectedHash, when non-empty, is handed to the cache at write time
	// and determines the entry's verification status.
	ExpectedHash string

	// Progress, when non-nil, is invoked as bytes arrive with the bytes
	// received so far and the expected total (-1 when unknown).
	Progress func(done, total int64)
}

// FetchResult reports a completed fetch.
type FetchResult struct {
	// Entry is the cached entry the fetch produced or found.
	Entry *Entry

	// FromCache is true when no network request was made.
	FromCache bool

	// Verified is true when an expected hash was supplied and matched.
	Verified bool

	// Attempts is how many HTTP requests were issued. Zero for cache
	// hits.
	Attempts int

	// BytesFetched is how many payload bytes came over the network.
	BytesFetched int64
}

// Fetcher retrieves container images over HTTP(S) with progress
// reporting, bounded retry, and Range-based resumption, persisting
// completed payloads through the Manager. It is safe for concurrent
// use.
type Fetcher struct {
	cache       *Manager
	client      *http.Client
	logger      *Logger
	events      *Events
	userAgent   string
	maxRetries  int
	backoffBase time.Duration

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// NewFetcher creates a fetcher that stores completed downloads in the
// given cache manager.
func NewFetcher(cache *Manager, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		cache:       cache,
		client:      defaultHTTPClient(),
		logger:      NewNopLogger(),
		events:      NewEvents(),
		userAgent:   defaultUserAgent,
		maxRetries:  defaultMaxRetries,
		backoffBase: defaultBackoffBase,
		inflight:    make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// defaultHTTPClient bounds connection setup and response headers but
// leaves the overall request open-ended: image bodies can be large and
// slow without being stuck.
func defaultHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Fetch retrieves the payload for the request, cache-first. A cached
// entry that does not yet need revalidation is returned without network
// I/O, including entries inside the stale-while-revalidate grace
// period. Otherwise the payload is streamed from the origin with up to
// maxRetries retries for transient failures, resuming partial bodies
// with Range requests, and then stored through the Manager.
//
// On a hash mismatch the returned error wraps ErrHashMismatch but the
// result still carries the (flagged) entry, matching the cache's
// trust-but-flag policy. Cancellation surfaces ErrCancelled and leaves
// no partial entry behind.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	if req.URL == "" {
		return nil, errors.New("url cannot be empty")
	}
	id := req.ID
	if id == "" {
		id = deriveID(req.URL)
	}
	logger := f.logger.WithOperation("fetch").WithKey(id)

	cached, err := f.cache.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cached != nil && !f.cache.NeedsRevalidation(cached) {
		logger.Debug(ctx, "serving from cache", "stale", f.cache.IsStale(cached))
		return &FetchResult{
			Entry:     cached,
			FromCache: true,
			Verified:  cached.Status == VerificationVerified,
		}, nil
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	f.track(id, cancel)
	defer f.untrack(id)

	body, etag, attempts, err := f.download(fetchCtx, id, req, logger)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			err = ErrCancelled
		}
		fetchErr := &FetchError{Op: "fetch", URL: req.URL, Attempts: attempts, Err: err}
		if errors.Is(err, ErrCancelled) {
			logger.Debug(ctx, "fetch cancelled")
		} else {
			logger.Warn(ctx, "fetch failed", "attempts", attempts, "error", err)
		}
		return nil, fetchErr
	}

	f.cache.Metrics().RecordDownload(int64(len(body)))
	logger.WithSize(int64(len(body))).Info(ctx, "download complete", "attempts", attempts)

	setRes, err := f.cache.Set(ctx, id, body, PutMetadata{
		ETag:         etag,
		ExpectedHash: req.ExpectedHash,
		SourceURL:    req.URL,
	})
	if err != nil {
		return nil, err
	}

	entry, _ := f.cache.Get(ctx, id)
	if entry == nil {
		// Not persisted (purge-on-failure policy); hand the caller the
		// in-memory result anyway.
		entry = &Entry{
			ID:          id,
			Payload:     body,
			Size:        int64(len(body)),
			ETag:        etag,
			SourceURL:   req.URL,
			ContentHash: setRes.Hash,
			Status:      setRes.Status,
		}
	}

	result := &FetchResult{
		Entry:        entry,
		Verified:     setRes.Verified,
		Attempts:     attempts,
		BytesFetched: int64(len(body)),
	}
	if req.ExpectedHash != "" && !setRes.Verified {
		return result, &FetchError{Op: "fetch", URL: req.URL, Attempts: attempts, Err: ErrHashMismatch}
	}
	return result, nil
}

// Cancel aborts the in-flight download for id, if any, reporting
// whether one was found. The aborted fetch returns ErrCancelled and no
// partial payload reaches the store.
func (f *Fetcher) Cancel(id string) bool {
	f.mu.Lock()
	cancel, ok := f.inflight[id]
	f.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (f *Fetcher) track(id string, cancel context.CancelFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight[id] = cancel
}

func (f *Fetcher) untrack(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inflight, id)
}

// download runs the retry loop. Partial bodies survive across attempts
// so a retry can resume with a Range request instead of starting over.
func (f *Fetcher) download(ctx context.Context, id string, req FetchRequest, logger *Logger) (body []byte, etag string, attempts int, err error) {
	var buf bytes.Buffer
	total := int64(-1)

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			wait := f.backoffFor(attempt)
			logger.Debug(ctx, "retrying download",
				"attempt", attempt, "wait", wait, "resume_offset", buf.Len())
			select {
			case <-ctx.Done():
				return nil, "", attempts, ctx.Err()
			case <-time.After(wait):
			}
		}

		attempts = attempt + 1
		etag, err = f.attempt(ctx, id, req, &buf, &total)
		if err == nil {
			return buf.Bytes(), etag, attempts, nil
		}
		if ctx.Err() != nil {
			return nil, "", attempts, ctx.Err()
		}
		if !isTransient(err) {
			return nil, "", attempts, err
		}
		lastErr = err
	}
	return nil, "", attempts, lastErr
}

// attempt issues one GET, resuming from the buffered offset when there
// is one. It appends received bytes to buf and reports progress per
// chunk. A body cut short is returned as io.ErrUnexpectedEOF so the
// retry loop resumes it.
func (f *Fetcher) attempt(ctx context.Context, id string, req FetchRequest, buf *bytes.Buffer, total *int64) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", req.URL, err)
	}
	httpReq.Header.Set("User-Agent", f.userAgent)

	offset := int64(buf.Len())
	if offset > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Origin ignored the Range (or none was sent): restart.
		buf.Reset()
		*total = resp.ContentLength
	case http.StatusPartialContent:
		if t, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
			*total = t
		}
	default:
		if resp.StatusCode >= 400 {
			return "", &HTTPStatusError{Code: resp.StatusCode}
		}
		return "", fmt.Errorf("%w: status %d", ErrMalformedResponse, resp.StatusCode)
	}

	respETag := resp.Header.Get("ETag")

	chunk := make([]byte, fetchChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			done := int64(buf.Len())
			if req.Progress != nil {
				req.Progress(done, *total)
			}
			f.events.publishProgress(ProgressEvent{
				ID:         id,
				URL:        req.URL,
				BytesDone:  done,
				BytesTotal: *total,
			})
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return "", readErr
		}
	}

	if *total >= 0 && int64(buf.Len()) < *total {
		return "", io.ErrUnexpectedEOF
	}
	return respETag, nil
}

// backoffFor returns the wait before the given retry: the base doubled
// per retry, plus up to 25% jitter.
func (f *Fetcher) backoffFor(retry int) time.Duration {
	wait := f.backoffBase << (retry - 1)
	if jitterRange := int64(wait / 4); jitterRange > 0 {
		wait += time.Duration(rand.Int64N(jitterRange))
	}
	return wait
}

// parseContentRangeTotal extracts the complete length from a
// "bytes start-end/total" Content-Range header. The total may be "*"
// when the origin does not know it.
func parseContentRangeTotal(header string) (int64, bool) {
	_, totalPart, ok := strings.Cut(header, "/")
	if !ok || totalPart == "*" {
		return 0, false
	}
	total, err := strconv.ParseInt(totalPart, 10, 64)
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}
