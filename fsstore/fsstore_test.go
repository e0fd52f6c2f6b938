package fsstore

import (
	"context"
	"testing"
	"time"

	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geometryos/imagecache"
)

func newTestStore(t *testing.T) (*Store, core.FS) {
	t.Helper()
	fsys := billy.NewMemory()
	s, err := New(fsys, "cache")
	require.NoError(t, err)
	return s, fsys
}

func testRecord(id string) *imagecache.Record {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &imagecache.Record{
		ID:           id,
		Payload:      []byte("payload-" + id),
		Size:         int64(len("payload-" + id)),
		ETag:         `"v1"`,
		SourceURL:    "https://images.example.com/" + id,
		ContentHash:  "abc123",
		Status:       imagecache.VerificationPending,
		CachedAt:     now,
		LastAccessed: now,
	}
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	rec := testRecord("a")
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, []byte("payload-a"), got.Payload)
	assert.Equal(t, rec.ETag, got.ETag)
	assert.NotEmpty(t, got.PayloadRef)
	assert.True(t, rec.CachedAt.Equal(got.CachedAt))
}

func TestGetNotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, imagecache.ErrNotFound)
}

func TestPutEmptyID(t *testing.T) {
	s, _ := newTestStore(t)

	assert.Error(t, s.Put(context.Background(), &imagecache.Record{}))
	assert.Error(t, s.Put(context.Background(), nil))
}

func TestPutHandlesUnsafeIDs(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	// Ids with path separators and dots must not escape the root.
	id := "../../etc/passwd"
	rec := testRecord("x")
	rec.ID = id
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Put(ctx, testRecord("a")))

	require.NoError(t, s.Delete(ctx, "a"))
	assert.ErrorIs(t, s.Delete(ctx, "a"), imagecache.ErrNotFound)

	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, imagecache.ErrNotFound)
}

func TestGetAllOmitsPayloads(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Put(ctx, testRecord("a")))
	require.NoError(t, s.Put(ctx, testRecord("b")))

	records, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Nil(t, rec.Payload)
		assert.NotZero(t, rec.Size)
	}
}

func TestGetAllSkipsCorruptMetadata(t *testing.T) {
	ctx := context.Background()
	s, fsys := newTestStore(t)
	require.NoError(t, s.Put(ctx, testRecord("a")))

	require.NoError(t, fsys.WriteFile("cache/garbage.json", []byte("{not json"), 0o644))

	records, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].ID)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Put(ctx, testRecord("a")))
	require.NoError(t, s.Put(ctx, testRecord("b")))

	removed, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	removed, err = s.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	ctx := context.Background()
	s, fsys := newTestStore(t)
	require.NoError(t, s.Put(ctx, testRecord("a")))

	entries, err := fsys.ReadDir("cache")
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), tmpExt)
	}
}

func TestWorksAsManagerBackend(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	m, err := imagecache.NewManager(ctx, s)
	require.NoError(t, err)

	_, err = m.Set(ctx, "img", []byte("container image"), imagecache.PutMetadata{})
	require.NoError(t, err)

	entry, err := m.Get(ctx, "img")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []byte("container image"), entry.Payload)
	assert.True(t, m.Has(ctx, "img"))
}
