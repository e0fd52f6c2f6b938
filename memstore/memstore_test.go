package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geometryos/imagecache"
)

func testRecord(id string) *imagecache.Record {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &imagecache.Record{
		ID:           id,
		Payload:      []byte("payload-" + id),
		Size:         int64(len("payload-" + id)),
		ContentHash:  "abc123",
		Status:       imagecache.VerificationPending,
		CachedAt:     now,
		LastAccessed: now,
	}
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Put(ctx, testRecord("a")))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, []byte("payload-a"), got.Payload)
	assert.Equal(t, imagecache.VerificationPending, got.Status)
}

func TestGetNotFound(t *testing.T) {
	s := New()

	_, err := s.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, imagecache.ErrNotFound)
}

func TestPutEmptyID(t *testing.T) {
	s := New()

	assert.Error(t, s.Put(context.Background(), &imagecache.Record{}))
	assert.Error(t, s.Put(context.Background(), nil))
}

func TestPutReplaces(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Put(ctx, testRecord("a")))

	updated := testRecord("a")
	updated.Payload = []byte("new payload")
	updated.Size = int64(len(updated.Payload))
	require.NoError(t, s.Put(ctx, updated))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("new payload"), got.Payload)
	assert.Equal(t, 1, s.Len())
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Put(ctx, testRecord("a")))

	first, err := s.Get(ctx, "a")
	require.NoError(t, err)
	first.Payload[0] = 'X'
	first.Status = imagecache.VerificationFailed

	second, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload-a"), second.Payload)
	assert.Equal(t, imagecache.VerificationPending, second.Status)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Put(ctx, testRecord("a")))

	require.NoError(t, s.Delete(ctx, "a"))
	assert.ErrorIs(t, s.Delete(ctx, "a"), imagecache.ErrNotFound)

	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, imagecache.ErrNotFound)
}

func TestGetAllOmitsPayloads(t *testing.T) {
	ctx := context.Background()
	s := New()
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

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Put(ctx, testRecord("a")))
	require.NoError(t, s.Put(ctx, testRecord("b")))

	removed, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	removed, err = s.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Put(ctx, testRecord("a")), context.Canceled)
}
