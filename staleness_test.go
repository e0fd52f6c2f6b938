package imagecache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geometryos/imagecache"
)

func TestIsStaleBoundaries(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	m := newTestManager(t, imagecache.WithClock(clk.Now))

	_, err := m.Set(ctx, "img", []byte("data"), imagecache.PutMetadata{})
	require.NoError(t, err)

	entry, err := m.Get(ctx, "img")
	require.NoError(t, err)
	require.NotNil(t, entry)

	tests := []struct {
		name              string
		age               time.Duration
		stale             bool
		needsRevalidation bool
	}{
		{
			name: "fresh",
			age:  6*24*time.Hour + 23*time.Hour,
		},
		{
			name: "exactly at max age",
			age:  7 * 24 * time.Hour,
		},
		{
			name:  "just past max age",
			age:   7*24*time.Hour + time.Hour,
			stale: true,
		},
		{
			name:              "past grace period",
			age:               8*24*time.Hour + time.Hour,
			stale:             true,
			needsRevalidation: true,
		},
		{
			name:              "long expired",
			age:               9 * 24 * time.Hour,
			stale:             true,
			needsRevalidation: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk.SetNow(entry.CachedAt.Add(tt.age))

			assert.Equal(t, tt.stale, m.IsStale(entry))
			assert.Equal(t, tt.needsRevalidation, m.NeedsRevalidation(entry))
		})
	}
}

func TestIsStaleNilEntry(t *testing.T) {
	m := newTestManager(t)

	assert.False(t, m.IsStale(nil))
	assert.False(t, m.NeedsRevalidation(nil))
}

func TestStaleStatus(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	m := newTestManager(t, imagecache.WithClock(clk.Now))

	_, err := m.Set(ctx, "img", []byte("data"), imagecache.PutMetadata{})
	require.NoError(t, err)

	t.Run("fresh entry", func(t *testing.T) {
		clk.Advance(24 * time.Hour)

		status, ok := m.StaleStatus(ctx, "img")
		require.True(t, ok)
		assert.False(t, status.IsStale)
		assert.False(t, status.NeedsRevalidation)
		assert.Equal(t, 24*time.Hour, status.Age)
		assert.Equal(t, 6*24*time.Hour, status.RemainingTTL)
	})

	t.Run("stale within grace period", func(t *testing.T) {
		clk.Advance(6*24*time.Hour + 12*time.Hour) // age 7d12h

		status, ok := m.StaleStatus(ctx, "img")
		require.True(t, ok)
		assert.True(t, status.IsStale)
		assert.False(t, status.NeedsRevalidation)
		assert.Equal(t, time.Duration(0), status.RemainingTTL)
	})

	t.Run("past grace period", func(t *testing.T) {
		clk.Advance(24 * time.Hour) // age 8d12h

		status, ok := m.StaleStatus(ctx, "img")
		require.True(t, ok)
		assert.True(t, status.IsStale)
		assert.True(t, status.NeedsRevalidation)
	})

	t.Run("unknown id", func(t *testing.T) {
		status, ok := m.StaleStatus(ctx, "absent")
		assert.False(t, ok)
		assert.Nil(t, status)
	})
}

func TestStaleStatusCustomWindows(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	m := newTestManager(t,
		imagecache.WithClock(clk.Now),
		imagecache.WithConfig(imagecache.Config{
			MaxAge:               time.Hour,
			StaleWhileRevalidate: 30 * time.Minute,
		}),
	)

	_, err := m.Set(ctx, "img", []byte("data"), imagecache.PutMetadata{})
	require.NoError(t, err)

	clk.Advance(90*time.Minute + time.Second)

	status, ok := m.StaleStatus(ctx, "img")
	require.True(t, ok)
	assert.True(t, status.IsStale)
	assert.True(t, status.NeedsRevalidation)
}
