package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := NewCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestDraftRoundTrip(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()

	text, err := cache.GetDraft(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, text)

	require.NoError(t, cache.SetDraft(ctx, "s1", "work in progress"))
	text, err = cache.GetDraft(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "work in progress", text)

	// Empty text deletes the draft
	require.NoError(t, cache.SetDraft(ctx, "s1", ""))
	text, err = cache.GetDraft(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestValueRoundTrip(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()

	_, ok, err := cache.GetValue(ctx, "push-token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.SetValue(ctx, "push-token", "tok-1"))
	require.NoError(t, cache.SetValue(ctx, "push-token", "tok-2"))

	value, ok, err := cache.GetValue(ctx, "push-token")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok-2", value)
}

func TestRecordsRoundTrip(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()

	records := []CachedRecord{
		{RecordID: "r2", Seq: 2, Body: []byte(`{"n":2}`), EventAt: 2000},
		{RecordID: "r1", Seq: 1, Body: []byte(`{"n":1}`), EventAt: 1000},
	}
	require.NoError(t, cache.PutRecords(ctx, "s1", records))

	// Re-inserting the same ids must not duplicate
	require.NoError(t, cache.PutRecords(ctx, "s1", []CachedRecord{
		{RecordID: "r1", Seq: 1, Body: []byte(`{"n":1}`), EventAt: 1000},
	}))

	loaded, err := cache.GetRecords(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "r1", loaded[0].RecordID)
	assert.Equal(t, int64(1000), loaded[0].EventAt)
	assert.Equal(t, "r2", loaded[1].RecordID)
	assert.Equal(t, int64(2000), loaded[1].EventAt)
}

func TestRecordsScopedToSession(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()

	require.NoError(t, cache.PutRecords(ctx, "s1", []CachedRecord{{RecordID: "r1", Seq: 1, Body: []byte(`{}`)}}))
	require.NoError(t, cache.PutRecords(ctx, "s2", []CachedRecord{{RecordID: "r1", Seq: 1, Body: []byte(`{}`)}}))

	loaded, err := cache.GetRecords(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestDropSession(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetDraft(ctx, "s1", "draft"))
	require.NoError(t, cache.PutRecords(ctx, "s1", []CachedRecord{{RecordID: "r1", Seq: 1, Body: []byte(`{}`)}}))
	require.NoError(t, cache.SetDraft(ctx, "s2", "other"))

	require.NoError(t, cache.DropSession(ctx, "s1"))

	text, err := cache.GetDraft(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, text)

	loaded, err := cache.GetRecords(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, loaded)

	text, err = cache.GetDraft(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, "other", text)
}
