package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryPutGet(t *testing.T) {
	clock := newClock()
	store := NewInMemoryStorage(WithClock(clock.Now))
	ctx := context.Background()

	put, err := store.PutCacheRecord(ctx, "fp", "caches/xyz", "nb", 0)
	require.NoError(t, err)
	assert.Equal(t, "xyz", put.RemoteCacheID)
	assert.Equal(t, clock.Now().Add(time.Hour), put.ExpiresAt)

	got, err := store.GetCacheRecord(ctx, "fp")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, *put, *got)
}

func TestInMemoryExpiry(t *testing.T) {
	clock := newClock()
	store := NewInMemoryStorage(WithClock(clock.Now))
	ctx := context.Background()

	_, err := store.PutCacheRecord(ctx, "fp", "xyz", "nb", 10*time.Second)
	require.NoError(t, err)

	clock.Advance(10 * time.Second)
	got, err := store.GetCacheRecord(ctx, "fp")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, store.Len(), "expired entry stays until overwritten")

	_, err = store.PutCacheRecord(ctx, "fp", "fresh", "nb", 10*time.Second)
	require.NoError(t, err)
	got, err = store.GetCacheRecord(ctx, "fp")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "fresh", got.RemoteCacheID)
}

func TestInMemoryReturnsCopies(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()

	_, err := store.PutCacheRecord(ctx, "fp", "xyz", "nb", time.Hour)
	require.NoError(t, err)

	got, err := store.GetCacheRecord(ctx, "fp")
	require.NoError(t, err)
	got.RemoteCacheID = "mutated"

	again, err := store.GetCacheRecord(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, "xyz", again.RemoteCacheID)
}

func TestInMemoryConcurrentPutsLastWriteWins(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = store.PutCacheRecord(ctx, "fp", id, "nb", time.Hour)
		}(string(rune('a' + i)))
	}
	wg.Wait()

	got, err := store.GetCacheRecord(ctx, "fp")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, store.Len())
}

func TestInMemoryList(t *testing.T) {
	clock := newClock()
	store := NewInMemoryStorage(WithClock(clock.Now))
	ctx := context.Background()

	_, _ = store.PutCacheRecord(ctx, "a", "1", "nb", time.Minute)
	_, _ = store.PutCacheRecord(ctx, "b", "2", "nb", time.Hour)
	_, _ = store.PutCacheRecord(ctx, "c", "3", "other", time.Hour)

	records, err := store.ListCacheRecords(ctx, "nb")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].Fingerprint)

	clock.Advance(time.Minute)
	records, err = store.ListCacheRecords(ctx, "nb")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
