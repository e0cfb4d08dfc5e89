package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	mu     sync.Mutex
	values map[string]int64
	ttls   map[string]time.Duration
	err    error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{values: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCounter) IncrWithExpire(_ context.Context, key string, expiration time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.values[key]++
	f.ttls[key] = expiration
	return f.values[key], nil
}

func (f *fakeCounter) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.values[key]
	return ok, nil
}

func (f *fakeCounter) Set(_ context.Context, key string, _ interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = 1
	f.ttls[key] = expiration
	return nil
}

func (f *fakeCounter) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
		delete(f.ttls, k)
	}
	return nil
}

func TestConfirmationAttemptCacheLocksAtMax(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCounter()
	cache := NewConfirmationAttemptCache(fake, 3, time.Minute)

	for i := 1; i <= 2; i++ {
		n, err := cache.RecordFailure(ctx, "tx1", "r1")
		require.NoError(t, err)
		assert.Equal(t, i, n)
		locked, err := cache.IsLocked(ctx, "tx1", "r1")
		require.NoError(t, err)
		assert.False(t, locked)
	}

	n, err := cache.RecordFailure(ctx, "tx1", "r1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	locked, err := cache.IsLocked(ctx, "tx1", "r1")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, time.Minute, fake.ttls[lockKey("tx1", "r1")])

	other, err := cache.IsLocked(ctx, "tx1", "someone-else")
	require.NoError(t, err)
	assert.False(t, other)

	require.NoError(t, cache.Reset(ctx, "tx1", "r1"))
	locked, err = cache.IsLocked(ctx, "tx1", "r1")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestConfirmationAttemptCacheSurfacesErrors(t *testing.T) {
	fake := newFakeCounter()
	fake.err = errors.New("connection refused")
	cache := NewConfirmationAttemptCache(fake, 0, 0)

	_, err := cache.RecordFailure(context.Background(), "tx1", "r1")
	assert.Error(t, err)
	_, err = cache.IsLocked(context.Background(), "tx1", "r1")
	assert.Error(t, err)
}
