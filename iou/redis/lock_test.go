//go:build unit

package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := NewFromUniversal(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := New(context.Background(), Config{Address: " " + mr.Addr() + " "})
	require.NoError(t, err)

	rdb, err := client.GetClient(context.Background())
	require.NoError(t, err)
	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err = client.GetClient(context.Background())
	assert.ErrorIs(t, err, ErrClientClosed)

	_, err = New(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestConfigAddresses(t *testing.T) {
	cfg := Config{Address: "a:6379, b:6379,,"}
	assert.Equal(t, []string{"a:6379", "b:6379"}, cfg.Addresses())
}

func TestWithLock(t *testing.T) {
	client, _ := setupTestRedis(t)

	locks, err := NewRedisLockManager(client)
	require.NoError(t, err)

	executed := false
	err = locks.WithLock(context.Background(), "lock:test", func(context.Context) error {
		executed = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, executed)
}

func TestWithLock_ReturnsFunctionErrorUnwrapped(t *testing.T) {
	client, _ := setupTestRedis(t)

	locks, err := NewRedisLockManager(client)
	require.NoError(t, err)

	sentinel := errors.New("conflict")
	err = locks.WithLock(context.Background(), "lock:test", func(context.Context) error { return sentinel })
	assert.Same(t, sentinel, err)
}

func TestWithLock_MutualExclusion(t *testing.T) {
	client, _ := setupTestRedis(t)

	locks, err := NewRedisLockManager(client)
	require.NoError(t, err)

	var inside, overlaps atomic.Int32

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := locks.WithLockOptions(context.Background(), "lock:shared", CommitLockOptions(), func(context.Context) error {
				if inside.Add(1) > 1 {
					overlaps.Add(1)
				}

				time.Sleep(10 * time.Millisecond)
				inside.Add(-1)

				return nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()
	assert.Zero(t, overlaps.Load())
}

func TestTryLock(t *testing.T) {
	client, _ := setupTestRedis(t)

	locks, err := NewRedisLockManager(client)
	require.NoError(t, err)

	ctx := context.Background()

	handle, acquired, err := locks.TryLock(ctx, "lock:try")
	require.NoError(t, err)
	require.True(t, acquired)

	second, acquired, err := locks.TryLock(ctx, "lock:try")
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.Nil(t, second)

	require.NoError(t, handle.Unlock(ctx))
	assert.ErrorIs(t, handle.Unlock(ctx), ErrLockNotHeld)
}

func TestLockValidation(t *testing.T) {
	client, _ := setupTestRedis(t)

	locks, err := NewRedisLockManager(client)
	require.NoError(t, err)

	noop := func(context.Context) error { return nil }

	assert.ErrorIs(t, locks.WithLock(context.Background(), " ", noop), ErrEmptyLockKey)
	assert.ErrorIs(t, locks.WithLock(context.Background(), "k", nil), ErrNilLockFn)
	assert.ErrorIs(t, locks.WithLockOptions(context.Background(), "k", LockOptions{Tries: 1}, noop), ErrInvalidLockOptions)
	assert.ErrorIs(t, locks.WithLockOptions(context.Background(), "k", LockOptions{Expiry: time.Second, Tries: 0}, noop), ErrInvalidLockOptions)

	_, err = NewRedisLockManager(nil)
	assert.ErrorIs(t, err, ErrNilClient)
}
