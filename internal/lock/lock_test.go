package lock

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTryLock(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	unlock, err := l.TryLock(ctx, "prepare")
	require.NoError(t, err)

	_, err = l.TryLock(ctx, "prepare")
	assert.ErrorIs(t, err, ErrHeld)

	other, err := l.TryLock(ctx, "other")
	require.NoError(t, err)
	other()

	unlock()
	unlock()

	again, err := l.TryLock(ctx, "prepare")
	require.NoError(t, err)
	again()
}

func TestLocalTryLockCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocal().TryLock(ctx, "prepare")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeyedSerializesPerKey(t *testing.T) {
	k := NewKeyed()

	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("7")
			defer unlock()

			mu.Lock()
			inside++
			maxInside = max(maxInside, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Empty(t, k.locks)
}

func TestKeyedIndependentKeys(t *testing.T) {
	k := NewKeyed()
	unlockA := k.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestRedisTryLock(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	l := NewRedis(client, "mail-digest-test:", time.Minute)
	require.NoError(t, client.Del(ctx, l.Key("prepare")).Err())

	unlock, err := l.TryLock(ctx, "prepare")
	require.NoError(t, err)

	_, err = l.TryLock(ctx, "prepare")
	assert.ErrorIs(t, err, ErrHeld)

	unlock()

	again, err := l.TryLock(ctx, "prepare")
	require.NoError(t, err)
	again()
}

func TestRedisKey(t *testing.T) {
	l := NewRedis(nil, "mail-digest:", time.Minute)
	assert.Equal(t, "mail-digest:lock:prepare", l.Key("prepare"))
}
