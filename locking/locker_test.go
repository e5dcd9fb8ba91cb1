package locking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SerializesSameKey(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, PartyKey("c1"))
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, l.held(), "slots are cleaned up once idle")
}

func TestLocal_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, PartyKey("a"))
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := l.Lock(ctx, PartyKey("b"))
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestLocal_ContextCancellation(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, ErrNotObtained)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, l.held())

	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func TestNewRedisFromClient_Defaults(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	r := NewRedisFromClient(rdb, RedisOptions{}, logrus.NewEntry(logrus.New()))
	assert.Equal(t, 30*time.Second, r.ttl)
	assert.Equal(t, 100*time.Millisecond, r.retry)
}

func TestPartyKey(t *testing.T) {
	assert.Equal(t, "allocation:c-9", PartyKey("c-9"))
}

// =============================================================================
// REDIS LOCKER
// =============================================================================

func newRedisLocker(t *testing.T, opts RedisOptions) (*Redis, *miniredis.Miniredis, *test.Hook) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger, hook := test.NewNullLogger()
	if opts.Retry == 0 {
		opts.Retry = 2 * time.Millisecond
	}
	return NewRedisFromClient(rdb, opts, logrus.NewEntry(logger)), mr, hook
}

func TestRedis_SerializesSameKey(t *testing.T) {
	r, mr, hook := newRedisLocker(t, RedisOptions{})
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := r.Lock(ctx, PartyKey("c1"))
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.False(t, mr.Exists(PartyKey("c1")), "key is deleted on release")
	assert.Empty(t, hook.AllEntries())
}

func TestRedis_ContextCancellation(t *testing.T) {
	r, mr, hook := newRedisLocker(t, RedisOptions{})
	unlock, err := r.Lock(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, mr.Exists("k"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = r.Lock(ctx, "k")
	assert.ErrorIs(t, err, ErrNotObtained)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // lock no longer held: ignored, nothing logged
	assert.False(t, mr.Exists("k"))
	assert.Empty(t, hook.AllEntries())

	again, err := r.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func TestRedis_ReleaseUsesFreshContext(t *testing.T) {
	r, mr, _ := newRedisLocker(t, RedisOptions{})
	ctx, cancel := context.WithCancel(context.Background())

	unlock, err := r.Lock(ctx, "k")
	require.NoError(t, err)
	cancel()
	unlock()

	assert.False(t, mr.Exists("k"), "released even though the caller's context is done")
}

func TestRedis_ExpiredLockDoesNotReleaseNewHolder(t *testing.T) {
	// GIVEN: the first holder's TTL runs out and a second holder takes the key
	r, mr, hook := newRedisLocker(t, RedisOptions{TTL: 100 * time.Millisecond})
	first, err := r.Lock(context.Background(), "k")
	require.NoError(t, err)
	mr.FastForward(200 * time.Millisecond)

	second, err := r.Lock(context.Background(), "k")
	require.NoError(t, err)

	// WHEN: the first holder releases late
	first()

	// THEN: the second holder keeps the key
	assert.True(t, mr.Exists("k"))
	assert.Empty(t, hook.AllEntries())
	second()
	assert.False(t, mr.Exists("k"))
}

func TestRedis_ReleaseFailureIsLogged(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	logger, hook := test.NewNullLogger()
	r := NewRedisFromClient(rdb, RedisOptions{}, logrus.NewEntry(logger))

	unlock, err := r.Lock(context.Background(), "k")
	require.NoError(t, err)
	mr.Close()
	unlock()

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "k", hook.LastEntry().Data["key"])
}

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	log := logrus.NewEntry(logrus.New())

	r, closeRedis, err := NewRedis(context.Background(), RedisOptions{Addr: mr.Addr()}, log)
	require.NoError(t, err)
	unlock, err := r.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	require.NoError(t, closeRedis())

	down, err := miniredis.Run()
	require.NoError(t, err)
	addr := down.Addr()
	down.Close()
	_, _, err = NewRedis(context.Background(), RedisOptions{Addr: addr}, log)
	assert.ErrorContains(t, err, "connect redis")
}
