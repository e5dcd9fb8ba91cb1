package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// REDIS LOCKER
// =============================================================================

// Redis is a Locker backed by bsm/redislock. The TTL bounds how long a
// crashed holder can block a party.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	retry  time.Duration
	log    *logrus.Entry
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Retry    time.Duration // backoff between attempts while ctx allows
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, opts RedisOptions, log *logrus.Entry) (*Redis, func() error, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return NewRedisFromClient(rdb, opts, log), rdb.Close, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb redislock.RedisClient, opts RedisOptions, log *logrus.Entry) *Redis {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Retry <= 0 {
		opts.Retry = 100 * time.Millisecond
	}
	return &Redis{client: redislock.New(rdb), ttl: opts.TTL, retry: opts.Retry, log: log}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := r.client.Obtain(ctx, key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.retry),
	})
	// A deadline can also surface as a Redis call error mid-retry.
	if errors.Is(err, redislock.ErrNotObtained) || (err != nil && ctx.Err() != nil) {
		return nil, errors.Join(fmt.Errorf("%w: %s", ErrNotObtained, key), ctx.Err())
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	return func() {
		// Release with a fresh context: the caller's may already be done.
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(relCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.log.WithError(err).WithField("key", key).Warn("failed to release redis lock")
		}
	}, nil
}
