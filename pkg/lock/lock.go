package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when another holder owns the lease
var ErrNotAcquired = errors.New("lease held elsewhere")

// Locker hands out short-lived named leases
type Locker interface {
	// Acquire returns a release func, or ErrNotAcquired when the lease is taken
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// releaseScript deletes the key only when the caller still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker connects to redisURL and verifies it answers
func NewRedisLocker(ctx context.Context, redisURL, prefix string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisLocker{client: client, prefix: prefix}, nil
}

// Acquire takes the named lease for ttl
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	key := l.prefix + name
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lease %s: %w", name, err)
		}
		return nil
	}
	return release, nil
}

// Close closes the redis client
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

// Noop always grants the lease; used for single-replica deployments
type Noop struct{}

// Acquire always succeeds
func (Noop) Acquire(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}
