package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultLockTTL matches the default background task timeout
	DefaultLockTTL = 3 * time.Minute
	// DefaultRetryInterval is the wait between acquisition attempts
	DefaultRetryInterval = 100 * time.Millisecond

	keyPrefix = "helpdesk:lock:"
)

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// extendScript resets the expiry only if the key still holds our token
var extendScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return 0
`)

// lockBackend holds token-owned keys with an expiry
type lockBackend interface {
	acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	release(ctx context.Context, key, token string) error
}

type redisBackend struct {
	client redis.Cmdable
}

func (b redisBackend) acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return b.client.SetNX(ctx, key, token, ttl).Result()
}

func (b redisBackend) extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, b.client, []string{key}, token, ttl.Milliseconds()).Int()
	return n == 1, err
}

func (b redisBackend) release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, b.client, []string{key}, token).Err()
}

// RedisLocker is a Locker shared by every replica using the same Redis.
// A held lock is extended every third of its TTL until released, so a
// holder that outlives the TTL keeps the key.
type RedisLocker struct {
	backend       lockBackend
	ttl           time.Duration
	retryInterval time.Duration
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// NewRedisLocker creates a Redis-backed locker; zero durations use the defaults
func NewRedisLocker(client redis.Cmdable, ttl, retryInterval time.Duration) *RedisLocker {
	return newRedisLocker(redisBackend{client: client}, ttl, retryInterval)
}

func newRedisLocker(backend lockBackend, ttl, retryInterval time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	return &RedisLocker{backend: backend, ttl: ttl, retryInterval: retryInterval}
}

// Lock implements Locker. Redis errors are returned rather than retried.
func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.backend.acquire(ctx, redisKey, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(redisKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			// An expired lock is simply left to Redis
			_ = l.backend.release(releaseCtx, redisKey, token)
		})
	}, nil
}

// keepAlive extends the key until stop closes or the key is no longer ours
func (l *RedisLocker) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			held, err := l.backend.extend(ctx, key, token, l.ttl)
			cancel()
			if err == nil && !held {
				return
			}
		}
	}
}
