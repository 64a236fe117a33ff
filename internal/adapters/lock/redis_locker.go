package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/providers"
	redisclient "github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/clients/redis"
)

const defaultKeyPrefix = "lock:"

// releaseScript deletes the key only if it still holds our token, so a lease
// that expired and was taken by another instance is left alone.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker grants exclusive leases backed by SET NX PX.
type RedisLocker struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisLocker creates a new locker. An empty prefix defaults to "lock:".
func NewRedisLocker(client *redisclient.Client, keyPrefix string) providers.Locker {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisLocker{client: client.Client(), keyPrefix: keyPrefix}
}

// TryAcquire takes the lease without waiting.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (providers.Lock, error) {
	lockKey := l.keyPrefix + key
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, providers.ErrLockNotAcquired
	}

	log.Ctx(ctx).Debug().Str("lock", lockKey).Dur("ttl", ttl).Msg("acquired lock")
	return &redisLock{client: l.client, key: lockKey, token: token}, nil
}

type redisLock struct {
	client redis.UniversalClient
	key    string
	token  string

	once sync.Once
	err  error
}

func (lk *redisLock) Release(ctx context.Context) error {
	lk.once.Do(func() {
		n, err := releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Int64()
		if err != nil {
			lk.err = fmt.Errorf("failed to release lock %s: %w", lk.key, err)
			return
		}
		if n == 0 {
			log.Ctx(ctx).Warn().Str("lock", lk.key).Msg("lock expired before release")
		}
	})
	return lk.err
}
