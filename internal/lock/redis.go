package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"portfolio-holdings/internal/config"
)

// releaseScript deletes the key only if it still carries our token, so an
// expired lock re-acquired by another run is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker locks keys across processes with SET NX and a TTL.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker connects to Redis and verifies the connection.
func NewRedisLocker(ctx context.Context, cfg config.Redis, logger *zap.Logger) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	ttl := time.Duration(cfg.LockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		prefix: "holdings:lock:",
		logger: logger.Named("redis-lock"),
	}, nil
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(context.Context) error, error) {
	k := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", k, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	l.logger.Debug("Lock acquired", zap.String("key", k), zap.Duration("ttl", l.ttl))

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{k}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("failed to release lock %s: %w", k, err)
		}
		return nil
	}, nil
}

// Close closes the underlying Redis client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
