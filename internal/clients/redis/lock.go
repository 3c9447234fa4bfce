package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ai-shifu/shifu-backend/internal/logger"
)

// RunLock serializes lesson runs across processes. Acquire returns a release
// token on success and empty string when the key is held elsewhere for the
// whole wait window; the TTL bounds how long a crashed holder can block
// others. Release is token-checked so an expired holder cannot release a
// newer acquisition.
type RunLock interface {
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
	IsLocked(ctx context.Context, key string) (bool, error)
	Close() error
}

type runLock struct {
	log *logger.Logger
	rdb *goredis.Client
}

// Lua compare-and-delete so we never release somebody else's lock.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`

func NewRunLock(log *logger.Logger) (RunLock, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &runLock{
		log: log.With("service", "RedisRunLock"),
		rdb: rdb,
	}, nil
}

func (l *runLock) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (string, error) {
	if l == nil || l.rdb == nil {
		return "", fmt.Errorf("redis run lock not initialized")
	}
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", fmt.Errorf("redis setnx: %w", err)
		}
		if ok {
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (l *runLock) Release(ctx context.Context, key, token string) error {
	if l == nil || l.rdb == nil {
		return fmt.Errorf("redis run lock not initialized")
	}
	res, err := l.rdb.Eval(ctx, releaseScript, []string{key}, token).Result()
	if err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	if n, ok := res.(int64); ok && n == 0 {
		l.log.Warn("Run lock already released or stolen", "key", key)
	}
	return nil
}

func (l *runLock) IsLocked(ctx context.Context, key string) (bool, error) {
	if l == nil || l.rdb == nil {
		return false, fmt.Errorf("redis run lock not initialized")
	}
	n, err := l.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *runLock) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}
