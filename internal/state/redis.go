package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"hackathon-bot/internal/logger"
)

// RedisStore keeps one key per user and relies on key expiry for stale
// conversations.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	log    *logger.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisClient parses redisURL and pings the server.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// NewRedisStore namespaces keys by environment, e.g. "prod:state:12345".
func NewRedisStore(rdb *redis.Client, environment string, ttl time.Duration, log *logger.Logger) *RedisStore {
	env := strings.TrimSpace(environment)
	if env == "" {
		env = "dev"
	}
	return &RedisStore{rdb: rdb, prefix: env + ":state:", ttl: ttl, log: log}
}

func (r *RedisStore) key(tgID int64) string {
	return r.prefix + strconv.FormatInt(tgID, 10)
}

func (r *RedisStore) Get(ctx context.Context, tgID int64) (*State, error) {
	start := time.Now()
	b, err := r.rdb.Get(ctx, r.key(tgID)).Bytes()
	r.log.Debug("redis_get", zap.Int64("telegram_id", tgID), zap.Duration("duration", time.Since(start)))
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state: %w", err)
	}
	return unmarshalState(tgID, b)
}

func (r *RedisStore) Put(ctx context.Context, st State) error {
	st.UpdatedAt = time.Now().UTC()
	b, err := marshalState(st)
	if err != nil {
		return err
	}
	start := time.Now()
	err = r.rdb.Set(ctx, r.key(st.TelegramID), b, r.ttl).Err()
	r.log.Debug("redis_set",
		zap.Int64("telegram_id", st.TelegramID),
		zap.String("step", st.Step),
		zap.Duration("duration", time.Since(start)))
	if err != nil {
		return fmt.Errorf("failed to put state: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, tgID int64) error {
	if err := r.rdb.Del(ctx, r.key(tgID)).Err(); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}
