package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every key this service writes.
const keyPrefix = "formify:"

// RedisStore is the production Store: all counter state lives in Redis so
// any replica sees the same windows and totals. Sliding windows are sorted
// sets scored by event time; accepted totals are plain counters.
type RedisStore struct {
	client *redis.Client
}

// Ensure RedisStore implements Store interface
var _ Store = (*RedisStore)(nil)

// RedisConfig for creating a Redis store
type RedisConfig struct {
	Addr     string // Redis address (e.g., "localhost:6379")
	Password string // Redis password (empty for no auth)
	DB       int    // Redis database number
}

// NewRedisStore creates a new Redis-backed store.
func NewRedisStore(config RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisStore{client: client}
}

// Slide trims expired events, records the new one and counts the window in a
// single transactional pipeline, so concurrent replicas never double-count.
// The window is closed on its lower bound: an event exactly window-old still
// counts.
func (s *RedisStore) Slide(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	redisKey := keyPrefix + key
	cutoff := now.Add(-window).UnixMilli()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", "("+strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	countCmd := pipe.ZCard(ctx, redisKey)
	oldestCmd := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.Expire(ctx, redisKey, window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("slide %s: %w", key, err)
	}

	return countCmd.Val(), oldestFrom(oldestCmd.Val()), nil
}

// CountInWindow reads the window size without recording an event.
func (s *RedisStore) CountInWindow(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	redisKey := keyPrefix + key
	cutoff := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)

	count, err := s.client.ZCount(ctx, redisKey, cutoff, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", key, err)
	}
	return count, nil
}

// IncrAccepted increments the accepted-submission total for a project.
func (s *RedisStore) IncrAccepted(ctx context.Context, projectID string) (int64, error) {
	total, err := s.client.Incr(ctx, keyPrefix+"accepted:"+projectID).Result()
	if err != nil {
		return 0, fmt.Errorf("incr accepted %s: %w", projectID, err)
	}
	return total, nil
}

// AcceptedCount returns the accepted-submission total for a project. A
// missing counter reads as zero.
func (s *RedisStore) AcceptedCount(ctx context.Context, projectID string) (int64, error) {
	val, err := s.client.Get(ctx, keyPrefix+"accepted:"+projectID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("accepted count %s: %w", projectID, err)
	}

	total, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("accepted count %s: %w", projectID, err)
	}
	return total, nil
}

// Ping checks if the Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Clear removes all keys this service wrote. Test helper.
func (s *RedisStore) Clear(ctx context.Context) {
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		s.client.Del(ctx, iter.Val())
	}
}

func oldestFrom(zs []redis.Z) time.Time {
	if len(zs) == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(zs[0].Score))
}
