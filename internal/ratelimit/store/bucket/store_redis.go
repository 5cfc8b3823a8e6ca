package bucket

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"corpdesk/internal/platform/clock"
	"corpdesk/internal/ratelimit/models"
)

// maxTxRetries bounds optimistic-lock retries when concurrent requests race
// on the same key.
const maxTxRetries = 5

// RedisStore implements BucketStore with one sorted set per key. Scores are
// admission times in unix microseconds, which float64 holds exactly. Keys
// carry a TTL of one window, so Redis expiry does the sweeping.
type RedisStore struct {
	client *redis.Client
	clock  clock.Clock
}

func NewRedis(client *redis.Client, c clock.Clock) *RedisStore {
	if c == nil {
		c = clock.Real{}
	}
	return &RedisStore{client: client, clock: c}
}

// Allow counts live entries under WATCH and prunes plus adds in one MULTI,
// so concurrent checks cannot over-admit and a denial writes nothing.
func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	var result *models.RateLimitResult

	txf := func(tx *redis.Tx) error {
		now := s.clock.Now()
		live := "(" + strconv.FormatInt(now.Add(-window).UnixMicro(), 10)

		count, err := tx.ZCount(ctx, key, live, "+inf").Result()
		if err != nil {
			return err
		}

		oldest := now
		if count > 0 {
			first, err := tx.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
				Min: live, Max: "+inf", Offset: 0, Count: 1,
			}).Result()
			if err != nil {
				return err
			}
			if len(first) == 1 {
				oldest = time.UnixMicro(int64(first[0].Score))
			}
		}

		if int(count) >= limit {
			resetAt := oldest.Add(window)
			result = &models.RateLimitResult{
				Allowed:    false,
				Limit:      limit,
				ResetAt:    resetAt,
				RetryAfter: RetryAfterSeconds(resetAt, now),
			}
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-window).UnixMicro(), 10))
			pipe.ZAdd(ctx, key, redis.Z{
				Score:  float64(now.UnixMicro()),
				Member: strconv.FormatInt(now.UnixMicro(), 10) + "-" + uuid.NewString(),
			})
			pipe.PExpire(ctx, key, window)
			return nil
		})
		if err != nil {
			return err
		}
		result = &models.RateLimitResult{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - int(count) - 1,
			ResetAt:   oldest.Add(window),
		}
		return nil
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, fmt.Errorf("redis rate limit check: %w", err)
	}
	return nil, fmt.Errorf("redis rate limit check: %w", redis.TxFailedErr)
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis rate limit reset: %w", err)
	}
	return nil
}

// GetCurrentCount counts members newer than now-window. Expired members can
// linger until the key's TTL fires, so ZCARD would overcount.
func (s *RedisStore) GetCurrentCount(ctx context.Context, key string, window time.Duration) (int, error) {
	live := "(" + strconv.FormatInt(s.clock.Now().Add(-window).UnixMicro(), 10)
	n, err := s.client.ZCount(ctx, key, live, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("redis rate limit count: %w", err)
	}
	return int(n), nil
}

// Sweep is a no-op: keys expire one window after their last admission.
func (s *RedisStore) Sweep(context.Context) (int, error) {
	return 0, nil
}
