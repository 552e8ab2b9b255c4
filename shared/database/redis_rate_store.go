package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mestrai-server/shared/interfaces"
)

var _ interfaces.RateStore = (*redisRateStore)(nil)

// slidingWindowScript атомарно чистит окно, считает записи и добавляет новую, если есть место.
// KEYS[1] - ключ; ARGV: now_ms, window_ms, limit, member.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now - window))
local count = redis.call('ZCARD', key)
if count >= limit then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

const rateKeyPrefix = "ratelimit:"

type redisRateStore struct {
	client redis.Scripter
	now    func() time.Time
	logger *zap.Logger
}

// NewRedisRateStore создает хранилище скользящих окон на отсортированных множествах Redis.
func NewRedisRateStore(client redis.Scripter, logger *zap.Logger) interfaces.RateStore {
	return &redisRateStore{client: client, now: time.Now, logger: logger.Named("RedisRateStore")}
}

func (s *redisRateStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := s.now().UnixMilli()
	res, err := slidingWindowScript.Run(ctx, s.client, []string{rateKeyPrefix + key},
		now, window.Milliseconds(), limit, NewEventID(),
	).Int()
	if err != nil {
		s.logger.Warn("Sliding window script failed", zap.String("key", key), zap.Error(err))
		return false, fmt.Errorf("rate store: %w", err)
	}
	return res == 1, nil
}
