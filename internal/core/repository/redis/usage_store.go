package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/Nzyazin/paychain/internal/core/logger"
	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/Nzyazin/paychain/internal/core/repository"
	goredis "github.com/go-redis/redis/v8"
)

const usageKeyPrefix = "paychain:usage:"

// admitScript runs the whole window check inside Redis so concurrent
// requests for one identity cannot both pass the limit.
// KEYS[1] counter hash, ARGV[1] now (ms), ARGV[2] limit, ARGV[3] next midnight (ms).
var admitScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local reset = tonumber(redis.call('HGET', KEYS[1], 'reset_at'))
if not reset or now >= reset then
	redis.call('HSET', KEYS[1], 'count', 1, 'reset_at', ARGV[3])
	redis.call('PEXPIREAT', KEYS[1], ARGV[3])
	return {1, 1, tonumber(ARGV[3])}
end
local count = tonumber(redis.call('HGET', KEYS[1], 'count')) or 0
if count >= limit then
	return {0, count, reset}
end
count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {1, count, reset}
`)

type redisUsageStore struct {
	rdb goredis.Scripter
	loc *time.Location
	log logger.Logger
}

func NewUsageStore(rdb goredis.Scripter, loc *time.Location, log logger.Logger) repository.UsageStore {
	return &redisUsageStore{rdb: rdb, loc: loc, log: log}
}

func (s *redisUsageStore) Admit(ctx context.Context, identity string, limit int, now time.Time) (models.UsageDecision, error) {
	resetAt := models.NextMidnight(now, s.loc)

	res, err := admitScript.Run(ctx, s.rdb, []string{usageKeyPrefix + identity},
		now.UnixMilli(), limit, resetAt.UnixMilli()).Result()
	if err != nil {
		return models.UsageDecision{}, fmt.Errorf("admit %s: %w", identity, err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return models.UsageDecision{}, fmt.Errorf("admit %s: unexpected script reply %v", identity, res)
	}
	admitted, _ := vals[0].(int64)
	count, _ := vals[1].(int64)
	resetMs, _ := vals[2].(int64)

	return models.UsageDecision{
		Admitted: admitted == 1,
		Count:    int(count),
		Limit:    limit,
		ResetAt:  time.UnixMilli(resetMs).In(resetAt.Location()),
	}, nil
}
