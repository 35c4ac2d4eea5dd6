package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Nzyazin/paychain/internal/core/logger"
	"github.com/Nzyazin/paychain/internal/core/repository"
	goredis "github.com/go-redis/redis/v8"
)

const (
	idempotencyKeyPrefix = "paychain:idem:"
	DefaultLockTTL       = 30 * time.Second
	DefaultResponseTTL   = 24 * time.Hour
)

type idempotencyStore struct {
	rdb         goredis.Cmdable
	lockTTL     time.Duration
	responseTTL time.Duration
	log         logger.Logger
}

func NewIdempotencyStore(rdb goredis.Cmdable, lockTTL, responseTTL time.Duration, log logger.Logger) repository.IdempotencyStore {
	return &idempotencyStore{rdb: rdb, lockTTL: lockTTL, responseTTL: responseTTL, log: log}
}

func responseKey(key string) string { return idempotencyKeyPrefix + key + ":resp" }
func lockKey(key string) string     { return idempotencyKeyPrefix + key + ":lock" }

func (s *idempotencyStore) Reserve(ctx context.Context, key string) (*repository.CachedResponse, error) {
	cached, err := s.load(ctx, key)
	if err != nil || cached != nil {
		return cached, err
	}

	ok, err := s.rdb.SetNX(ctx, lockKey(key), "1", s.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	// The holder may have finished between the first read and SETNX.
	cached, err = s.load(ctx, key)
	if err != nil || cached != nil {
		return cached, err
	}
	return nil, repository.ErrIdempotencyInFlight
}

// Save stores the response and leaves the lock to expire on its own.
func (s *idempotencyStore) Save(ctx context.Context, key string, resp repository.CachedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode cached response: %w", err)
	}
	if err := s.rdb.Set(ctx, responseKey(key), data, s.responseTTL).Err(); err != nil {
		return fmt.Errorf("save idempotent response: %w", err)
	}
	return nil
}

func (s *idempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, lockKey(key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (s *idempotencyStore) load(ctx context.Context, key string) (*repository.CachedResponse, error) {
	data, err := s.rdb.Get(ctx, responseKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load idempotent response: %w", err)
	}

	var resp repository.CachedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		s.log.Warn("Discarding unreadable cached response",
			logger.StringField("key", key),
			logger.ErrorField("error", err))
		return nil, nil
	}
	return &resp, nil
}
