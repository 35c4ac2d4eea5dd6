package redisdb

import (
	"context"
	"fmt"
	"time"

	"github.com/Nzyazin/paychain/internal/core/logger"
	"github.com/Nzyazin/paychain/pkg/config"
	"github.com/go-redis/redis/v8"
)

// NewRedisClient connects and pings; the caller owns Close.
func NewRedisClient(cfg config.RedisConfig, log logger.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	log.Info("Redis connection established", logger.StringField("addr", cfg.Addr))
	return rdb, nil
}
