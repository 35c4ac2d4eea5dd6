package server

import (
	"fmt"

	"github.com/Nzyazin/paychain/internal/core/logger"
	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/Nzyazin/paychain/internal/core/repository"
	"github.com/Nzyazin/paychain/internal/core/repository/memory"
	"github.com/Nzyazin/paychain/internal/core/repository/postgres"
	"github.com/Nzyazin/paychain/internal/core/repository/redis"
	"github.com/Nzyazin/paychain/pkg/config"
	"github.com/Nzyazin/paychain/pkg/postgresdb"
	"github.com/Nzyazin/paychain/pkg/redisdb"
	goredis "github.com/go-redis/redis/v8"
)

type stores struct {
	ledger      repository.LedgerStore
	txlog       repository.TransactionLog
	rates       repository.ExchangeRateRepository
	usage       repository.UsageStore
	idempotency repository.IdempotencyStore

	// wallets is set for the memory backend.
	wallets *memory.WalletStore
	db      *postgresdb.Database
	rdb     *goredis.Client
}

// openStores picks the ledger backend from STORAGE_BACKEND. The usage
// counter prefers Redis, then Postgres, then process memory. Idempotent
// replay is only available with Redis.
func openStores(cfg *config.Config, log logger.Logger) (*stores, error) {
	s := &stores{}

	switch cfg.StorageBackend {
	case config.StoragePostgres:
		db, err := postgresdb.NewPostgresDB(cfg.DB, log)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.ledger = postgres.NewPostgresWalletRepo(db.DB, cfg.DB.LockTimeout, log)
		s.txlog = postgres.NewPostgresTransactionRepo(db.DB, log)
		s.rates = postgres.NewPostgresExchangeRateRepo(db.DB, log)
		s.usage = postgres.NewPostgresUsageRepo(db.DB, cfg.Limits.Location, log)
	case config.StorageMemory:
		var seed []models.Wallet
		if cfg.WalletSeedFile != "" {
			var err error
			if seed, err = memory.LoadWallets(cfg.WalletSeedFile); err != nil {
				return nil, err
			}
		}
		log.Info("Seeded in-memory wallets", logger.IntField("count", len(seed)))
		s.wallets = memory.NewWalletStore(seed...)
		s.ledger = s.wallets
		s.txlog = memory.NewTransactionLog()
		s.rates = memory.NewExchangeRateStore()
		s.usage = memory.NewUsageStore(cfg.Limits.Location)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	if cfg.Redis.Enabled() {
		rdb, err := redisdb.NewRedisClient(cfg.Redis, log)
		if err != nil {
			s.close(log)
			return nil, err
		}
		s.rdb = rdb
		s.usage = redis.NewUsageStore(rdb, cfg.Limits.Location, log)
		s.idempotency = redis.NewIdempotencyStore(rdb, redis.DefaultLockTTL, redis.DefaultResponseTTL, log)
	} else {
		log.Warn("Redis is not configured, Idempotency-Key replay is disabled")
	}

	log.Info("Stores ready",
		logger.StringField("ledger", cfg.StorageBackend),
		logger.AnyField("redis", cfg.Redis.Enabled()))
	return s, nil
}

func (s *stores) close(log logger.Logger) error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			log.Error("failed to close redis connection", logger.ErrorField("error", err))
			firstErr = fmt.Errorf("redis shutdown error: %w", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Error("failed to close database connection", logger.ErrorField("error", err))
			firstErr = fmt.Errorf("database shutdown error: %w", err)
		}
	}
	return firstErr
}
