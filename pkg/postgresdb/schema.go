package postgresdb

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		balance NUMERIC(28, 11) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		currency VARCHAR(8) NOT NULL,
		is_primary BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`DO $$
	BEGIN
		IF (SELECT numeric_scale FROM information_schema.columns
			WHERE table_name = 'wallets' AND column_name = 'balance') < 11 THEN
			ALTER TABLE wallets ALTER COLUMN balance TYPE NUMERIC(28, 11);
		END IF;
	END $$`,
	`CREATE INDEX IF NOT EXISTS idx_wallets_user_id ON wallets (user_id)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id UUID NOT NULL,
		from_wallet_id UUID NOT NULL,
		to_wallet_id UUID,
		transaction_type VARCHAR(16) NOT NULL CHECK (transaction_type IN ('send', 'receive', 'exchange')),
		amount NUMERIC(20, 8) NOT NULL CHECK (amount > 0),
		currency VARCHAR(8) NOT NULL,
		crypto_amount NUMERIC(20, 8),
		crypto_currency VARCHAR(8),
		recipient_name VARCHAR(100),
		recipient_upi VARCHAR(100),
		fee NUMERIC(20, 11) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'completed', 'failed')),
		failure_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS exchange_rates (
		from_currency VARCHAR(8) NOT NULL,
		to_currency VARCHAR(8) NOT NULL,
		rate NUMERIC(28, 8) NOT NULL,
		last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (from_currency, to_currency)
	)`,
	`CREATE TABLE IF NOT EXISTS usage_counters (
		identity TEXT PRIMARY KEY,
		request_count INTEGER NOT NULL CHECK (request_count >= 0),
		window_reset_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the tables the service needs. It is safe to run repeatedly.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
