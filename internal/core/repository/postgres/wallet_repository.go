package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Nzyazin/paychain/internal/core/logger"
	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/Nzyazin/paychain/internal/core/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const walletColumns = `id, user_id, balance, currency, is_primary, created_at, updated_at`

// Postgres error codes that mean another transaction holds the wallet row.
var lockErrorCodes = map[pq.ErrorCode]struct{}{
	"55P03": {}, // lock_not_available
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
}

type postgresWalletRepo struct {
	db          *sqlx.DB
	log         logger.Logger
	lockTimeout time.Duration
}

func NewPostgresWalletRepo(db *sqlx.DB, lockTimeout time.Duration, log logger.Logger) repository.LedgerStore {
	return &postgresWalletRepo{
		db:          db,
		log:         log,
		lockTimeout: lockTimeout,
	}
}

func (r *postgresWalletRepo) GetWallet(ctx context.Context, owner, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1 AND user_id = $2`
	err := r.db.GetContext(ctx, &wallet, query, id, owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", repository.ErrWalletNotFound, id)
		}
		return nil, fmt.Errorf("error getting wallet: %w", err)
	}

	return &wallet, nil
}

func (r *postgresWalletRepo) ListWallets(ctx context.Context, owner uuid.UUID) ([]models.Wallet, error) {
	wallets := []models.Wallet{}
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 ORDER BY is_primary DESC, created_at`
	if err := r.db.SelectContext(ctx, &wallets, query, owner); err != nil {
		return nil, fmt.Errorf("error listing wallets: %w", err)
	}
	return wallets, nil
}

// Deduct runs a single compare-and-subtract UPDATE. A row lock held longer
// than lockTimeout by another transaction surfaces as ErrWalletLocked.
func (r *postgresWalletRepo) Deduct(ctx context.Context, owner, id uuid.UUID, amount decimal.Decimal) (newBalance decimal.Decimal, err error) {
	// The balance column would round anything finer.
	if amount.Exponent() < -models.BalanceScale {
		return decimal.Zero, fmt.Errorf("%w: %s", repository.ErrAmountScale, amount)
	}

	var isCommitted bool
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.log.Error("Error beginning transaction",
			logger.ErrorField("error", err))
		return decimal.Zero, fmt.Errorf("error beginning transaction: %w", err)
	}

	defer func() {
		if err != nil && !isCommitted {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.log.Error("Transaction rollback failed",
					logger.ErrorField("error", rbErr))
				err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
			} else {
				r.log.Warn("Deduction rolled back",
					logger.StringField("wallet_id", id.String()),
					logger.ErrorField("error", err))
			}
		}
	}()

	if r.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return decimal.Zero, fmt.Errorf("set lock timeout: %w", err)
		}
	}

	newBalance, err = r.deduct(ctx, tx, owner, id, amount)
	if err != nil {
		return decimal.Zero, err
	}

	if err = tx.Commit(); err != nil {
		r.log.Error("Error committing transaction",
			logger.ErrorField("error", err))
		return decimal.Zero, classify(fmt.Errorf("commit failed: %w", err))
	}

	isCommitted = true
	return newBalance, nil
}

func (r *postgresWalletRepo) deduct(ctx context.Context, tx *sqlx.Tx, owner, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	updateQuery := `
		UPDATE wallets
		SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3 AND balance >= $1
		RETURNING balance
	`
	err := tx.GetContext(ctx, &newBalance, updateQuery, amount, id, owner)
	if err == nil {
		return newBalance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, classify(fmt.Errorf("update balance: %w", err))
	}

	var exists bool
	existsQuery := `SELECT EXISTS (SELECT 1 FROM wallets WHERE id = $1 AND user_id = $2)`
	if err := tx.GetContext(ctx, &exists, existsQuery, id, owner); err != nil {
		return decimal.Zero, classify(fmt.Errorf("check wallet: %w", err))
	}
	if !exists {
		return decimal.Zero, fmt.Errorf("%w: %s", repository.ErrWalletNotFound, id)
	}
	return decimal.Zero, fmt.Errorf("%w: wallet %s cannot cover %s", repository.ErrInsufficientFunds, id, amount)
}

// classify maps lock contention errors onto ErrWalletLocked.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if _, ok := lockErrorCodes[pqErr.Code]; ok {
			return fmt.Errorf("%w: %s", repository.ErrWalletLocked, pqErr.Message)
		}
	}
	return err
}
