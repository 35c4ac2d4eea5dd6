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
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, user_id, from_wallet_id, to_wallet_id, transaction_type, amount, currency,
	crypto_amount, crypto_currency, recipient_name, recipient_upi, fee, status, failure_reason,
	created_at, completed_at`

type postgresTransactionRepo struct {
	db  *sqlx.DB
	log logger.Logger
}

func NewPostgresTransactionRepo(db *sqlx.DB, log logger.Logger) repository.TransactionLog {
	return &postgresTransactionRepo{db: db, log: log}
}

func (r *postgresTransactionRepo) Create(ctx context.Context, txn *models.Transaction) error {
	const query = `INSERT INTO transactions
		(id, user_id, from_wallet_id, to_wallet_id, transaction_type, amount, currency,
		crypto_amount, crypto_currency, recipient_name, recipient_upi, fee, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.ExecContext(ctx, query,
		txn.ID,
		txn.UserID,
		txn.FromWalletID,
		txn.ToWalletID,
		txn.Kind,
		txn.Amount,
		txn.Currency,
		txn.CryptoAmount,
		txn.CryptoCurrency,
		txn.RecipientName,
		txn.RecipientUPI,
		txn.Fee,
		txn.Status,
		txn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}

	return nil
}

func (r *postgresTransactionRepo) Finalize(ctx context.Context, txn *models.Transaction) error {
	if !txn.Status.Terminal() {
		return fmt.Errorf("finalize transaction %s: status %s is not terminal", txn.ID, txn.Status)
	}

	const query = `UPDATE transactions
		SET status = $1, failure_reason = $2, completed_at = $3
		WHERE id = $4 AND status = 'pending'`

	res, err := r.db.ExecContext(ctx, query, txn.Status, txn.FailureReason, txn.CompletedAt, txn.ID)
	if err != nil {
		return fmt.Errorf("finalize transaction: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", repository.ErrTransactionFinalized, txn.ID)
	}

	return nil
}

func (r *postgresTransactionRepo) GetByID(ctx context.Context, owner uuid.UUID, id string) (*models.Transaction, error) {
	var txn models.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 AND user_id = $2`
	if err := r.db.GetContext(ctx, &txn, query, id, owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", repository.ErrTransactionNotFound, id)
		}
		return nil, fmt.Errorf("error getting transaction: %w", err)
	}
	return &txn, nil
}

func (r *postgresTransactionRepo) ListByOwner(ctx context.Context, owner uuid.UUID, limit int) ([]models.Transaction, error) {
	txns := []models.Transaction{}
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	if err := r.db.SelectContext(ctx, &txns, query, owner, limit); err != nil {
		return nil, fmt.Errorf("error listing transactions: %w", err)
	}
	return txns, nil
}

func (r *postgresTransactionRepo) SpentSince(ctx context.Context, owner, walletID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE user_id = $1 AND from_wallet_id = $2
		AND transaction_type = 'send' AND status = 'completed'
		AND created_at >= $3`
	if err := r.db.GetContext(ctx, &total, query, owner, walletID, since); err != nil {
		return decimal.Zero, fmt.Errorf("error summing spending: %w", err)
	}
	return total, nil
}
