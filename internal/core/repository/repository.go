package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrInsufficientFunds    = errors.New("insufficient balance")
	ErrWalletLocked         = errors.New("wallet is locked by another transaction")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrTransactionFinalized = errors.New("transaction already finalized")
	ErrIdempotencyInFlight  = errors.New("request with this idempotency key is in progress")
	ErrAmountScale          = errors.New("amount has more decimal places than a balance keeps")
)

// LedgerStore owns wallet balances. Wallets belonging to another owner are
// reported as ErrWalletNotFound.
type LedgerStore interface {
	GetWallet(ctx context.Context, owner, id uuid.UUID) (*models.Wallet, error)
	ListWallets(ctx context.Context, owner uuid.UUID) ([]models.Wallet, error)
	// Deduct subtracts amount only if the balance covers it and returns the
	// new balance.
	Deduct(ctx context.Context, owner, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
}

type TransactionLog interface {
	Create(ctx context.Context, txn *models.Transaction) error
	// Finalize persists a terminal status for a transaction that is still pending.
	Finalize(ctx context.Context, txn *models.Transaction) error
	GetByID(ctx context.Context, owner uuid.UUID, id string) (*models.Transaction, error)
	ListByOwner(ctx context.Context, owner uuid.UUID, limit int) ([]models.Transaction, error)
	// SpentSince sums completed sends out of walletID created at or after since.
	SpentSince(ctx context.Context, owner, walletID uuid.UUID, since time.Time) (decimal.Decimal, error)
}

// UsageStore applies one admission against the identity's daily window atomically.
type UsageStore interface {
	Admit(ctx context.Context, identity string, limit int, now time.Time) (models.UsageDecision, error)
}

type ExchangeRateRepository interface {
	Upsert(ctx context.Context, rates []models.ExchangeRate) error
	List(ctx context.Context) ([]models.ExchangeRate, error)
}

// CachedResponse is a replayable HTTP response.
type CachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type IdempotencyStore interface {
	// Reserve claims key. It returns the cached response when one exists and
	// ErrIdempotencyInFlight when another request holds the key.
	Reserve(ctx context.Context, key string) (*CachedResponse, error)
	Save(ctx context.Context, key string, resp CachedResponse) error
	Release(ctx context.Context, key string) error
}
