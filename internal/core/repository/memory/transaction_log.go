package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/Nzyazin/paychain/internal/core/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionLog struct {
	mu   sync.RWMutex
	txns map[string]models.Transaction
}

func NewTransactionLog() *TransactionLog {
	return &TransactionLog{txns: make(map[string]models.Transaction)}
}

func (l *TransactionLog) Create(ctx context.Context, txn *models.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.txns[txn.ID]; ok {
		return fmt.Errorf("create transaction: duplicate id %s", txn.ID)
	}
	l.txns[txn.ID] = *txn
	return nil
}

func (l *TransactionLog) Finalize(ctx context.Context, txn *models.Transaction) error {
	if !txn.Status.Terminal() {
		return fmt.Errorf("finalize transaction %s: status %s is not terminal", txn.ID, txn.Status)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.txns[txn.ID]
	if !ok || stored.Status != models.StatusPending {
		return fmt.Errorf("%w: %s", repository.ErrTransactionFinalized, txn.ID)
	}
	stored.Status = txn.Status
	stored.FailureReason = txn.FailureReason
	stored.CompletedAt = txn.CompletedAt
	l.txns[txn.ID] = stored
	return nil
}

func (l *TransactionLog) GetByID(ctx context.Context, owner uuid.UUID, id string) (*models.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	txn, ok := l.txns[id]
	if !ok || txn.UserID != owner {
		return nil, fmt.Errorf("%w: %s", repository.ErrTransactionNotFound, id)
	}
	return &txn, nil
}

func (l *TransactionLog) ListByOwner(ctx context.Context, owner uuid.UUID, limit int) ([]models.Transaction, error) {
	l.mu.RLock()
	txns := []models.Transaction{}
	for _, txn := range l.txns {
		if txn.UserID == owner {
			txns = append(txns, txn)
		}
	}
	l.mu.RUnlock()

	sort.Slice(txns, func(i, j int) bool {
		if !txns[i].CreatedAt.Equal(txns[j].CreatedAt) {
			return txns[i].CreatedAt.After(txns[j].CreatedAt)
		}
		return txns[i].ID > txns[j].ID
	})
	if limit > 0 && len(txns) > limit {
		txns = txns[:limit]
	}
	return txns, nil
}

func (l *TransactionLog) SpentSince(ctx context.Context, owner, walletID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := decimal.Zero
	for _, txn := range l.txns {
		if txn.UserID != owner || txn.FromWalletID != walletID {
			continue
		}
		if txn.Kind != models.KindSend || txn.Status != models.StatusCompleted || txn.CreatedAt.Before(since) {
			continue
		}
		total = total.Add(txn.Amount)
	}
	return total, nil
}
