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

// WalletStore keeps balances in process. Deduct holds the store lock only
// for the compare-and-subtract itself.
type WalletStore struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]models.Wallet
}

func NewWalletStore(seed ...models.Wallet) *WalletStore {
	s := &WalletStore{wallets: make(map[uuid.UUID]models.Wallet, len(seed))}
	for _, w := range seed {
		s.Put(w)
	}
	return s
}

// Put provisions or replaces a wallet.
func (s *WalletStore) Put(w models.Wallet) {
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[w.ID] = w
}

func (s *WalletStore) GetWallet(ctx context.Context, owner, id uuid.UUID) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[id]
	if !ok || w.UserID != owner {
		return nil, fmt.Errorf("%w: %s", repository.ErrWalletNotFound, id)
	}
	return &w, nil
}

func (s *WalletStore) ListWallets(ctx context.Context, owner uuid.UUID) ([]models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallets := []models.Wallet{}
	for _, w := range s.wallets {
		if w.UserID == owner {
			wallets = append(wallets, w)
		}
	}
	sort.Slice(wallets, func(i, j int) bool {
		if wallets[i].IsPrimary != wallets[j].IsPrimary {
			return wallets[i].IsPrimary
		}
		return wallets[i].CreatedAt.Before(wallets[j].CreatedAt)
	})
	return wallets, nil
}

func (s *WalletStore) Deduct(ctx context.Context, owner, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[id]
	if !ok || w.UserID != owner {
		return decimal.Zero, fmt.Errorf("%w: %s", repository.ErrWalletNotFound, id)
	}
	if w.Balance.LessThan(amount) {
		return decimal.Zero, fmt.Errorf("%w: wallet %s cannot cover %s", repository.ErrInsufficientFunds, id, amount)
	}

	w.Balance = w.Balance.Sub(amount)
	w.UpdatedAt = time.Now().UTC()
	s.wallets[id] = w
	return w.Balance, nil
}
