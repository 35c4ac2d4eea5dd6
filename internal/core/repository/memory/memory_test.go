package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/Nzyazin/paychain/internal/core/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ repository.LedgerStore            = (*WalletStore)(nil)
	_ repository.TransactionLog         = (*TransactionLog)(nil)
	_ repository.UsageStore             = (*UsageStore)(nil)
	_ repository.ExchangeRateRepository = (*ExchangeRateStore)(nil)
)

func TestWalletStoreDeduct(t *testing.T) {
	owner := uuid.New()
	w := models.Wallet{ID: uuid.New(), UserID: owner, Balance: decimal.NewFromInt(100), Currency: models.CurrencyINR}
	store := NewWalletStore(w)
	ctx := context.Background()

	balance, err := store.Deduct(ctx, owner, w.ID, decimal.RequireFromString("40.04"))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("59.96").Equal(balance))

	_, err = store.Deduct(ctx, owner, w.ID, decimal.NewFromInt(60))
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)

	_, err = store.Deduct(ctx, uuid.New(), w.ID, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, repository.ErrWalletNotFound)

	got, err := store.GetWallet(ctx, owner, w.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("59.96").Equal(got.Balance))
}

func TestWalletStoreConcurrentDeductNeverGoesNegative(t *testing.T) {
	owner := uuid.New()
	w := models.Wallet{ID: uuid.New(), UserID: owner, Balance: decimal.NewFromInt(10), Currency: models.CurrencyUSD}
	store := NewWalletStore(w)

	const workers = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := store.Deduct(context.Background(), owner, w.ID, decimal.NewFromInt(1))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, repository.ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.GetWallet(context.Background(), owner, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, succeeded)
	assert.True(t, got.Balance.IsZero())
}

func TestTransactionLog(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	wallet := uuid.New()
	log := NewTransactionLog()

	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		txn, err := models.NewTransaction(owner, models.Payment{
			Amount:       decimal.NewFromInt(int64(10 * (i + 1))),
			Currency:     models.CurrencyINR,
			FromWalletID: wallet,
			Kind:         models.KindSend,
		}, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.NoError(t, log.Create(ctx, txn))
		ids = append(ids, txn.ID)
	}

	first, err := log.GetByID(ctx, owner, ids[0])
	require.NoError(t, err)
	require.NoError(t, first.Complete(time.Now()))
	require.NoError(t, log.Finalize(ctx, first))
	assert.ErrorIs(t, log.Finalize(ctx, first), repository.ErrTransactionFinalized)

	second, err := log.GetByID(ctx, owner, ids[1])
	require.NoError(t, err)
	require.NoError(t, second.Fail("insufficient balance"))
	require.NoError(t, log.Finalize(ctx, second))

	_, err = log.GetByID(ctx, uuid.New(), ids[0])
	assert.ErrorIs(t, err, repository.ErrTransactionNotFound)

	listed, err := log.ListByOwner(ctx, owner, 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, ids[2], listed[0].ID)
	assert.Equal(t, ids[1], listed[1].ID)
	assert.Equal(t, "insufficient balance", listed[1].Reason())

	spent, err := log.SpentSince(ctx, owner, wallet, base.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(spent))
}

func TestUsageStoreSerializesAdmissions(t *testing.T) {
	store := NewUsageStore(time.UTC)
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	const limit, callers = 100, 150
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			d, err := store.Admit(context.Background(), "chat:u1", limit, now)
			assert.NoError(t, err)
			if d.Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, admitted)

	other, err := store.Admit(context.Background(), "chat:u2", limit, now)
	require.NoError(t, err)
	assert.True(t, other.Admitted)
	assert.Equal(t, 1, other.Count)
}

func TestExchangeRateStore(t *testing.T) {
	store := NewExchangeRateStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []models.ExchangeRate{
		{FromCurrency: models.CurrencyINR, ToCurrency: models.CurrencyETH, Rate: decimal.RequireFromString("0.000004")},
		{FromCurrency: models.CurrencyETH, ToCurrency: models.CurrencyINR, Rate: decimal.NewFromInt(250000)},
	}))
	require.NoError(t, store.Upsert(ctx, []models.ExchangeRate{
		{FromCurrency: models.CurrencyETH, ToCurrency: models.CurrencyINR, Rate: decimal.NewFromInt(260000)},
	}))

	rates, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, models.CurrencyETH, rates[0].FromCurrency)
	assert.True(t, decimal.NewFromInt(260000).Equal(rates[0].Rate))
}
