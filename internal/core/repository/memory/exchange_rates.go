package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Nzyazin/paychain/internal/core/models"
)

type rateKey struct {
	from, to models.Currency
}

type ExchangeRateStore struct {
	mu    sync.RWMutex
	rates map[rateKey]models.ExchangeRate
}

func NewExchangeRateStore() *ExchangeRateStore {
	return &ExchangeRateStore{rates: make(map[rateKey]models.ExchangeRate)}
}

func (s *ExchangeRateStore) Upsert(ctx context.Context, rates []models.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rates {
		s.rates[rateKey{r.FromCurrency, r.ToCurrency}] = r
	}
	return nil
}

func (s *ExchangeRateStore) List(ctx context.Context) ([]models.ExchangeRate, error) {
	s.mu.RLock()
	rates := make([]models.ExchangeRate, 0, len(s.rates))
	for _, r := range s.rates {
		rates = append(rates, r)
	}
	s.mu.RUnlock()

	sort.Slice(rates, func(i, j int) bool {
		if rates[i].FromCurrency != rates[j].FromCurrency {
			return rates[i].FromCurrency < rates[j].FromCurrency
		}
		return rates[i].ToCurrency < rates[j].ToCurrency
	})
	return rates, nil
}
