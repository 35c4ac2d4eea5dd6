package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/Nzyazin/paychain/internal/core/logger"
	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/Nzyazin/paychain/internal/core/repository"
	"github.com/shopspring/decimal"
)

// referenceRates is the quoted table until a market data source is wired in.
var referenceRates = []struct {
	from, to models.Currency
	rate     string
}{
	{models.CurrencyETH, models.CurrencyINR, "245000.50"},
	{models.CurrencyBTC, models.CurrencyINR, "4850000.75"},
	{models.CurrencyUSDT, models.CurrencyINR, "83.50"},
	{models.CurrencyINR, models.CurrencyETH, "0.00000408"},
	{models.CurrencyINR, models.CurrencyBTC, "0.00000021"},
	{models.CurrencyINR, models.CurrencyUSDT, "0.01198"},
}

type RatesUsecase interface {
	ListRates(ctx context.Context) ([]models.ExchangeRate, error)
	RefreshRates(ctx context.Context) ([]models.ExchangeRate, error)
}

type ratesUsecase struct {
	repo repository.ExchangeRateRepository
	log  logger.Logger
	now  func() time.Time
}

func NewRatesUsecase(repo repository.ExchangeRateRepository, log logger.Logger) RatesUsecase {
	return &ratesUsecase{repo: repo, log: log, now: time.Now}
}

func (uc *ratesUsecase) ListRates(ctx context.Context) ([]models.ExchangeRate, error) {
	rates, err := uc.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rates: %w", err)
	}
	return rates, nil
}

func (uc *ratesUsecase) RefreshRates(ctx context.Context) ([]models.ExchangeRate, error) {
	now := uc.now().UTC()
	rates := make([]models.ExchangeRate, 0, len(referenceRates))
	for _, r := range referenceRates {
		rates = append(rates, models.ExchangeRate{
			FromCurrency: r.from,
			ToCurrency:   r.to,
			Rate:         decimal.RequireFromString(r.rate),
			LastUpdated:  now,
		})
	}

	if err := uc.repo.Upsert(ctx, rates); err != nil {
		uc.log.Error("Failed to refresh exchange rates", logger.ErrorField("error", err))
		return nil, fmt.Errorf("refresh rates: %w", err)
	}

	uc.log.Info("Exchange rates refreshed", logger.IntField("count", len(rates)))
	return rates, nil
}
