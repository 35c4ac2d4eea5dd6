package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Nzyazin/paychain/internal/core/logger"
	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/Nzyazin/paychain/internal/core/repository"
	"github.com/jmoiron/sqlx"
)

type postgresExchangeRateRepo struct {
	db  *sqlx.DB
	log logger.Logger
}

func NewPostgresExchangeRateRepo(db *sqlx.DB, log logger.Logger) repository.ExchangeRateRepository {
	return &postgresExchangeRateRepo{db: db, log: log}
}

func (r *postgresExchangeRateRepo) Upsert(ctx context.Context, rates []models.ExchangeRate) (err error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.log.Error("Rates rollback failed", logger.ErrorField("error", rbErr))
			}
		}
	}()

	const query = `INSERT INTO exchange_rates (from_currency, to_currency, rate, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (from_currency, to_currency)
		DO UPDATE SET rate = EXCLUDED.rate, last_updated = EXCLUDED.last_updated`

	for _, rate := range rates {
		if _, err = tx.ExecContext(ctx, query, rate.FromCurrency, rate.ToCurrency, rate.Rate, rate.LastUpdated); err != nil {
			return fmt.Errorf("upsert rate %s/%s: %w", rate.FromCurrency, rate.ToCurrency, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (r *postgresExchangeRateRepo) List(ctx context.Context) ([]models.ExchangeRate, error) {
	rates := []models.ExchangeRate{}
	query := `SELECT from_currency, to_currency, rate, last_updated FROM exchange_rates ORDER BY from_currency, to_currency`
	if err := r.db.SelectContext(ctx, &rates, query); err != nil {
		return nil, fmt.Errorf("error listing exchange rates: %w", err)
	}
	return rates, nil
}
