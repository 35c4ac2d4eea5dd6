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
	"github.com/jmoiron/sqlx"
)

type postgresUsageRepo struct {
	db  *sqlx.DB
	log logger.Logger
	loc *time.Location
}

// NewPostgresUsageRepo stores usage windows in usage_counters. Windows end
// at midnight in loc.
func NewPostgresUsageRepo(db *sqlx.DB, loc *time.Location, log logger.Logger) repository.UsageStore {
	return &postgresUsageRepo{db: db, log: log, loc: loc}
}

// Admit is a single upsert. The WHERE clause on the conflict branch skips
// the update when the window is live and full, so no row comes back.
func (r *postgresUsageRepo) Admit(ctx context.Context, identity string, limit int, now time.Time) (models.UsageDecision, error) {
	resetAt := models.NextMidnight(now, r.loc)

	const upsert = `INSERT INTO usage_counters AS u (identity, request_count, window_reset_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (identity) DO UPDATE SET
			request_count = CASE WHEN u.window_reset_at <= $3 THEN 1 ELSE u.request_count + 1 END,
			window_reset_at = CASE WHEN u.window_reset_at <= $3 THEN EXCLUDED.window_reset_at ELSE u.window_reset_at END
		WHERE u.window_reset_at <= $3 OR u.request_count < $4
		RETURNING request_count, window_reset_at`

	var counter models.UsageCounter
	err := r.db.GetContext(ctx, &counter, upsert, identity, resetAt, now, limit)
	if err == nil {
		return models.UsageDecision{
			Admitted: true,
			Count:    counter.RequestCount,
			Limit:    limit,
			ResetAt:  counter.WindowResetAt,
		}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.UsageDecision{}, fmt.Errorf("admit %s: %w", identity, err)
	}

	const current = `SELECT request_count, window_reset_at FROM usage_counters WHERE identity = $1`
	if err := r.db.GetContext(ctx, &counter, current, identity); err != nil {
		return models.UsageDecision{}, fmt.Errorf("read usage %s: %w", identity, err)
	}

	return models.UsageDecision{
		Admitted: false,
		Count:    counter.RequestCount,
		Limit:    limit,
		ResetAt:  counter.WindowResetAt,
	}, nil
}
