package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/Nzyazin/paychain/internal/core/logger"
	"github.com/Nzyazin/paychain/internal/core/metrics"
	"github.com/Nzyazin/paychain/internal/core/repository"
	"github.com/google/uuid"
)

// Scope names a separately limited feature.
type Scope string

const (
	ScopeChat     Scope = "chat"
	ScopeInsights Scope = "insights"
)

type UsageLimiter interface {
	// Admit counts one request for owner in scope or returns *RateLimitError.
	Admit(ctx context.Context, scope Scope, owner uuid.UUID) error
}

type usageLimiter struct {
	store  repository.UsageStore
	limits map[Scope]int
	log    logger.Logger
	now    func() time.Time
}

func NewUsageLimiter(store repository.UsageStore, limits map[Scope]int, log logger.Logger) UsageLimiter {
	return &usageLimiter{store: store, limits: limits, log: log, now: time.Now}
}

func Identity(scope Scope, owner uuid.UUID) string {
	return string(scope) + ":" + owner.String()
}

func (l *usageLimiter) Admit(ctx context.Context, scope Scope, owner uuid.UUID) error {
	limit, ok := l.limits[scope]
	if !ok {
		return fmt.Errorf("%w: no usage limit for scope %q", ErrInternal, scope)
	}

	decision, err := l.store.Admit(ctx, Identity(scope, owner), limit, l.now())
	if err != nil {
		l.log.Error("Usage counter unavailable",
			logger.StringField("scope", string(scope)),
			logger.ErrorField("error", err))
		return fmt.Errorf("%w: usage counter: %v", ErrInternal, err)
	}

	if !decision.Admitted {
		metrics.UsageRejections.WithLabelValues(string(scope)).Inc()
		l.log.Warn("Usage limit reached",
			logger.StringField("scope", string(scope)),
			logger.UserField(owner),
			logger.IntField("limit", decision.Limit),
			logger.TimeField("reset_at", decision.ResetAt))
		return &RateLimitError{Scope: scope, Limit: decision.Limit, ResetAt: decision.ResetAt}
	}

	l.log.Debug("Usage admitted",
		logger.StringField("scope", string(scope)),
		logger.IntField("count", decision.Count),
		logger.IntField("limit", decision.Limit))
	return nil
}
