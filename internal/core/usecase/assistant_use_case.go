package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Nzyazin/paychain/internal/core/gateway"
	"github.com/Nzyazin/paychain/internal/core/logger"
	"github.com/Nzyazin/paychain/internal/core/metrics"
	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/Nzyazin/paychain/internal/core/repository"
	"github.com/Nzyazin/paychain/internal/core/stream"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const chatSystemPrompt = `You are PayChain AI Assistant, a helpful and knowledgeable expert in blockchain technology, cryptocurrency, and UPI payments.

Your role is to:
- Help users understand blockchain and cryptocurrency concepts
- Explain how PayChain bridges crypto and UPI payments
- Provide guidance on transactions, wallets, and security
- Answer questions about exchange rates and fees
- Guide users through the payment process

Key facts about PayChain:
- Transaction fee: 0.1%
- Supports instant crypto-to-UPI and UPI-to-crypto conversions
- Real-time exchange rates
- Supports ETH, BTC, USDT, and INR

Be concise, friendly, and helpful. Always prioritize user security and understanding.`

const insightsSystemPrompt = `You are a financial advisor AI analyzing user spending patterns. Provide actionable, personalized insights based on the data.
Reply with only a JSON array of 3-4 objects with the fields "type" (one of "warning", "info", "success", "danger"), "title" (max 50 characters), "description" (one sentence), "prediction" (optional) and "action" (one concrete recommendation).`

const (
	consumerChat     = "chat"
	consumerInsights = "insights"

	spendingWindowDays = 30
	predictionDays     = 7
)

var ErrInvalidInsights = errors.New("ai gateway returned unreadable insights")

// CompletionStreamer opens a streamed chat completion.
type CompletionStreamer interface {
	StreamCompletion(ctx context.Context, messages []models.ChatMessage) (io.ReadCloser, error)
}

type AssistantUsecase interface {
	// OpenChat admits the request and opens the upstream stream. Errors
	// returned here happen before any content is produced.
	OpenChat(ctx context.Context, owner uuid.UUID, req models.ChatRequest) (*ChatStream, error)
	Insights(ctx context.Context, owner, walletID uuid.UUID) (*models.InsightsReport, error)
}

type assistantUsecase struct {
	limiter UsageLimiter
	gateway CompletionStreamer
	ledger  repository.LedgerStore
	txlog   repository.TransactionLog
	log     logger.Logger
	now     func() time.Time
}

func NewAssistantUsecase(limiter UsageLimiter, gw CompletionStreamer, ledger repository.LedgerStore, txlog repository.TransactionLog, log logger.Logger) AssistantUsecase {
	return &assistantUsecase{
		limiter: limiter,
		gateway: gw,
		ledger:  ledger,
		txlog:   txlog,
		log:     log,
		now:     time.Now,
	}
}

// ChatStream is an open upstream completion.
type ChatStream struct {
	body io.ReadCloser
	log  logger.Logger
}

// Forward decodes the upstream stream and passes each delta to onDelta in
// order. It returns nil once the stream has completed.
func (s *ChatStream) Forward(ctx context.Context, onDelta func(string)) error {
	defer s.body.Close()

	deltas := metrics.StreamDeltas.WithLabelValues(consumerChat)
	err := stream.Decode(ctx, s.body, func(content string) {
		deltas.Inc()
		onDelta(content)
	})
	if err != nil {
		s.log.Warn("Chat stream interrupted", logger.ErrorField("error", err))
		return fmt.Errorf("forward chat stream: %w", err)
	}
	return nil
}

func (s *ChatStream) Close() error {
	return s.body.Close()
}

func (uc *assistantUsecase) OpenChat(ctx context.Context, owner uuid.UUID, req models.ChatRequest) (*ChatStream, error) {
	if err := uc.limiter.Admit(ctx, ScopeChat, owner); err != nil {
		return nil, err
	}

	messages := make([]models.ChatMessage, 0, len(req.Messages)+1)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: chatSystemPrompt})
	messages = append(messages, req.Messages...)

	uc.log.Info("Opening chat stream",
		logger.UserField(owner),
		logger.IntField("messages", len(req.Messages)))

	body, err := uc.gateway.StreamCompletion(ctx, messages)
	if err != nil {
		return nil, uc.gatewayError(err)
	}
	return &ChatStream{body: body, log: uc.log}, nil
}

func (uc *assistantUsecase) Insights(ctx context.Context, owner, walletID uuid.UUID) (*models.InsightsReport, error) {
	if err := uc.limiter.Admit(ctx, ScopeInsights, owner); err != nil {
		return nil, err
	}

	snapshot, err := uc.snapshot(ctx, owner, walletID)
	if err != nil {
		return nil, err
	}

	body, err := uc.gateway.StreamCompletion(ctx, []models.ChatMessage{
		{Role: models.RoleSystem, Content: insightsSystemPrompt},
		{Role: models.RoleUser, Content: insightsPrompt(snapshot)},
	})
	if err != nil {
		return nil, uc.gatewayError(err)
	}
	defer body.Close()

	var answer strings.Builder
	deltas := metrics.StreamDeltas.WithLabelValues(consumerInsights)
	if err := stream.Decode(ctx, body, func(content string) {
		deltas.Inc()
		answer.WriteString(content)
	}); err != nil {
		uc.log.Error("Insights stream interrupted", logger.ErrorField("error", err))
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, gateway.ErrTimeout) {
			return nil, fmt.Errorf("%w: read insights: %v", ErrRequestTimeout, err)
		}
		return nil, fmt.Errorf("%w: read insights: %v", ErrGatewayUnavailable, err)
	}

	insights, err := parseInsights(answer.String())
	if err != nil {
		uc.log.Error("Unreadable insights answer",
			logger.IntField("length", answer.Len()),
			logger.ErrorField("error", err))
		return nil, err
	}

	return &models.InsightsReport{Snapshot: *snapshot, Insights: insights}, nil
}

func (uc *assistantUsecase) snapshot(ctx context.Context, owner, walletID uuid.UUID) (*models.FinancialSnapshot, error) {
	wallet, err := uc.ledger.GetWallet(ctx, owner, walletID)
	if errors.Is(err, repository.ErrWalletNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, walletID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get wallet: %v", ErrInternal, err)
	}

	now := uc.now()
	weekly, err := uc.txlog.SpentSince(ctx, owner, walletID, now.AddDate(0, 0, -7))
	if err != nil {
		return nil, fmt.Errorf("%w: weekly spending: %v", ErrInternal, err)
	}
	monthly, err := uc.txlog.SpentSince(ctx, owner, walletID, now.AddDate(0, 0, -spendingWindowDays))
	if err != nil {
		return nil, fmt.Errorf("%w: monthly spending: %v", ErrInternal, err)
	}

	return BuildSnapshot(wallet, weekly, monthly, now), nil
}

// BuildSnapshot derives the spending forecast from a balance and the
// spending over the last week and month.
func BuildSnapshot(wallet *models.Wallet, weekly, monthly decimal.Decimal, now time.Time) *models.FinancialSnapshot {
	dailyAverage := monthly.Div(decimal.NewFromInt(spendingWindowDays)).Round(2)

	divisor := dailyAverage
	if divisor.LessThan(decimal.NewFromInt(1)) {
		divisor = decimal.NewFromInt(1)
	}

	return &models.FinancialSnapshot{
		CurrentBalance:   wallet.Balance,
		Currency:         wallet.Currency,
		WeeklySpending:   weekly,
		MonthlySpending:  monthly,
		DailyAverage:     dailyAverage,
		DaysUntilLow:     wallet.Balance.Div(divisor).Floor().IntPart(),
		PredictedBalance: wallet.Balance.Sub(dailyAverage.Mul(decimal.NewFromInt(predictionDays))),
		GeneratedAt:      now.UTC(),
	}
}

func insightsPrompt(s *models.FinancialSnapshot) string {
	return fmt.Sprintf(`Analyze this financial data and provide 3-4 actionable insights:

Current Balance: %s %s
Weekly Spending: %s
Monthly Spending: %s
Daily Average: %s
Days Until Low Balance: %d
Predicted Balance (7 days): %s

Focus on: spending patterns, budget alerts, savings opportunities, and cash flow predictions.`,
		s.CurrentBalance, s.Currency, s.WeeklySpending, s.MonthlySpending,
		s.DailyAverage, s.DaysUntilLow, s.PredictedBalance)
}

// parseInsights extracts the JSON array from a model answer that may wrap
// it in prose or a code fence.
func parseInsights(answer string) ([]models.Insight, error) {
	start := strings.Index(answer, "[")
	end := strings.LastIndex(answer, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON array in answer", ErrInvalidInsights)
	}

	var insights []models.Insight
	if err := json.Unmarshal([]byte(answer[start:end+1]), &insights); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInsights, err)
	}
	if len(insights) == 0 {
		return nil, fmt.Errorf("%w: empty list", ErrInvalidInsights)
	}
	return insights, nil
}

func (uc *assistantUsecase) gatewayError(err error) error {
	var mapped error
	switch {
	case errors.Is(err, gateway.ErrTimeout):
		mapped = ErrRequestTimeout
	case errors.Is(err, gateway.ErrRateLimited):
		mapped = ErrGatewayRateLimited
	case errors.Is(err, gateway.ErrPaymentRequired):
		mapped = ErrGatewayPayment
	default:
		mapped = ErrGatewayUnavailable
	}
	uc.log.Error("AI gateway call failed", logger.ErrorField("error", err))
	return fmt.Errorf("%w: %v", mapped, err)
}
