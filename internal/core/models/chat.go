package models

import (
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxConversationChars bounds the combined content of one chat request.
const MaxConversationChars = 50000

type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=2000"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages" validate:"required,min=1,max=50,dive"`
}

// TotalChars counts characters, not bytes, across all messages.
func (r ChatRequest) TotalChars() int {
	n := 0
	for _, m := range r.Messages {
		n += utf8.RuneCountInString(m.Content)
	}
	return n
}

type InsightsRequest struct {
	WalletID string `json:"walletId" validate:"required,uuid"`
}

// FinancialSnapshot summarizes recent spending for one wallet.
type FinancialSnapshot struct {
	CurrentBalance   decimal.Decimal `json:"currentBalance"`
	Currency         Currency        `json:"currency"`
	WeeklySpending   decimal.Decimal `json:"weeklySpending"`
	MonthlySpending  decimal.Decimal `json:"monthlySpending"`
	DailyAverage     decimal.Decimal `json:"dailyAverage"`
	DaysUntilLow     int64           `json:"daysUntilLow"`
	PredictedBalance decimal.Decimal `json:"predictedBalance"`
	GeneratedAt      time.Time       `json:"generatedAt"`
}

type Insight struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Prediction  string `json:"prediction,omitempty"`
	Action      string `json:"action"`
}

type InsightsReport struct {
	Snapshot FinancialSnapshot `json:"snapshot"`
	Insights []Insight         `json:"insights"`
}
