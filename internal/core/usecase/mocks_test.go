package usecase

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/Nzyazin/paychain/internal/core/repository/memory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) GetWallet(ctx context.Context, owner, id uuid.UUID) (*models.Wallet, error) {
	args := m.Called(ctx, owner, id)
	w, _ := args.Get(0).(*models.Wallet)
	return w, args.Error(1)
}

func (m *mockLedger) ListWallets(ctx context.Context, owner uuid.UUID) ([]models.Wallet, error) {
	args := m.Called(ctx, owner)
	w, _ := args.Get(0).([]models.Wallet)
	return w, args.Error(1)
}

func (m *mockLedger) Deduct(ctx context.Context, owner, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, owner, id, amount)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type mockTxLog struct {
	mock.Mock
}

func (m *mockTxLog) Create(ctx context.Context, txn *models.Transaction) error {
	return m.Called(ctx, txn).Error(0)
}

func (m *mockTxLog) Finalize(ctx context.Context, txn *models.Transaction) error {
	return m.Called(ctx, txn).Error(0)
}

func (m *mockTxLog) GetByID(ctx context.Context, owner uuid.UUID, id string) (*models.Transaction, error) {
	args := m.Called(ctx, owner, id)
	t, _ := args.Get(0).(*models.Transaction)
	return t, args.Error(1)
}

func (m *mockTxLog) ListByOwner(ctx context.Context, owner uuid.UUID, limit int) ([]models.Transaction, error) {
	args := m.Called(ctx, owner, limit)
	t, _ := args.Get(0).([]models.Transaction)
	return t, args.Error(1)
}

func (m *mockTxLog) SpentSince(ctx context.Context, owner, walletID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, owner, walletID, since)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type mockSettler struct {
	mock.Mock
}

func (m *mockSettler) Settle(ctx context.Context, txn models.Transaction) error {
	return m.Called(ctx, txn).Error(0)
}

// failingFinalizeLog records everything except completions.
type failingFinalizeLog struct {
	*memory.TransactionLog
	err error
}

func (l *failingFinalizeLog) Finalize(ctx context.Context, txn *models.Transaction) error {
	if txn.Status == models.StatusCompleted {
		return l.err
	}
	return l.TransactionLog.Finalize(ctx, txn)
}

type stubStreamer struct {
	body     string
	reader   io.Reader
	err      error
	calls    int
	messages []models.ChatMessage
}

func (s *stubStreamer) StreamCompletion(ctx context.Context, messages []models.ChatMessage) (io.ReadCloser, error) {
	s.calls++
	s.messages = messages
	if s.err != nil {
		return nil, s.err
	}
	if s.reader != nil {
		return io.NopCloser(s.reader), nil
	}
	return io.NopCloser(strings.NewReader(s.body)), nil
}

type stubLimiter struct {
	err error
}

func (s stubLimiter) Admit(ctx context.Context, scope Scope, owner uuid.UUID) error {
	return s.err
}
