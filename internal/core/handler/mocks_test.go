package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/Nzyazin/paychain/internal/core/middleware"
	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type mockPaymentUsecase struct {
	mock.Mock
}

func (m *mockPaymentUsecase) ProcessPayment(ctx context.Context, owner uuid.UUID, p models.Payment) (*models.Transaction, error) {
	args := m.Called(ctx, owner, p)
	txn, _ := args.Get(0).(*models.Transaction)
	return txn, args.Error(1)
}

func (m *mockPaymentUsecase) GetTransaction(ctx context.Context, owner uuid.UUID, id string) (*models.Transaction, error) {
	args := m.Called(ctx, owner, id)
	txn, _ := args.Get(0).(*models.Transaction)
	return txn, args.Error(1)
}

func (m *mockPaymentUsecase) ListTransactions(ctx context.Context, owner uuid.UUID, limit int) ([]models.Transaction, error) {
	args := m.Called(ctx, owner, limit)
	txns, _ := args.Get(0).([]models.Transaction)
	return txns, args.Error(1)
}

func (m *mockPaymentUsecase) ListWallets(ctx context.Context, owner uuid.UUID) ([]models.Wallet, error) {
	args := m.Called(ctx, owner)
	wallets, _ := args.Get(0).([]models.Wallet)
	return wallets, args.Error(1)
}

// sseStreamer answers every completion with a fixed event stream.
type sseStreamer struct {
	body     string
	reader   io.Reader
	err      error
	messages []models.ChatMessage
}

func (s *sseStreamer) StreamCompletion(_ context.Context, messages []models.ChatMessage) (io.ReadCloser, error) {
	s.messages = messages
	if s.err != nil {
		return nil, s.err
	}
	if s.reader != nil {
		return io.NopCloser(s.reader), nil
	}
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func authedRequest(method, target, body string, owner uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.WithPrincipal(req.Context(), owner))
}
