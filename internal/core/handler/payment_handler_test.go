package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Nzyazin/paychain/internal/core/middleware"
	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/Nzyazin/paychain/internal/core/repository"
	"github.com/Nzyazin/paychain/internal/core/repository/memory"
	"github.com/Nzyazin/paychain/internal/core/usecase"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func paymentBody(walletID uuid.UUID, amount string) string {
	return fmt.Sprintf(`{"amount":%s,"currency":"INR","fromWalletId":"%s","transactionType":"send","recipientUpi":"alice@upi"}`, amount, walletID)
}

func TestProcessPaymentEndToEnd(t *testing.T) {
	owner, walletID := uuid.New(), uuid.New()
	wallets := memory.NewWalletStore(models.Wallet{
		ID:       walletID,
		UserID:   owner,
		Balance:  decimal.RequireFromString("1000"),
		Currency: models.CurrencyINR,
	})
	uc := usecase.NewPaymentUsecase(wallets, memory.NewTransactionLog(), usecase.SimulatedSettler{}, time.Second, zap.NewNop())
	h := NewPaymentHandler(uc, NewValidator(), zap.NewNop())

	rec := httptest.NewRecorder()
	h.ProcessPayment(rec, authedRequest(http.MethodPost, "/api/v1/payments", paymentBody(walletID, "100"), owner))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeResponse(t, rec)
	assert.Equal(t, true, body["success"])
	txn := body["transaction"].(map[string]interface{})
	assert.Equal(t, "completed", txn["status"])
	assert.Equal(t, "0.1", txn["fee"])
	assert.NotContains(t, txn, "failure_reason")

	wallet, err := wallets.GetWallet(t.Context(), owner, walletID)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.RequireFromString("899.9")), wallet.Balance.String())

	rec = httptest.NewRecorder()
	h.ProcessPayment(rec, authedRequest(http.MethodPost, "/api/v1/payments", paymentBody(walletID, "5000"), owner))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INSUFFICIENT_BALANCE", decodeResponse(t, rec)["code"])
}

func TestProcessPaymentValidation(t *testing.T) {
	owner := uuid.New()
	wallet := uuid.New()

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "malformed json", body: `{"amount":`, field: "body"},
		{name: "zero amount", body: paymentBody(wallet, "0"), field: "amount"},
		{name: "negative amount", body: paymentBody(wallet, "-5"), field: "amount"},
		{name: "amount above bound", body: paymentBody(wallet, "10000001"), field: "amount"},
		{name: "too many decimals", body: paymentBody(wallet, "1.123456789"), field: "amount"},
		{name: "unknown currency", body: fmt.Sprintf(`{"amount":1,"currency":"EUR","fromWalletId":"%s","transactionType":"send"}`, wallet), field: "currency"},
		{name: "bad wallet id", body: `{"amount":1,"currency":"INR","fromWalletId":"nope","transactionType":"send"}`, field: "fromWalletId"},
		{name: "bad kind", body: fmt.Sprintf(`{"amount":1,"currency":"INR","fromWalletId":"%s","transactionType":"refund"}`, wallet), field: "transactionType"},
		{name: "bad crypto currency", body: fmt.Sprintf(`{"amount":1,"currency":"INR","fromWalletId":"%s","transactionType":"exchange","cryptoAmount":1,"cryptoCurrency":"INR"}`, wallet), field: "cryptoCurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := new(mockPaymentUsecase)
			h := NewPaymentHandler(uc, NewValidator(), zap.NewNop())

			rec := httptest.NewRecorder()
			h.ProcessPayment(rec, authedRequest(http.MethodPost, "/api/v1/payments", tt.body, owner))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeResponse(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "VALIDATION_ERROR", body["code"])
			assert.Contains(t, body["details"], tt.field)
			uc.AssertNotCalled(t, "ProcessPayment", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestProcessPaymentErrorMapping(t *testing.T) {
	owner, walletID := uuid.New(), uuid.New()

	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{name: "insufficient", err: &usecase.StepError{Step: usecase.StepValidateBalance, Err: usecase.ErrInsufficientBalance}, status: http.StatusBadRequest, code: "INSUFFICIENT_BALANCE"},
		{name: "not found", err: &usecase.StepError{Step: usecase.StepValidateBalance, Err: usecase.ErrWalletNotFound}, status: http.StatusNotFound, code: "WALLET_NOT_FOUND"},
		{name: "locked", err: &usecase.StepError{Step: usecase.StepDeduct, Err: usecase.ErrWalletLocked}, status: http.StatusConflict, code: "WALLET_LOCKED"},
		{name: "unauthorized", err: usecase.ErrUnauthorized, status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "critical", err: &usecase.StepError{Step: usecase.StepFinalize, TransactionID: "txn_1", Err: usecase.ErrCriticalInconsistency, Cause: errors.New("db down")}, status: http.StatusInternalServerError, code: "INTERNAL_ERROR", message: msgCritical},
		{name: "internal", err: &usecase.StepError{Step: usecase.StepCreate, Err: usecase.ErrInternal, Cause: errors.New("pq: connection reset")}, status: http.StatusInternalServerError, code: "INTERNAL_ERROR", message: msgInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := new(mockPaymentUsecase)
			uc.On("ProcessPayment", mock.Anything, owner, mock.AnythingOfType("models.Payment")).Return(nil, tt.err)
			h := NewPaymentHandler(uc, NewValidator(), zap.NewNop())

			rec := httptest.NewRecorder()
			h.ProcessPayment(rec, authedRequest(http.MethodPost, "/api/v1/payments", paymentBody(walletID, "10.5"), owner))

			assert.Equal(t, tt.status, rec.Code)
			body := decodeResponse(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["code"])
			if tt.message != "" {
				assert.Equal(t, tt.message, body["error"])
			}
			assert.NotContains(t, rec.Body.String(), "db down")
			assert.NotContains(t, rec.Body.String(), "pq:")
			uc.AssertExpectations(t)
		})
	}
}

func TestProcessPaymentCriticalCarriesTransactionID(t *testing.T) {
	owner := uuid.New()
	uc := new(mockPaymentUsecase)
	uc.On("ProcessPayment", mock.Anything, owner, mock.Anything).
		Return(nil, &usecase.StepError{Step: usecase.StepConfirm, TransactionID: "txn_abc", Err: usecase.ErrCriticalInconsistency})
	h := NewPaymentHandler(uc, NewValidator(), zap.NewNop())

	rec := httptest.NewRecorder()
	h.ProcessPayment(rec, authedRequest(http.MethodPost, "/api/v1/payments", paymentBody(uuid.New(), "1"), owner))

	assert.Equal(t, "txn_abc", decodeResponse(t, rec)["transactionId"])
}

// completionFailingLog refuses to record a completed transaction.
type completionFailingLog struct {
	*memory.TransactionLog
}

func (l completionFailingLog) Finalize(ctx context.Context, txn *models.Transaction) error {
	if txn.Status == models.StatusCompleted {
		return errors.New("connection reset")
	}
	return l.TransactionLog.Finalize(ctx, txn)
}

type mapIdempotencyStore struct {
	responses map[string]repository.CachedResponse
	locks     map[string]bool
}

func (s *mapIdempotencyStore) Reserve(_ context.Context, key string) (*repository.CachedResponse, error) {
	if resp, ok := s.responses[key]; ok {
		return &resp, nil
	}
	if s.locks[key] {
		return nil, repository.ErrIdempotencyInFlight
	}
	s.locks[key] = true
	return nil, nil
}

func (s *mapIdempotencyStore) Save(_ context.Context, key string, resp repository.CachedResponse) error {
	s.responses[key] = resp
	return nil
}

func (s *mapIdempotencyStore) Release(_ context.Context, key string) error {
	delete(s.locks, key)
	return nil
}

func TestProcessPaymentRetryAfterUnconfirmedDeductionIsNotCharged(t *testing.T) {
	owner, walletID := uuid.New(), uuid.New()
	wallets := memory.NewWalletStore(models.Wallet{
		ID:       walletID,
		UserID:   owner,
		Balance:  decimal.RequireFromString("1000"),
		Currency: models.CurrencyINR,
	})
	uc := usecase.NewPaymentUsecase(wallets, completionFailingLog{memory.NewTransactionLog()}, usecase.SimulatedSettler{}, time.Second, zap.NewNop())
	store := &mapIdempotencyStore{responses: map[string]repository.CachedResponse{}, locks: map[string]bool{}}
	h := middleware.Idempotency(store, zap.NewNop())(http.HandlerFunc(NewPaymentHandler(uc, NewValidator(), zap.NewNop()).ProcessPayment))

	send := func() *httptest.ResponseRecorder {
		req := authedRequest(http.MethodPost, "/api/v1/payments", paymentBody(walletID, "100"), owner)
		req.Header.Set(middleware.IdempotencyHeader, "pay-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusInternalServerError, first.Code)
	assert.NotEmpty(t, decodeResponse(t, first)["transactionId"])

	second := send()
	assert.Equal(t, http.StatusInternalServerError, second.Code)
	assert.Equal(t, "true", second.Header().Get(middleware.IdempotencyHitHeader))
	assert.Equal(t, first.Body.String(), second.Body.String())

	wallet, err := wallets.GetWallet(t.Context(), owner, walletID)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.RequireFromString("899.9")), wallet.Balance.String())
}

func TestProcessPaymentRetryAfterRejectionRunsAgain(t *testing.T) {
	owner := uuid.New()
	uc := new(mockPaymentUsecase)
	uc.On("ProcessPayment", mock.Anything, owner, mock.Anything).
		Return(nil, &usecase.StepError{Step: usecase.StepDeduct, Err: usecase.ErrWalletLocked}).Twice()
	store := &mapIdempotencyStore{responses: map[string]repository.CachedResponse{}, locks: map[string]bool{}}
	h := middleware.Idempotency(store, zap.NewNop())(http.HandlerFunc(NewPaymentHandler(uc, NewValidator(), zap.NewNop()).ProcessPayment))

	for i := 0; i < 2; i++ {
		req := authedRequest(http.MethodPost, "/api/v1/payments", paymentBody(uuid.New(), "1"), owner)
		req.Header.Set(middleware.IdempotencyHeader, "pay-2")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Empty(t, rec.Header().Get(middleware.IdempotencyHitHeader))
	}
	uc.AssertExpectations(t)
	assert.Empty(t, store.responses)
}

func TestProcessPaymentRequiresPrincipal(t *testing.T) {
	uc := new(mockPaymentUsecase)
	h := NewPaymentHandler(uc, NewValidator(), zap.NewNop())

	rec := httptest.NewRecorder()
	h.ProcessPayment(rec, httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeResponse(t, rec)["code"])
}

func TestListTransactions(t *testing.T) {
	owner := uuid.New()

	t.Run("default limit", func(t *testing.T) {
		uc := new(mockPaymentUsecase)
		uc.On("ListTransactions", mock.Anything, owner, 0).Return(nil, nil)
		h := NewPaymentHandler(uc, NewValidator(), zap.NewNop())

		rec := httptest.NewRecorder()
		h.ListTransactions(rec, authedRequest(http.MethodGet, "/api/v1/transactions", "", owner))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true,"transactions":[]}`, rec.Body.String())
	})

	t.Run("explicit limit", func(t *testing.T) {
		uc := new(mockPaymentUsecase)
		uc.On("ListTransactions", mock.Anything, owner, 5).Return([]models.Transaction{{ID: "txn_1", Status: models.StatusCompleted}}, nil)
		h := NewPaymentHandler(uc, NewValidator(), zap.NewNop())

		rec := httptest.NewRecorder()
		h.ListTransactions(rec, authedRequest(http.MethodGet, "/api/v1/transactions?limit=5", "", owner))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeResponse(t, rec)["transactions"], 1)
	})

	t.Run("bad limit", func(t *testing.T) {
		uc := new(mockPaymentUsecase)
		h := NewPaymentHandler(uc, NewValidator(), zap.NewNop())

		rec := httptest.NewRecorder()
		h.ListTransactions(rec, authedRequest(http.MethodGet, "/api/v1/transactions?limit=abc", "", owner))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeResponse(t, rec)["code"])
	})
}

func TestGetTransaction(t *testing.T) {
	owner := uuid.New()
	uc := new(mockPaymentUsecase)
	uc.On("GetTransaction", mock.Anything, owner, "txn_found").Return(&models.Transaction{ID: "txn_found", Status: models.StatusCompleted}, nil)
	uc.On("GetTransaction", mock.Anything, owner, "txn_missing").Return(nil, fmt.Errorf("%w: txn_missing", usecase.ErrTransactionNotFound))
	h := NewPaymentHandler(uc, NewValidator(), zap.NewNop())

	router := mux.NewRouter()
	router.HandleFunc("/api/v1/transactions/{id}", h.GetTransaction)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/transactions/txn_found", "", owner))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "txn_found", decodeResponse(t, rec)["transaction"].(map[string]interface{})["id"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/transactions/txn_missing", "", owner))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TRANSACTION_NOT_FOUND", decodeResponse(t, rec)["code"])
}

func TestListWallets(t *testing.T) {
	owner := uuid.New()
	uc := new(mockPaymentUsecase)
	uc.On("ListWallets", mock.Anything, owner).Return([]models.Wallet{{ID: uuid.New(), UserID: owner, Balance: decimal.NewFromInt(5), Currency: models.CurrencyETH}}, nil)
	h := NewPaymentHandler(uc, NewValidator(), zap.NewNop())

	rec := httptest.NewRecorder()
	h.ListWallets(rec, authedRequest(http.MethodGet, "/api/v1/wallets", "", owner))

	assert.Equal(t, http.StatusOK, rec.Code)
	wallets := decodeResponse(t, rec)["wallets"].([]interface{})
	require.Len(t, wallets, 1)
	assert.Equal(t, "ETH", wallets[0].(map[string]interface{})["currency"])
}
