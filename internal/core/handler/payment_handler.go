package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Nzyazin/paychain/internal/core/logger"
	"github.com/Nzyazin/paychain/internal/core/middleware"
	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/Nzyazin/paychain/internal/core/usecase"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type PaymentHandler struct {
	usecase   usecase.PaymentUsecase
	validator *Validator
	log       logger.Logger
}

type transactionsResponse struct {
	Success      bool                 `json:"success"`
	Transactions []models.Transaction `json:"transactions"`
}

type walletsResponse struct {
	Success bool            `json:"success"`
	Wallets []models.Wallet `json:"wallets"`
}

func NewPaymentHandler(usecase usecase.PaymentUsecase, validator *Validator, log logger.Logger) *PaymentHandler {
	return &PaymentHandler{usecase: usecase, validator: validator, log: log}
}

func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	owner, ok := principal(w, r)
	if !ok {
		return
	}

	payment, err := h.decodePayment(w, r)
	if err != nil {
		h.log.Warn("Invalid payment request", logger.UserField(owner), logger.ErrorField("error", err))
		respondWithUsecaseError(w, err)
		return
	}

	txn, err := h.usecase.ProcessPayment(r.Context(), owner, payment)
	if err != nil {
		h.handleOperationError(w, r, owner, payment, err)
		return
	}

	h.log.Info("Payment processed",
		logger.UserField(owner),
		logger.StringField("transaction_id", txn.ID),
		logger.StringField("status", string(txn.Status)))
	respondWithJSON(w, http.StatusOK, Response{Success: true, Transaction: txn})
}

func (h *PaymentHandler) decodePayment(w http.ResponseWriter, r *http.Request) (models.Payment, error) {
	var req models.PaymentRequest
	if err := decodeRequest(w, r, &req); err != nil {
		return models.Payment{}, err
	}
	if err := h.validator.Struct(req); err != nil {
		return models.Payment{}, err
	}

	payment, err := req.Payment()
	var fieldErr *models.FieldError
	if errors.As(err, &fieldErr) {
		return models.Payment{}, newValidationError(fieldErr.Field, fieldErr.Message)
	}
	return payment, err
}

func (h *PaymentHandler) handleOperationError(w http.ResponseWriter, r *http.Request, owner uuid.UUID, p models.Payment, err error) {
	fields := []logger.Field{
		logger.UserField(owner),
		logger.StringField("wallet_id", p.FromWalletID.String()),
		logger.StringField("amount", p.Amount.String()),
		logger.ErrorField("error", err),
	}
	switch {
	case errors.Is(err, usecase.ErrCriticalInconsistency), errors.Is(err, usecase.ErrInternal):
		h.log.Error("Payment failed", fields...)
	default:
		h.log.Warn("Payment rejected", fields...)
	}
	if usecase.MayHaveDebited(err) {
		middleware.RetainIdempotentResponse(r.Context())
	}
	respondWithUsecaseError(w, err)
}

func (h *PaymentHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := principal(w, r)
	if !ok {
		return
	}

	txn, err := h.usecase.GetTransaction(r.Context(), owner, mux.Vars(r)["id"])
	if err != nil {
		if !errors.Is(err, usecase.ErrTransactionNotFound) {
			h.log.Error("Failed to load transaction", logger.UserField(owner), logger.ErrorField("error", err))
		}
		respondWithUsecaseError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, Response{Success: true, Transaction: txn})
}

func (h *PaymentHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	owner, ok := principal(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondWithUsecaseError(w, newValidationError("limit", "must be a positive integer"))
			return
		}
		limit = n
	}

	txns, err := h.usecase.ListTransactions(r.Context(), owner, limit)
	if err != nil {
		h.log.Error("Failed to list transactions", logger.UserField(owner), logger.ErrorField("error", err))
		respondWithUsecaseError(w, err)
		return
	}
	if txns == nil {
		txns = []models.Transaction{}
	}
	respondWithJSON(w, http.StatusOK, transactionsResponse{Success: true, Transactions: txns})
}

func (h *PaymentHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	owner, ok := principal(w, r)
	if !ok {
		return
	}

	wallets, err := h.usecase.ListWallets(r.Context(), owner)
	if err != nil {
		h.log.Error("Failed to list wallets", logger.UserField(owner), logger.ErrorField("error", err))
		respondWithUsecaseError(w, err)
		return
	}
	if wallets == nil {
		wallets = []models.Wallet{}
	}
	respondWithJSON(w, http.StatusOK, walletsResponse{Success: true, Wallets: wallets})
}

// principal writes a 401 when the request carries no authenticated user.
func principal(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	owner, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized")
	}
	return owner, ok
}
