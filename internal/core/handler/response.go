package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Nzyazin/paychain/internal/core/middleware"
	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/Nzyazin/paychain/internal/core/usecase"
)

const (
	CodeValidation          = middleware.CodeValidation
	CodeUnauthorized        = middleware.CodeUnauthorized
	CodeInternal            = middleware.CodeInternal
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeWalletNotFound      = "WALLET_NOT_FOUND"
	CodeWalletLocked        = "WALLET_LOCKED"
	CodeTransactionNotFound = "TRANSACTION_NOT_FOUND"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeRequestTimeout      = "REQUEST_TIMEOUT"
	CodeGatewayRateLimited  = "AI_GATEWAY_RATE_LIMITED"
	CodePaymentRequired     = "AI_PAYMENT_REQUIRED"
	CodeGatewayError        = "AI_GATEWAY_ERROR"
)

const (
	msgInternal = "Internal server error"
	msgCritical = "Payment was deducted but could not be confirmed. Please contact support with your transaction id."
)

// Response is the envelope shared by payment results and every error.
type Response struct {
	Success       bool                `json:"success"`
	Transaction   *models.Transaction `json:"transaction,omitempty"`
	TransactionID string              `json:"transactionId,omitempty"`
	Error         string              `json:"error,omitempty"`
	Code          string              `json:"code,omitempty"`
	Details       map[string]string   `json:"details,omitempty"`
}

type rateLimitResponse struct {
	Error   string    `json:"error"`
	Limit   int       `json:"limit"`
	ResetAt time.Time `json:"resetAt"`
	Code    string    `json:"code"`
}

type apiError struct {
	status  int
	code    string
	message string
}

// classify maps a usecase error to what the caller is allowed to see.
func classify(err error) apiError {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		return apiError{http.StatusBadRequest, CodeValidation, "Validation failed"}
	case errors.Is(err, usecase.ErrUnauthorized):
		return apiError{http.StatusUnauthorized, CodeUnauthorized, "Unauthorized"}
	case errors.Is(err, usecase.ErrInsufficientBalance):
		return apiError{http.StatusBadRequest, CodeInsufficientBalance, "Insufficient balance"}
	case errors.Is(err, usecase.ErrWalletNotFound):
		return apiError{http.StatusNotFound, CodeWalletNotFound, "Wallet not found"}
	case errors.Is(err, usecase.ErrWalletLocked):
		return apiError{http.StatusConflict, CodeWalletLocked, "Wallet is locked by another transaction, please retry"}
	case errors.Is(err, usecase.ErrTransactionNotFound):
		return apiError{http.StatusNotFound, CodeTransactionNotFound, "Transaction not found"}
	case errors.Is(err, usecase.ErrCriticalInconsistency):
		return apiError{http.StatusInternalServerError, CodeInternal, msgCritical}
	case errors.Is(err, usecase.ErrRequestTimeout):
		return apiError{http.StatusRequestTimeout, CodeRequestTimeout, "Request timed out, please try again"}
	case errors.Is(err, usecase.ErrGatewayRateLimited):
		return apiError{http.StatusTooManyRequests, CodeGatewayRateLimited, "AI service is busy, please try again shortly"}
	case errors.Is(err, usecase.ErrGatewayPayment):
		return apiError{http.StatusPaymentRequired, CodePaymentRequired, "AI service credits exhausted"}
	case errors.Is(err, usecase.ErrGatewayUnavailable):
		return apiError{http.StatusInternalServerError, CodeGatewayError, "AI service error"}
	default:
		return apiError{http.StatusInternalServerError, CodeInternal, msgInternal}
	}
}

// respondWithUsecaseError writes the classified error. Rate limit rejections
// carry their own body.
func respondWithUsecaseError(w http.ResponseWriter, err error) {
	var limitErr *usecase.RateLimitError
	if errors.As(err, &limitErr) {
		respondWithJSON(w, http.StatusTooManyRequests, rateLimitResponse{
			Error:   "Daily " + string(limitErr.Scope) + " limit reached",
			Limit:   limitErr.Limit,
			ResetAt: limitErr.ResetAt.UTC(),
			Code:    CodeRateLimitExceeded,
		})
		return
	}

	apiErr := classify(err)
	resp := Response{Error: apiErr.message, Code: apiErr.code}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		resp.Details = validationErr.Details
	}
	var stepErr *usecase.StepError
	if errors.As(err, &stepErr) && errors.Is(err, usecase.ErrCriticalInconsistency) {
		resp.TransactionID = stepErr.TransactionID
	}

	respondWithJSON(w, apiErr.status, resp)
}

func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, Response{Error: message, Code: code})
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"error":"Internal server error","code":"INTERNAL_ERROR"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}
