package middleware

import (
	"encoding/json"
	"net/http"
)

const (
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInternal            = "INTERNAL_ERROR"
	CodeValidation          = "VALIDATION_ERROR"
	CodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: message, Code: code})
}
