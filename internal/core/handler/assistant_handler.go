package handler

import (
	"errors"
	"net/http"

	"github.com/Nzyazin/paychain/internal/core/logger"
	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/Nzyazin/paychain/internal/core/stream"
	"github.com/Nzyazin/paychain/internal/core/usecase"
	"github.com/google/uuid"
)

type AssistantHandler struct {
	usecase   usecase.AssistantUsecase
	validator *Validator
	log       logger.Logger
}

type insightsResponse struct {
	Success  bool                     `json:"success"`
	Snapshot models.FinancialSnapshot `json:"snapshot"`
	Insights []models.Insight         `json:"insights"`
}

func NewAssistantHandler(usecase usecase.AssistantUsecase, validator *Validator, log logger.Logger) *AssistantHandler {
	return &AssistantHandler{usecase: usecase, validator: validator, log: log}
}

// Chat streams the assistant answer as server-sent events. Errors before the
// first byte are plain JSON; later errors end the stream without [DONE].
func (h *AssistantHandler) Chat(w http.ResponseWriter, r *http.Request) {
	owner, ok := principal(w, r)
	if !ok {
		return
	}

	var req models.ChatRequest
	if err := decodeRequest(w, r, &req); err != nil {
		respondWithUsecaseError(w, err)
		return
	}
	if err := h.validator.ChatRequest(req); err != nil {
		h.log.Warn("Invalid chat request", logger.UserField(owner), logger.ErrorField("error", err))
		respondWithUsecaseError(w, err)
		return
	}

	chat, err := h.usecase.OpenChat(r.Context(), owner, req)
	if err != nil {
		h.logRejection("Chat rejected", owner, err)
		respondWithUsecaseError(w, err)
		return
	}
	defer chat.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events := stream.NewEventWriter(w)
	var writeErr error
	err = chat.Forward(r.Context(), func(content string) {
		if writeErr != nil {
			return
		}
		writeErr = events.Delta(content)
	})
	if err != nil {
		h.log.Error("Chat stream ended early", logger.UserField(owner), logger.ErrorField("error", err))
		return
	}
	if writeErr != nil {
		h.log.Warn("Client stopped reading chat stream", logger.UserField(owner), logger.ErrorField("error", writeErr))
		return
	}
	if err := events.Done(); err != nil {
		h.log.Warn("Failed to terminate chat stream", logger.UserField(owner), logger.ErrorField("error", err))
	}
}

func (h *AssistantHandler) Insights(w http.ResponseWriter, r *http.Request) {
	owner, ok := principal(w, r)
	if !ok {
		return
	}

	var req models.InsightsRequest
	if err := decodeRequest(w, r, &req); err != nil {
		respondWithUsecaseError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondWithUsecaseError(w, err)
		return
	}
	walletID, err := uuid.Parse(req.WalletID)
	if err != nil {
		respondWithUsecaseError(w, newValidationError("walletId", "must be a UUID"))
		return
	}

	report, err := h.usecase.Insights(r.Context(), owner, walletID)
	if err != nil {
		h.logRejection("Insights failed", owner, err)
		respondWithUsecaseError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, insightsResponse{
		Success:  true,
		Snapshot: report.Snapshot,
		Insights: report.Insights,
	})
}

func (h *AssistantHandler) logRejection(msg string, owner uuid.UUID, err error) {
	var limitErr *usecase.RateLimitError
	if errors.As(err, &limitErr) || errors.Is(err, usecase.ErrWalletNotFound) {
		h.log.Info(msg, logger.UserField(owner), logger.ErrorField("error", err))
		return
	}
	h.log.Error(msg, logger.UserField(owner), logger.ErrorField("error", err))
}
