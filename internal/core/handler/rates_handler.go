package handler

import (
	"net/http"

	"github.com/Nzyazin/paychain/internal/core/logger"
	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/Nzyazin/paychain/internal/core/usecase"
)

type RatesHandler struct {
	usecase usecase.RatesUsecase
	log     logger.Logger
}

type ratesResponse struct {
	Success bool                  `json:"success"`
	Rates   []models.ExchangeRate `json:"rates"`
}

func NewRatesHandler(usecase usecase.RatesUsecase, log logger.Logger) *RatesHandler {
	return &RatesHandler{usecase: usecase, log: log}
}

func (h *RatesHandler) ListRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.usecase.ListRates(r.Context())
	if err != nil {
		h.log.Error("Failed to list exchange rates", logger.ErrorField("error", err))
		respondWithUsecaseError(w, err)
		return
	}
	h.respond(w, rates)
}

func (h *RatesHandler) RefreshRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.usecase.RefreshRates(r.Context())
	if err != nil {
		respondWithUsecaseError(w, err)
		return
	}
	h.respond(w, rates)
}

func (h *RatesHandler) respond(w http.ResponseWriter, rates []models.ExchangeRate) {
	if rates == nil {
		rates = []models.ExchangeRate{}
	}
	respondWithJSON(w, http.StatusOK, ratesResponse{Success: true, Rates: rates})
}
