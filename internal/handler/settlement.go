package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"splittab/internal/middleware"
	"splittab/internal/suggestion"
	pkgerrors "splittab/pkg/errors"
	"splittab/pkg/validator"
)

type SettlementHandler struct {
	service   *suggestion.Service
	validator *validator.Validator
	logger    Logger
}

func NewSettlementHandler(service *suggestion.Service, val *validator.Validator, log Logger) *SettlementHandler {
	return &SettlementHandler{service: service, validator: val, logger: log}
}

// GetSuggestion returns the wallet's latest unexpired suggestion, computing a
// fresh one when none exists.
func (h *SettlementHandler) GetSuggestion(w http.ResponseWriter, r *http.Request) {
	userID, wallet, ok := identity(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	s, err := h.service.Latest(r.Context(), wallet)
	if errors.Is(err, pkgerrors.ErrSuggestionNotFound) {
		s, err = h.service.Refresh(r.Context(), userID, wallet)
	}
	if err != nil {
		h.logger.Error("Failed to load settlement suggestion", map[string]interface{}{
			"wallet": wallet,
			"error":  err.Error(),
		})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, s)
}

// Refresh discards the current suggestion and recomputes from the ledger.
func (h *SettlementHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID, wallet, ok := identity(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	s, err := h.service.Refresh(r.Context(), userID, wallet)
	if err != nil {
		h.logger.Error("Failed to refresh settlement suggestion", map[string]interface{}{
			"wallet": wallet,
			"error":  err.Error(),
		})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, s)
}

func (h *SettlementHandler) NetPosition(w http.ResponseWriter, r *http.Request) {
	_, wallet, ok := identity(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	result, err := h.service.NetPosition(r.Context(), wallet)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

type snoozeRequest struct {
	SuggestionID uuid.UUID `json:"suggestion_id" validate:"required"`
}

// Snooze dismisses the wallet's current suggestion.
func (h *SettlementHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	_, wallet, ok := identity(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req snoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	if err := h.service.Snooze(r.Context(), wallet, req.SuggestionID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "snoozed"})
}

type completeStepRequest struct {
	TxHash string `json:"tx_hash" validate:"required,len=64,hexadecimal"`
}

// CompleteStep verifies the submitted transaction against the step and marks
// it done.
func (h *SettlementHandler) CompleteStep(w http.ResponseWriter, r *http.Request) {
	_, wallet, ok := identity(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	stepID, err := uuid.Parse(mux.Vars(r)["stepId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid step ID")
		return
	}

	var req completeStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	step, err := h.service.CompleteStep(r.Context(), stepID, wallet, req.TxHash)
	if err != nil {
		h.logger.Warn("Step completion rejected", map[string]interface{}{
			"step_id": stepID,
			"wallet":  wallet,
			"error":   err.Error(),
		})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, step)
}

func identity(r *http.Request) (uuid.UUID, string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, "", false
	}
	wallet, ok := middleware.WalletFromContext(r.Context())
	if !ok {
		return uuid.Nil, "", false
	}
	return userID, wallet, true
}
