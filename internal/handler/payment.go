package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"splittab/internal/domain"
	"splittab/internal/payment"
	"splittab/pkg/validator"
)

type PaymentHandler struct {
	service   *payment.Service
	payments  PaymentReader
	validator *validator.Validator
	logger    Logger
}

func NewPaymentHandler(service *payment.Service, payments PaymentReader, val *validator.Validator, log Logger) *PaymentHandler {
	return &PaymentHandler{service: service, payments: payments, validator: val, logger: log}
}

// Submit runs a transaction hash through the reconciliation pipeline.
func (h *PaymentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req payment.SubmitPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	resp, err := h.service.Submit(r.Context(), &req)
	if err != nil {
		h.logger.Warn("Payment submission rejected", map[string]interface{}{
			"tx_hash": req.TxHash,
			"error":   err.Error(),
		})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// GetBySplit lists the reconciled payments of a split.
func (h *PaymentHandler) GetBySplit(w http.ResponseWriter, r *http.Request) {
	splitID, err := uuid.Parse(mux.Vars(r)["splitId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid split ID")
		return
	}

	payments, err := h.payments.FindBySplit(r.Context(), splitID)
	if err != nil {
		h.logger.Error("Failed to fetch split payments", map[string]interface{}{
			"split_id": splitID,
			"error":    err.Error(),
		})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"payments": payments,
		"total":    len(payments),
	})
}

type PaymentReader interface {
	FindBySplit(ctx context.Context, splitID uuid.UUID) ([]*domain.Payment, error)
}
