// Package handler exposes the HTTP API. Handlers decode, validate, call a
// service, and translate service errors into status codes; no business rules
// live here.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "splittab/pkg/errors"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondValidationErrors(w http.ResponseWriter, errs map[string]string) {
	respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":             "Validation failed",
		"validation_errors": errs,
	})
}

// respondServiceError maps service errors onto HTTP semantics. Retryable
// errors get a Retry-After so clients resubmit instead of giving up.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrSplitNotFound),
		errors.Is(err, pkgerrors.ErrParticipantNotFound),
		errors.Is(err, pkgerrors.ErrPaymentNotFound),
		errors.Is(err, pkgerrors.ErrSuggestionNotFound),
		errors.Is(err, pkgerrors.ErrStepNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pkgerrors.ErrDuplicateTransaction),
		errors.Is(err, pkgerrors.ErrDuplicateJoin):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pkgerrors.ErrStepForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, pkgerrors.ErrOracleUnavailable):
		w.Header().Set("Retry-After", "10")
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, pkgerrors.ErrInvalidTransaction),
		errors.Is(err, pkgerrors.ErrTransactionMismatch),
		errors.Is(err, pkgerrors.ErrInvalidAmount),
		errors.Is(err, pkgerrors.ErrSharesMismatch),
		errors.Is(err, pkgerrors.ErrSuggestionExpired):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
