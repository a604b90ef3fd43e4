package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"splittab/internal/middleware"
	"splittab/internal/split"
	"splittab/pkg/validator"
)

type SplitHandler struct {
	service   *split.Service
	validator *validator.Validator
	logger    Logger
}

func NewSplitHandler(service *split.Service, val *validator.Validator, log Logger) *SplitHandler {
	return &SplitHandler{service: service, validator: val, logger: log}
}

// Create opens a new split with its participant shares.
func (h *SplitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req split.CreateSplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Description = validator.Sanitize(req.Description)

	if wallet, ok := middleware.WalletFromContext(r.Context()); ok {
		req.CreatorWallet = wallet
	}

	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	detail, err := h.service.Create(r.Context(), &req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, detail)
}

func (h *SplitHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["splitId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid split ID")
		return
	}

	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

// List returns the authenticated wallet's splits, paginated.
func (h *SplitHandler) List(w http.ResponseWriter, r *http.Request) {
	wallet, ok := middleware.WalletFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	limit := 20
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	splits, err := h.service.ListForWallet(r.Context(), wallet, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list splits", map[string]interface{}{
			"wallet": wallet,
			"error":  err.Error(),
		})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"splits": splits,
		"total":  len(splits),
		"limit":  limit,
		"offset": offset,
	})
}

// Join adds the authenticated wallet to an existing split.
func (h *SplitHandler) Join(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["splitId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid split ID")
		return
	}

	var req split.JoinSplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if wallet, ok := middleware.WalletFromContext(r.Context()); ok {
		req.Wallet = wallet
	}

	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	participant, err := h.service.Join(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, participant)
}
