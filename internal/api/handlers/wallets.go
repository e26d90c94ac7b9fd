package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/offline-sync/internal/api/httpx"
	"github.com/baharkarakas/offline-sync/internal/api/validate"
	"github.com/baharkarakas/offline-sync/internal/models"
	"github.com/baharkarakas/offline-sync/internal/services"
)

type WalletHandler struct {
	Svc *services.WalletService
	Log *slog.Logger
}

func NewWalletHandler(svc *services.WalletService, log *slog.Logger) *WalletHandler {
	return &WalletHandler{Svc: svc, Log: log}
}

func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	wl, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, models.ErrWalletNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "wallet not found", nil)
		return
	}
	if err != nil {
		h.Log.Error("get wallet", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "could not load wallet", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wl)
}

type openWalletReq struct {
	ID         string `json:"id"`
	FestivalID string `json:"festival_id"`
	Balance    int64  `json:"balance"`
}

func (h *WalletHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openWalletReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
		return
	}
	if err := validate.Check(
		validate.Required("id", req.ID),
		validate.Required("festival_id", req.FestivalID),
		validate.MinInt("balance", req.Balance, 0),
	); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid wallet", err)
		return
	}
	wl, err := h.Svc.Open(r.Context(), req.ID, req.FestivalID, req.Balance)
	if err != nil {
		h.Log.Error("open wallet", "wallet_id", req.ID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "could not open wallet", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, wl)
}

func (h *WalletHandler) Entries(w http.ResponseWriter, r *http.Request) {
	limit, offset := 50, 0
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
	entries, err := h.Svc.Entries(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if errors.Is(err, models.ErrWalletNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "wallet not found", nil)
		return
	}
	if err != nil {
		h.Log.Error("wallet entries", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "could not list entries", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
