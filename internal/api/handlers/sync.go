package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/offline-sync/internal/api/httpx"
	"github.com/baharkarakas/offline-sync/internal/api/validate"
	"github.com/baharkarakas/offline-sync/internal/middleware"
	"github.com/baharkarakas/offline-sync/internal/models"
	"github.com/baharkarakas/offline-sync/internal/services"
)

type SyncHandler struct {
	Svc *services.SyncService
	Log *slog.Logger
}

func NewSyncHandler(svc *services.SyncService, log *slog.Logger) *SyncHandler {
	return &SyncHandler{Svc: svc, Log: log}
}

type submitBatchReq struct {
	DeviceID     string                      `json:"deviceId"`
	FestivalID   string                      `json:"festivalId"`
	Transactions []models.OfflineTransaction `json:"transactions"`
}

type submitBatchResp struct {
	BatchID     string             `json:"batchId"`
	Status      models.SyncStatus  `json:"status"`
	ProcessedAt *time.Time         `json:"processedAt,omitempty"`
	Result      *models.SyncResult `json:"result"`
}

// SubmitBatch answers 200 when every item succeeded and 207 when at least
// one did not.
func (h *SyncHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req submitBatchReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
		return
	}

	p, _ := middleware.PrincipalFrom(r.Context())
	if !p.CanActFor(req.DeviceID) || !p.CanUseFestival(req.FestivalID) {
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "token does not cover this device or festival", nil)
		return
	}

	for i := range req.Transactions {
		if t, ok := models.ParseOfflineTxType(string(req.Transactions[i].Type)); ok {
			req.Transactions[i].Type = t
		}
	}

	b, err := h.Svc.Submit(r.Context(), services.SubmitBatchInput{
		DeviceID:     req.DeviceID,
		FestivalID:   req.FestivalID,
		Transactions: req.Transactions,
	})
	switch {
	case errors.Is(err, models.ErrInvalidBatch):
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	case err != nil:
		h.Log.Error("sync batch failed",
			"device_id", req.DeviceID,
			"batch_id", b.ID,
			"request_id", middleware.RequestIDFrom(r.Context()),
			"err", err,
		)
		var details any
		if b.ID != "" {
			details = map[string]string{"batchId": b.ID}
		}
		httpx.WriteError(w, http.StatusInternalServerError, "sync_failed", "batch could not be processed", details)
		return
	}

	status := http.StatusOK
	if b.Status != models.SyncCompleted {
		status = http.StatusMultiStatus
	}
	httpx.WriteJSON(w, status, submitBatchResp{
		BatchID:     b.ID,
		Status:      b.Status,
		ProcessedAt: b.ProcessedAt,
		Result:      b.Result,
	})
}

func (h *SyncHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := h.Svc.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, models.ErrBatchNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "batch not found", nil)
		return
	}
	if err != nil {
		h.Log.Error("get batch", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "could not load batch", nil)
		return
	}
	p, _ := middleware.PrincipalFrom(r.Context())
	if !p.CanActFor(b.DeviceID) {
		// same answer as a missing batch, ids are not enumerable
		httpx.WriteError(w, http.StatusNotFound, "not_found", "batch not found", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

func (h *SyncHandler) Pending(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if err := validate.Check(validate.Required("device_id", deviceID)); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "device_id required", err)
		return
	}
	p, _ := middleware.PrincipalFrom(r.Context())
	if !p.CanActFor(deviceID) {
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "token does not cover this device", nil)
		return
	}
	list, err := h.Svc.PendingBatches(r.Context(), deviceID)
	if err != nil {
		h.Log.Error("pending batches", "device_id", deviceID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "could not list batches", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"batches": list})
}

type signReq struct {
	FestivalID string    `json:"festivalId"`
	LocalID    string    `json:"localId"`
	WalletID   string    `json:"walletId"`
	Amount     int64     `json:"amount"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sign issues a pre-signed transaction template while the device is online.
func (h *SyncHandler) Sign(w http.ResponseWriter, r *http.Request) {
	var req signReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
		return
	}
	p, _ := middleware.PrincipalFrom(r.Context())
	festivalID := req.FestivalID
	if festivalID == "" {
		festivalID = p.FestivalID
	}
	if !p.CanUseFestival(festivalID) {
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "token does not cover this festival", nil)
		return
	}
	if err := validate.Check(
		validate.Required("festivalId", festivalID),
		validate.Required("localId", req.LocalID),
		validate.Required("walletId", req.WalletID),
		validate.MinInt("amount", req.Amount, 1),
		validate.OneOf("type", req.Type,
			string(models.OfflinePurchase), string(models.OfflineRefund),
			string(models.OfflineTopUp), string(models.OfflineCashIn)),
	); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid sign request", err)
		return
	}

	tpl, err := h.Svc.SignTemplate(festivalID, services.SignRequest{
		LocalID:   req.LocalID,
		WalletID:  req.WalletID,
		Amount:    req.Amount,
		Type:      req.Type,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		h.Log.Warn("sign template", "festival_id", festivalID, "err", err)
		httpx.WriteError(w, http.StatusUnprocessableEntity, "sign_failed", err.Error(), nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tpl)
}
