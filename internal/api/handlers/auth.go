package handlers

import (
	"net/http"
	"time"

	"github.com/baharkarakas/offline-sync/internal/api/httpx"
	"github.com/baharkarakas/offline-sync/internal/api/validate"
	"github.com/baharkarakas/offline-sync/internal/auth"
)

type AuthHandler struct {
	TM     *auth.TokenManager
	AppEnv string
}

func NewAuthHandler(tm *auth.TokenManager, appEnv string) *AuthHandler {
	return &AuthHandler{TM: tm, AppEnv: appEnv}
}

type loginReq struct {
	DeviceID   string `json:"device_id"`
	FestivalID string `json:"festival_id"`
	Role       string `json:"role,omitempty"`
}

type tokenResp struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
}

// Login issues device tokens without credentials. Only available in dev;
// elsewhere devices are provisioned with tokens out of band.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.AppEnv != "dev" {
		httpx.WriteError(w, http.StatusNotImplemented, "not_implemented", "login is only available in dev", nil)
		return
	}
	var req loginReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleDevice
	}
	if err := validate.Check(
		validate.Required("device_id", req.DeviceID),
		validate.OneOf("role", req.Role, auth.RoleDevice, auth.RoleOperator),
	); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid login request", err)
		return
	}
	h.issue(w, req.DeviceID, req.FestivalID, req.Role)
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request", nil)
		return
	}
	claims, isRefresh, err := h.TM.ParseAny(req.RefreshToken)
	if err != nil || !isRefresh {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid refresh token", nil)
		return
	}
	h.issue(w, claims.DeviceID, claims.FestivalID, claims.Role)
}

func (h *AuthHandler) issue(w http.ResponseWriter, deviceID, festivalID, role string) {
	access, refresh, exp, err := h.TM.GeneratePair(deviceID, festivalID, role)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "token generation failed", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResp{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(time.Until(exp).Round(time.Second).Seconds()),
	})
}
