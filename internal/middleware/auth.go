package middleware

import (
	"net/http"
	"strings"

	"github.com/baharkarakas/offline-sync/internal/api/httpx"
	"github.com/baharkarakas/offline-sync/internal/auth"
)

type AuthMiddleware struct {
	TM     *auth.TokenManager
	AppEnv string
}

func NewAuthMiddleware(tm *auth.TokenManager, appEnv string) *AuthMiddleware {
	return &AuthMiddleware{TM: tm, AppEnv: appEnv}
}

// Auth accepts "Bearer <access JWT>" everywhere and "Bearer dev-<deviceId>"
// in dev.
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ah := r.Header.Get("Authorization")
		if len(ah) < 7 || !strings.EqualFold(ah[:7], "bearer ") {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
			return
		}
		token := strings.TrimSpace(ah[7:])

		if m.AppEnv == "dev" && strings.HasPrefix(token, "dev-") {
			deviceID := strings.TrimPrefix(token, "dev-")
			if deviceID == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "empty dev token", nil)
				return
			}
			ctx := WithPrincipal(r.Context(), Principal{DeviceID: deviceID, Role: auth.RoleDevice})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		claims, isRefresh, err := m.TM.ParseAny(token)
		if err != nil || isRefresh {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid access token", nil)
			return
		}
		ctx := WithPrincipal(r.Context(), Principal{
			DeviceID:   claims.DeviceID,
			FestivalID: claims.FestivalID,
			Role:       claims.Role,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CanActFor reports whether the caller may read or write deviceID's batches.
func (p Principal) CanActFor(deviceID string) bool {
	return p.Role == auth.RoleOperator || (p.Role == auth.RoleDevice && p.DeviceID == deviceID)
}

// CanUseFestival reports whether the caller may act within festivalID. Tokens
// without a festival are not restricted.
func (p Principal) CanUseFestival(festivalID string) bool {
	return p.Role == auth.RoleOperator || p.FestivalID == "" || p.FestivalID == festivalID
}
