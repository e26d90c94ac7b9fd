package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/baharkarakas/offline-sync/internal/api/handlers"
	"github.com/baharkarakas/offline-sync/internal/auth"
	"github.com/baharkarakas/offline-sync/internal/config"
	"github.com/baharkarakas/offline-sync/internal/metrics"
	"github.com/baharkarakas/offline-sync/internal/middleware"
	"github.com/baharkarakas/offline-sync/internal/services"
)

type RouterDeps struct {
	Cfg       config.Config
	Log       *slog.Logger
	Tokens    *auth.TokenManager
	SyncSvc   *services.SyncService
	WalletSvc *services.WalletService
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	authMW := middleware.NewAuthMiddleware(d.Tokens, d.Cfg.Env)
	authH := handlers.NewAuthHandler(d.Tokens, d.Cfg.Env)
	syncH := handlers.NewSyncHandler(d.SyncSvc, d.Log)
	walletH := handlers.NewWalletHandler(d.WalletSvc, d.Log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics, middleware.RateLimit(d.Cfg.RateRPS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	r.Post("/auth/login", authH.Login)
	r.Post("/auth/refresh", authH.Refresh)

	r.Route("/sync", func(r chi.Router) {
		r.Use(authMW.Auth)
		r.Post("/batch", syncH.SubmitBatch)
		r.Get("/batch/{id}", syncH.GetBatch)
		r.Get("/pending", syncH.Pending)
		r.Post("/sign", syncH.Sign)
	})

	r.Route("/wallets", func(r chi.Router) {
		r.Use(authMW.Auth, middleware.RequireRole(auth.RoleOperator))
		r.Post("/", walletH.Open)
		r.Get("/{id}", walletH.Get)
		r.Get("/{id}/entries", walletH.Entries)
	})

	return r
}
