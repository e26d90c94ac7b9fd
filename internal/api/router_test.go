package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/offline-sync/internal/auth"
	"github.com/baharkarakas/offline-sync/internal/config"
	"github.com/baharkarakas/offline-sync/internal/models"
	repo "github.com/baharkarakas/offline-sync/internal/repository"
	"github.com/baharkarakas/offline-sync/internal/repository/memory"
	"github.com/baharkarakas/offline-sync/internal/services"
)

var secret = []byte("router-secret")

type testServer struct {
	t      *testing.T
	h      http.Handler
	repos  memory.Repositories
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repos := memory.NewRepositories()
	tokens := auth.NewTokenManager("a", "r", time.Minute, time.Hour, "offline-sync")
	syncSvc := services.NewSyncService(services.SyncDeps{
		Batches:     repos.Batches,
		Outcomes:    repos.Outcomes,
		Claims:      repos.Claims,
		Ledger:      repos.Ledger,
		AuditLogs:   repos.AuditLogs,
		Signer:      auth.NewSigner(auth.StaticSecret(secret)),
		Logger:      log,
		MaxBatchAge: 24 * time.Hour,
	})
	h := NewRouter(RouterDeps{
		Cfg:       config.Config{Env: "dev"},
		Log:       log,
		Tokens:    tokens,
		SyncSvc:   syncSvc,
		WalletSvc: services.NewWalletService(repos.Ledger, repos.Wallets),
	})
	_, err := repos.Wallets.Create(context.Background(), models.Wallet{ID: "w-1", FestivalID: "fest", Balance: 1000})
	require.NoError(t, err)
	return &testServer{t: t, h: h, repos: repos, tokens: tokens}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) operatorToken() string {
	access, _, _, err := s.tokens.GeneratePair("ops-1", "", auth.RoleOperator)
	require.NoError(s.t, err)
	return access
}

func signedTx(localID string, typ models.OfflineTxType, amount int64) map[string]any {
	ts := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	return map[string]any{
		"localId":   localID,
		"type":      string(typ),
		"amount":    amount,
		"walletId":  "w-1",
		"staffId":   "staff-1",
		"timestamp": ts.Format(time.RFC3339),
		"signature": auth.Sign(localID, "w-1", amount, typ, ts, secret),
	}
}

func batchBody(txs ...map[string]any) map[string]any {
	if txs == nil {
		txs = []map[string]any{}
	}
	return map[string]any{"deviceId": "pos-1", "festivalId": "fest", "transactions": txs}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

type submitResp struct {
	BatchID string            `json:"batchId"`
	Status  models.SyncStatus `json:"status"`
	Result  models.SyncResult `json:"result"`
}

func TestSubmitBatch_Completed(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/sync/batch", "dev-pos-1", batchBody(signedTx("tx-1", models.OfflinePurchase, 300)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp submitResp
	decode(t, rec, &resp)
	assert.Equal(t, models.SyncCompleted, resp.Status)
	assert.Equal(t, 1, resp.Result.Success)
	require.Len(t, resp.Result.Successes, 1)
	assert.NotEmpty(t, resp.Result.Successes[0].ServerTxID)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	get := s.do(http.MethodGet, "/sync/batch/"+resp.BatchID, "dev-pos-1", nil)
	require.Equal(t, http.StatusOK, get.Code)
	var b models.SyncBatch
	decode(t, get, &b)
	assert.Equal(t, models.SyncCompleted, b.Status)
	require.Len(t, b.Transactions, 1)
	assert.True(t, b.Transactions[0].Succeeded())
}

func TestSubmitBatch_PartialIs207(t *testing.T) {
	s := newTestServer(t)
	bad := signedTx("tx-2", models.OfflineRefund, 200)
	bad["amount"] = 201

	rec := s.do(http.MethodPost, "/sync/batch", "dev-pos-1", batchBody(
		signedTx("tx-1", models.OfflinePurchase, 500),
		bad,
	))
	require.Equal(t, http.StatusMultiStatus, rec.Code, rec.Body.String())
	var resp submitResp
	decode(t, rec, &resp)
	assert.Equal(t, models.SyncPartial, resp.Status)
	assert.Equal(t, 2, resp.Result.Total)
	require.Len(t, resp.Result.Conflicts, 1)
	assert.Equal(t, "invalid signature", resp.Result.Conflicts[0].Reason)
}

func TestSubmitBatch_AllFailedIs207(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/sync/batch", "dev-pos-1", batchBody(signedTx("tx-1", models.OfflinePurchase, 5000)))
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	var resp submitResp
	decode(t, rec, &resp)
	assert.Equal(t, models.SyncFailed, resp.Status)
	assert.Equal(t, models.ResolutionInsufficientBalanceUnresolved, resp.Result.Conflicts[0].Resolution)
}

func TestSubmitBatch_LowercaseTypeAccepted(t *testing.T) {
	s := newTestServer(t)
	tx := signedTx("tx-1", models.OfflineTopUp, 10)
	tx["type"] = "topup"
	rec := s.do(http.MethodPost, "/sync/batch", "dev-pos-1", batchBody(tx))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSubmitBatch_BadRequests(t *testing.T) {
	s := newTestServer(t)
	noSig := signedTx("tx-1", models.OfflinePurchase, 1)
	delete(noSig, "signature")
	noWallet := signedTx("tx-1", models.OfflinePurchase, 1)
	noWallet["walletId"] = ""

	tests := []struct {
		name string
		body any
		want string
	}{
		{"malformed json", `{"deviceId":"pos-1",`, "invalid request body"},
		{"empty transactions", batchBody(), "transactions must not be empty"},
		{"missing signature", batchBody(noSig), "signature is required"},
		{"missing wallet", batchBody(noWallet), "walletId is required"},
		{"missing festival", map[string]any{"deviceId": "pos-1", "transactions": []any{signedTx("a", models.OfflineTopUp, 1)}}, "festivalId is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/sync/batch", "dev-pos-1", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}

	pending := s.do(http.MethodGet, "/sync/pending?device_id=pos-1", "dev-pos-1", nil)
	require.Equal(t, http.StatusOK, pending.Code)
	assert.JSONEq(t, `{"batches":[]}`, pending.Body.String())
}

func TestSubmitBatch_Authorization(t *testing.T) {
	s := newTestServer(t)
	body := batchBody(signedTx("tx-1", models.OfflineTopUp, 1))

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/sync/batch", "", body).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/sync/batch", "garbage", body).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/sync/batch", "dev-pos-2", body).Code)

	access, _, _, err := s.tokens.GeneratePair("pos-1", "other-fest", auth.RoleDevice)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/sync/batch", access, body).Code)

	access, _, _, err = s.tokens.GeneratePair("pos-1", "fest", auth.RoleDevice)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/sync/batch", access, body).Code)

	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/sync/batch", s.operatorToken(),
		batchBody(signedTx("tx-2", models.OfflineTopUp, 1))).Code)
}

func TestGetBatch_NotFound(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/sync/batch/00000000-0000-0000-0000-000000000000", "dev-pos-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	created := s.do(http.MethodPost, "/sync/batch", "dev-pos-1", batchBody(signedTx("tx-1", models.OfflineTopUp, 1)))
	var resp submitResp
	decode(t, created, &resp)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/sync/batch/"+resp.BatchID, "dev-pos-2", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/sync/batch/"+resp.BatchID, s.operatorToken(), nil).Code)
}

func TestPending(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/sync/pending", "dev-pos-1", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/sync/pending?device_id=pos-9", "dev-pos-1", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/sync/pending?device_id=pos-9", s.operatorToken(), nil).Code)
}

func TestSign(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/sync/sign", "dev-pos-1", map[string]any{
		"festivalId": "fest", "localId": "tx-9", "walletId": "w-1", "amount": 120, "type": "purchase",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var tpl services.SignedTemplate
	decode(t, rec, &tpl)
	assert.Equal(t, models.OfflinePurchase, tpl.Type)
	assert.Contains(t, tpl.Message, "tx-9:w-1:120:PURCHASE:")

	tx := map[string]any{
		"localId": tpl.LocalID, "type": string(tpl.Type), "amount": tpl.Amount, "walletId": tpl.WalletID,
		"staffId": "staff-1", "timestamp": tpl.Timestamp.Format(time.RFC3339), "signature": tpl.Signature,
	}
	sub := s.do(http.MethodPost, "/sync/batch", "dev-pos-1", batchBody(tx))
	assert.Equal(t, http.StatusOK, sub.Code, sub.Body.String())

	bad := s.do(http.MethodPost, "/sync/sign", "dev-pos-1", map[string]any{"festivalId": "fest", "localId": "x", "walletId": "w", "amount": 0, "type": "gift"})
	require.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Contains(t, bad.Body.String(), "amount")
	assert.Contains(t, bad.Body.String(), "type")
}

func TestWallets_OperatorOnly(t *testing.T) {
	s := newTestServer(t)
	op := s.operatorToken()

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/wallets/w-1", "dev-pos-1", nil).Code)

	rec := s.do(http.MethodGet, "/wallets/w-1", op, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var w models.Wallet
	decode(t, rec, &w)
	assert.Equal(t, int64(1000), w.Balance)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/wallets/nope", op, nil).Code)

	created := s.do(http.MethodPost, "/wallets", op, map[string]any{"id": "w-2", "festival_id": "fest", "balance": 50})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/wallets", op, map[string]any{"id": "w-3", "festival_id": "fest", "balance": -1}).Code)

	s.do(http.MethodPost, "/sync/batch", "dev-pos-1", batchBody(signedTx("tx-1", models.OfflinePurchase, 100)))
	entries := s.do(http.MethodGet, "/wallets/w-1/entries", op, nil)
	require.Equal(t, http.StatusOK, entries.Code)
	var out struct {
		Entries []models.LedgerEntry `json:"entries"`
	}
	decode(t, entries, &out)
	require.Len(t, out.Entries, 1)
	assert.Equal(t, int64(-100), out.Entries[0].Amount)
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/auth/login", "", map[string]any{"device_id": "pos-1", "festival_id": "fest"})
	require.Equal(t, http.StatusOK, rec.Code)
	var tok struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	decode(t, rec, &tok)
	assert.Equal(t, int64(60), tok.ExpiresIn)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/sync/pending?device_id=pos-1", tok.AccessToken, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/sync/pending?device_id=pos-1", tok.RefreshToken, nil).Code)

	ref := s.do(http.MethodPost, "/auth/refresh", "", map[string]any{"refresh_token": tok.RefreshToken})
	assert.Equal(t, http.StatusOK, ref.Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/auth/refresh", "", map[string]any{"refresh_token": tok.AccessToken}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/auth/login", "", map[string]any{"device_id": "x", "role": "root"}).Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

type unavailableBatches struct{ repo.SyncBatches }

func (unavailableBatches) Create(context.Context, models.SyncBatch) (models.SyncBatch, error) {
	return models.SyncBatch{}, errors.New("connection refused")
}

type unavailableOutcomes struct{ repo.Outcomes }

func (unavailableOutcomes) Append(context.Context, models.TxOutcome) error {
	return errors.New("connection refused")
}

func TestSubmitBatch_StoreFailure(t *testing.T) {
	tests := []struct {
		name        string
		batches     func(memory.Repositories) repo.SyncBatches
		outcomes    func(memory.Repositories) repo.Outcomes
		wantBatchID bool
	}{
		{
			name:     "batch never created",
			batches:  func(r memory.Repositories) repo.SyncBatches { return unavailableBatches{r.Batches} },
			outcomes: func(r memory.Repositories) repo.Outcomes { return r.Outcomes },
		},
		{
			name:        "batch left processing",
			batches:     func(r memory.Repositories) repo.SyncBatches { return r.Batches },
			outcomes:    func(r memory.Repositories) repo.Outcomes { return unavailableOutcomes{r.Outcomes} },
			wantBatchID: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repos := memory.NewRepositories()
			_, err := repos.Wallets.Create(context.Background(), models.Wallet{ID: "w-1", FestivalID: "fest", Balance: 1000})
			require.NoError(t, err)
			log := slog.New(slog.NewTextHandler(io.Discard, nil))
			h := NewRouter(RouterDeps{
				Cfg:    config.Config{Env: "dev"},
				Log:    log,
				Tokens: auth.NewTokenManager("a", "r", time.Minute, time.Hour, "offline-sync"),
				SyncSvc: services.NewSyncService(services.SyncDeps{
					Batches:   tt.batches(repos),
					Outcomes:  tt.outcomes(repos),
					Claims:    repos.Claims,
					Ledger:    repos.Ledger,
					AuditLogs: repos.AuditLogs,
					Signer:    auth.NewSigner(auth.StaticSecret(secret)),
					Logger:    log,
				}),
				WalletSvc: services.NewWalletService(repos.Ledger, repos.Wallets),
			})
			s := &testServer{t: t, h: h}

			rec := s.do(http.MethodPost, "/sync/batch", "dev-pos-1", batchBody(signedTx("tx-1", models.OfflinePurchase, 100)))
			require.Equal(t, http.StatusInternalServerError, rec.Code)

			var body struct {
				Code    string            `json:"code"`
				Details map[string]string `json:"details"`
			}
			decode(t, rec, &body)
			assert.Equal(t, "sync_failed", body.Code)
			if tt.wantBatchID {
				assert.NotEmpty(t, body.Details["batchId"])
			} else {
				assert.NotContains(t, rec.Body.String(), "details")
			}
		})
	}
}
