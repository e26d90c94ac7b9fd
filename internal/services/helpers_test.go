package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/offline-sync/internal/auth"
	"github.com/baharkarakas/offline-sync/internal/events"
	"github.com/baharkarakas/offline-sync/internal/models"
	repo "github.com/baharkarakas/offline-sync/internal/repository"
	"github.com/baharkarakas/offline-sync/internal/repository/memory"
)

const (
	testFestival = "fest-1"
	testDevice   = "device-1"
)

var testSecret = []byte("festival-secret")

type fixture struct {
	t     *testing.T
	repos memory.Repositories
	audit *memory.AuditLog
	pub   *events.MockPublisher
	svc   *SyncService

	mu  sync.Mutex
	now time.Time
}

type fixtureOpt func(*SyncDeps)

func withLedger(l repo.Ledger) fixtureOpt { return func(d *SyncDeps) { d.Ledger = l } }

func newFixture(t *testing.T, opts ...fixtureOpt) *fixture {
	t.Helper()
	repos := memory.NewRepositories()
	f := &fixture{
		t:     t,
		repos: repos,
		audit: repos.AuditLogs.(*memory.AuditLog),
		pub:   events.NewMockPublisher(),
		now:   time.Now().UTC().Truncate(time.Second),
	}
	deps := SyncDeps{
		Batches:     repos.Batches,
		Outcomes:    repos.Outcomes,
		Claims:      repos.Claims,
		Ledger:      repos.Ledger,
		AuditLogs:   repos.AuditLogs,
		Signer:      auth.NewSigner(auth.StaticSecret(testSecret)),
		Publisher:   f.pub,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxBatchAge: 24 * time.Hour,
		StallAfter:  10 * time.Minute,
		Now:         f.clock,
	}
	for _, o := range opts {
		o(&deps)
	}
	f.svc = NewSyncService(deps)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) wallet(id string, balance int64) {
	f.t.Helper()
	_, err := f.repos.Wallets.Create(context.Background(), models.Wallet{ID: id, FestivalID: testFestival, Balance: balance})
	require.NoError(f.t, err)
}

func (f *fixture) balance(id string) int64 {
	f.t.Helper()
	w, err := f.repos.Ledger.GetWallet(context.Background(), id)
	require.NoError(f.t, err)
	return w.Balance
}

// signed builds a transaction signed with the test secret, stamped at the
// fixture's current time.
func (f *fixture) signed(localID, walletID string, typ models.OfflineTxType, amount int64) models.OfflineTransaction {
	return signedAt(localID, walletID, typ, amount, f.clock())
}

func signedAt(localID, walletID string, typ models.OfflineTxType, amount int64, ts time.Time) models.OfflineTransaction {
	return models.OfflineTransaction{
		LocalID:   localID,
		Type:      typ,
		Amount:    amount,
		WalletID:  walletID,
		StaffID:   "staff-1",
		Timestamp: ts,
		Signature: auth.Sign(localID, walletID, amount, typ, ts, testSecret),
	}
}

func (f *fixture) submit(txs ...models.OfflineTransaction) models.SyncBatch {
	f.t.Helper()
	b, err := f.svc.Submit(context.Background(), SubmitBatchInput{
		DeviceID:     testDevice,
		FestivalID:   testFestival,
		Transactions: txs,
	})
	require.NoError(f.t, err)
	return b
}

// scriptedLedger wraps a ledger and lets tests interfere with debits.
type scriptedLedger struct {
	repo.Ledger

	mu           sync.Mutex
	debits       int
	onShort      func() // runs after a debit fails on balance
	failEntries  error
	alwaysShort  bool
	reportWallet *models.Wallet
}

func (l *scriptedLedger) Debit(ctx context.Context, walletID string, amount int64) (models.Wallet, error) {
	l.mu.Lock()
	l.debits++
	short := l.alwaysShort
	hook := l.onShort
	l.mu.Unlock()

	if short {
		return models.Wallet{}, models.ErrInsufficientBalance
	}
	w, err := l.Ledger.Debit(ctx, walletID, amount)
	if errors.Is(err, models.ErrInsufficientBalance) && hook != nil {
		hook()
	}
	return w, err
}

func (l *scriptedLedger) GetWallet(ctx context.Context, walletID string) (models.Wallet, error) {
	if l.reportWallet != nil {
		return *l.reportWallet, nil
	}
	return l.Ledger.GetWallet(ctx, walletID)
}

func (l *scriptedLedger) CreateLedgerEntry(ctx context.Context, e models.LedgerEntry) (models.LedgerEntry, error) {
	if l.failEntries != nil {
		return models.LedgerEntry{}, l.failEntries
	}
	return l.Ledger.CreateLedgerEntry(ctx, e)
}

func (l *scriptedLedger) debitCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debits
}

// failingOutcomes simulates the persistence store going away mid-batch.
type failingOutcomes struct {
	repo.Outcomes
	after int
	n     int
}

func (o *failingOutcomes) Append(ctx context.Context, out models.TxOutcome) error {
	if o.n >= o.after {
		return errors.New("connection refused")
	}
	o.n++
	return o.Outcomes.Append(ctx, out)
}
