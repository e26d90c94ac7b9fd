// Package memory provides in-process repository implementations used by
// tests and by APP_STORE=memory for local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/baharkarakas/offline-sync/internal/models"
	"github.com/google/uuid"
)

// Ledger is an in-memory wallet ledger. Every call holds the lock for its
// whole duration, which gives the same per-call atomicity as the SQL ledger.
type Ledger struct {
	mu      sync.RWMutex
	wallets map[string]models.Wallet
	entries []models.LedgerEntry
}

func NewLedger() *Ledger {
	return &Ledger{wallets: make(map[string]models.Wallet)}
}

func (l *Ledger) Create(_ context.Context, w models.Wallet) (models.Wallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w.UpdatedAt = time.Now().UTC()
	l.wallets[w.ID] = w
	return w, nil
}

func (l *Ledger) GetWallet(_ context.Context, walletID string) (models.Wallet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	w, ok := l.wallets[walletID]
	if !ok {
		return models.Wallet{}, models.ErrWalletNotFound
	}
	return w, nil
}

func (l *Ledger) Debit(_ context.Context, walletID string, amount int64) (models.Wallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.wallets[walletID]
	if !ok {
		return models.Wallet{}, models.ErrWalletNotFound
	}
	if w.Balance < amount {
		return models.Wallet{}, models.ErrInsufficientBalance
	}
	w.Balance -= amount
	w.UpdatedAt = time.Now().UTC()
	l.wallets[walletID] = w
	return w, nil
}

func (l *Ledger) Credit(_ context.Context, walletID string, amount int64) (models.Wallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.wallets[walletID]
	if !ok {
		return models.Wallet{}, models.ErrWalletNotFound
	}
	w.Balance += amount
	w.UpdatedAt = time.Now().UTC()
	l.wallets[walletID] = w
	return w, nil
}

func (l *Ledger) CreateLedgerEntry(_ context.Context, e models.LedgerEntry) (models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.wallets[e.WalletID]; !ok {
		return models.LedgerEntry{}, models.ErrWalletNotFound
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	l.entries = append(l.entries, e)
	return e, nil
}

func (l *Ledger) FindDeviceEntry(_ context.Context, deviceID, localID string) (models.LedgerEntry, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if e.DeviceID == deviceID && e.DeviceTxID == localID {
			return e, true, nil
		}
	}
	return models.LedgerEntry{}, false, nil
}

// ListEntries returns the wallet's entries newest first by CreatedAt.
func (l *Ledger) ListEntries(_ context.Context, walletID string, limit, offset int) ([]models.LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []models.LedgerEntry
	for _, e := range l.entries {
		if e.WalletID == walletID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
