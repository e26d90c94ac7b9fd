package repository

import (
	"context"
	"time"

	"github.com/baharkarakas/offline-sync/internal/models"
)

// Ledger is the wallet ledger the sync engine applies transactions to. Each
// call is atomic on its own; there is no transaction spanning calls.
type Ledger interface {
	GetWallet(ctx context.Context, walletID string) (models.Wallet, error)
	// Debit fails with models.ErrInsufficientBalance when balance < amount.
	Debit(ctx context.Context, walletID string, amount int64) (models.Wallet, error)
	Credit(ctx context.Context, walletID string, amount int64) (models.Wallet, error)
	CreateLedgerEntry(ctx context.Context, e models.LedgerEntry) (models.LedgerEntry, error)
	// FindDeviceEntry returns the entry recorded for a device's localId.
	FindDeviceEntry(ctx context.Context, deviceID, localID string) (e models.LedgerEntry, found bool, err error)
}

// Wallets covers wallet administration outside the sync path.
type Wallets interface {
	Create(ctx context.Context, w models.Wallet) (models.Wallet, error)
	ListEntries(ctx context.Context, walletID string, limit, offset int) ([]models.LedgerEntry, error)
}

// SyncBatches stores one record per batch with its transactions embedded in
// submission order.
type SyncBatches interface {
	Create(ctx context.Context, b models.SyncBatch) (models.SyncBatch, error)
	Get(ctx context.Context, id string) (models.SyncBatch, error)
	UpdateStatus(ctx context.Context, id string, status models.SyncStatus) error
	// Finalize writes the terminal status, result and outcome-stamped
	// transactions in one statement. A batch can be finalized once.
	Finalize(ctx context.Context, id string, status models.SyncStatus, result models.SyncResult, txs []models.OfflineTransaction, processedAt time.Time) error
	ListByDevice(ctx context.Context, deviceID string, statuses ...models.SyncStatus) ([]models.SyncBatch, error)
	// FindSucceeded scans the device's batch history for a successfully
	// applied transaction with the given localId.
	FindSucceeded(ctx context.Context, deviceID, localID string) (serverTxID string, found bool, err error)
}

// Outcomes is the append-only per-item outcome log of batches.
type Outcomes interface {
	Append(ctx context.Context, o models.TxOutcome) error
	ListByBatch(ctx context.Context, batchID string) ([]models.TxOutcome, error)
}

// Claims reserves (deviceId, localId) pairs before dispatch.
type Claims interface {
	// Claim inserts an IN_PROGRESS claim if none exists. When one exists it
	// returns the existing claim and inserted=false.
	Claim(ctx context.Context, c models.TxClaim) (existing models.TxClaim, inserted bool, err error)
	// TakeOver moves prev to IN_PROGRESS for batchID, provided the stored
	// claim still has prev's state and batch. Only FAILED and IN_PROGRESS
	// claims can be taken over.
	TakeOver(ctx context.Context, prev models.TxClaim, batchID string) (bool, error)
	Resolve(ctx context.Context, deviceID, localID, batchID string, state models.ClaimState, serverTxID, errMsg *string) error
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}
