package services

import (
	"context"
	"fmt"

	"github.com/baharkarakas/offline-sync/internal/models"
	repo "github.com/baharkarakas/offline-sync/internal/repository"
)

// TxMeta is the batch context an item is applied in.
type TxMeta struct {
	BatchID    string
	DeviceID   string
	FestivalID string
}

// Applier applies one kind of offline transaction to the ledger and returns
// the ledger entry id.
type Applier interface {
	Apply(ctx context.Context, ledger repo.Ledger, tx models.OfflineTransaction, meta TxMeta) (string, error)
}

type purchaseApplier struct{}

func (purchaseApplier) Apply(ctx context.Context, ledger repo.Ledger, tx models.OfflineTransaction, meta TxMeta) (string, error) {
	if _, err := ledger.Debit(ctx, tx.WalletID, tx.Amount); err != nil {
		return "", err
	}
	e, err := ledger.CreateLedgerEntry(ctx, entryFor(tx, meta, models.EntryPurchase, models.PaymentNone, -tx.Amount))
	if err != nil {
		return "", fmt.Errorf("%w: debited %d from %s: %w", models.ErrLedgerPartial, tx.Amount, tx.WalletID, err)
	}
	return e.ID, nil
}

// creditApplier covers refunds, card top-ups and cash-ins.
type creditApplier struct {
	entry  models.LedgerEntryType
	method models.PaymentMethod
}

func (a creditApplier) Apply(ctx context.Context, ledger repo.Ledger, tx models.OfflineTransaction, meta TxMeta) (string, error) {
	if _, err := ledger.Credit(ctx, tx.WalletID, tx.Amount); err != nil {
		return "", err
	}
	e, err := ledger.CreateLedgerEntry(ctx, entryFor(tx, meta, a.entry, a.method, tx.Amount))
	if err != nil {
		return "", fmt.Errorf("%w: credited %d to %s: %w", models.ErrLedgerPartial, tx.Amount, tx.WalletID, err)
	}
	return e.ID, nil
}

func entryFor(tx models.OfflineTransaction, meta TxMeta, typ models.LedgerEntryType, method models.PaymentMethod, signed int64) models.LedgerEntry {
	e := models.LedgerEntry{
		WalletID:      tx.WalletID,
		Type:          typ,
		Amount:        signed,
		PaymentMethod: method,
		StaffID:       tx.StaffID,
		DeviceID:      meta.DeviceID,
		DeviceTxID:    tx.LocalID,
		CreatedAt:     tx.Timestamp,
	}
	if typ == models.EntryPurchase {
		e.StandID = tx.StandID
		e.ProductIDs = tx.ProductIDs
	}
	return e
}

// Dispatcher routes an offline transaction to the applier for its type.
type Dispatcher struct {
	ledger   repo.Ledger
	appliers map[models.OfflineTxType]Applier
}

func NewDispatcher(ledger repo.Ledger) *Dispatcher {
	return &Dispatcher{
		ledger: ledger,
		appliers: map[models.OfflineTxType]Applier{
			models.OfflinePurchase: purchaseApplier{},
			models.OfflineRefund:   creditApplier{entry: models.EntryRefund, method: models.PaymentNone},
			models.OfflineTopUp:    creditApplier{entry: models.EntryTopUp, method: models.PaymentCard},
			models.OfflineCashIn:   creditApplier{entry: models.EntryCashIn, method: models.PaymentCash},
		},
	}
}

func (d *Dispatcher) Apply(ctx context.Context, tx models.OfflineTransaction, meta TxMeta) (string, error) {
	a, ok := d.appliers[tx.Type]
	if !ok {
		return "", fmt.Errorf("%w: %q", models.ErrUnknownTransactionType, tx.Type)
	}
	if tx.Amount <= 0 {
		return "", fmt.Errorf("%w: %d", models.ErrInvalidAmount, tx.Amount)
	}
	return a.Apply(ctx, d.ledger, tx, meta)
}
