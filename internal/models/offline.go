package models

import (
	"strings"
	"time"
)

// OfflineTxType is the upper-case enum name used both on the wire and in the
// signed message.
type OfflineTxType string

const (
	OfflinePurchase OfflineTxType = "PURCHASE"
	OfflineRefund   OfflineTxType = "REFUND"
	OfflineTopUp    OfflineTxType = "TOPUP"
	OfflineCashIn   OfflineTxType = "CASHIN"
)

func (t OfflineTxType) Valid() bool {
	switch t {
	case OfflinePurchase, OfflineRefund, OfflineTopUp, OfflineCashIn:
		return true
	}
	return false
}

// ParseOfflineTxType accepts any casing ("topUp", "TopUp", "TOPUP").
func ParseOfflineTxType(s string) (OfflineTxType, bool) {
	t := OfflineTxType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

// OfflineTransaction is one wallet event recorded by a device without
// connectivity. Processed, ServerTxID and Error are outcome fields: once
// Processed is true exactly one of ServerTxID and Error is set.
type OfflineTransaction struct {
	LocalID    string        `json:"localId"`
	Type       OfflineTxType `json:"type"`
	Amount     int64         `json:"amount"`
	WalletID   string        `json:"walletId"`
	StaffID    string        `json:"staffId"`
	StandID    *string       `json:"standId,omitempty"`
	ProductIDs []string      `json:"productIds,omitempty"`
	Signature  string        `json:"signature"`
	Timestamp  time.Time     `json:"timestamp"`

	Processed  bool    `json:"processed"`
	ServerTxID *string `json:"serverTxId,omitempty"`
	Error      *string `json:"error,omitempty"`
}

// Succeeded reports whether the transaction was applied to the ledger.
func (t OfflineTransaction) Succeeded() bool {
	return t.Processed && t.Error == nil && t.ServerTxID != nil && *t.ServerTxID != ""
}
