package models

import "time"

// LedgerEntryType is the kind of balance movement recorded in the wallet ledger.
type LedgerEntryType string

const (
	EntryPurchase LedgerEntryType = "purchase"
	EntryRefund   LedgerEntryType = "refund"
	EntryTopUp    LedgerEntryType = "topup"
	EntryCashIn   LedgerEntryType = "cashin"
)

type PaymentMethod string

const (
	PaymentNone PaymentMethod = ""
	PaymentCard PaymentMethod = "card"
	PaymentCash PaymentMethod = "cash"
)

// LedgerEntry is one line of a wallet statement. Amount is signed: debits are
// negative. CreatedAt is the moment the event happened on the device, which
// for offline transactions predates the moment it was applied.
type LedgerEntry struct {
	ID            string          `json:"id"`
	WalletID      string          `json:"wallet_id"`
	Type          LedgerEntryType `json:"type"`
	Amount        int64           `json:"amount"`
	PaymentMethod PaymentMethod   `json:"payment_method,omitempty"`
	StandID       *string         `json:"stand_id,omitempty"`
	StaffID       string          `json:"staff_id"`
	ProductIDs    []string        `json:"product_ids,omitempty"`
	DeviceID      string          `json:"device_id,omitempty"`
	DeviceTxID    string          `json:"device_tx_id,omitempty"` // offline localId
	CreatedAt     time.Time       `json:"created_at"`
}
