package models

import "time"

type SyncStatus string

const (
	SyncPending    SyncStatus = "PENDING"
	SyncProcessing SyncStatus = "PROCESSING"
	SyncCompleted  SyncStatus = "COMPLETED"
	SyncFailed     SyncStatus = "FAILED"
	SyncPartial    SyncStatus = "PARTIAL"
)

func (s SyncStatus) Terminal() bool {
	return s == SyncCompleted || s == SyncFailed || s == SyncPartial
}

// Conflict resolutions recorded on failed items.
const (
	ResolutionRejected                      = "rejected"
	ResolutionInsufficientBalanceUnresolved = "insufficient_balance_unresolved"
	ResolutionRetryLater                    = "retry_later"
)

type Conflict struct {
	LocalID    string `json:"localId"`
	Reason     string `json:"reason"`
	Resolution string `json:"resolution"`
}

type SyncSuccess struct {
	LocalID    string `json:"localId"`
	ServerTxID string `json:"serverTxId"`
}

type SyncResult struct {
	Total     int           `json:"total"`
	Success   int           `json:"success"`
	Failed    int           `json:"failed"`
	Conflicts []Conflict    `json:"conflicts"`
	Successes []SyncSuccess `json:"successes"`
}

// Status derives the terminal batch status from the counts.
func (r SyncResult) Status() SyncStatus {
	switch {
	case r.Failed == 0:
		return SyncCompleted
	case r.Success == 0:
		return SyncFailed
	default:
		return SyncPartial
	}
}

// SyncBatch is one device submission. Transactions keep submission order.
type SyncBatch struct {
	ID           string               `json:"id"`
	DeviceID     string               `json:"deviceId"`
	FestivalID   string               `json:"festivalId"`
	Transactions []OfflineTransaction `json:"transactions"`
	Status       SyncStatus           `json:"status"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
	ProcessedAt  *time.Time           `json:"processedAt,omitempty"`
	Result       *SyncResult          `json:"result,omitempty"`
}

// TxOutcome is an append-only record of what happened to one item of a batch.
type TxOutcome struct {
	BatchID    string    `json:"batchId"`
	Position   int       `json:"position"`
	LocalID    string    `json:"localId"`
	ServerTxID *string   `json:"serverTxId,omitempty"`
	Error      *string   `json:"error,omitempty"`
	Resolution string    `json:"resolution,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

type ClaimState string

const (
	ClaimInProgress ClaimState = "IN_PROGRESS"
	ClaimSucceeded  ClaimState = "SUCCEEDED"
	ClaimFailed     ClaimState = "FAILED"
	// ClaimPartial marks an item whose balance moved without a ledger entry.
	// It is reported again on resubmission and never re-applied.
	ClaimPartial ClaimState = "PARTIAL"
)

// TxClaim reserves a (device, localId) pair for exactly one batch at a time.
type TxClaim struct {
	DeviceID   string     `json:"deviceId"`
	LocalID    string     `json:"localId"`
	BatchID    string     `json:"batchId"`
	State      ClaimState `json:"state"`
	ServerTxID *string    `json:"serverTxId,omitempty"`
	Error      *string    `json:"error,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
