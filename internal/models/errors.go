package models

import "errors"

var (
	ErrInvalidSignature              = errors.New("invalid signature")
	ErrTransactionTooOld             = errors.New("transaction too old")
	ErrInsufficientBalance           = errors.New("insufficient balance")
	ErrInsufficientBalanceUnresolved = errors.New("insufficient balance unresolved")
	ErrWalletNotFound                = errors.New("wallet not found")
	ErrUnknownTransactionType        = errors.New("unknown transaction type")
	ErrInvalidAmount                 = errors.New("invalid amount")
	ErrDuplicateInFlight             = errors.New("duplicate submission in flight")
	ErrLedgerPartial                 = errors.New("ledger update incomplete")

	ErrBatchNotFound  = errors.New("batch not found")
	ErrBatchFinalized = errors.New("batch already finalized")
	ErrClaimExists    = errors.New("claim already exists")
)

// ErrInvalidBatch marks a submission rejected before any item is processed.
var ErrInvalidBatch = errors.New("invalid batch")
