package memory

import repo "github.com/baharkarakas/offline-sync/internal/repository"

// Repositories mirrors postgres.Repositories for the in-memory backend.
type Repositories struct {
	Ledger    repo.Ledger
	Wallets   repo.Wallets
	Batches   repo.SyncBatches
	Outcomes  repo.Outcomes
	Claims    repo.Claims
	AuditLogs repo.AuditLogs
}

func NewRepositories() Repositories {
	ledger := NewLedger()
	store := NewSyncStore()
	return Repositories{
		Ledger:    ledger,
		Wallets:   ledger,
		Batches:   store,
		Outcomes:  store,
		Claims:    store,
		AuditLogs: NewAuditLog(),
	}
}
