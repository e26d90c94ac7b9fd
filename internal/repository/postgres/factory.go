package postgres

import (
	repo "github.com/baharkarakas/offline-sync/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repositories struct {
	Ledger    repo.Ledger
	Wallets   repo.Wallets
	Batches   repo.SyncBatches
	Outcomes  repo.Outcomes
	Claims    repo.Claims
	AuditLogs repo.AuditLogs
}

func NewRepositories(pool *pgxpool.Pool) Repositories {
	ledger := &ledgerRepo{pool}
	return Repositories{
		Ledger:    ledger,
		Wallets:   ledger,
		Batches:   &batchesRepo{pool},
		Outcomes:  &outcomesRepo{pool},
		Claims:    &claimsRepo{pool},
		AuditLogs: &auditLogsRepo{pool},
	}
}
