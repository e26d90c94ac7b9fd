package postgres

import (
	"context"
	"errors"

	"github.com/baharkarakas/offline-sync/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const entryCols = `id, wallet_id, type, amount, payment_method, stand_id, staff_id, product_ids, device_id, device_tx_id, created_at`

// CreateLedgerEntry keeps the caller's CreatedAt so that offline events are
// back-dated to when they happened on the device.
func (r *ledgerRepo) CreateLedgerEntry(ctx context.Context, e models.LedgerEntry) (models.LedgerEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	productIDs := e.ProductIDs
	if productIDs == nil {
		productIDs = []string{}
	}
	const q = `
INSERT INTO ledger_entries (` + entryCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id;
`
	err := r.pool.QueryRow(ctx, q,
		e.ID, e.WalletID, e.Type, e.Amount, e.PaymentMethod, e.StandID, e.StaffID,
		productIDs, e.DeviceID, e.DeviceTxID, e.CreatedAt,
	).Scan(&e.ID)
	return e, err
}

func (r *ledgerRepo) ListEntries(ctx context.Context, walletID string, limit, offset int) ([]models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryCols+`
		   FROM ledger_entries
		  WHERE wallet_id=$1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`,
		walletID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.WalletID, &e.Type, &e.Amount, &e.PaymentMethod, &e.StandID,
			&e.StaffID, &e.ProductIDs, &e.DeviceID, &e.DeviceTxID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *ledgerRepo) FindDeviceEntry(ctx context.Context, deviceID, localID string) (models.LedgerEntry, bool, error) {
	var e models.LedgerEntry
	err := r.pool.QueryRow(ctx,
		`SELECT `+entryCols+`
		   FROM ledger_entries
		  WHERE device_id=$1 AND device_tx_id=$2
		  ORDER BY recorded_at
		  LIMIT 1`,
		deviceID, localID,
	).Scan(&e.ID, &e.WalletID, &e.Type, &e.Amount, &e.PaymentMethod, &e.StandID,
		&e.StaffID, &e.ProductIDs, &e.DeviceID, &e.DeviceTxID, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.LedgerEntry{}, false, nil
	}
	if err != nil {
		return models.LedgerEntry{}, false, err
	}
	return e, true, nil
}
