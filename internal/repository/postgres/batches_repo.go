package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/baharkarakas/offline-sync/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type batchesRepo struct{ pool *pgxpool.Pool }

const batchCols = `id, device_id, festival_id, transactions, status, result, created_at, updated_at, processed_at`

var terminalStatuses = []string{
	string(models.SyncCompleted),
	string(models.SyncFailed),
	string(models.SyncPartial),
}

func scanBatch(row pgx.Row) (models.SyncBatch, error) {
	var (
		b      models.SyncBatch
		txsRaw []byte
		resRaw []byte
		status string
	)
	err := row.Scan(&b.ID, &b.DeviceID, &b.FestivalID, &txsRaw, &status, &resRaw, &b.CreatedAt, &b.UpdatedAt, &b.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.SyncBatch{}, models.ErrBatchNotFound
	}
	if err != nil {
		return models.SyncBatch{}, err
	}
	b.Status = models.SyncStatus(status)
	if err := json.Unmarshal(txsRaw, &b.Transactions); err != nil {
		return models.SyncBatch{}, fmt.Errorf("decode transactions of batch %s: %w", b.ID, err)
	}
	if len(resRaw) > 0 {
		var res models.SyncResult
		if err := json.Unmarshal(resRaw, &res); err != nil {
			return models.SyncBatch{}, fmt.Errorf("decode result of batch %s: %w", b.ID, err)
		}
		b.Result = &res
	}
	return b, nil
}

func (r *batchesRepo) Create(ctx context.Context, b models.SyncBatch) (models.SyncBatch, error) {
	txs, err := json.Marshal(b.Transactions)
	if err != nil {
		return models.SyncBatch{}, err
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO sync_batches (id, device_id, festival_id, transactions, status)
		 VALUES ($1,$2,$3,$4,$5)
		 RETURNING created_at, updated_at`,
		b.ID, b.DeviceID, b.FestivalID, txs, string(b.Status),
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (r *batchesRepo) Get(ctx context.Context, id string) (models.SyncBatch, error) {
	return scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchCols+` FROM sync_batches WHERE id=$1`, id))
}

func (r *batchesRepo) UpdateStatus(ctx context.Context, id string, status models.SyncStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sync_batches SET status=$2, updated_at=now()
		  WHERE id=$1 AND NOT (status = ANY($3))`,
		id, string(status), terminalStatuses,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrFinal(ctx, id)
	}
	return nil
}

func (r *batchesRepo) Finalize(ctx context.Context, id string, status models.SyncStatus, result models.SyncResult, txs []models.OfflineTransaction, processedAt time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize batch %s: status %s is not terminal", id, status)
	}
	resRaw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	txsRaw, err := json.Marshal(txs)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE sync_batches
		    SET status=$2, result=$3, transactions=$4, processed_at=$5, updated_at=now()
		  WHERE id=$1 AND NOT (status = ANY($6))`,
		id, string(status), resRaw, txsRaw, processedAt, terminalStatuses,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrFinal(ctx, id)
	}
	return nil
}

func (r *batchesRepo) missingOrFinal(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sync_batches WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return models.ErrBatchNotFound
	}
	return models.ErrBatchFinalized
}

func (r *batchesRepo) ListByDevice(ctx context.Context, deviceID string, statuses ...models.SyncStatus) ([]models.SyncBatch, error) {
	st := make([]string, len(statuses))
	for i, s := range statuses {
		st[i] = string(s)
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+batchCols+`
		   FROM sync_batches
		  WHERE device_id=$1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		  ORDER BY created_at ASC`,
		deviceID, st,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SyncBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// FindSucceeded reads the outcome log rather than the embedded collection,
// which is only stamped when a batch reaches its terminal state.
func (r *batchesRepo) FindSucceeded(ctx context.Context, deviceID, localID string) (string, bool, error) {
	var serverTxID string
	err := r.pool.QueryRow(ctx,
		`SELECT o.server_tx_id
		   FROM sync_outcomes o
		   JOIN sync_batches b ON b.id = o.batch_id
		  WHERE b.device_id = $1
		    AND o.local_id = $2
		    AND o.error IS NULL
		    AND o.server_tx_id IS NOT NULL
		  ORDER BY o.recorded_at ASC
		  LIMIT 1`,
		deviceID, localID,
	).Scan(&serverTxID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return serverTxID, true, nil
}
