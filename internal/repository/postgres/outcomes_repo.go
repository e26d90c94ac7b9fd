package postgres

import (
	"context"

	"github.com/baharkarakas/offline-sync/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type outcomesRepo struct{ pool *pgxpool.Pool }

func (r *outcomesRepo) Append(ctx context.Context, o models.TxOutcome) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sync_outcomes (batch_id, position, local_id, server_tx_id, error, resolution, recorded_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		o.BatchID, o.Position, o.LocalID, o.ServerTxID, o.Error, o.Resolution, o.RecordedAt,
	)
	return err
}

func (r *outcomesRepo) ListByBatch(ctx context.Context, batchID string) ([]models.TxOutcome, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT batch_id, position, local_id, server_tx_id, error, resolution, recorded_at
		   FROM sync_outcomes
		  WHERE batch_id=$1
		  ORDER BY position ASC`,
		batchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TxOutcome
	for rows.Next() {
		var o models.TxOutcome
		if err := rows.Scan(&o.BatchID, &o.Position, &o.LocalID, &o.ServerTxID, &o.Error, &o.Resolution, &o.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
