package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/baharkarakas/offline-sync/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type claimsRepo struct{ pool *pgxpool.Pool }

func (r *claimsRepo) Claim(ctx context.Context, c models.TxClaim) (models.TxClaim, bool, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sync_claims (device_id, local_id, batch_id, state)
		 VALUES ($1,$2,$3,$4)`,
		c.DeviceID, c.LocalID, c.BatchID, string(models.ClaimInProgress),
	)
	if err == nil {
		c.State = models.ClaimInProgress
		return c, true, nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return models.TxClaim{}, false, fmt.Errorf("claim reservation failed: %w", err)
	}

	var (
		existing models.TxClaim
		state    string
	)
	err = r.pool.QueryRow(ctx,
		`SELECT device_id, local_id, batch_id, state, server_tx_id, error, updated_at
		   FROM sync_claims
		  WHERE device_id=$1 AND local_id=$2`,
		c.DeviceID, c.LocalID,
	).Scan(&existing.DeviceID, &existing.LocalID, &existing.BatchID, &state, &existing.ServerTxID, &existing.Error, &existing.UpdatedAt)
	if err != nil {
		return models.TxClaim{}, false, fmt.Errorf("claim lookup failed: %w", err)
	}
	existing.State = models.ClaimState(state)
	return existing, false, nil
}

func (r *claimsRepo) TakeOver(ctx context.Context, prev models.TxClaim, batchID string) (bool, error) {
	if prev.State != models.ClaimFailed && prev.State != models.ClaimInProgress {
		return false, nil
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE sync_claims
		    SET state=$4, batch_id=$3, server_tx_id=NULL, error=NULL, updated_at=now()
		  WHERE device_id=$1 AND local_id=$2 AND state=$5 AND batch_id=$6`,
		prev.DeviceID, prev.LocalID, batchID, string(models.ClaimInProgress), string(prev.State), prev.BatchID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *claimsRepo) Resolve(ctx context.Context, deviceID, localID, batchID string, state models.ClaimState, serverTxID, errMsg *string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sync_claims
		    SET state=$4, server_tx_id=$5, error=$6, updated_at=now()
		  WHERE device_id=$1 AND local_id=$2 AND batch_id=$3`,
		deviceID, localID, batchID, string(state), serverTxID, errMsg,
	)
	return err
}
