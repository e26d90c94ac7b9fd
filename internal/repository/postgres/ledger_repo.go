package postgres

import (
	"context"
	"errors"

	"github.com/baharkarakas/offline-sync/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ledgerRepo struct{ pool *pgxpool.Pool }

const walletCols = `id, festival_id, balance, updated_at`

func scanWallet(row pgx.Row) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.FestivalID, &w.Balance, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Wallet{}, models.ErrWalletNotFound
	}
	return w, err
}

func (r *ledgerRepo) GetWallet(ctx context.Context, walletID string) (models.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx,
		`SELECT `+walletCols+` FROM wallets WHERE id=$1`, walletID))
}

// Debit only touches the row when the balance covers the amount, so two
// concurrent debits can never overdraw the wallet.
func (r *ledgerRepo) Debit(ctx context.Context, walletID string, amount int64) (models.Wallet, error) {
	w, err := scanWallet(r.pool.QueryRow(ctx,
		`UPDATE wallets
		    SET balance = balance - $2,
		        updated_at = now()
		  WHERE id = $1 AND balance >= $2
		  RETURNING `+walletCols,
		walletID, amount,
	))
	if !errors.Is(err, models.ErrWalletNotFound) {
		return w, err
	}
	// no row updated: either the wallet is missing or the balance is short
	if _, err := r.GetWallet(ctx, walletID); err != nil {
		return models.Wallet{}, err
	}
	return models.Wallet{}, models.ErrInsufficientBalance
}

func (r *ledgerRepo) Credit(ctx context.Context, walletID string, amount int64) (models.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx,
		`UPDATE wallets
		    SET balance = balance + $2,
		        updated_at = now()
		  WHERE id = $1
		  RETURNING `+walletCols,
		walletID, amount,
	))
}

func (r *ledgerRepo) Create(ctx context.Context, w models.Wallet) (models.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx,
		`INSERT INTO wallets (id, festival_id, balance) VALUES ($1,$2,$3)
		 RETURNING `+walletCols,
		w.ID, w.FestivalID, w.Balance,
	))
}
