package services

import (
	"context"
	"fmt"

	"github.com/baharkarakas/offline-sync/internal/models"
	repo "github.com/baharkarakas/offline-sync/internal/repository"
)

// Reconciler re-checks a wallet after a purchase failed on balance, in case
// an online top-up landed between the offline event and its sync.
type Reconciler struct {
	ledger repo.Ledger
}

func NewReconciler(ledger repo.Ledger) *Reconciler {
	return &Reconciler{ledger: ledger}
}

// Reconcile reports whether the purchase may be dispatched once more.
func (r *Reconciler) Reconcile(ctx context.Context, tx models.OfflineTransaction) (bool, error) {
	if tx.Type != models.OfflinePurchase {
		return false, fmt.Errorf("%w: %s does not depend on balance", models.ErrInsufficientBalanceUnresolved, tx.Type)
	}
	w, err := r.ledger.GetWallet(ctx, tx.WalletID)
	if err != nil {
		return false, err
	}
	if w.Balance >= tx.Amount {
		return true, nil
	}
	return false, fmt.Errorf("%w: balance %d below %d", models.ErrInsufficientBalanceUnresolved, w.Balance, tx.Amount)
}
