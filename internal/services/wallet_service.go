package services

import (
	"context"
	"fmt"

	"github.com/baharkarakas/offline-sync/internal/models"
	repo "github.com/baharkarakas/offline-sync/internal/repository"
)

type WalletService struct {
	ledger  repo.Ledger
	wallets repo.Wallets
}

func NewWalletService(l repo.Ledger, w repo.Wallets) *WalletService {
	return &WalletService{ledger: l, wallets: w}
}

func (s *WalletService) Get(ctx context.Context, id string) (models.Wallet, error) {
	return s.ledger.GetWallet(ctx, id)
}

// Open creates a wallet with an opening balance.
func (s *WalletService) Open(ctx context.Context, id, festivalID string, balance int64) (models.Wallet, error) {
	if id == "" || festivalID == "" {
		return models.Wallet{}, fmt.Errorf("wallet id and festival id are required")
	}
	if balance < 0 {
		return models.Wallet{}, fmt.Errorf("%w: opening balance %d", models.ErrInvalidAmount, balance)
	}
	return s.wallets.Create(ctx, models.Wallet{ID: id, FestivalID: festivalID, Balance: balance})
}

func (s *WalletService) Entries(ctx context.Context, walletID string, limit, offset int) ([]models.LedgerEntry, error) {
	if _, err := s.ledger.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.wallets.ListEntries(ctx, walletID, limit, offset)
}
