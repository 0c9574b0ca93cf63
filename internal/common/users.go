package common

import (
	"context"
	"fmt"

	"coin-wallet-go/internal/models"
	"coin-wallet-go/internal/store"

	"go.uber.org/zap"
)

// SelectWallets retrieves wallets based on an optional user filter.
// If userFilter is provided, returns the single wallet of that user.
// If userFilter is empty, returns all wallets.
func SelectWallets(ctx context.Context, ledgerStore store.LedgerStore, userFilter string, logger *zap.Logger) ([]models.Wallet, error) {
	if userFilter != "" {
		logger.Info("Looking up wallet by user", zap.String("user_id", userFilter))
		wallet, err := ledgerStore.GetWallet(ctx, userFilter)
		if err != nil {
			return nil, fmt.Errorf("wallet not found: %w", err)
		}
		return []models.Wallet{*wallet}, nil
	}

	wallets, err := ledgerStore.ListWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallets: %w", err)
	}

	logger.Info("Retrieved wallets", zap.Int("count", len(wallets)))
	return wallets, nil
}
