/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"

	"coin-wallet-go/internal/apperr"
	"coin-wallet-go/internal/models"
	"coin-wallet-go/internal/rewards"

	"go.uber.org/zap"
)

const walletHistorySize = 10

// GetBalance returns the wallet's balances. AvailableBalance is balance
// minus lockedBalance, floored at zero.
func (s *LedgerService) GetBalance(ctx context.Context, userId string) (*models.BalanceView, error) {
	wallet, err := s.getWallet(ctx, userId)
	if err != nil {
		return nil, translate(err)
	}

	return &models.BalanceView{
		Balance:          wallet.Balance,
		LockedBalance:    wallet.LockedBalance,
		AvailableBalance: wallet.AvailableBalance(),
		LastUpdated:      wallet.UpdatedAt,
	}, nil
}

// GetWallet returns the wallet with its loyalty bonus and latest transactions.
func (s *LedgerService) GetWallet(ctx context.Context, userId string) (*models.WalletView, error) {
	wallet, err := s.getWallet(ctx, userId)
	if err != nil {
		return nil, translate(err)
	}

	history, err := retryOnce(ctx, s.logger, "wallet history", func() ([]models.Transaction, error) {
		items, _, err := s.store.ListTransactions(ctx, models.TransactionQuery{
			UserId:    userId,
			Page:      1,
			Limit:     walletHistorySize,
			SortBy:    "createdAt",
			SortOrder: "desc",
		})
		return items, err
	})
	if err != nil {
		return nil, translate(err)
	}

	return s.walletView(wallet, history), nil
}

func (s *LedgerService) walletView(wallet *models.Wallet, history []models.Transaction) *models.WalletView {
	if history == nil {
		history = []models.Transaction{}
	}
	return &models.WalletView{
		Balance:            wallet.Balance,
		LockedBalance:      wallet.LockedBalance,
		AvailableBalance:   wallet.AvailableBalance(),
		LoyaltyType:        wallet.LoyaltyType,
		LoyaltyBonus:       rewards.LoyaltyBonus(wallet.LoyaltyType),
		SqlLevel:           wallet.SqlLevel,
		TransactionHistory: history,
		CreatedAt:          wallet.CreatedAt,
		UpdatedAt:          wallet.UpdatedAt,
	}
}

// CreateWallet creates a zeroed wallet. A second wallet for the same user is
// a validation error.
func (s *LedgerService) CreateWallet(ctx context.Context, userId string) (*models.WalletView, error) {
	if userId == "" {
		return nil, apperr.ErrAuthenticationRequired
	}

	wallet, err := retryOnce(ctx, s.logger, "create wallet", func() (*models.Wallet, error) {
		return s.store.CreateWallet(ctx, userId)
	})
	if err != nil {
		return nil, translate(err)
	}
	return s.walletView(wallet, nil), nil
}

// UpdateLoyalty re-derives the stored tier from the locked balance. The tier
// cannot be set directly: a requested tier that differs from the derived
// one is rejected.
func (s *LedgerService) UpdateLoyalty(ctx context.Context, userId string, requested models.LoyaltyTier) (*models.Wallet, error) {
	if requested != "" && !requested.Valid() {
		return nil, apperr.Newf(apperr.CodeValidation, "unknown loyalty type %q", requested)
	}

	wallet, err := s.getWallet(ctx, userId)
	if err != nil {
		return nil, translate(err)
	}

	derived := rewards.LoyaltyTierFor(wallet.LockedBalance)
	if requested != "" && requested != derived {
		return nil, apperr.Newf(apperr.CodeValidation,
			"loyalty type is derived from locked balance: %s locked gives %s, not %s",
			wallet.LockedBalance, derived, requested)
	}

	wallet, err = retryOnce(ctx, s.logger, "sync loyalty tier", func() (*models.Wallet, error) {
		return s.store.SyncLoyaltyTier(ctx, userId)
	})
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info("Loyalty tier updated",
		zap.String("user_id", userId),
		zap.String("loyalty_type", string(wallet.LoyaltyType)))
	return wallet, nil
}
