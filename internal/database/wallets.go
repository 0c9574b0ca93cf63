package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"coin-wallet-go/internal/models"
	"coin-wallet-go/internal/rewards"
	"coin-wallet-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var wallet models.Wallet
	var balanceStr, lockedStr, loyalty, createdAt, updatedAt string
	err := row.Scan(&wallet.Id, &wallet.UserId, &balanceStr, &lockedStr, &loyalty,
		&wallet.SqlLevel, &wallet.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	wallet.LoyaltyType = models.LoyaltyTier(loyalty)
	if wallet.Balance, err = decimal.NewFromString(balanceStr); err != nil {
		return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}
	if wallet.LockedBalance, err = decimal.NewFromString(lockedStr); err != nil {
		return nil, fmt.Errorf("failed to parse locked balance '%s': %w", lockedStr, err)
	}
	if wallet.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if wallet.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// CreateWallet inserts a zeroed wallet for the user.
func (s *SubledgerService) CreateWallet(ctx context.Context, userId string) (*models.Wallet, error) {
	now := time.Now().UTC()
	wallet := &models.Wallet{
		Id:            uuid.New().String(),
		UserId:        userId,
		Balance:       decimal.Zero,
		LockedBalance: decimal.Zero,
		LoyaltyType:   rewards.LoyaltyTierFor(decimal.Zero),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err := s.db.ExecContext(ctx, queryInsertWallet, wallet.Id, userId, string(wallet.LoyaltyType), formatTime(now), formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %s: %w", userId, store.ErrWalletExists)
		}
		return nil, fmt.Errorf("failed to create wallet: %w", classify(err))
	}

	s.logger.Info("Wallet created", zap.String("user_id", userId), zap.String("wallet_id", wallet.Id))
	return wallet, nil
}

func (s *SubledgerService) GetWallet(ctx context.Context, userId string) (*models.Wallet, error) {
	wallet, err := scanWallet(s.db.QueryRowContext(ctx, queryGetWallet, userId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userId, store.ErrWalletNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", classify(err))
	}
	return wallet, nil
}

func (s *SubledgerService) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, queryListWallets)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", classify(err))
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			s.logger.Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var wallets []models.Wallet
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, *wallet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet rows: %w", err)
	}
	return wallets, nil
}

// SetSqlLevel raises the stored SQL level. Lowering or repeating a level
// fails with ErrLevelNotHigher.
func (s *SubledgerService) SetSqlLevel(ctx context.Context, userId string, level int) (*models.Wallet, error) {
	result, err := s.db.ExecContext(ctx, queryRaiseSqlLevel, level, formatTime(time.Now()), userId, level)
	if err != nil {
		return nil, fmt.Errorf("failed to update sql level: %w", classify(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}

	wallet, err := s.GetWallet(ctx, userId)
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("level %d, current %d: %w", level, wallet.SqlLevel, store.ErrLevelNotHigher)
	}

	s.logger.Info("SQL level raised", zap.String("user_id", userId), zap.Int("sql_level", level))
	return wallet, nil
}

// SyncLoyaltyTier rewrites the stored tier from the current locked balance.
func (s *SubledgerService) SyncLoyaltyTier(ctx context.Context, userId string) (*models.Wallet, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer tx.Rollback()

	wallet, err := scanWallet(tx.QueryRowContext(ctx, queryGetWallet, userId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userId, store.ErrWalletNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", classify(err))
	}

	tier := rewards.LoyaltyTierFor(wallet.LockedBalance)
	if tier == wallet.LoyaltyType {
		return wallet, nil
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, queryUpdateWalletLoyalty, string(tier), formatTime(now), wallet.Id, wallet.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update loyalty tier: %w", classify(err))
	}
	if rowsAffected, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	} else if rowsAffected == 0 {
		return nil, fmt.Errorf("loyalty update failed - %w", store.ErrConcurrentModification)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", classify(err))
	}

	s.logger.Info("Loyalty tier synchronized",
		zap.String("user_id", userId),
		zap.String("old_tier", string(wallet.LoyaltyType)),
		zap.String("new_tier", string(tier)))

	wallet.LoyaltyType = tier
	wallet.Version++
	wallet.UpdatedAt = now
	return wallet, nil
}

// ReconcileWallet replays the completed transaction log and compares the
// result with the stored balances and the active locks.
func (s *SubledgerService) ReconcileWallet(ctx context.Context, userId string) error {
	wallet, err := s.GetWallet(ctx, userId)
	if err != nil {
		return err
	}

	expectedBalance, expectedLocked := decimal.Zero, decimal.Zero
	err = s.eachRow(ctx, queryCompletedTransactionAmounts, []any{userId}, func(row rowScanner) error {
		var txType, amountStr string
		if err := row.Scan(&txType, &amountStr); err != nil {
			return err
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}
		balanceDelta, lockedDelta := models.TransactionType(txType).Deltas(amount)
		expectedBalance = expectedBalance.Add(balanceDelta)
		expectedLocked = expectedLocked.Add(lockedDelta)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replay transactions: %w", err)
	}

	activeLocked := decimal.Zero
	err = s.eachRow(ctx, querySumActiveLocks, []any{userId}, func(row rowScanner) error {
		var amountStr string
		if err := row.Scan(&amountStr); err != nil {
			return err
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return fmt.Errorf("failed to parse lock amount '%s': %w", amountStr, err)
		}
		activeLocked = activeLocked.Add(amount)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sum active locks: %w", err)
	}

	if !expectedBalance.Equal(wallet.Balance) || !expectedLocked.Equal(wallet.LockedBalance) || !activeLocked.Equal(wallet.LockedBalance) {
		s.logger.Error("Wallet reconciliation mismatch",
			zap.String("user_id", userId),
			zap.String("stored_balance", wallet.Balance.String()),
			zap.String("replayed_balance", expectedBalance.String()),
			zap.String("stored_locked", wallet.LockedBalance.String()),
			zap.String("replayed_locked", expectedLocked.String()),
			zap.String("active_locks", activeLocked.String()))
		return fmt.Errorf("%w: user %s balance %s/%s locked %s/%s active locks %s", store.ErrReconciliationMismatch,
			userId, wallet.Balance, expectedBalance, wallet.LockedBalance, expectedLocked, activeLocked)
	}

	s.logger.Debug("Wallet reconciled", zap.String("user_id", userId), zap.String("balance", wallet.Balance.String()))
	return nil
}

// eachRow runs query and hands every row to fn.
func (s *SubledgerService) eachRow(ctx context.Context, query string, args []any, fn func(row rowScanner) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return classify(err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			s.logger.Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
