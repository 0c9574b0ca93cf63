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

func scanLock(row rowScanner) (*models.CoinLock, error) {
	var lock models.CoinLock
	var amountStr, rateStr, status, startDate, endDate, createdAt, updatedAt string
	err := row.Scan(&lock.Id, &lock.WalletId, &lock.UserId, &amountStr, &lock.DurationMonths, &rateStr,
		&startDate, &endDate, &status, &lock.RewardsPaid, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	lock.Status = models.LockStatus(status)
	if lock.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse lock amount '%s': %w", amountStr, err)
	}
	if lock.BonusRate, err = decimal.NewFromString(rateStr); err != nil {
		return nil, fmt.Errorf("failed to parse bonus rate '%s': %w", rateStr, err)
	}
	for _, field := range []struct {
		dst *time.Time
		src string
	}{
		{&lock.StartDate, startDate},
		{&lock.EndDate, endDate},
		{&lock.CreatedAt, createdAt},
		{&lock.UpdatedAt, updatedAt},
	} {
		if *field.dst, err = parseTime(field.src); err != nil {
			return nil, err
		}
	}
	return &lock, nil
}

func (s *SubledgerService) GetLock(ctx context.Context, userId, lockId string) (*models.CoinLock, error) {
	lock, err := scanLock(s.db.QueryRowContext(ctx, queryGetLock, lockId, userId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lock %s: %w", lockId, store.ErrLockNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lock: %w", classify(err))
	}
	return lock, nil
}

// ListLocks returns a user's locks, newest first. An empty status lists all.
func (s *SubledgerService) ListLocks(ctx context.Context, userId string, status models.LockStatus) ([]models.CoinLock, error) {
	if status == "" {
		return s.queryLocks(ctx, queryListUserLocks, userId)
	}
	return s.queryLocks(ctx, queryListUserLocksByStatus, userId, string(status))
}

// ListActiveLocks returns every active lock across all wallets, oldest first.
func (s *SubledgerService) ListActiveLocks(ctx context.Context) ([]models.CoinLock, error) {
	return s.queryLocks(ctx, queryListActiveLocks)
}

func (s *SubledgerService) queryLocks(ctx context.Context, query string, args ...any) ([]models.CoinLock, error) {
	locks := []models.CoinLock{}
	err := s.eachRow(ctx, query, args, func(row rowScanner) error {
		lock, err := scanLock(row)
		if err != nil {
			return fmt.Errorf("failed to scan lock: %w", err)
		}
		locks = append(locks, *lock)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list locks: %w", err)
	}
	return locks, nil
}

// insertLock creates the lock funded by a lock transaction.
func (s *SubledgerService) insertLock(ctx context.Context, tx *sql.Tx, wallet *models.Wallet, amount decimal.Decimal, params store.ApplyTransactionParams, now time.Time) (*models.CoinLock, error) {
	if params.DurationMonths <= 0 || !params.BonusRate.IsPositive() {
		return nil, fmt.Errorf("lock requires a duration and bonus rate, got %d months at %s", params.DurationMonths, params.BonusRate)
	}

	start, err := s.nextLockStart(ctx, tx, wallet.Id, now)
	if err != nil {
		return nil, err
	}

	lock := &models.CoinLock{
		Id:             uuid.New().String(),
		WalletId:       wallet.Id,
		UserId:         wallet.UserId,
		Amount:         amount,
		DurationMonths: params.DurationMonths,
		BonusRate:      params.BonusRate,
		StartDate:      start,
		EndDate:        rewards.AddMonths(start, params.DurationMonths),
		Status:         models.LockStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err = tx.ExecContext(ctx, queryInsertLock,
		lock.Id, lock.WalletId, lock.UserId, lock.Amount.String(), lock.DurationMonths, lock.BonusRate.String(),
		formatTime(lock.StartDate), formatTime(lock.EndDate), string(lock.Status), lock.RewardsPaid,
		formatTime(now), formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("lock start %s taken: %w", formatTime(start), store.ErrConcurrentModification)
		}
		return nil, fmt.Errorf("failed to insert lock: %w", classify(err))
	}
	return lock, nil
}

// nextLockStart keeps lock start dates unique per wallet: a lock created at
// or before the wallet's latest start is placed one nanosecond after it.
func (s *SubledgerService) nextLockStart(ctx context.Context, tx *sql.Tx, walletId string, now time.Time) (time.Time, error) {
	now = now.UTC()
	var latest sql.NullString
	if err := tx.QueryRowContext(ctx, queryLatestLockStart, walletId).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("failed to read latest lock start: %w", classify(err))
	}
	last, err := parseNullTime(latest)
	if err != nil {
		return time.Time{}, err
	}
	if last != nil && !now.After(*last) {
		return last.Add(time.Nanosecond), nil
	}
	return now, nil
}

// releaseLock shrinks the lock by the unlocked amount. A drained lock is
// closed: unlocked-early before its end date, expired after it, unless the
// caller names the status.
func (s *SubledgerService) releaseLock(ctx context.Context, tx *sql.Tx, wallet *models.Wallet, pending *models.Transaction, params store.ApplyTransactionParams, now time.Time) (*models.CoinLock, error) {
	lock, err := s.activeLockInTx(ctx, tx, wallet.UserId, pending.LockId)
	if err != nil {
		return nil, err
	}
	if lock.Amount.LessThan(pending.Amount) {
		return nil, fmt.Errorf("lock %s holds %s, requested %s: %w",
			lock.Id, lock.Amount, pending.Amount, store.ErrInsufficientLockedBalance)
	}

	remaining := lock.Amount.Sub(pending.Amount)
	if remaining.IsZero() {
		switch {
		case params.CloseStatus != "":
			lock.Status = params.CloseStatus
		case now.Before(lock.EndDate):
			lock.Status = models.LockStatusUnlockedEarly
		default:
			lock.Status = models.LockStatusExpired
		}
	} else {
		lock.Amount = remaining
	}
	lock.UpdatedAt = now

	if err := updateLockInTx(ctx, tx, lock); err != nil {
		return nil, err
	}

	s.logger.Info("Coin lock released",
		zap.String("lock_id", lock.Id),
		zap.String("user_id", lock.UserId),
		zap.String("released", pending.Amount.String()),
		zap.String("status", string(lock.Status)))
	return lock, nil
}

// recordRewardPayment advances the lock's paid-month counter. Months must be
// paid in order and only once.
func (s *SubledgerService) recordRewardPayment(ctx context.Context, tx *sql.Tx, wallet *models.Wallet, pending *models.Transaction, params store.ApplyTransactionParams, now time.Time) (*models.CoinLock, error) {
	lock, err := s.activeLockInTx(ctx, tx, wallet.UserId, pending.LockId)
	if err != nil {
		return nil, err
	}
	if params.RewardMonth > lock.DurationMonths {
		return nil, fmt.Errorf("reward month %d exceeds lock duration %d", params.RewardMonth, lock.DurationMonths)
	}
	if lock.RewardsPaid != params.RewardMonth-1 {
		return nil, fmt.Errorf("lock %s month %d (paid %d): %w",
			lock.Id, params.RewardMonth, lock.RewardsPaid, store.ErrDuplicateTransaction)
	}

	lock.RewardsPaid = params.RewardMonth
	lock.UpdatedAt = now
	if err := updateLockInTx(ctx, tx, lock); err != nil {
		return nil, err
	}
	return lock, nil
}

func (s *SubledgerService) activeLockInTx(ctx context.Context, tx *sql.Tx, userId, lockId string) (*models.CoinLock, error) {
	if lockId == "" {
		return nil, fmt.Errorf("no lock referenced: %w", store.ErrLockNotFound)
	}
	lock, err := scanLock(tx.QueryRowContext(ctx, queryGetLock, lockId, userId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lock %s: %w", lockId, store.ErrLockNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lock: %w", classify(err))
	}
	if lock.Status != models.LockStatusActive {
		return nil, fmt.Errorf("lock %s is %s: %w", lockId, lock.Status, store.ErrLockNotActive)
	}
	return lock, nil
}

func updateLockInTx(ctx context.Context, tx *sql.Tx, lock *models.CoinLock) error {
	_, err := tx.ExecContext(ctx, queryUpdateLock,
		lock.Amount.String(), string(lock.Status), lock.RewardsPaid, formatTime(lock.UpdatedAt), lock.Id)
	if err != nil {
		return fmt.Errorf("failed to update lock: %w", classify(err))
	}
	return nil
}
