package api

import (
	"context"
	"fmt"

	"coin-wallet-go/internal/apperr"
	"coin-wallet-go/internal/models"
	"coin-wallet-go/internal/rewards"
	"coin-wallet-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultLockDurationMonths = 3

// Lock moves amount from balance into a new coin lock.
func (s *LedgerService) Lock(ctx context.Context, userId string, amount decimal.Decimal, durationMonths int) (*store.ApplyResult, error) {
	if durationMonths == 0 {
		durationMonths = DefaultLockDurationMonths
	}
	return s.ApplyTransaction(ctx, TransactionRequest{
		UserId:         userId,
		Type:           models.TransactionTypeLock,
		Amount:         amount,
		DurationMonths: durationMonths,
		Description:    fmt.Sprintf("Lock for %d months", durationMonths),
	})
}

// Unlock releases amount from a lock back into balance. Without a lock id
// the newest active lock is used. Draining a lock before its end date
// forfeits its remaining rewards.
func (s *LedgerService) Unlock(ctx context.Context, userId, lockId string, amount decimal.Decimal) (*store.ApplyResult, error) {
	if !amount.IsPositive() {
		return nil, apperr.Newf(apperr.CodeInvalidAmount, "amount must be greater than zero, got %s", amount)
	}

	if lockId == "" {
		locks, err := s.activeLocks(ctx, userId)
		if err != nil {
			return nil, translate(err)
		}
		if len(locks) == 0 {
			if _, err := s.getWallet(ctx, userId); err != nil {
				return nil, translate(err)
			}
			return nil, apperr.New(apperr.CodeInsufficientLockedBalance, "no active coin lock to release")
		}
		lockId = locks[0].Id
	} else {
		lock, err := retryOnce(ctx, s.logger, "get lock", func() (*models.CoinLock, error) {
			return s.store.GetLock(ctx, userId, lockId)
		})
		if err != nil {
			return nil, translate(err)
		}
		if lock.Status != models.LockStatusActive {
			return nil, apperr.Newf(apperr.CodeValidation, "coin lock %s is %s", lockId, lock.Status)
		}
	}

	return s.ApplyTransaction(ctx, TransactionRequest{
		UserId:      userId,
		Type:        models.TransactionTypeUnlock,
		Amount:      amount,
		LockId:      lockId,
		Description: "Unlock",
	})
}

// CreditReward pays one month of a lock's bonus. Each (lock, month) pair is
// paid at most once.
func (s *LedgerService) CreditReward(ctx context.Context, lock models.CoinLock, month int) (*store.ApplyResult, error) {
	result, err := s.ApplyTransaction(ctx, TransactionRequest{
		UserId:      lock.UserId,
		Type:        models.TransactionTypeBonus,
		Amount:      rewards.MonthlyReward(lock),
		LockId:      lock.Id,
		Reference:   fmt.Sprintf("reward:%s:%d", lock.Id, month),
		Description: fmt.Sprintf("Coin lock reward %d/%d", month, lock.DurationMonths),
		rewardMonth: month,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Coin lock reward credited",
		zap.String("user_id", lock.UserId),
		zap.String("lock_id", lock.Id),
		zap.Int("month", month),
		zap.String("amount", result.Transaction.Amount.String()))
	return result, nil
}

// ExpireLock returns a matured lock's remaining amount to balance and closes
// the lock as expired.
func (s *LedgerService) ExpireLock(ctx context.Context, lock models.CoinLock) (*store.ApplyResult, error) {
	return s.ApplyTransaction(ctx, TransactionRequest{
		UserId:      lock.UserId,
		Type:        models.TransactionTypeUnlock,
		Amount:      lock.Amount,
		LockId:      lock.Id,
		Reference:   "expire:" + lock.Id,
		Description: fmt.Sprintf("Coin lock matured after %d months", lock.DurationMonths),
		closeStatus: models.LockStatusExpired,
	})
}

// LockBonus returns the active locks with their computed rewards.
func (s *LedgerService) LockBonus(ctx context.Context, userId string) (*models.CoinLockBonusView, error) {
	wallet, err := s.getWallet(ctx, userId)
	if err != nil {
		return nil, translate(err)
	}

	locks, err := s.activeLocks(ctx, userId)
	if err != nil {
		return nil, translate(err)
	}

	now := s.now()
	view := &models.CoinLockBonusView{
		LockedBalance:      wallet.LockedBalance,
		LoyaltyType:        wallet.LoyaltyType,
		LoyaltyBonus:       rewards.LoyaltyBonus(wallet.LoyaltyType),
		TotalMonthlyReward: decimal.Zero,
		Locks:              make([]models.LockRewardSnapshot, 0, len(locks)),
	}
	for _, lock := range locks {
		snapshot := rewards.Snapshot(lock, now)
		view.TotalMonthlyReward = view.TotalMonthlyReward.Add(snapshot.MonthlyReward)
		view.Locks = append(view.Locks, snapshot)
	}
	return view, nil
}
