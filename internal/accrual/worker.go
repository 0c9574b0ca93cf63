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

package accrual

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"coin-wallet-go/internal/apperr"
	"coin-wallet-go/internal/models"
	"coin-wallet-go/internal/rewards"
	"coin-wallet-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RewardLedger applies reward credits and lock expiries.
type RewardLedger interface {
	CreditReward(ctx context.Context, lock models.CoinLock, month int) (*store.ApplyResult, error)
	ExpireLock(ctx context.Context, lock models.CoinLock) (*store.ApplyResult, error)
}

// LockLister lists the locks still earning rewards.
type LockLister interface {
	ListActiveLocks(ctx context.Context) ([]models.CoinLock, error)
}

// WorkerConfig contains configuration for Worker
type WorkerConfig struct {
	Ledger      RewardLedger
	Locks       LockLister
	Interval    time.Duration
	Concurrency int
	Logger      *zap.Logger
}

// Worker credits monthly coin lock rewards and expires matured locks.
type Worker struct {
	ledger      RewardLedger
	locks       LockLister
	interval    time.Duration
	concurrency int
	logger      *zap.Logger
	now         func() time.Time

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// Stats summarizes one accrual pass.
type Stats struct {
	LocksScanned    int
	RewardsCredited int
	LocksExpired    int
	Failures        int
	AmountCredited  decimal.Decimal
}

func NewWorker(cfg WorkerConfig) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Worker{
		ledger:      cfg.Ledger,
		locks:       cfg.Locks,
		interval:    cfg.Interval,
		concurrency: concurrency,
		logger:      cfg.Logger,
		now:         time.Now,
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
}

// Start runs an accrual pass immediately and then on every interval until
// Stop is called or ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return fmt.Errorf("accrual interval must be positive, got %v", w.interval)
	}

	go w.loop(ctx)

	w.logger.Info("Reward accrual worker started", zap.Duration("interval", w.interval))
	return nil
}

// Stop gracefully stops the worker, waiting for an in-flight pass.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping reward accrual worker")
		close(w.stopChan)
		<-w.doneChan
		w.logger.Info("Reward accrual worker stopped")
	})
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.doneChan)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.pass(ctx)

	for {
		select {
		case <-ticker.C:
			w.pass(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) pass(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil {
		w.logger.Error("Reward accrual pass failed", zap.Error(err))
	}
}

// RunOnce credits every due reward month and expires matured locks. A
// failing lock is logged and counted; it does not stop the pass. Locks of
// one user are processed in order, different users concurrently.
func (w *Worker) RunOnce(ctx context.Context) (Stats, error) {
	stats := Stats{AmountCredited: decimal.Zero}

	locks, err := w.locks.ListActiveLocks(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list active locks: %w", err)
	}
	stats.LocksScanned = len(locks)
	if len(locks) == 0 {
		return stats, nil
	}

	byUser := make(map[string][]models.CoinLock)
	var users []string
	for _, lock := range locks {
		if _, ok := byUser[lock.UserId]; !ok {
			users = append(users, lock.UserId)
		}
		byUser[lock.UserId] = append(byUser[lock.UserId], lock)
	}

	now := w.now()
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for _, userId := range users {
		userLocks := byUser[userId]
		g.Go(func() error {
			for _, lock := range userLocks {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				result := w.processLock(gctx, lock, now)

				mu.Lock()
				stats.RewardsCredited += result.credited
				stats.AmountCredited = stats.AmountCredited.Add(result.amount)
				if result.expired {
					stats.LocksExpired++
				}
				if result.err != nil {
					stats.Failures++
				}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}

	w.logger.Info("Reward accrual pass completed",
		zap.Int("locks_scanned", stats.LocksScanned),
		zap.Int("rewards_credited", stats.RewardsCredited),
		zap.String("amount_credited", stats.AmountCredited.String()),
		zap.Int("locks_expired", stats.LocksExpired),
		zap.Int("failures", stats.Failures))
	return stats, nil
}

type lockResult struct {
	credited int
	amount   decimal.Decimal
	expired  bool
	err      error
}

func (w *Worker) processLock(ctx context.Context, lock models.CoinLock, now time.Time) lockResult {
	result := lockResult{amount: decimal.Zero}

	due := rewards.DueRewardMonths(lock, now)
	for i := 0; i < due; i++ {
		month := lock.RewardsPaid + 1
		paid, err := w.ledger.CreditReward(ctx, lock, month)
		if errors.Is(err, apperr.ErrConflict) {
			// Another pass already paid this month.
			w.logger.Debug("Reward month already credited",
				zap.String("lock_id", lock.Id),
				zap.Int("month", month))
			return result
		}
		if err != nil {
			w.logger.Error("Failed to credit coin lock reward",
				zap.String("lock_id", lock.Id),
				zap.String("user_id", lock.UserId),
				zap.Int("month", month),
				zap.Error(err))
			result.err = err
			return result
		}
		result.credited++
		result.amount = result.amount.Add(paid.Transaction.Amount)
		lock.RewardsPaid = month
	}

	if rewards.Matured(lock, now) {
		if _, err := w.ledger.ExpireLock(ctx, lock); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				return result
			}
			w.logger.Error("Failed to expire matured coin lock",
				zap.String("lock_id", lock.Id),
				zap.String("user_id", lock.UserId),
				zap.Error(err))
			result.err = err
			return result
		}
		result.expired = true
	}
	return result
}
