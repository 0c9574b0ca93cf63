package accrual

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"coin-wallet-go/internal/api"
	"coin-wallet-go/internal/apperr"
	"coin-wallet-go/internal/database"
	"coin-wallet-go/internal/models"
	"coin-wallet-go/internal/rewards"
	"coin-wallet-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type creditCall struct {
	lockId string
	month  int
}

type fakeLedger struct {
	mu       sync.Mutex
	credits  []creditCall
	expired  []string
	failLock string
	conflict map[creditCall]bool
}

func (f *fakeLedger) CreditReward(_ context.Context, lock models.CoinLock, month int) (*store.ApplyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := creditCall{lockId: lock.Id, month: month}
	if lock.Id == f.failLock {
		return nil, apperr.New(apperr.CodeInternal, "boom")
	}
	if f.conflict[call] {
		return nil, apperr.New(apperr.CodeConflict, "already paid")
	}
	f.credits = append(f.credits, call)
	amount := lock.Amount.Mul(lock.BonusRate)
	return &store.ApplyResult{Transaction: &models.Transaction{Amount: amount}}, nil
}

func (f *fakeLedger) ExpireLock(_ context.Context, lock models.CoinLock) (*store.ApplyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, lock.Id)
	return &store.ApplyResult{}, nil
}

type lockList []models.CoinLock

func (l lockList) ListActiveLocks(context.Context) ([]models.CoinLock, error) {
	return l, nil
}

var start = time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)

func testLock(id, userId string, months, paid int) models.CoinLock {
	return models.CoinLock{
		Id:             id,
		UserId:         userId,
		Amount:         decimal.NewFromInt(1000),
		DurationMonths: months,
		BonusRate:      decimal.RequireFromString("0.03"),
		StartDate:      start,
		EndDate:        rewards.AddMonths(start, months),
		Status:         models.LockStatusActive,
		RewardsPaid:    paid,
	}
}

func newTestWorker(ledger RewardLedger, locks LockLister, now time.Time) *Worker {
	worker := NewWorker(WorkerConfig{Ledger: ledger, Locks: locks, Interval: time.Hour, Logger: zap.NewNop()})
	worker.now = func() time.Time { return now }
	return worker
}

func TestRunOnce_CreditsDueMonths(t *testing.T) {
	ledger := &fakeLedger{}
	locks := lockList{
		testLock("a", "alice", 6, 0),
		testLock("b", "alice", 3, 1),
		testLock("c", "bob", 12, 0),
	}
	// Feb 28 and Mar 31 anniversaries have passed, Apr 30 has not.
	worker := newTestWorker(ledger, locks, time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC))

	stats, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.LocksScanned)
	assert.Equal(t, 5, stats.RewardsCredited)
	assert.Equal(t, 0, stats.LocksExpired)
	assert.Equal(t, 0, stats.Failures)
	assert.True(t, stats.AmountCredited.Equal(decimal.NewFromInt(150)))

	assert.ElementsMatch(t, []creditCall{
		{"a", 1}, {"a", 2}, {"b", 2}, {"c", 1}, {"c", 2},
	}, ledger.credits)
}

func TestRunOnce_ExpiresMaturedLocks(t *testing.T) {
	ledger := &fakeLedger{}
	locks := lockList{testLock("a", "alice", 3, 2)}
	worker := newTestWorker(ledger, locks, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))

	stats, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RewardsCredited)
	assert.Equal(t, 1, stats.LocksExpired)
	assert.Equal(t, []creditCall{{"a", 3}}, ledger.credits)
	assert.Equal(t, []string{"a"}, ledger.expired)
}

func TestRunOnce_FailuresDoNotStopPass(t *testing.T) {
	ledger := &fakeLedger{
		failLock: "a",
		conflict: map[creditCall]bool{{"c", 1}: true},
	}
	locks := lockList{
		testLock("a", "alice", 6, 0),
		testLock("b", "alice", 6, 0),
		testLock("c", "bob", 6, 0),
	}
	worker := newTestWorker(ledger, locks, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	stats, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 1, stats.RewardsCredited)
	assert.Equal(t, []creditCall{{"b", 1}}, ledger.credits)
}

type failingLister struct{}

func (failingLister) ListActiveLocks(context.Context) ([]models.CoinLock, error) {
	return nil, errors.New("database is locked")
}

func TestRunOnce_ListFailure(t *testing.T) {
	worker := newTestWorker(&fakeLedger{}, failingLister{}, time.Now())

	_, err := worker.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	ledger := &fakeLedger{}
	worker := newTestWorker(ledger, lockList{testLock("a", "alice", 6, 0)}, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, worker.Start(context.Background()))
	assert.Eventually(t, func() bool {
		ledger.mu.Lock()
		defer ledger.mu.Unlock()
		return len(ledger.credits) > 0
	}, time.Second, 10*time.Millisecond)

	worker.Stop()
	worker.Stop()

	invalid := NewWorker(WorkerConfig{Ledger: ledger, Locks: lockList{}, Logger: zap.NewNop()})
	assert.Error(t, invalid.Start(context.Background()))
}

func TestRunOnce_AgainstLedger(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "wallet.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	ledger := api.NewLedgerService(db, nil, zap.NewNop())
	_, err = ledger.CreateWallet(ctx, "alice")
	require.NoError(t, err)
	_, err = ledger.ApplyTransaction(ctx, api.TransactionRequest{
		UserId: "alice",
		Type:   models.TransactionTypeDeposit,
		Amount: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	// A three month lock opened four months ago.
	pending, err := db.CreatePendingTransaction(ctx, store.PendingTransactionParams{
		UserId: "alice",
		Type:   models.TransactionTypeLock,
		Amount: decimal.NewFromInt(500),
	})
	require.NoError(t, err)
	_, err = db.ApplyPendingTransaction(ctx, store.ApplyTransactionParams{
		TransactionId:  pending.Id,
		DurationMonths: 3,
		BonusRate:      decimal.RequireFromString("0.03"),
		Now:            time.Now().AddDate(0, -4, 0),
	})
	require.NoError(t, err)

	worker := NewWorker(WorkerConfig{Ledger: ledger, Locks: db, Interval: time.Hour, Logger: zap.NewNop()})

	stats, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.RewardsCredited)
	assert.Equal(t, 1, stats.LocksExpired)
	assert.True(t, stats.AmountCredited.Equal(decimal.NewFromInt(45)))

	wallet, err := db.GetWallet(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(1045)), "balance %s", wallet.Balance)
	assert.True(t, wallet.LockedBalance.IsZero())
	require.NoError(t, db.ReconcileWallet(ctx, "alice"))

	stats, err = worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.LocksScanned)
}
