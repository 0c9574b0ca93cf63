package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coin-wallet-go/internal/models"
	"coin-wallet-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func setupTestDb(t *testing.T) *Service {
	t.Helper()

	cfg := models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "wallet.db"),
		MaxOpenConns: 8,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  10 * time.Second,
	}
	service, err := NewService(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(service.Close)
	return service
}

func mustCreateWallet(t *testing.T, service *Service, userId string) {
	t.Helper()
	if _, err := service.CreateWallet(context.Background(), userId); err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
}

func process(service *Service, userId string, txType models.TransactionType, amount string, apply store.ApplyTransactionParams, lockId string) (*store.ApplyResult, *models.Transaction, error) {
	ctx := context.Background()
	pending, err := service.CreatePendingTransaction(ctx, store.PendingTransactionParams{
		UserId: userId,
		Type:   txType,
		Amount: decimal.RequireFromString(amount),
		LockId: lockId,
	})
	if err != nil {
		return nil, nil, err
	}
	apply.TransactionId = pending.Id
	result, err := service.ApplyPendingTransaction(ctx, apply)
	return result, pending, err
}

func mustProcess(t *testing.T, service *Service, userId string, txType models.TransactionType, amount string, apply store.ApplyTransactionParams, lockId string) *store.ApplyResult {
	t.Helper()
	result, _, err := process(service, userId, txType, amount, apply, lockId)
	if err != nil {
		t.Fatalf("%s of %s failed: %v", txType, amount, err)
	}
	return result
}

func lockParams(months int, rate string) store.ApplyTransactionParams {
	return store.ApplyTransactionParams{DurationMonths: months, BonusRate: decimal.RequireFromString(rate)}
}

func TestApplyPendingTransaction_Deposit(t *testing.T) {
	service := setupTestDb(t)
	mustCreateWallet(t, service, "user1")

	result := mustProcess(t, service, "user1", models.TransactionTypeDeposit, "100", store.ApplyTransactionParams{}, "")

	if result.Transaction.Status != models.TransactionStatusCompleted {
		t.Errorf("Expected status completed, got %s", result.Transaction.Status)
	}
	if !result.Wallet.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected balance 100, got %s", result.Wallet.Balance)
	}
	if !result.Transaction.BalanceBefore.IsZero() || !result.Transaction.BalanceAfter.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Unexpected snapshots %s -> %s", result.Transaction.BalanceBefore, result.Transaction.BalanceAfter)
	}

	wallet, err := service.GetWallet(context.Background(), "user1")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if wallet.Version != 2 {
		t.Errorf("Expected version 2 after one write, got %d", wallet.Version)
	}
}

func TestApplyPendingTransaction_InsufficientBalanceLeavesPending(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	mustCreateWallet(t, service, "user1")
	mustProcess(t, service, "user1", models.TransactionTypeDeposit, "1000", store.ApplyTransactionParams{}, "")

	_, pending, err := process(service, "user1", models.TransactionTypeWithdrawal, "2000", store.ApplyTransactionParams{}, "")
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}

	wallet, _ := service.GetWallet(ctx, "user1")
	if !wallet.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected balance unchanged at 1000, got %s", wallet.Balance)
	}

	if err := service.FailTransaction(ctx, pending.Id, err.Error()); err != nil {
		t.Fatalf("FailTransaction failed: %v", err)
	}
	if err := service.FailTransaction(ctx, pending.Id, "again"); !errors.Is(err, store.ErrTransactionNotPending) {
		t.Errorf("Expected ErrTransactionNotPending on second fail, got %v", err)
	}

	items, _, err := service.ListTransactions(ctx, models.TransactionQuery{
		UserId: "user1", Page: 1, Limit: 10, SortBy: "createdAt", SortOrder: "desc", Status: models.TransactionStatusFailed,
	})
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(items) != 1 || items[0].FailureReason == "" {
		t.Errorf("Expected one failed transaction with a reason, got %+v", items)
	}
}

func TestLockUnlock_Conservation(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	mustCreateWallet(t, service, "user1")
	mustProcess(t, service, "user1", models.TransactionTypeDeposit, "1000", store.ApplyTransactionParams{}, "")

	locked := mustProcess(t, service, "user1", models.TransactionTypeLock, "400", lockParams(12, "0.05"), "")
	if locked.Lock == nil {
		t.Fatalf("Expected lock to be created")
	}
	if !locked.Wallet.Balance.Equal(decimal.NewFromInt(600)) || !locked.Wallet.LockedBalance.Equal(decimal.NewFromInt(400)) {
		t.Errorf("Expected 600/400 after lock, got %s/%s", locked.Wallet.Balance, locked.Wallet.LockedBalance)
	}
	if locked.Wallet.LoyaltyType != models.LoyaltySilver {
		t.Errorf("Expected silver tier, got %s", locked.Wallet.LoyaltyType)
	}
	if locked.Transaction.LockId != locked.Lock.Id {
		t.Errorf("Expected lock transaction to reference lock %s, got %s", locked.Lock.Id, locked.Transaction.LockId)
	}
	if !locked.Lock.EndDate.After(locked.Lock.StartDate.AddDate(0, 11, 27)) {
		t.Errorf("Expected end date 12 months after start, got %s", locked.Lock.EndDate)
	}

	partial := mustProcess(t, service, "user1", models.TransactionTypeUnlock, "150", store.ApplyTransactionParams{}, locked.Lock.Id)
	if partial.Lock.Status != models.LockStatusActive || !partial.Lock.Amount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Expected active lock of 250 after partial unlock, got %s %s", partial.Lock.Status, partial.Lock.Amount)
	}

	full := mustProcess(t, service, "user1", models.TransactionTypeUnlock, "250", store.ApplyTransactionParams{}, locked.Lock.Id)
	if full.Lock.Status != models.LockStatusUnlockedEarly {
		t.Errorf("Expected unlocked-early, got %s", full.Lock.Status)
	}
	if !full.Wallet.Balance.Equal(decimal.NewFromInt(1000)) || !full.Wallet.LockedBalance.IsZero() {
		t.Errorf("Expected 1000/0 after unlocking everything, got %s/%s", full.Wallet.Balance, full.Wallet.LockedBalance)
	}
	if full.Wallet.LoyaltyType != models.LoyaltyBronze {
		t.Errorf("Expected bronze with nothing locked, got %s", full.Wallet.LoyaltyType)
	}

	if err := service.ReconcileWallet(ctx, "user1"); err != nil {
		t.Errorf("ReconcileWallet failed: %v", err)
	}
}

func TestUnlock_Errors(t *testing.T) {
	service := setupTestDb(t)
	mustCreateWallet(t, service, "user1")
	mustProcess(t, service, "user1", models.TransactionTypeDeposit, "500", store.ApplyTransactionParams{}, "")
	locked := mustProcess(t, service, "user1", models.TransactionTypeLock, "100", lockParams(3, "0.03"), "")

	_, _, err := process(service, "user1", models.TransactionTypeUnlock, "101", store.ApplyTransactionParams{}, locked.Lock.Id)
	if !errors.Is(err, store.ErrInsufficientLockedBalance) {
		t.Errorf("Expected ErrInsufficientLockedBalance, got %v", err)
	}

	_, _, err = process(service, "user1", models.TransactionTypeUnlock, "10", store.ApplyTransactionParams{}, "missing")
	if !errors.Is(err, store.ErrLockNotFound) {
		t.Errorf("Expected ErrLockNotFound, got %v", err)
	}

	mustProcess(t, service, "user1", models.TransactionTypeUnlock, "100",
		store.ApplyTransactionParams{CloseStatus: models.LockStatusExpired}, locked.Lock.Id)
	_, _, err = process(service, "user1", models.TransactionTypeUnlock, "1", store.ApplyTransactionParams{}, locked.Lock.Id)
	if !errors.Is(err, store.ErrLockNotActive) {
		t.Errorf("Expected ErrLockNotActive, got %v", err)
	}

	locks, err := service.ListLocks(context.Background(), "user1", models.LockStatusExpired)
	if err != nil {
		t.Fatalf("ListLocks failed: %v", err)
	}
	if len(locks) != 1 {
		t.Errorf("Expected one expired lock, got %d", len(locks))
	}
}

func TestRewardPayment_InOrderOnce(t *testing.T) {
	service := setupTestDb(t)
	mustCreateWallet(t, service, "user1")
	mustProcess(t, service, "user1", models.TransactionTypeDeposit, "1000", store.ApplyTransactionParams{}, "")
	locked := mustProcess(t, service, "user1", models.TransactionTypeLock, "1000", lockParams(24, "0.08"), "")

	paid := mustProcess(t, service, "user1", models.TransactionTypeBonus, "80", store.ApplyTransactionParams{RewardMonth: 1}, locked.Lock.Id)
	if paid.Lock.RewardsPaid != 1 {
		t.Errorf("Expected 1 month paid, got %d", paid.Lock.RewardsPaid)
	}
	if !paid.Wallet.Balance.Equal(decimal.NewFromInt(80)) {
		t.Errorf("Expected balance 80, got %s", paid.Wallet.Balance)
	}

	_, _, err := process(service, "user1", models.TransactionTypeBonus, "80", store.ApplyTransactionParams{RewardMonth: 1}, locked.Lock.Id)
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Errorf("Expected ErrDuplicateTransaction for repeated month, got %v", err)
	}
	_, _, err = process(service, "user1", models.TransactionTypeBonus, "80", store.ApplyTransactionParams{RewardMonth: 3}, locked.Lock.Id)
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Errorf("Expected ErrDuplicateTransaction for skipped month, got %v", err)
	}
}

func TestCreatePendingTransaction_ReferenceReuse(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	mustCreateWallet(t, service, "user1")

	params := store.PendingTransactionParams{
		UserId:    "user1",
		Type:      models.TransactionTypeOrder,
		Amount:    decimal.NewFromInt(5),
		Reference: "order:42",
	}
	first, err := service.CreatePendingTransaction(ctx, params)
	if err != nil {
		t.Fatalf("CreatePendingTransaction failed: %v", err)
	}

	if _, err := service.CreatePendingTransaction(ctx, params); !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Fatalf("Expected ErrDuplicateTransaction, got %v", err)
	}

	if err := service.FailTransaction(ctx, first.Id, "insufficient balance"); err != nil {
		t.Fatalf("FailTransaction failed: %v", err)
	}
	if _, err := service.CreatePendingTransaction(ctx, params); err != nil {
		t.Errorf("Expected reference to be reusable after failure, got %v", err)
	}
}

func TestListTransactions_PaginationAndSort(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	mustCreateWallet(t, service, "user1")
	for _, amount := range []string{"30", "10", "50", "20", "40"} {
		mustProcess(t, service, "user1", models.TransactionTypeDeposit, amount, store.ApplyTransactionParams{}, "")
	}

	items, total, err := service.ListTransactions(ctx, models.TransactionQuery{
		UserId: "user1", Page: 2, Limit: 2, SortBy: "amount", SortOrder: "asc",
	})
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if total != 5 {
		t.Errorf("Expected total 5, got %d", total)
	}
	if len(items) != 2 || !items[0].Amount.Equal(decimal.NewFromInt(30)) || !items[1].Amount.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected page [30 40], got %+v", items)
	}

	items, _, err = service.ListTransactions(ctx, models.TransactionQuery{
		UserId: "user1", Page: 1, Limit: 1, SortBy: "createdAt", SortOrder: "desc",
	})
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(items) != 1 || !items[0].Amount.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected newest transaction first, got %+v", items)
	}

	if _, _, err := service.ListTransactions(ctx, models.TransactionQuery{
		UserId: "user1", Page: 1, Limit: 1, SortBy: "balance; DROP TABLE wallets", SortOrder: "desc",
	}); err == nil {
		t.Errorf("Expected unsupported sort field to be rejected")
	}
}

func TestApplyPendingTransaction_ConcurrentWithdrawals(t *testing.T) {
	service := setupTestDb(t)
	mustCreateWallet(t, service, "user1")
	mustProcess(t, service, "user1", models.TransactionTypeDeposit, "100", store.ApplyTransactionParams{}, "")

	var wg sync.WaitGroup
	var succeeded, insufficient atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := process(service, "user1", models.TransactionTypeWithdrawal, "20", store.ApplyTransactionParams{}, "")
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, store.ErrInsufficientBalance):
				insufficient.Add(1)
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 5 || insufficient.Load() != 5 {
		t.Errorf("Expected 5 successes and 5 rejections, got %d and %d", succeeded.Load(), insufficient.Load())
	}

	wallet, err := service.GetWallet(context.Background(), "user1")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if !wallet.Balance.IsZero() {
		t.Errorf("Expected balance 0, got %s", wallet.Balance)
	}
}
