package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"coin-wallet-go/internal/models"
	"coin-wallet-go/internal/store"
)

func TestCreateWallet(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	wallet, err := service.CreateWallet(ctx, "user1")
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	if !wallet.Balance.IsZero() || !wallet.LockedBalance.IsZero() {
		t.Errorf("Expected zeroed wallet, got %s/%s", wallet.Balance, wallet.LockedBalance)
	}
	if wallet.LoyaltyType != models.LoyaltyBronze || wallet.SqlLevel != 0 {
		t.Errorf("Expected bronze at level 0, got %s at %d", wallet.LoyaltyType, wallet.SqlLevel)
	}

	if _, err := service.CreateWallet(ctx, "user1"); !errors.Is(err, store.ErrWalletExists) {
		t.Errorf("Expected ErrWalletExists, got %v", err)
	}

	stored, err := service.GetWallet(ctx, "user1")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if stored.Id != wallet.Id || !stored.CreatedAt.Equal(wallet.CreatedAt) {
		t.Errorf("Stored wallet %+v does not match created %+v", stored, wallet)
	}
}

func TestGetWallet_NotFound(t *testing.T) {
	service := setupTestDb(t)

	if _, err := service.GetWallet(context.Background(), "nobody"); !errors.Is(err, store.ErrWalletNotFound) {
		t.Errorf("Expected ErrWalletNotFound, got %v", err)
	}
}

func TestSetSqlLevel_OnlyRaises(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	mustCreateWallet(t, service, "user1")

	wallet, err := service.SetSqlLevel(ctx, "user1", 2)
	if err != nil {
		t.Fatalf("SetSqlLevel failed: %v", err)
	}
	if wallet.SqlLevel != 2 {
		t.Errorf("Expected level 2, got %d", wallet.SqlLevel)
	}

	if _, err := service.SetSqlLevel(ctx, "user1", 1); !errors.Is(err, store.ErrLevelNotHigher) {
		t.Errorf("Expected ErrLevelNotHigher when lowering, got %v", err)
	}
	if _, err := service.SetSqlLevel(ctx, "user1", 2); !errors.Is(err, store.ErrLevelNotHigher) {
		t.Errorf("Expected ErrLevelNotHigher when repeating, got %v", err)
	}
	if _, err := service.SetSqlLevel(ctx, "nobody", 1); !errors.Is(err, store.ErrWalletNotFound) {
		t.Errorf("Expected ErrWalletNotFound, got %v", err)
	}
}

func TestTransactionStats(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	mustCreateWallet(t, service, "user1")

	stats, err := service.TransactionStats(ctx, "user1")
	if err != nil {
		t.Fatalf("TransactionStats failed: %v", err)
	}
	if stats.CompletedCount != 0 || stats.LastActivity != nil {
		t.Errorf("Expected empty stats, got %+v", stats)
	}

	mustProcess(t, service, "user1", models.TransactionTypeDeposit, "300", store.ApplyTransactionParams{}, "")
	mustProcess(t, service, "user1", models.TransactionTypeWithdrawal, "100", store.ApplyTransactionParams{}, "")

	stats, err = service.TransactionStats(ctx, "user1")
	if err != nil {
		t.Fatalf("TransactionStats failed: %v", err)
	}
	if stats.CompletedCount != 2 {
		t.Errorf("Expected 2 completed transactions, got %d", stats.CompletedCount)
	}
	if stats.Income.String() != "300" {
		t.Errorf("Expected income 300, got %s", stats.Income)
	}
	if stats.LastActivity == nil || time.Since(*stats.LastActivity) > time.Minute {
		t.Errorf("Expected recent last activity, got %v", stats.LastActivity)
	}
}

func TestSyncLoyaltyTier(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	mustCreateWallet(t, service, "user1")
	mustProcess(t, service, "user1", models.TransactionTypeDeposit, "2000", store.ApplyTransactionParams{}, "")
	mustProcess(t, service, "user1", models.TransactionTypeLock, "1000", lockParams(36, "0.12"), "")

	if _, err := service.db.Exec(`UPDATE wallets SET loyalty_type = 'bronze' WHERE user_id = 'user1'`); err != nil {
		t.Fatalf("Failed to corrupt tier: %v", err)
	}

	wallet, err := service.SyncLoyaltyTier(ctx, "user1")
	if err != nil {
		t.Fatalf("SyncLoyaltyTier failed: %v", err)
	}
	if wallet.LoyaltyType != models.LoyaltyPlatinum {
		t.Errorf("Expected platinum, got %s", wallet.LoyaltyType)
	}
}

func TestReconcileWallet_DetectsDrift(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	mustCreateWallet(t, service, "user1")
	mustProcess(t, service, "user1", models.TransactionTypeDeposit, "50", store.ApplyTransactionParams{}, "")

	if _, err := service.db.Exec(`UPDATE wallets SET balance = '75' WHERE user_id = 'user1'`); err != nil {
		t.Fatalf("Failed to corrupt balance: %v", err)
	}
	if err := service.ReconcileWallet(ctx, "user1"); !errors.Is(err, store.ErrReconciliationMismatch) {
		t.Errorf("Expected ErrReconciliationMismatch, got %v", err)
	}
}
